// Copyright 2018 The Mangos Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func TestBucketSet(t *testing.T) {
	Convey("Given five one-second buckets", t, func() {
		clk := &fakeClock{t: time.Unix(1000, 0)}
		b := NewBucketSet(5, time.Second)
		b.now = clk.now

		So(b.Window(), ShouldEqual, 5*time.Second)
		So(b.Sum(), ShouldEqual, 0)

		Convey("Counts land in the current bucket", func() {
			b.Add(2)
			b.Add(3)
			clk.t = clk.t.Add(time.Second)
			b.Add(1)
			So(b.Buckets(), ShouldResemble, []int64{0, 0, 0, 5, 1})
			So(b.Sum(), ShouldEqual, 6)
			So(b.Rate(), ShouldAlmostEqual, 1.2)
		})

		Convey("Buckets older than the window read as zero", func() {
			b.Add(7)
			clk.t = clk.t.Add(5 * time.Second)
			So(b.Sum(), ShouldEqual, 0)

			Convey("And a reused slot starts from zero", func() {
				b.Add(1)
				So(b.Buckets(), ShouldResemble, []int64{0, 0, 0, 0, 1})
			})
		})
	})
}

func TestMetrics(t *testing.T) {
	Convey("Given metrics logging only sends", t, func() {
		m := New("inproc://a", Options{LogSend: true})
		So(m.SendHistory(), ShouldNotBeNil)
		So(m.ReceiveHistory(), ShouldBeNil)

		m.Sent(10)
		m.Sent(2048)
		m.Received(5)

		s := m.Snapshot()
		So(s.Address, ShouldEqual, "inproc://a")
		So(s.MessagesSent, ShouldEqual, 2)
		So(s.BytesSent, ShouldEqual, 2058)
		So(s.MessagesReceived, ShouldEqual, 1)
		So(s.BytesReceived, ShouldEqual, 5)
		So(s.LastSend.IsZero(), ShouldBeFalse)
		So(s.ReceiveRate, ShouldEqual, 0)
		So(m.SendHistory().Sum(), ShouldEqual, 2)
		So(s.String(), ShouldStartWith, "inproc://a: sent 2")
	})
}

func TestCollector(t *testing.T) {
	Convey("Given a collector with two gateways", t, func() {
		c := NewCollector()
		a := New("inproc://a", Options{})
		b := New("inproc://b", Options{})
		c.Register("g1", a)
		c.Register("g2", b)
		a.Sent(3)
		a.Sent(4)

		So(c.Len(), ShouldEqual, 2)
		So(testutil.CollectAndCount(c), ShouldEqual, 12)

		expected := `
# HELP gateway_messages_sent_total Messages sent on a socket address.
# TYPE gateway_messages_sent_total counter
gateway_messages_sent_total{address="inproc://a",gateway="g1"} 2
gateway_messages_sent_total{address="inproc://b",gateway="g2"} 0
`
		err := testutil.CollectAndCompare(c, strings.NewReader(expected), "gateway_messages_sent_total")
		So(err, ShouldBeNil)

		Convey("It registers with prometheus", func() {
			reg := prometheus.NewPedanticRegistry()
			So(reg.Register(c), ShouldBeNil)
			mfs, err := reg.Gather()
			So(err, ShouldBeNil)
			So(len(mfs), ShouldEqual, 6)
		})

		Convey("Unregister drops a gateway's sockets", func() {
			c.Unregister("g1")
			So(c.Len(), ShouldEqual, 1)
			So(testutil.CollectAndCount(c), ShouldEqual, 6)
		})
	})
}
