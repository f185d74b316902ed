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

package stomp

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"nanomsg.org/go/gateway/errors"
	"nanomsg.org/go/gateway/event"
	"nanomsg.org/go/gateway/message"
)

func TestStompCodec(t *testing.T) {
	c := New()

	Convey("A text send frame", t, func() {
		m := message.NewText("hello\n\nworld")
		m.CorrelationID = "corr:1"
		m.Destination = "orders"
		m.Priority = 7
		m.SetProperty("region", "emea")
		m.SetProperty("qty", 3)

		b, err := c.Marshal(event.NewSend(m))
		So(err, ShouldBeNil)
		So(string(b), ShouldStartWith, "SEND\nmessage-id:"+m.ID+"\nversion:1.0\n")
		So(string(b), ShouldContainSubstring, "correlation-id:corr\\c1\n")

		Convey("Decodes back to the same message", func() {
			e, err := c.Unmarshal(b)
			So(err, ShouldBeNil)
			So(e.Kind(), ShouldEqual, event.KindSend)
			So(e.ID(), ShouldEqual, m.ID)
			got := e.Message()
			So(got.Text(), ShouldEqual, "hello\n\nworld")
			So(got.Type, ShouldEqual, message.TypeText)
			So(got.CorrelationID, ShouldEqual, "corr:1")
			So(got.Destination, ShouldEqual, "orders")
			So(got.Priority, ShouldEqual, 7)
			So(got.Timestamp.Equal(m.Timestamp.Round(0)), ShouldBeTrue)
			So(got.StringProperty("region"), ShouldEqual, "emea")
			So(got.StringProperty("qty"), ShouldEqual, "3")
		})
	})

	Convey("Numeric properties survive the wire", t, func() {
		m := message.NewText("n")
		m.SetProperty("n", 1000000)
		m.SetProperty("big", int64(9007199254740993))
		b, err := c.Marshal(event.NewSend(m))
		So(err, ShouldBeNil)
		So(string(b), ShouldContainSubstring, "property-big:9007199254740993\n")
		e, err := c.Unmarshal(b)
		So(err, ShouldBeNil)
		got := e.Message()
		So(got.StringProperty("n"), ShouldEqual, "1000000")
		So(got.StringProperty("big"), ShouldEqual, "9007199254740993")
		So(message.Accept(message.PropertyEquals("n", 1000000), got), ShouldBeTrue)
		So(message.Accept(message.PropertyEquals("big", int64(9007199254740993)), got), ShouldBeTrue)
		So(message.Accept(message.PropertyEquals("big", int64(9007199254740992)), got), ShouldBeFalse)
	})

	Convey("An empty text message is not a heartbeat", t, func() {
		b, err := c.Marshal(event.NewSend(message.NewText("")))
		So(err, ShouldBeNil)
		e, err := c.Unmarshal(b)
		So(err, ShouldBeNil)
		So(e.Kind(), ShouldEqual, event.KindSend)
	})

	Convey("Heartbeats are body-less send frames", t, func() {
		b, err := c.Marshal(event.NewHeartbeat("hb-1"))
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, "SEND\nmessage-id:hb-1\nversion:1.0\n\n")
		e, err := c.Unmarshal(b)
		So(err, ShouldBeNil)
		So(e.Kind(), ShouldEqual, event.KindHeartbeat)
		So(e.ID(), ShouldEqual, "hb-1")
	})

	Convey("Acks reference the acknowledged id", t, func() {
		b, err := c.Marshal(event.NewAck("m-9"))
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, "ACK\nid:m-9\nversion:1.0\n\n")
		e, err := c.Unmarshal(b)
		So(err, ShouldBeNil)
		So(e.Kind(), ShouldEqual, event.KindAck)
		So(e.ID(), ShouldEqual, "m-9")
	})

	Convey("Corrupt frames are rejected", t, func() {
		cases := []struct {
			frame string
			want  error
		}{
			{"SEND\nmessage-id:x\nversion:1.0", errors.ErrCorruptFrame},
			{"SEND\nversion:1.0\n\n", errors.ErrMissingID},
			{"ACK\nversion:1.0\n\n", errors.ErrMissingID},
			{"SEND\nmessage-id:x\n\n", errors.ErrBadVersion},
			{"SEND\nmessage-id:x\nversion:2.1\n\n", errors.ErrBadVersion},
			{"NACK\nid:x\nversion:1.0\n\n", errors.ErrBadCommand},
			{"SEND\nmessage-id:x\nversion:1.0\nbogus\n\n", errors.ErrCorruptFrame},
			{"SEND\nmessage-id:x\nversion:1.0\n\nbody", errors.ErrCorruptFrame},
			{"SEND\nmessage-id:x\nversion:1.0\ncontent-type:zz\n\n", errors.ErrCorruptFrame},
		}
		for _, tc := range cases {
			_, err := c.Unmarshal([]byte(tc.frame))
			So(err, ShouldEqual, tc.want)
		}
	})

	Convey("Zero timestamps are left out", t, func() {
		m := message.NewBytes([]byte{0, 1, 2})
		m.Timestamp = time.Time{}
		b, err := c.Marshal(event.NewSend(m))
		So(err, ShouldBeNil)
		So(string(b), ShouldNotContainSubstring, HdrTimestamp)
		e, err := c.Unmarshal(b)
		So(err, ShouldBeNil)
		So(e.Message().Body, ShouldResemble, []byte{0, 1, 2})
	})
}
