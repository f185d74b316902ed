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

package redelivery

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"nanomsg.org/go/gateway/event"
	"nanomsg.org/go/gateway/message"
)

func TestRetryPolicy(t *testing.T) {
	Convey("Given a policy allowing three retries", t, func() {
		var buf bytes.Buffer
		p := NewRetryPolicy(3, zerolog.New(&buf))
		e := event.NewSend(message.NewText("M2"))

		So(p.MaxRetries(), ShouldEqual, 3)
		_, ok := p.Next()
		So(ok, ShouldBeFalse)

		Convey("A rolled back event is offered R+1 times in total", func() {
			deliveries := 1
			for {
				p.Redeliver([]event.Event{e})
				got, ok := p.Next()
				if !ok {
					break
				}
				So(got.ID(), ShouldEqual, e.ID())
				deliveries++
			}
			So(deliveries, ShouldEqual, 4)
			So(p.Abandoned(), ShouldEqual, 1)
			So(buf.String(), ShouldContainSubstring, "abandoning message")
			So(buf.String(), ShouldContainSubstring, e.ID())

			Convey("And it stays gone", func() {
				_, ok := p.Next()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("Delivered events are forgotten", func() {
			p.Redeliver([]event.Event{e})
			So(p.Pending(), ShouldEqual, 1)
			p.Delivered([]event.Event{e})
			So(p.Pending(), ShouldEqual, 0)
			_, ok := p.Next()
			So(ok, ShouldBeFalse)

			Convey("And their budget starts over", func() {
				for i := 0; i < 3; i++ {
					p.Redeliver([]event.Event{e})
					_, ok := p.Next()
					So(ok, ShouldBeTrue)
				}
				So(p.Abandoned(), ShouldEqual, 0)
			})
		})

		Convey("Heartbeats are never redelivered", func() {
			p.Redeliver([]event.Event{event.NewHeartbeat("hb")})
			So(p.Pending(), ShouldEqual, 0)
		})

		Convey("Order of a batch is kept", func() {
			e2 := event.NewSend(message.NewText("M3"))
			p.Redeliver([]event.Event{e, e2})
			a, _ := p.Next()
			b, _ := p.Next()
			So(a.ID(), ShouldEqual, e.ID())
			So(b.ID(), ShouldEqual, e2.ID())
		})
	})

	Convey("A zero budget abandons on first rollback", t, func() {
		p := NewRetryPolicy(0, zerolog.Nop())
		p.Redeliver([]event.Event{event.NewSend(message.NewText("x"))})
		_, ok := p.Next()
		So(ok, ShouldBeFalse)
		So(p.Abandoned(), ShouldEqual, 1)
	})
}
