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

package event

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"nanomsg.org/go/gateway/message"
)

func TestEvents(t *testing.T) {
	Convey("Send events take the message id", t, func() {
		m := message.NewText("M1")
		e := NewSend(m)
		So(e.Kind(), ShouldEqual, KindSend)
		So(e.ID(), ShouldEqual, m.ID)
		So(e.Message(), ShouldEqual, m)
		So(e.IsZero(), ShouldBeFalse)
	})
	Convey("Heartbeats and acks carry no message", t, func() {
		hb := NewHeartbeat("hb")
		ack := NewAck("hb")
		So(hb.Message(), ShouldBeNil)
		So(ack.Message(), ShouldBeNil)
		So(hb.String(), ShouldEqual, "heartbeat[hb]")
		So(ack.String(), ShouldEqual, "ack[hb]")
		So(IDs([]Event{hb, ack}), ShouldResemble, []string{"hb", "hb"})
	})
	Convey("The zero event is recognizable", t, func() {
		var e Event
		So(e.IsZero(), ShouldBeTrue)
		So(e.Kind().String(), ShouldEqual, "unknown")
	})
}
