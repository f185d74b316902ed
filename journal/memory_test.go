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

package journal

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"nanomsg.org/go/gateway/errors"
	"nanomsg.org/go/gateway/message"
)

func TestMemoryStore(t *testing.T) {
	Convey("Given an in-memory journal", t, func() {
		s := NewMemory()

		Convey("It refuses work while closed", func() {
			So(s.Create("a", message.NewText("x")), ShouldEqual, errors.ErrJournalClosed)
			_, _, err := s.Read()
			So(err, ShouldEqual, errors.ErrJournalClosed)
			So(s.Delete("a"), ShouldEqual, errors.ErrJournalClosed)
		})

		Convey("When opened", func() {
			So(s.Open(), ShouldBeNil)
			So(s.Open(), ShouldBeNil)

			Convey("Entries created now are not offered", func() {
				So(s.Create("a", message.NewText("A")), ShouldBeNil)
				_, ok, err := s.Read()
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				So(s.Len(), ShouldEqual, 1)
			})

			Convey("An empty id is rejected", func() {
				So(s.Create("", message.NewText("A")), ShouldEqual, errors.ErrMissingID)
			})

			Convey("Entries survive a reopen and are recovered in order", func() {
				for _, id := range []string{"c", "a", "b"} {
					So(s.Create(id, message.NewText(id+"-body")), ShouldBeNil)
				}
				So(s.Delete("a"), ShouldBeNil)
				So(s.Close(), ShouldBeNil)
				So(s.Open(), ShouldBeNil)

				e, ok, err := s.Read()
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(e.ID, ShouldEqual, "c")
				So(e.Message.Text(), ShouldEqual, "c-body")

				So(s.Delete("b"), ShouldBeNil)
				_, ok, _ = s.Read()
				So(ok, ShouldBeFalse)

				Convey("Each recovered entry is offered once per open", func() {
					So(s.Len(), ShouldEqual, 1)
					So(s.Close(), ShouldBeNil)
					So(s.Open(), ShouldBeNil)
					e, ok, _ := s.Read()
					So(ok, ShouldBeTrue)
					So(e.ID, ShouldEqual, "c")
				})
			})
		})
	})
}

func TestEncode(t *testing.T) {
	Convey("Encoding keeps the message intact", t, func() {
		m := message.NewText("hello")
		m.SetProperty("region", "eu")
		b, err := Encode(m)
		So(err, ShouldBeNil)
		n, err := Decode(b)
		So(err, ShouldBeNil)
		So(n.ID, ShouldEqual, m.ID)
		So(n.Text(), ShouldEqual, "hello")
		So(n.StringProperty("region"), ShouldEqual, "eu")

		_, err = Encode(nil)
		So(err, ShouldEqual, errors.ErrBadParam)
	})
}
