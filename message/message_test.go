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

package message

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"nanomsg.org/go/gateway/errors"
)

type order struct {
	Item string `json:"item"`
	Qty  int    `json:"qty"`
}

func TestMessage(t *testing.T) {
	Convey("Messages get identity on creation", t, func() {
		m1 := NewText("hello")
		m2 := NewText("hello")
		So(m1.ID, ShouldNotBeEmpty)
		So(m1.ID, ShouldNotEqual, m2.ID)
		So(m1.Priority, ShouldEqual, DefaultPriority)
		So(m1.Timestamp.IsZero(), ShouldBeFalse)
		So(m1.Text(), ShouldEqual, "hello")
	})

	Convey("Map bodies decode", t, func() {
		m, err := NewMap(map[string]interface{}{"a": "b"})
		So(err, ShouldBeNil)
		So(m.Type, ShouldEqual, TypeMap)
		v, err := m.Map()
		So(err, ShouldBeNil)
		So(v["a"], ShouldEqual, "b")

		Convey("But not as objects", func() {
			var o order
			So(m.Object(&o), ShouldEqual, errors.ErrBadBody)
		})
	})

	Convey("Object bodies decode", t, func() {
		m, err := NewObject(order{Item: "widget", Qty: 3})
		So(err, ShouldBeNil)
		var o order
		So(m.Object(&o), ShouldBeNil)
		So(o, ShouldResemble, order{Item: "widget", Qty: 3})
	})

	Convey("Properties", t, func() {
		m := NewBytes([]byte{1, 2})
		m.SetProperty("region", "emea")
		m.SetProperty("count", 3)
		So(m.StringProperty("region"), ShouldEqual, "emea")
		So(m.StringProperty("count"), ShouldEqual, "3")
		So(m.StringProperty("missing"), ShouldEqual, "")

		Convey("Clones are independent", func() {
			c := m.Clone()
			c.SetProperty("region", "apac")
			c.Body[0] = 9
			So(m.StringProperty("region"), ShouldEqual, "emea")
			So(m.Body[0], ShouldEqual, 1)
		})
	})

	Convey("Storage encoding keeps everything", t, func() {
		m := NewText("stored")
		m.CorrelationID = "corr"
		m.SetProperty("k", "v")
		b, err := Marshal(m)
		So(err, ShouldBeNil)
		m2, err := Unmarshal(b)
		So(err, ShouldBeNil)
		So(m2.ID, ShouldEqual, m.ID)
		So(m2.CorrelationID, ShouldEqual, "corr")
		So(m2.Text(), ShouldEqual, "stored")
		So(m2.StringProperty("k"), ShouldEqual, "v")
		So(m2.Timestamp.Equal(m.Timestamp), ShouldBeTrue)
	})

	Convey("Selectors", t, func() {
		m := NewText("x")
		m.SetProperty("qty", 5)
		So(Accept(nil, m), ShouldBeTrue)
		So(Accept(PropertyEquals("qty", 5), m), ShouldBeTrue)
		So(Accept(PropertyEquals("qty", 6), m), ShouldBeFalse)
		So(Accept(PropertyEquals("other", 5), m), ShouldBeFalse)
	})

	Convey("Numeric properties keep their value", t, func() {
		const big = int64(9007199254740993)
		m := NewText("x")
		m.SetProperty("n", 1000000)
		m.SetProperty("big", big)
		m.SetProperty("ratio", 0.25)
		m.SetProperty("name", "1000000")

		b, err := Marshal(m)
		So(err, ShouldBeNil)
		m2, err := Unmarshal(b)
		So(err, ShouldBeNil)
		So(m2.Properties["n"], ShouldEqual, int64(1000000))
		So(m2.Properties["big"], ShouldEqual, big)
		So(m2.Properties["ratio"], ShouldEqual, 0.25)
		So(m2.StringProperty("n"), ShouldEqual, "1000000")
		So(m2.StringProperty("big"), ShouldEqual, "9007199254740993")

		So(Accept(PropertyEquals("n", 1000000), m2), ShouldBeTrue)
		So(Accept(PropertyEquals("n", "1000000"), m2), ShouldBeTrue)
		So(Accept(PropertyEquals("n", 1e6), m2), ShouldBeTrue)
		So(Accept(PropertyEquals("big", big), m2), ShouldBeTrue)
		So(Accept(PropertyEquals("big", big-1), m2), ShouldBeFalse)
		So(Accept(PropertyEquals("ratio", "0.25"), m2), ShouldBeTrue)
		So(Accept(PropertyEquals("name", 1000000), m2), ShouldBeTrue)
		So(Accept(PropertyEquals("name", "1e6"), m2), ShouldBeFalse)
	})

	Convey("Property values decode with integer precision", t, func() {
		v, err := DecodeProperty([]byte("18446744073709551615"))
		So(err, ShouldBeNil)
		So(v, ShouldEqual, uint64(18446744073709551615))
		v, err = DecodeProperty([]byte(`{"a":[1,2.5]}`))
		So(err, ShouldBeNil)
		So(v, ShouldResemble, map[string]interface{}{"a": []interface{}{int64(1), 2.5}})
		_, err = DecodeProperty([]byte("{"))
		So(err, ShouldNotBeNil)
	})

	Convey("Types print and parse", t, func() {
		for _, ty := range []Type{TypeText, TypeBytes, TypeMap, TypeObject} {
			p, err := ParseType(ty.String())
			So(err, ShouldBeNil)
			So(p, ShouldEqual, ty)
		}
		_, err := ParseType("nope")
		So(err, ShouldNotBeNil)
	})
}
