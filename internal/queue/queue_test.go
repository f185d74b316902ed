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

package queue

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestQueue(t *testing.T) {
	Convey("Given an empty queue", t, func() {
		q := New[int]()
		So(q.Len(), ShouldEqual, 0)

		Convey("TryPoll finds nothing", func() {
			_, ok := q.TryPoll()
			So(ok, ShouldBeFalse)
		})

		Convey("Items come out in order", func() {
			for i := 0; i < 10; i++ {
				q.Push(i)
			}
			So(q.Len(), ShouldEqual, 10)
			for i := 0; i < 10; i++ {
				v, ok := q.Poll(time.Millisecond)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, i)
			}
			So(q.Len(), ShouldEqual, 0)
		})

		Convey("PushFront jumps the line", func() {
			q.Push(1)
			q.Push(2)
			q.PushFront(0)
			So(q.Drain(), ShouldResemble, []int{0, 1, 2})
		})

		Convey("Contains finds queued items", func() {
			q.Push(7)
			q.Push(9)
			So(q.Contains(func(v int) bool { return v == 9 }), ShouldBeTrue)
			So(q.Contains(func(v int) bool { return v == 8 }), ShouldBeFalse)
		})

		Convey("Remove drops matching items", func() {
			for i := 0; i < 6; i++ {
				q.Push(i)
			}
			So(q.Remove(func(v int) bool { return v%2 == 0 }), ShouldEqual, 3)
			So(q.Drain(), ShouldResemble, []int{1, 3, 5})
		})

		Convey("Poll times out", func() {
			start := time.Now()
			_, ok := q.Poll(time.Millisecond * 50)
			So(ok, ShouldBeFalse)
			So(time.Since(start) >= time.Millisecond*50, ShouldBeTrue)
		})

		Convey("Poll wakes up on push", func() {
			go func() {
				time.Sleep(time.Millisecond * 20)
				q.Push(42)
			}()
			v, ok := q.Poll(time.Second)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 42)
		})
	})
}

func BenchmarkQueuePush(b *testing.B) {
	q := New[int]()
	for i := 0; i < b.N; i++ {
		q.Push(i)
	}
}

func BenchmarkQueuePop(b *testing.B) {
	q := New[int]()
	for i := 0; i < b.N; i++ {
		q.Push(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.TryPoll()
	}
}
