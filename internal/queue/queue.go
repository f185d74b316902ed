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

// Package queue implements the blocking FIFO transfer queues used between
// gateway callers and socket session workers.
package queue

import (
	"sync"
	"time"
)

// Queue is an unbounded FIFO that is safe for concurrent use.  Producers
// never block; consumers may wait for an item up to a deadline.
type Queue[T any] struct {
	sync.Mutex
	items list[T]
	ready chan struct{} // closed and replaced on every push
}

// New allocates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{})}
}

func (q *Queue[T]) signal() {
	close(q.ready)
	q.ready = make(chan struct{})
}

// Push appends v to the tail of the queue.
func (q *Queue[T]) Push(v T) {
	q.Lock()
	q.items.insertTail(&node[T]{value: v})
	q.signal()
	q.Unlock()
}

// PushFront puts v back at the head of the queue, so that it is the next
// item taken.
func (q *Queue[T]) PushFront(v T) {
	q.Lock()
	q.items.insertHead(&node[T]{value: v})
	q.signal()
	q.Unlock()
}

// TryPoll removes the head of the queue without waiting.
func (q *Queue[T]) TryPoll() (T, bool) {
	q.Lock()
	defer q.Unlock()
	if n := q.items.removeHead(); n != nil {
		return n.value, true
	}
	var zero T
	return zero, false
}

// Poll removes the head of the queue, waiting up to timeout for one to
// arrive.  A zero or negative timeout does not wait.
func (q *Queue[T]) Poll(timeout time.Duration) (T, bool) {
	if timeout <= 0 {
		return q.TryPoll()
	}
	tm := mkTimer(time.Now().Add(timeout))
	for {
		q.Lock()
		if n := q.items.removeHead(); n != nil {
			q.Unlock()
			return n.value, true
		}
		ready := q.ready
		q.Unlock()

		select {
		case <-ready:
		case <-tm:
			return q.TryPoll()
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.Lock()
	defer q.Unlock()
	return q.items.size
}

// Contains reports whether any queued item satisfies match.
func (q *Queue[T]) Contains(match func(T) bool) bool {
	q.Lock()
	defer q.Unlock()
	found := false
	q.items.each(func(v T) bool {
		found = match(v)
		return !found
	})
	return found
}

// Remove deletes every queued item that satisfies match, returning how
// many were removed.
func (q *Queue[T]) Remove(match func(T) bool) int {
	q.Lock()
	defer q.Unlock()
	var doomed []*node[T]
	for n := q.items.root.next; n != nil && n != &q.items.root; n = n.next {
		if match(n.value) {
			doomed = append(doomed, n)
		}
	}
	for _, n := range doomed {
		q.items.remove(n)
	}
	return len(doomed)
}

// Drain removes and returns every queued item, head first.
func (q *Queue[T]) Drain() []T {
	q.Lock()
	defer q.Unlock()
	out := make([]T, 0, q.items.size)
	for n := q.items.removeHead(); n != nil; n = q.items.removeHead() {
		out = append(out, n.value)
	}
	return out
}

// mkTimer creates a timer based upon an absolute time.  If however
// a zero valued time is passed, then then a nil channel is passed
// i.e. never selectable.
func mkTimer(deadline time.Time) <-chan time.Time {

	if deadline.IsZero() {
		return nil
	}

	dur := time.Until(deadline)
	if dur < 0 {
		// a closed channel never blocks
		tm := make(chan time.Time)
		close(tm)
		return tm
	}

	return time.After(dur)
}
