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

// node represents a node in a doubly linked list.  The list owns a
// sentinel node, so insertion and removal never need to special-case the
// ends.
type node[T any] struct {
	next  *node[T]
	prev  *node[T]
	list  *list[T]
	value T
}

// list is a doubly linked list.  Unlike container/list it is typed, and
// unlike a slice it does not need re-ordering when items are pushed back
// at the head (which is how failed sends are re-queued).
type list[T any] struct {
	root node[T]
	size int
}

func (l *list[T]) init() {
	if l.root.list == nil {
		l.root.next = &l.root
		l.root.prev = &l.root
		l.root.list = l
	}
}

func (l *list[T]) insertHead(n *node[T]) {
	l.init()
	n.next = l.root.next
	n.prev = &l.root
	n.next.prev = n
	n.prev.next = n
	n.list = l
	l.size++
}

func (l *list[T]) insertTail(n *node[T]) {
	l.init()
	n.prev = l.root.prev
	n.next = &l.root
	n.next.prev = n
	n.prev.next = n
	n.list = l
	l.size++
}

func (l *list[T]) removeHead() *node[T] {
	l.init()
	n := l.root.next
	if n == &l.root {
		return nil
	}
	l.remove(n)
	return n
}

func (l *list[T]) remove(n *node[T]) {
	if n.list != l {
		if n.list != nil {
			panic("Attempt to remove from wrong list!")
		}
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next = nil
	n.prev = nil
	n.list = nil
	l.size--
}

func (l *list[T]) each(fn func(T) bool) {
	l.init()
	for n := l.root.next; n != &l.root; n = n.next {
		if !fn(n.value) {
			return
		}
	}
}
