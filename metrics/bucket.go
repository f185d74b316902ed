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

// Package metrics keeps per-address traffic counters for gateway sockets
// and exposes them to Prometheus.
package metrics

import (
	"sync"
	"time"
)

type slot struct {
	epoch int64
	count int64
}

// BucketSet counts events over a rolling window made of a fixed number of
// buckets.  The bucket for a point in time is
// (unix millis / interval millis) % count; a bucket whose recorded epoch
// has fallen out of the window reads as zero.
type BucketSet struct {
	mu       sync.Mutex
	interval int64
	slots    []slot
	now      func() time.Time
}

// NewBucketSet returns a set of count buckets each covering interval.
func NewBucketSet(count int, interval time.Duration) *BucketSet {
	if count < 1 {
		count = 1
	}
	ms := interval.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return &BucketSet{
		interval: ms,
		slots:    make([]slot, count),
		now:      time.Now,
	}
}

func (b *BucketSet) epoch() int64 {
	return b.now().UnixMilli() / b.interval
}

// Add counts n events in the current bucket.
func (b *BucketSet) Add(n int64) {
	b.mu.Lock()
	e := b.epoch()
	s := &b.slots[e%int64(len(b.slots))]
	if s.epoch != e {
		s.epoch = e
		s.count = 0
	}
	s.count += n
	b.mu.Unlock()
}

// Buckets returns the counts in the window, oldest first.
func (b *BucketSet) Buckets() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(b.slots))
	cur := b.epoch()
	out := make([]int64, n)
	for i := int64(0); i < n; i++ {
		e := cur - n + 1 + i
		if e < 0 {
			continue
		}
		if s := b.slots[e%n]; s.epoch == e {
			out[i] = s.count
		}
	}
	return out
}

// Sum returns the total over the window.
func (b *BucketSet) Sum() int64 {
	var total int64
	for _, c := range b.Buckets() {
		total += c
	}
	return total
}

// Rate returns the average number of events per second over the window.
func (b *BucketSet) Rate() float64 {
	window := float64(b.interval*int64(len(b.slots))) / 1000
	return float64(b.Sum()) / window
}

// Window returns the span covered by the set.
func (b *BucketSet) Window() time.Duration {
	return time.Duration(b.interval*int64(len(b.slots))) * time.Millisecond
}
