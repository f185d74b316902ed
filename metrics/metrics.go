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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jpillora/sizestr"
)

// Defaults for the rolling history.
const (
	DefaultBuckets  = 60
	DefaultInterval = time.Second
)

// Options selects which directions keep a rolling history.
type Options struct {
	LogSend    bool
	LogReceive bool
	Buckets    int
	Interval   time.Duration
}

// Metrics holds the counters of one socket address.  Counters are updated
// by the owning session and may be read from any goroutine.
type Metrics struct {
	address string

	sent          atomic.Int64
	sentBytes     atomic.Int64
	received      atomic.Int64
	receivedBytes atomic.Int64
	lastSend      atomic.Int64
	lastReceive   atomic.Int64

	sendHistory    *BucketSet
	receiveHistory *BucketSet
}

// New returns the metrics for address.
func New(address string, opts Options) *Metrics {
	if opts.Buckets <= 0 {
		opts.Buckets = DefaultBuckets
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	m := &Metrics{address: address}
	if opts.LogSend {
		m.sendHistory = NewBucketSet(opts.Buckets, opts.Interval)
	}
	if opts.LogReceive {
		m.receiveHistory = NewBucketSet(opts.Buckets, opts.Interval)
	}
	return m
}

// Address returns the address the metrics belong to.
func (m *Metrics) Address() string { return m.address }

// Sent records one message of size bytes leaving the socket.
func (m *Metrics) Sent(size int) {
	m.sent.Add(1)
	m.sentBytes.Add(int64(size))
	m.lastSend.Store(time.Now().UnixNano())
	if m.sendHistory != nil {
		m.sendHistory.Add(1)
	}
}

// Received records one message of size bytes arriving on the socket.
func (m *Metrics) Received(size int) {
	m.received.Add(1)
	m.receivedBytes.Add(int64(size))
	m.lastReceive.Store(time.Now().UnixNano())
	if m.receiveHistory != nil {
		m.receiveHistory.Add(1)
	}
}

// SendHistory returns the rolling send counts, or nil when not logged.
func (m *Metrics) SendHistory() *BucketSet { return m.sendHistory }

// ReceiveHistory returns the rolling receive counts, or nil when not
// logged.
func (m *Metrics) ReceiveHistory() *BucketSet { return m.receiveHistory }

// Snapshot is a point-in-time copy of Metrics.
type Snapshot struct {
	Address          string
	MessagesSent     int64
	BytesSent        int64
	MessagesReceived int64
	BytesReceived    int64
	LastSend         time.Time
	LastReceive      time.Time
	SendRate         float64
	ReceiveRate      float64
}

func unixTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Address:          m.address,
		MessagesSent:     m.sent.Load(),
		BytesSent:        m.sentBytes.Load(),
		MessagesReceived: m.received.Load(),
		BytesReceived:    m.receivedBytes.Load(),
		LastSend:         unixTime(m.lastSend.Load()),
		LastReceive:      unixTime(m.lastReceive.Load()),
	}
	if m.sendHistory != nil {
		s.SendRate = m.sendHistory.Rate()
	}
	if m.receiveHistory != nil {
		s.ReceiveRate = m.receiveHistory.Rate()
	}
	return s
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s: sent %d (%s, %.1f/s) received %d (%s, %.1f/s)",
		s.Address,
		s.MessagesSent, sizestr.ToString(s.BytesSent), s.SendRate,
		s.MessagesReceived, sizestr.ToString(s.BytesReceived), s.ReceiveRate)
}
