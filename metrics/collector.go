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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gateway"

var labels = []string{"gateway", "address"}

type key struct {
	owner   string
	address string
}

// Collector implements prometheus.Collector over the Metrics of every
// registered gateway and proxy socket.
type Collector struct {
	mu      sync.RWMutex
	entries map[key]*Metrics

	messagesSent     *prometheus.Desc
	bytesSent        *prometheus.Desc
	messagesReceived *prometheus.Desc
	bytesReceived    *prometheus.Desc
	lastSend         *prometheus.Desc
	lastReceive      *prometheus.Desc
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		entries:          make(map[key]*Metrics),
		messagesSent:     desc("messages_sent_total", "Messages sent on a socket address."),
		bytesSent:        desc("bytes_sent_total", "Bytes sent on a socket address."),
		messagesReceived: desc("messages_received_total", "Messages received on a socket address."),
		bytesReceived:    desc("bytes_received_total", "Bytes received on a socket address."),
		lastSend:         desc("last_send_timestamp_seconds", "Unix time of the last send on a socket address."),
		lastReceive:      desc("last_receive_timestamp_seconds", "Unix time of the last receive on a socket address."),
	}
}

// Register adds the metrics of one socket owned by owner.
func (c *Collector) Register(owner string, m *Metrics) {
	c.mu.Lock()
	c.entries[key{owner, m.Address()}] = m
	c.mu.Unlock()
}

// Unregister removes every socket registered by owner.
func (c *Collector) Unregister(owner string) {
	c.mu.Lock()
	for k := range c.entries {
		if k.owner == owner {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Len returns the number of registered sockets.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.messagesSent
	ch <- c.bytesSent
	ch <- c.messagesReceived
	ch <- c.bytesReceived
	ch <- c.lastSend
	ch <- c.lastReceive
}

func seconds(s Snapshot, last bool) float64 {
	t := s.LastReceive
	if last {
		t = s.LastSend
	}
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, m := range c.entries {
		s := m.Snapshot()
		ch <- prometheus.MustNewConstMetric(c.messagesSent, prometheus.CounterValue, float64(s.MessagesSent), k.owner, k.address)
		ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(s.BytesSent), k.owner, k.address)
		ch <- prometheus.MustNewConstMetric(c.messagesReceived, prometheus.CounterValue, float64(s.MessagesReceived), k.owner, k.address)
		ch <- prometheus.MustNewConstMetric(c.bytesReceived, prometheus.CounterValue, float64(s.BytesReceived), k.owner, k.address)
		ch <- prometheus.MustNewConstMetric(c.lastSend, prometheus.GaugeValue, seconds(s, true), k.owner, k.address)
		ch <- prometheus.MustNewConstMetric(c.lastReceive, prometheus.GaugeValue, seconds(s, false), k.owner, k.address)
	}
}
