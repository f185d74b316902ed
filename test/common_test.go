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

// Package test holds end to end tests that run gateways and proxies
// against each other over real transports.
package test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nanomsg.org/go/gateway"
	"nanomsg.org/go/gateway/message"
)

// Timing used throughout.  Sessions poll quickly so tests stay short.
const (
	socketWait = 20 * time.Millisecond
	heartbeat  = 50 * time.Millisecond
	settle     = 250 * time.Millisecond
	deadline   = 10 * time.Second
)

var addrSeq atomic.Int32

// AddrTestInp returns a fresh inproc address.
func AddrTestInp(name string) string {
	return fmt.Sprintf("inproc://test/%s/%d", name, addrSeq.Add(1))
}

// AddrTestTCP returns a fresh loopback TCP address.
func AddrTestTCP() string {
	return fmt.Sprintf("tcp://127.0.0.1:%d", 47100+addrSeq.Add(1))
}

func quiet() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// producerConfig returns a fire-and-forget producer for addr.
func producerConfig(addr string, bind bool) gateway.Config {
	return gateway.Config{
		Direction:         gateway.Outgoing,
		Pattern:           gateway.PUSH,
		Addresses:         []string{addr},
		Bind:              bind,
		SocketWait:        socketWait,
		HeartbeatInterval: heartbeat,
		Logger:            quiet(),
	}
}

// consumerConfig returns a fire-and-forget consumer for addr.
func consumerConfig(addr string, bind bool) gateway.Config {
	return gateway.Config{
		Direction:         gateway.Incoming,
		Pattern:           gateway.PULL,
		Addresses:         []string{addr},
		Bind:              bind,
		SocketWait:        socketWait,
		HeartbeatInterval: heartbeat,
		Logger:            quiet(),
	}
}

func open(t *testing.T, pool *gateway.ContextPool, cfg gateway.Config) *gateway.Gateway {
	t.Helper()
	g, err := gateway.New(pool, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err = g.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return g
}

func send(t *testing.T, g *gateway.Gateway, bodies ...string) []*message.Message {
	t.Helper()
	var sent []*message.Message
	for _, b := range bodies {
		m := message.NewText(b)
		if err := g.Send(m); err != nil {
			t.Fatalf("Send %s: %v", b, err)
		}
		sent = append(sent, m)
	}
	return sent
}

// recvN receives n messages, failing the test if they take longer than
// deadline in total.
func recvN(t *testing.T, g *gateway.Gateway, n int) []*message.Message {
	t.Helper()
	var got []*message.Message
	end := time.Now().Add(deadline)
	for len(got) < n {
		left := time.Until(end)
		if left <= 0 {
			t.Fatalf("received %d of %d messages", len(got), n)
		}
		m, err := g.RecvTimeout(left)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if m != nil {
			got = append(got, m)
		}
	}
	return got
}

// expectNone fails if g delivers anything within d.
func expectNone(t *testing.T, g *gateway.Gateway, d time.Duration) {
	t.Helper()
	m, err := g.RecvTimeout(d)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if m != nil {
		t.Errorf("unexpected message %q", m.Text())
	}
}

func bodies(ms []*message.Message) []string {
	var out []string
	for _, m := range ms {
		out = append(out, m.Text())
	}
	return out
}

func checkBodies(t *testing.T, got []*message.Message, want ...string) {
	t.Helper()
	b := bodies(got)
	if len(b) != len(want) {
		t.Fatalf("got %v, want %v", b, want)
	}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("got %v, want %v", b, want)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for !cond() {
		if time.Now().After(end) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(socketWait)
	}
}
