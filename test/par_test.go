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

package test

import (
	"testing"
	"time"

	"nanomsg.org/go/gateway"
)

func parConfig(dir gateway.Direction, addr string, bind bool) gateway.Config {
	c := gateway.Config{
		Direction:         dir,
		Addresses:         []string{addr},
		Bind:              bind,
		SocketWait:        socketWait,
		HeartbeatInterval: heartbeat,
		AckTimeout:        time.Second,
		Logger:            quiet(),
	}
	gateway.PAR.Apply(&c)
	return c
}

func TestAcknowledgedDelivery(t *testing.T) {
	addr := AddrTestInp("par")
	pool := gateway.NewContextPool()
	c := open(t, pool, parConfig(gateway.Incoming, addr, true))
	defer c.Close()
	p := open(t, pool, parConfig(gateway.Outgoing, addr, false))
	defer p.Close()

	if p.Pattern() != gateway.DEALER || c.Pattern() != gateway.ROUTER {
		t.Fatalf("patterns %v and %v", p.Pattern(), c.Pattern())
	}
	send(t, p, "A1", "A2", "A3", "A4", "A5")
	checkBodies(t, recvN(t, c, 5), "A1", "A2", "A3", "A4", "A5")
	waitFor(t, "acknowledgements", func() bool {
		return p.Pending() == 0 && p.Tracked() == 0
	})
	expectNone(t, c, 100*time.Millisecond)
}

func TestHeartbeatsKeepSessionRunning(t *testing.T) {
	addr := AddrTestInp("heartbeat")
	pool := gateway.NewContextPool()
	c := open(t, pool, parConfig(gateway.Incoming, addr, true))
	defer c.Close()
	pc := parConfig(gateway.Outgoing, addr, false)
	pc.AutoPauseInterval = 4 * heartbeat
	p := open(t, pool, pc)
	defer p.Close()

	s := p.Sessions()[0]
	waitFor(t, "heartbeats", func() bool {
		return s.Metrics().Snapshot().MessagesSent >= 3
	})
	waitFor(t, "running session", func() bool {
		return s.Status() == gateway.StatusRunning && s.SinceReceive() < pc.AutoPauseInterval
	})
	if p.Tracked() > 2 {
		t.Errorf("%d heartbeats unacknowledged", p.Tracked())
	}
}

func TestAutoPauseWithoutConsumer(t *testing.T) {
	pc := parConfig(gateway.Outgoing, AddrTestInp("pause"), false)
	pc.AutoPauseInterval = 2 * heartbeat
	p := open(t, nil, pc)
	defer p.Close()

	s := p.Sessions()[0]
	waitFor(t, "pause", s.Paused)
	send(t, p, "held")
	time.Sleep(settle)
	if p.Pending() != 1 {
		t.Errorf("pending %d", p.Pending())
	}
}

func TestRetransmitAfterConsumerLoss(t *testing.T) {
	addr := AddrTestInp("retransmit")
	pool := gateway.NewContextPool()
	pc := parConfig(gateway.Outgoing, addr, false)
	pc.AckTimeout = 200 * time.Millisecond
	p := open(t, pool, pc)
	defer p.Close()

	// A bare socket takes the first message and never acknowledges it.
	ctx := pool.Acquire("mute")
	mute, err := ctx.NewSocket(gateway.ROUTER, true)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	if err = ctx.Listen(mute, addr); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	send(t, p, "R1")
	waitFor(t, "message sent", func() bool { return p.Pending() == 0 && p.Tracked() >= 1 })
	ctx.CloseSocket(mute)
	if err = pool.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	c := open(t, pool, parConfig(gateway.Incoming, addr, true))
	defer c.Close()
	got := recvN(t, c, 1)
	checkBodies(t, got, "R1")
	waitFor(t, "acknowledgement", func() bool { return p.Tracked() == 0 })
}
