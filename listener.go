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

package gateway

import (
	"time"

	"github.com/nats-io/nuid"

	"nanomsg.org/go/gateway/event"
	"nanomsg.org/go/gateway/message"
)

// MessageListener receives messages asynchronously from an incoming
// gateway.
type MessageListener interface {
	OnMessage(m *message.Message)
}

// ListenerFunc adapts a function to MessageListener.
type ListenerFunc func(m *message.Message)

// OnMessage implements MessageListener.
func (f ListenerFunc) OnMessage(m *message.Message) { f(m) }

// SetListener installs l to receive every message.  The first listener
// installed on an open gateway starts the delivery goroutine; later calls
// replace the listener it delivers to.
func (g *Gateway) SetListener(l MessageListener) error {
	if l == nil {
		return ErrBadParam
	}
	if g.cfg.Direction != Incoming {
		return ErrBadDirection
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == stateClosed {
		return ErrClosed
	}
	g.listener = l
	if g.state == stateOpen && !g.listenerStarted {
		g.startListener()
	}
	return nil
}

// startListener must be called with g.mu held.
func (g *Gateway) startListener() {
	g.listenerStarted = true
	g.listenerTomb.Go(g.deliver)
}

func (g *Gateway) currentListener() MessageListener {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listener
}

func (g *Gateway) deliver() error {
	for {
		select {
		case <-g.listenerTomb.Dying():
			return nil
		default:
		}
		m, err := g.RecvTimeout(g.cfg.SocketWait)
		if err != nil {
			return nil
		}
		if m != nil {
			g.currentListener().OnMessage(m)
		}
	}
}

// sessionListener connects the gateway's queues to its sessions.
type sessionListener struct {
	g *Gateway
}

func (l *sessionListener) OnOpen(s *Session) {
	evtOpened.log(l.g.log.Debug()).
		Str("address", s.Address()).
		Bool("bind", s.Bound()).
		Msg("session open")
}

func (l *sessionListener) OnClose(s *Session) {
	evtClosed.log(l.g.log.Debug()).
		Str("address", s.Address()).
		Str("metrics", s.Metrics().Snapshot().String()).
		Msg("session closed")
}

// OnSend offers, in order: recovered journal entries, the outgoing queue,
// then a heartbeat when output has been idle.  A paused session only
// heartbeats.
func (l *sessionListener) OnSend(s *Session) (event.Event, bool) {
	g := l.g
	if s.Paused() && !s.Incoming() {
		// nothing will be received to resume it, so it wakes on a timer
		if s.SincePause() < g.cfg.HeartbeatInterval {
			time.Sleep(minDuration(g.cfg.SocketWait, g.cfg.HeartbeatInterval-s.SincePause()))
			return event.Event{}, false
		}
		s.Resume()
	}
	if !s.Paused() {
		g.retransmit()
		if ev, ok := g.recoverOutgoing(); ok {
			return ev, true
		}
		wait := g.cfg.SocketWait
		if s.Incoming() {
			wait = 0
		}
		if ev, ok := g.outgoing.Poll(wait); ok {
			return ev, true
		}
	}
	if !g.cfg.Heartbeat || s.SinceSend() < g.cfg.HeartbeatInterval {
		return event.Event{}, false
	}
	if s.Incoming() && !s.Paused() && s.SinceReceive() > g.cfg.AutoPauseInterval {
		s.Pause()
		return event.Event{}, false
	}
	hb := event.NewHeartbeat(nuid.Next())
	if g.cfg.Acknowledge {
		g.track(hb)
	}
	return hb, true
}

func (l *sessionListener) OnSent(s *Session, ev event.Event) {
	g := l.g
	if ev.Kind() != event.KindSend {
		return
	}
	if g.cfg.Acknowledge {
		g.track(ev)
		return
	}
	g.journalDelete(ev.ID())
}

func (l *sessionListener) OnReceive(s *Session, ev event.Event) (event.Event, bool) {
	g := l.g
	replies := g.cfg.Acknowledge && g.cfg.Direction == Incoming
	switch ev.Kind() {
	case event.KindSend:
		if g.cfg.Direction != Incoming {
			g.log.Debug().Str("id", ev.ID()).Msg("ignoring message sent to a producer")
			return event.Event{}, false
		}
		g.journalCreate(ev)
		g.incoming.Push(ev)
		if replies {
			return event.NewAck(ev.ID()), true
		}
	case event.KindHeartbeat:
		if replies {
			return event.NewAck(ev.ID()), true
		}
	case event.KindAck:
		acked, ok := g.untrack(ev.ID())
		if !ok {
			evtUnexpectedAck.log(g.log.Warn()).
				Str("address", s.Address()).
				Str("id", ev.ID()).
				Msg("unexpected acknowledgement")
			break
		}
		if acked.Kind() == event.KindSend {
			g.journalDelete(acked.ID())
		}
	}
	return event.Event{}, false
}

// OnError puts a message that could not be sent back at the head of the
// queue, for this or another session to send.
func (l *sessionListener) OnError(s *Session, ev event.Event, err error) {
	g := l.g
	switch ev.Kind() {
	case event.KindSend:
		g.untrack(ev.ID())
		g.outgoing.PushFront(ev)
	case event.KindHeartbeat:
		g.untrack(ev.ID())
	case 0:
		g.log.Error().Err(err).Str("address", s.Address()).Msg("session error")
	}
}
