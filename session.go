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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.nanomsg.org/mangos/v3"

	"nanomsg.org/go/gateway/event"
	"nanomsg.org/go/gateway/filter"
	"nanomsg.org/go/gateway/metrics"
)

// Status is the state of a session or a proxy side.
type Status int32

// Session states.  A session starts PENDING, becomes RUNNING once its
// socket is bound or connected, may move between RUNNING and PAUSED, and
// ends STOPPED.  ERROR records a bind, connect or transport failure.
const (
	StatusPending Status = iota
	StatusRunning
	StatusPaused
	StatusError
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusRunning:
		return "RUNNING"
	case StatusPaused:
		return "PAUSED"
	case StatusError:
		return "ERROR"
	case StatusStopped:
		return "STOPPED"
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// SocketListener is told what happens on a session, and supplies what it
// sends.  Hooks are called from the session's goroutine.
type SocketListener interface {
	// OnOpen is called once the socket is bound or connected.
	OnOpen(s *Session)

	// OnSend returns the next event to transmit, waiting at most the
	// socket wait for one.
	OnSend(s *Session) (event.Event, bool)

	// OnSent confirms that ev left the socket.
	OnSent(s *Session, ev event.Event)

	// OnReceive handles an event read from the socket, and may return a
	// reply to transmit straight back to its sender.
	OnReceive(s *Session, ev event.Event) (event.Event, bool)

	// OnError reports a failure.  ev is the event that could not be
	// sent, or the zero Event when the failure is not tied to one.
	OnError(s *Session, ev event.Event, err error)

	// OnClose is called after the socket is closed.
	OnClose(s *Session)
}

type sessionConfig struct {
	address     string
	bind        bool
	pattern     Pattern
	outgoing    bool
	incoming    bool
	heartbeat   bool
	acknowledge bool
	wait        time.Duration
	filter      filter.Policy
}

// Session owns the socket for one address of a gateway, and runs the loop
// that moves events between the socket and its listener.
type Session struct {
	cfg      sessionConfig
	ctx      *TransportContext
	wire     *wireCodec
	listener SocketListener
	metrics  *metrics.Metrics
	log      zerolog.Logger
	active   func() bool

	status   atomic.Int32
	epoch    time.Time
	lastSend atomic.Int64
	lastRecv atomic.Int64
	pausedAt atomic.Int64

	mu   sync.Mutex
	sock mangos.Socket
	peer []byte
	err  error
}

func newSession(cfg sessionConfig, ctx *TransportContext, wire *wireCodec,
	l SocketListener, m *metrics.Metrics, log zerolog.Logger, active func() bool) *Session {

	s := &Session{
		cfg:      cfg,
		ctx:      ctx,
		wire:     wire,
		listener: l,
		metrics:  m,
		active:   active,
		epoch:    time.Now(),
	}
	s.log = log.With().Str("address", cfg.address).Logger()
	return s
}

// Address returns the address the session is bound or connected to.
func (s *Session) Address() string { return s.cfg.address }

// Bound reports whether the session listens rather than dials.
func (s *Session) Bound() bool { return s.cfg.bind }

// Outgoing reports whether the session sends application traffic.
func (s *Session) Outgoing() bool { return s.cfg.outgoing }

// Incoming reports whether the session reads from its socket.
func (s *Session) Incoming() bool { return s.cfg.incoming }

// Heartbeat reports whether the session heartbeats.
func (s *Session) Heartbeat() bool { return s.cfg.heartbeat }

// Acknowledge reports whether the session takes part in acknowledgement.
func (s *Session) Acknowledge() bool { return s.cfg.acknowledge }

// Metrics returns the session's counters.
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

// Status returns the current state.
func (s *Session) Status() Status { return Status(s.status.Load()) }

// Paused reports whether the session is paused.
func (s *Session) Paused() bool { return s.Status() == StatusPaused }

// Err returns the failure that put the session in ERROR, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) setStatus(st Status) {
	if old := Status(s.status.Swap(int32(st))); old != st {
		evtSessionStatus.log(s.log.Debug()).
			Stringer("from", old).
			Stringer("to", st).
			Msg("session status")
	}
}

// mono returns a monotonic timestamp for the session.
func (s *Session) mono() int64 {
	return int64(time.Since(s.epoch))
}

func since(now, then int64) time.Duration {
	return time.Duration(now - then)
}

// SinceSend returns how long output has been idle.
func (s *Session) SinceSend() time.Duration {
	return since(s.mono(), s.lastSend.Load())
}

// SinceReceive returns how long input has been silent.
func (s *Session) SinceReceive() time.Duration {
	return since(s.mono(), s.lastRecv.Load())
}

// SincePause returns how long the session has been paused.
func (s *Session) SincePause() time.Duration {
	return since(s.mono(), s.pausedAt.Load())
}

// Pause stops application traffic on the session.  It keeps listening,
// and keeps heartbeating.
func (s *Session) Pause() {
	if s.status.CompareAndSwap(int32(StatusRunning), int32(StatusPaused)) {
		s.pausedAt.Store(s.mono())
		evtPaused.log(s.log.Info()).
			Dur("idle_input", s.SinceReceive()).
			Msg("session paused")
	}
}

// Resume restarts application traffic on a paused session.
func (s *Session) Resume() {
	if s.status.CompareAndSwap(int32(StatusPaused), int32(StatusRunning)) {
		evtResumed.log(s.log.Info()).Msg("session resumed")
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.setStatus(StatusError)
	s.log.Error().Err(err).Msg("session failed")
	s.listener.OnError(s, event.Event{}, err)
}

func (s *Session) open() error {
	sock, err := s.ctx.NewSocket(s.cfg.pattern, false)
	if err != nil {
		return err
	}
	if err = setDeadlines(sock, s.cfg.pattern, s.cfg.wait); err != nil {
		s.ctx.CloseSocket(sock)
		return err
	}
	if s.cfg.pattern == SUB {
		for _, prefix := range filter.Subscriptions(s.cfg.filter) {
			if err = sock.SetOption(mangos.OptionSubscribe, []byte(prefix)); err != nil {
				s.ctx.CloseSocket(sock)
				return err
			}
		}
	}
	if s.cfg.bind {
		err = s.ctx.Listen(sock, s.cfg.address)
	} else {
		err = s.ctx.Dial(sock, s.cfg.address)
	}
	if err != nil {
		s.ctx.CloseSocket(sock)
		return err
	}
	s.mu.Lock()
	s.sock = sock
	s.mu.Unlock()
	return nil
}

// setDeadlines bounds the blocking operations of sock by wait.  Options a
// protocol does not support are skipped.
func setDeadlines(sock mangos.Socket, p Pattern, wait time.Duration) error {
	var opts []string
	if p.CanReceive() {
		opts = append(opts, mangos.OptionRecvDeadline)
	}
	if p.CanSend() {
		opts = append(opts, mangos.OptionSendDeadline)
	}
	for _, name := range opts {
		err := sock.SetOption(name, wait)
		if err != nil && !errors.Is(err, mangos.ErrBadOption) {
			return err
		}
	}
	return nil
}

// run is the session worker.  It returns once the owning gateway is no
// longer active.
func (s *Session) run() error {
	defer s.setStatus(StatusStopped)

	if err := s.open(); err != nil {
		s.fail(err)
		s.listener.OnClose(s)
		return nil
	}
	now := s.mono()
	s.lastSend.Store(now)
	s.lastRecv.Store(now)
	s.setStatus(StatusRunning)
	s.listener.OnOpen(s)

	for s.active() {
		if s.cfg.outgoing {
			s.drainSend()
		}
		if s.cfg.incoming {
			s.drainReceive()
		}
	}
	if s.cfg.outgoing && s.cfg.incoming && s.cfg.heartbeat {
		s.drainSend()
	}

	s.mu.Lock()
	sock := s.sock
	s.sock = nil
	s.mu.Unlock()
	if err := s.ctx.CloseSocket(sock); err != nil && !errors.Is(err, mangos.ErrClosed) {
		s.log.Warn().Err(err).Msg("closing socket")
	}
	s.listener.OnClose(s)
	return nil
}

func (s *Session) drainSend() {
	for i := 0; i < maxBatch; i++ {
		ev, ok := s.listener.OnSend(s)
		if !ok {
			return
		}
		if err := s.transmit(ev, s.peerEnvelope()); err != nil {
			evtSendFailed.log(s.log.Warn()).
				Err(err).
				Str("id", ev.ID()).
				Stringer("kind", ev.Kind()).
				Msg("transmit failed")
			s.Pause()
			s.listener.OnError(s, ev, err)
			return
		}
		s.listener.OnSent(s, ev)
	}
}

func (s *Session) peerEnvelope() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *Session) transmit(ev event.Event, envelope []byte) error {
	m, err := s.wire.encode(ev, envelope)
	if err != nil {
		return err
	}
	size := len(m.Body)
	s.mu.Lock()
	sock := s.sock
	s.mu.Unlock()
	if sock == nil {
		return ErrClosed
	}
	if err = sock.SendMsg(m); err != nil {
		return err
	}
	s.lastSend.Store(s.mono())
	s.metrics.Sent(size)
	return nil
}

func (s *Session) drainReceive() {
	s.mu.Lock()
	sock := s.sock
	s.mu.Unlock()
	for i := 0; i < maxBatch && s.active(); i++ {
		m, err := sock.RecvMsg()
		if err != nil {
			if !errors.Is(err, mangos.ErrRecvTimeout) && !errors.Is(err, mangos.ErrClosed) {
				s.log.Warn().Err(err).Msg("receive failed")
			}
			return
		}
		s.lastRecv.Store(s.mono())
		s.metrics.Received(len(m.Body))
		ev, envelope, err := s.wire.decode(m)
		m.Free()
		if err != nil {
			evtCorruptFrame.log(s.log.Error()).Err(err).Msg("dropping corrupt frame")
			continue
		}
		if envelope != nil {
			s.mu.Lock()
			s.peer = envelope
			s.mu.Unlock()
		}
		s.Resume()
		reply, ok := s.listener.OnReceive(s, ev)
		if !ok {
			continue
		}
		if err = s.transmit(reply, envelope); err != nil {
			evtSendFailed.log(s.log.Warn()).
				Err(err).
				Str("id", reply.ID()).
				Stringer("kind", reply.Kind()).
				Msg("reply failed")
		}
	}
}
