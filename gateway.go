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
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"nanomsg.org/go/gateway/event"
	"nanomsg.org/go/gateway/internal/queue"
	"nanomsg.org/go/gateway/message"
	"nanomsg.org/go/gateway/metrics"
)

const (
	stateNew = iota
	stateOpen
	stateClosed
)

type trackedEvent struct {
	ev   event.Event
	sent time.Time
}

// Gateway is one logical channel, producing or consuming, carried by a
// session per transport address.
//
// Send, Recv, RecvTimeout, Commit and Rollback may be called from any
// goroutine.
type Gateway struct {
	cfg  Config
	pool *ContextPool
	log  zerolog.Logger

	mu              sync.Mutex
	state           int
	ctx             *TransportContext
	start           time.Time
	sessions        []*Session
	sessionTomb     tomb.Tomb
	listenerTomb    tomb.Tomb
	sessionsStarted bool
	listenerStarted bool
	listener        MessageListener

	active atomic.Bool

	outgoing *queue.Queue[event.Event]
	incoming *queue.Queue[event.Event]

	txMu  sync.Mutex
	txOut []event.Event
	txIn  []event.Event

	ackMu    sync.Mutex
	tracked  map[string]trackedEvent
	lastScan time.Time
}

// New returns a closed gateway.  Sockets are created in the named
// transport context of pool; a nil pool gives the gateway one of its own.
func New(pool *ContextPool, cfg Config) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if pool == nil {
		pool = NewContextPool()
	}
	g := &Gateway{
		cfg:      cfg,
		pool:     pool,
		outgoing: queue.New[event.Event](),
		incoming: queue.New[event.Event](),
		tracked:  make(map[string]trackedEvent),
	}
	g.log = loggerOf(cfg.Logger).With().Str("gateway", cfg.Name).Logger()
	return g, nil
}

// Open starts a session for every address.  A journal that fails to open
// fails the whole Open, which may then be retried.
func (g *Gateway) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case stateOpen:
		return nil
	case stateClosed:
		return ErrClosed
	}
	if g.cfg.Journal != nil {
		if err := g.cfg.Journal.Open(); err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
	}
	g.ctx = g.pool.Acquire(g.cfg.Context)
	g.start = time.Now()
	g.active.Store(true)
	g.state = stateOpen

	l := &sessionListener{g: g}
	outgoing := g.cfg.Direction == Outgoing
	for _, addr := range g.cfg.Addresses {
		sc := sessionConfig{
			address:     addr,
			bind:        g.cfg.Bind,
			pattern:     g.cfg.Pattern,
			outgoing:    outgoing,
			incoming:    !outgoing || (g.cfg.Acknowledge && g.cfg.Pattern.CanReceive()),
			heartbeat:   g.cfg.Heartbeat,
			acknowledge: g.cfg.Acknowledge,
			wait:        g.cfg.SocketWait,
			filter:      g.cfg.Filter,
		}
		m := metrics.New(addr, metrics.Options{
			LogSend:    g.cfg.LogMetrics && sc.outgoing,
			LogReceive: g.cfg.LogMetrics && sc.incoming,
		})
		if g.cfg.Collector != nil {
			g.cfg.Collector.Register(g.cfg.Name, m)
		}
		wire := newWireCodec(g.cfg.Pattern, g.cfg.Codec, g.cfg.Filter)
		s := newSession(sc, g.ctx, wire, l, m, g.log, g.active.Load)
		g.sessions = append(g.sessions, s)
		g.sessionTomb.Go(s.run)
	}
	g.sessionsStarted = true
	if g.listener != nil {
		g.startListener()
	}
	evtOpened.log(g.log.Info()).
		Strs("addresses", g.cfg.Addresses).
		Stringer("pattern", g.cfg.Pattern).
		Stringer("direction", g.cfg.Direction).
		Bool("bind", g.cfg.Bind).
		Msg("gateway opened")
	return nil
}

// Close stops the sessions and releases the gateway's resources.  Every
// message still awaiting acknowledgement is logged as lost.  Closing a
// closed gateway does nothing.
func (g *Gateway) Close() error {
	g.mu.Lock()
	prev := g.state
	g.state = stateClosed
	listening := g.listenerStarted
	g.mu.Unlock()
	if prev != stateOpen {
		return nil
	}

	if g.cfg.Acknowledge && g.Tracked() > 0 {
		time.Sleep(g.cfg.SocketWait)
	}
	g.active.Store(false)
	if listening {
		g.join(&g.listenerTomb, "listener")
	}
	g.join(&g.sessionTomb, "session")

	if g.cfg.Journal != nil {
		if err := g.cfg.Journal.Close(); err != nil {
			evtJournal.log(g.log.Error()).Err(err).Msg("closing journal")
		}
	}
	g.dumpTracked()
	if g.cfg.Collector != nil {
		g.cfg.Collector.Unregister(g.cfg.Name)
	}
	if err := g.pool.Release(g.ctx); err != nil {
		g.log.Warn().Err(err).Msg("releasing transport context")
	}
	evtClosed.log(g.log.Info()).Msg("gateway closed")
	return nil
}

func (g *Gateway) join(t *tomb.Tomb, pool string) {
	t.Kill(nil)
	select {
	case <-t.Dead():
	case <-time.After(g.cfg.CloseTimeout):
		evtJoinTimeout.log(g.log.Error()).
			Str("pool", pool).
			Dur("timeout", g.cfg.CloseTimeout).
			Msg(ErrJoinTimeout.Error())
	}
}

func (g *Gateway) dumpTracked() {
	g.ackMu.Lock()
	lost := g.tracked
	g.tracked = make(map[string]trackedEvent)
	g.ackMu.Unlock()
	for id, t := range lost {
		evtLostMessage.log(g.log.Error()).
			Str("id", id).
			Stringer("kind", t.ev.Kind()).
			Time("sent", t.sent).
			Msg("lost message")
	}
}

func (g *Gateway) checkActive() error {
	if g.active.Load() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == stateNew {
		return ErrNotOpen
	}
	return ErrClosed
}

func (g *Gateway) checkTx() error {
	if !g.cfg.Transacted {
		return ErrNotTransacted
	}
	return g.checkActive()
}

// Send sends m.  Inside a transaction nothing leaves until Commit.
func (g *Gateway) Send(m *message.Message) error {
	if m == nil {
		return ErrBadBody
	}
	if g.cfg.Direction != Outgoing {
		return ErrBadDirection
	}
	if err := g.checkActive(); err != nil {
		return err
	}
	ev := event.NewSend(m)
	if g.cfg.Transacted {
		g.txMu.Lock()
		g.txOut = append(g.txOut, ev)
		g.txMu.Unlock()
		return nil
	}
	g.enqueue(ev)
	return nil
}

func (g *Gateway) enqueue(ev event.Event) {
	g.journalCreate(ev)
	g.outgoing.Push(ev)
}

// Recv waits for a message until one arrives or the gateway closes.
func (g *Gateway) Recv() (*message.Message, error) {
	if g.cfg.Direction != Incoming {
		return nil, ErrBadDirection
	}
	return g.receive(time.Time{})
}

// RecvTimeout waits up to d for a message.  It returns a nil message and
// nil error when none arrives in time.
func (g *Gateway) RecvTimeout(d time.Duration) (*message.Message, error) {
	if g.cfg.Direction != Incoming {
		return nil, ErrBadDirection
	}
	return g.receive(time.Now().Add(d))
}

// receive offers redeliveries first, then recovered journal entries, then
// the incoming queue.  A zero deadline waits forever.
func (g *Gateway) receive(deadline time.Time) (*message.Message, error) {
	for {
		if err := g.checkActive(); err != nil {
			return nil, err
		}
		if m, ok := g.redelivered(); ok {
			return m, nil
		}
		if m, ok := g.recoverIncoming(); ok {
			return m, nil
		}
		wait := g.cfg.SocketWait
		if !deadline.IsZero() {
			wait = minDuration(wait, time.Until(deadline))
		}
		if ev, ok := g.incoming.Poll(wait); ok {
			if m, ok := g.accept(ev); ok {
				return m, nil
			}
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, nil
		}
	}
}

func (g *Gateway) accept(ev event.Event) (*message.Message, bool) {
	m := ev.Message()
	if !message.Accept(g.cfg.Selector, m) {
		evtRejected.log(g.log.Debug()).Str("id", ev.ID()).Msg("message rejected by selector")
		g.journalDelete(ev.ID())
		return nil, false
	}
	g.consumed(ev)
	return m, true
}

// consumed records ev as handed to the application.
func (g *Gateway) consumed(ev event.Event) {
	if g.cfg.Transacted {
		g.txMu.Lock()
		g.txIn = append(g.txIn, ev)
		g.txMu.Unlock()
		return
	}
	g.journalDelete(ev.ID())
}

func (g *Gateway) redelivered() (*message.Message, bool) {
	if g.cfg.Redelivery == nil {
		return nil, false
	}
	ev, ok := g.cfg.Redelivery.Next()
	if !ok {
		return nil, false
	}
	if !g.cfg.Transacted {
		g.cfg.Redelivery.Delivered([]event.Event{ev})
	}
	g.consumed(ev)
	return ev.Message(), true
}

func (g *Gateway) recoverIncoming() (*message.Message, bool) {
	if g.cfg.Journal == nil || g.cfg.Direction != Incoming {
		return nil, false
	}
	e, ok, err := g.cfg.Journal.Read()
	if err != nil {
		evtJournal.log(g.log.Error()).Err(err).Msg("reading journal")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	g.consumed(event.NewSend(e.Message))
	return e.Message, true
}

func (g *Gateway) recoverOutgoing() (event.Event, bool) {
	if g.cfg.Journal == nil || g.cfg.Direction != Outgoing {
		return event.Event{}, false
	}
	for {
		e, ok, err := g.cfg.Journal.Read()
		if err != nil {
			evtJournal.log(g.log.Error()).Err(err).Msg("reading journal")
			return event.Event{}, false
		}
		if !ok {
			return event.Event{}, false
		}
		if !g.isTracked(e.ID) {
			return event.NewSend(e.Message), true
		}
	}
}

// Commit makes the transaction's sends visible and its receives final.
func (g *Gateway) Commit() error {
	if err := g.checkTx(); err != nil {
		return err
	}
	g.txMu.Lock()
	out, in := g.txOut, g.txIn
	g.txOut, g.txIn = nil, nil
	g.txMu.Unlock()

	for _, ev := range out {
		g.enqueue(ev)
	}
	if len(in) > 0 {
		if g.cfg.Redelivery != nil {
			g.cfg.Redelivery.Delivered(in)
		}
		for _, ev := range in {
			g.journalDelete(ev.ID())
		}
	}
	return nil
}

// Rollback discards the transaction's sends, and hands its receives to the
// redelivery policy.  Journaled copies of the receives are kept.
func (g *Gateway) Rollback() error {
	if err := g.checkTx(); err != nil {
		return err
	}
	g.txMu.Lock()
	in := g.txIn
	g.txOut, g.txIn = nil, nil
	g.txMu.Unlock()

	if len(in) > 0 && g.cfg.Redelivery != nil {
		g.cfg.Redelivery.Redeliver(in)
	}
	return nil
}

func (g *Gateway) journalCreate(ev event.Event) {
	if g.cfg.Journal == nil {
		return
	}
	if err := g.cfg.Journal.Create(ev.ID(), ev.Message()); err != nil {
		evtJournal.log(g.log.Error()).Err(err).Str("id", ev.ID()).Msg("journaling message")
	}
}

func (g *Gateway) journalDelete(id string) {
	if g.cfg.Journal == nil {
		return
	}
	if err := g.cfg.Journal.Delete(id); err != nil {
		evtJournal.log(g.log.Error()).Err(err).Str("id", id).Msg("deleting journal entry")
	}
}

func (g *Gateway) track(ev event.Event) {
	g.ackMu.Lock()
	g.tracked[ev.ID()] = trackedEvent{ev: ev, sent: time.Now()}
	g.ackMu.Unlock()
}

func (g *Gateway) untrack(id string) (event.Event, bool) {
	g.ackMu.Lock()
	defer g.ackMu.Unlock()
	t, ok := g.tracked[id]
	if ok {
		delete(g.tracked, id)
	}
	return t.ev, ok
}

func (g *Gateway) isTracked(id string) bool {
	g.ackMu.Lock()
	defer g.ackMu.Unlock()
	_, ok := g.tracked[id]
	return ok
}

// retransmit puts sends that waited too long for their ack back at the
// head of the outgoing queue, oldest first.  Expired heartbeats are just
// forgotten.
func (g *Gateway) retransmit() {
	if !g.cfg.Acknowledge {
		return
	}
	now := time.Now()
	g.ackMu.Lock()
	if now.Sub(g.lastScan) < g.cfg.SocketWait {
		g.ackMu.Unlock()
		return
	}
	g.lastScan = now
	var due []trackedEvent
	for id, t := range g.tracked {
		if now.Sub(t.sent) < g.cfg.AckTimeout {
			continue
		}
		delete(g.tracked, id)
		if t.ev.Kind() == event.KindSend {
			due = append(due, t)
		}
	}
	g.ackMu.Unlock()

	if len(due) == 0 {
		return
	}
	sort.Slice(due, func(i, j int) bool { return due[i].sent.Before(due[j].sent) })
	for i := len(due) - 1; i >= 0; i-- {
		g.outgoing.PushFront(due[i].ev)
	}
	evtRetransmit.log(g.log.Warn()).
		Int("count", len(due)).
		Dur("ack_timeout", g.cfg.AckTimeout).
		Msg("retransmitting unacknowledged messages")
}

// Name returns the gateway's name.
func (g *Gateway) Name() string { return g.cfg.Name }

// Addresses returns the transport addresses.
func (g *Gateway) Addresses() []string {
	return append([]string(nil), g.cfg.Addresses...)
}

// Pattern returns the socket pattern.
func (g *Gateway) Pattern() Pattern { return g.cfg.Pattern }

// Bound reports whether the gateway binds rather than connects.
func (g *Gateway) Bound() bool { return g.cfg.Bind }

// Transacted reports whether sends and receives are transactional.
func (g *Gateway) Transacted() bool { return g.cfg.Transacted }

// Acknowledged reports whether delivery is positively acknowledged.
func (g *Gateway) Acknowledged() bool { return g.cfg.Acknowledge }

// Heartbeat reports whether idle sessions heartbeat.
func (g *Gateway) Heartbeat() bool { return g.cfg.Heartbeat }

// Direction returns the direction of application traffic.
func (g *Gateway) Direction() Direction { return g.cfg.Direction }

// Active reports whether the gateway is open.
func (g *Gateway) Active() bool { return g.active.Load() }

// StartTime returns when the gateway was opened, or the zero time.
func (g *Gateway) StartTime() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.start
}

// Sessions returns the gateway's sessions, one per address, once open.
func (g *Gateway) Sessions() []*Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Session(nil), g.sessions...)
}

// Metrics returns a snapshot of each address's counters.
func (g *Gateway) Metrics() []metrics.Snapshot {
	var out []metrics.Snapshot
	for _, s := range g.Sessions() {
		out = append(out, s.Metrics().Snapshot())
	}
	return out
}

// Tracked returns the number of events awaiting acknowledgement.
func (g *Gateway) Tracked() int {
	g.ackMu.Lock()
	defer g.ackMu.Unlock()
	return len(g.tracked)
}

// Pending returns the number of events queued for sending.
func (g *Gateway) Pending() int { return g.outgoing.Len() }
