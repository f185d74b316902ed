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
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"go.nanomsg.org/mangos/v3"
	"gopkg.in/tomb.v2"

	"nanomsg.org/go/gateway/metrics"
)

// Proxy relays messages between a front socket and a back socket, with
// the headers left untouched, so that several producers and consumers can
// meet on one address.  Running two proxies on the same front address
// gives failover: the second waits, PAUSED, until the first lets go of the
// address.
type Proxy struct {
	cfg  ProxyConfig
	pool *ContextPool
	log  zerolog.Logger

	t       tomb.Tomb
	mu      sync.Mutex
	state   int
	ctx     *TransportContext
	front   *proxySide
	back    *proxySide
	err     error
	running atomic.Bool
}

type proxySide struct {
	name    string
	ep      Endpoint
	status  atomic.Int32
	sock    mangos.Socket // guarded by Proxy.mu
	metrics *metrics.Metrics
}

func (ps *proxySide) Status() Status { return Status(ps.status.Load()) }

// NewProxy returns a stopped proxy.
func NewProxy(pool *ContextPool, cfg ProxyConfig) (*Proxy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if pool == nil {
		pool = NewContextPool()
	}
	p := &Proxy{
		cfg:   cfg,
		pool:  pool,
		front: &proxySide{name: "front", ep: cfg.Front, metrics: metrics.New(cfg.Front.Address, metrics.Options{})},
		back:  &proxySide{name: "back", ep: cfg.Back, metrics: metrics.New(cfg.Back.Address, metrics.Options{})},
	}
	p.log = loggerOf(cfg.Logger).With().Str("proxy", cfg.Name).Logger()
	return p, nil
}

// Start opens the back socket, then the front one, then relays between
// them.  It returns at once; opening carries on in the background.
func (p *Proxy) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateOpen:
		return nil
	case stateClosed:
		return ErrClosed
	}
	p.state = stateOpen
	p.ctx = p.pool.Acquire(p.cfg.Context)
	if p.cfg.Collector != nil {
		p.cfg.Collector.Register(p.cfg.Name, p.front.metrics)
		p.cfg.Collector.Register(p.cfg.Name, p.back.metrics)
	}
	p.t.Go(p.run)
	return nil
}

func (p *Proxy) run() error {
	if err := p.open(p.back); err != nil {
		return p.failed(err)
	}
	if err := p.open(p.front); err != nil {
		return p.failed(err)
	}
	p.running.Store(true)
	evtOpened.log(p.log.Info()).
		Str("front", p.cfg.Front.Address).
		Str("back", p.cfg.Back.Address).
		Msg("proxy relaying")

	p.t.Go(func() error { return p.forward(p.front, p.back) })
	if p.cfg.Front.Pattern.Bidirectional() {
		p.t.Go(func() error { return p.forward(p.back, p.front) })
	}
	return nil
}

func (p *Proxy) failed(err error) error {
	if errors.Is(err, tomb.ErrDying) {
		return nil
	}
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.log.Error().Err(err).Msg("proxy failed")
	return err
}

// open creates and binds or connects one side.  A bind refused because
// the address is held elsewhere leaves the side PAUSED and is retried.
func (p *Proxy) open(ps *proxySide) error {
	b := &backoff.Backoff{
		Min:    p.cfg.RetryInterval,
		Max:    p.cfg.MaxRetryInterval,
		Factor: 2,
	}
	log := p.log.With().Str("side", ps.name).Str("address", ps.ep.Address).Logger()
	for {
		sock, err := p.ctx.NewSocket(ps.ep.Pattern, true)
		if err != nil {
			ps.status.Store(int32(StatusError))
			return err
		}
		if err = p.configure(sock, ps.ep.Pattern); err == nil {
			if ps.ep.Bind {
				err = p.ctx.Listen(sock, ps.ep.Address)
			} else {
				err = p.ctx.Dial(sock, ps.ep.Address)
			}
		}
		if err == nil {
			if !p.adopt(ps, sock) {
				return tomb.ErrDying
			}
			ps.status.Store(int32(StatusRunning))
			log.Debug().Msg("proxy side open")
			return nil
		}
		p.ctx.CloseSocket(sock)
		if !errors.Is(err, ErrAddrInUse) {
			ps.status.Store(int32(StatusError))
			return err
		}
		ps.status.Store(int32(StatusPaused))
		d := b.Duration()
		evtBindRetry.log(log.Info()).Dur("retry_in", d).Msg("address in use")
		select {
		case <-p.t.Dying():
			return tomb.ErrDying
		case <-time.After(d):
		}
	}
}

// adopt records sock as the socket of ps, unless Close has already run, in
// which case sock is closed instead.
func (p *Proxy) adopt(ps *proxySide, sock mangos.Socket) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == stateClosed {
		p.ctx.CloseSocket(sock)
		return false
	}
	ps.sock = sock
	return true
}

func (p *Proxy) socketOf(ps *proxySide) mangos.Socket {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ps.sock
}

func (p *Proxy) configure(sock mangos.Socket, pat Pattern) error {
	if err := setDeadlines(sock, pat, p.cfg.Wait); err != nil {
		return err
	}
	if pat == SUB {
		err := sock.SetOption(mangos.OptionSubscribe, []byte{})
		if err != nil && !errors.Is(err, mangos.ErrBadOption) {
			return err
		}
	}
	return nil
}

// forward takes messages from one side and sends them to the other.  A
// send is retried until it goes through or the proxy stops.
func (p *Proxy) forward(src, dst *proxySide) error {
	in, out := p.socketOf(src), p.socketOf(dst)
	for {
		select {
		case <-p.t.Dying():
			return nil
		default:
		}
		m, err := in.RecvMsg()
		switch {
		case err == nil:
		case errors.Is(err, mangos.ErrRecvTimeout):
			continue
		case errors.Is(err, mangos.ErrClosed):
			return nil
		default:
			evtRelayFailed.log(p.log.Warn()).Err(err).Str("side", src.name).Msg("receive failed")
			continue
		}
		src.metrics.Received(len(m.Body))
		size := len(m.Body)
		for {
			err = out.SendMsg(m)
			if err == nil {
				dst.metrics.Sent(size)
				break
			}
			if errors.Is(err, mangos.ErrClosed) {
				m.Free()
				return nil
			}
			select {
			case <-p.t.Dying():
				m.Free()
				return nil
			default:
			}
		}
	}
}

// Err returns the failure that stopped the proxy, if any.
func (p *Proxy) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Running reports whether both sides are open and relaying.
func (p *Proxy) Running() bool { return p.running.Load() }

// FrontStatus returns the state of the front side.
func (p *Proxy) FrontStatus() Status { return p.front.Status() }

// BackStatus returns the state of the back side.
func (p *Proxy) BackStatus() Status { return p.back.Status() }

// Metrics returns the relay counters of the front and back sockets.
func (p *Proxy) Metrics() (front, back metrics.Snapshot) {
	return p.front.metrics.Snapshot(), p.back.metrics.Snapshot()
}

// Close stops relaying and closes the front socket, then the back one.
func (p *Proxy) Close() error {
	p.mu.Lock()
	prev := p.state
	p.state = stateClosed
	p.mu.Unlock()
	if prev != stateOpen {
		return nil
	}
	p.t.Kill(nil)
	select {
	case <-p.t.Dead():
	case <-time.After(DefaultCloseTimeout):
		evtJoinTimeout.log(p.log.Error()).Msg(ErrJoinTimeout.Error())
	}
	p.running.Store(false)
	for _, ps := range []*proxySide{p.front, p.back} {
		if sock := p.socketOf(ps); sock != nil {
			if err := p.ctx.CloseSocket(sock); err != nil && !errors.Is(err, mangos.ErrClosed) {
				p.log.Warn().Err(err).Str("side", ps.name).Msg("closing socket")
			}
		}
		ps.status.Store(int32(StatusStopped))
	}
	if p.cfg.Collector != nil {
		p.cfg.Collector.Unregister(p.cfg.Name)
	}
	if err := p.pool.Release(p.ctx); err != nil {
		p.log.Warn().Err(err).Msg("releasing transport context")
	}
	evtClosed.log(p.log.Info()).Msg("proxy closed")
	return nil
}
