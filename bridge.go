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

	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"nanomsg.org/go/gateway/message"
)

// Bridge moves every message received by one gateway to another.  When
// the source is transacted, a message is committed there only once the
// destination has it, and rolled back otherwise.
type Bridge struct {
	name     string
	from, to *Gateway
	log      zerolog.Logger

	t       tomb.Tomb
	mu      sync.Mutex
	started bool
	moved   atomic.Int64
	failed  atomic.Int64
}

// NewBridge returns a stopped bridge from an incoming gateway to an
// outgoing one.
func NewBridge(name string, from, to *Gateway, log *zerolog.Logger) (*Bridge, error) {
	if from == nil || to == nil {
		return nil, ErrBadParam
	}
	if from.Direction() != Incoming || to.Direction() != Outgoing {
		return nil, ErrBadDirection
	}
	b := &Bridge{name: name, from: from, to: to}
	b.log = loggerOf(log).With().
		Str("bridge", name).
		Str("from", from.Name()).
		Str("to", to.Name()).
		Logger()
	return b, nil
}

// Start begins moving messages.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	b.t.Go(b.run)
}

func (b *Bridge) run() error {
	wait := b.from.cfg.SocketWait
	for {
		select {
		case <-b.t.Dying():
			return nil
		default:
		}
		m, err := b.from.RecvTimeout(wait)
		if errors.Is(err, ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if m == nil {
			continue
		}
		if err = b.forward(m); err != nil {
			b.failed.Add(1)
			evtRelayFailed.log(b.log.Warn()).Err(err).Str("id", m.ID).Msg("bridging message")
			if b.from.Transacted() {
				b.from.Rollback()
			}
			continue
		}
		if b.from.Transacted() {
			if err = b.from.Commit(); err != nil {
				b.log.Warn().Err(err).Msg("committing source")
			}
		}
		b.moved.Add(1)
	}
}

func (b *Bridge) forward(m *message.Message) error {
	if err := b.to.Send(m); err != nil {
		return err
	}
	if b.to.Transacted() {
		return b.to.Commit()
	}
	return nil
}

// Moved returns how many messages the bridge has passed on.
func (b *Bridge) Moved() int64 { return b.moved.Load() }

// Failed returns how many messages the destination refused.
func (b *Bridge) Failed() int64 { return b.failed.Load() }

// Close stops the bridge.  The gateways are left open.
func (b *Bridge) Close() error {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return nil
	}
	b.t.Kill(nil)
	return b.t.Wait()
}
