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

// Package redelivery decides whether rolled back incoming events are
// offered again, and how often.
package redelivery

import (
	"sync"

	"github.com/rs/zerolog"

	"nanomsg.org/go/gateway/event"
	"nanomsg.org/go/gateway/internal/queue"
)

// DefaultMaxRetries is used by the registry when no limit is configured.
const DefaultMaxRetries = 3

// Policy is a redelivery policy.  Implementations must be safe for
// concurrent use.
type Policy interface {
	// Delivered marks events as consumed; they are never offered again.
	Delivered(evs []event.Event)

	// Redeliver schedules events to be offered again, subject to the
	// policy's retry budget.
	Redeliver(evs []event.Event)

	// Next returns the next event due for redelivery.
	Next() (event.Event, bool)
}

// RetryPolicy redelivers each event at most a fixed number of times.  An
// event rolled back once more than that is abandoned.
type RetryPolicy struct {
	max       int
	pending   *queue.Queue[event.Event]
	log       zerolog.Logger
	mu        sync.Mutex
	retries   map[string]int
	abandoned int
}

// NewRetryPolicy returns a policy allowing max redeliveries per event.
func NewRetryPolicy(max int, log zerolog.Logger) *RetryPolicy {
	if max < 0 {
		max = 0
	}
	return &RetryPolicy{
		max:     max,
		pending: queue.New[event.Event](),
		log:     log,
		retries: map[string]int{},
	}
}

// MaxRetries returns the configured budget.
func (p *RetryPolicy) MaxRetries() int { return p.max }

// Delivered implements Policy.
func (p *RetryPolicy) Delivered(evs []event.Event) {
	if len(evs) == 0 {
		return
	}
	done := make(map[string]bool, len(evs))
	p.mu.Lock()
	for _, e := range evs {
		delete(p.retries, e.ID())
		done[e.ID()] = true
	}
	p.mu.Unlock()
	p.pending.Remove(func(e event.Event) bool { return done[e.ID()] })
}

// Redeliver implements Policy.
func (p *RetryPolicy) Redeliver(evs []event.Event) {
	for _, e := range evs {
		if e.Kind() != event.KindSend {
			continue
		}
		p.mu.Lock()
		n := p.retries[e.ID()] + 1
		if n > p.max {
			delete(p.retries, e.ID())
			p.abandoned++
			p.mu.Unlock()
			p.log.Error().
				Str("id", e.ID()).
				Int("retries", p.max).
				Msg("abandoning message after exhausting redelivery budget")
			continue
		}
		p.retries[e.ID()] = n
		p.mu.Unlock()
		p.log.Debug().Str("id", e.ID()).Int("attempt", n).Msg("scheduling redelivery")
		p.pending.Push(e)
	}
}

// Next implements Policy.
func (p *RetryPolicy) Next() (event.Event, bool) {
	return p.pending.TryPoll()
}

// Pending returns the number of events waiting to be redelivered.
func (p *RetryPolicy) Pending() int {
	return p.pending.Len()
}

// Abandoned returns how many events exhausted their budget.
func (p *RetryPolicy) Abandoned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.abandoned
}
