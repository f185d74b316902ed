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
	"time"

	"github.com/rs/zerolog"

	"nanomsg.org/go/gateway/codec/stomp"
	"nanomsg.org/go/gateway/event"
	"nanomsg.org/go/gateway/filter"
	"nanomsg.org/go/gateway/journal"
	"nanomsg.org/go/gateway/message"
	"nanomsg.org/go/gateway/metrics"
	"nanomsg.org/go/gateway/redelivery"
)

// Kind is a gateway variant: the delivery guarantee it gives and the
// patterns it uses by default.
type Kind struct {
	Name        string
	Acknowledge bool
	Heartbeat   bool
	Outgoing    Pattern
	Incoming    Pattern
}

var (
	// FireAndForget delivers at most once over PUSH/PULL.
	FireAndForget = Kind{
		Name:     "fire-and-forget",
		Outgoing: PUSH,
		Incoming: PULL,
	}

	// PAR delivers at least once: every message and heartbeat is
	// acknowledged by the receiver, and unacknowledged messages are
	// retransmitted.
	PAR = Kind{
		Name:        "par",
		Acknowledge: true,
		Heartbeat:   true,
		Outgoing:    DEALER,
		Incoming:    ROUTER,
	}
)

// Apply sets the kind's flags on c, and its default pattern if c has none.
func (k Kind) Apply(c *Config) {
	c.Acknowledge = k.Acknowledge
	c.Heartbeat = k.Heartbeat
	if c.Pattern == 0 {
		if c.Direction == Incoming {
			c.Pattern = k.Incoming
		} else {
			c.Pattern = k.Outgoing
		}
	}
}

// Config describes a gateway.
type Config struct {
	// Name identifies the gateway in logs and metrics.  Defaults to the
	// first address.
	Name string

	Direction Direction
	Pattern   Pattern
	Addresses []string

	// Bind makes the gateway listen on its addresses instead of dialing.
	Bind bool

	Transacted  bool
	Acknowledge bool
	Heartbeat   bool

	HeartbeatInterval time.Duration
	AutoPauseInterval time.Duration
	AckTimeout        time.Duration
	SocketWait        time.Duration
	CloseTimeout      time.Duration

	// Context names the transport context the sockets are created in.
	Context string

	// Codec defaults to STOMP.
	Codec event.Codec

	// Filter is consulted on broadcast patterns only.
	Filter filter.Policy

	Redelivery redelivery.Policy
	Journal    journal.Store
	Selector   message.Selector

	// Collector, when set, exports the per-address metrics.
	Collector *metrics.Collector

	// LogMetrics keeps a rolling history of the traffic in each direction
	// the gateway uses.
	LogMetrics bool

	Logger *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Name == "" && len(c.Addresses) > 0 {
		c.Name = c.Addresses[0]
	}
	c.HeartbeatInterval = orDefault(c.HeartbeatInterval, DefaultHeartbeatInterval)
	c.AutoPauseInterval = orDefault(c.AutoPauseInterval, DefaultAutoPauseInterval)
	c.AckTimeout = orDefault(c.AckTimeout, DefaultAckTimeout)
	c.SocketWait = orDefault(c.SocketWait, DefaultSocketWait)
	c.CloseTimeout = orDefault(c.CloseTimeout, DefaultCloseTimeout)
	if c.Context == "" {
		c.Context = DefaultContext
	}
	if c.Codec == nil {
		c.Codec = stomp.New()
	}
	if c.Filter == nil && c.Pattern.Broadcast() {
		c.Filter = filter.None{}
	}
	return c
}

// Validate checks that c describes a gateway that can work.
func (c Config) Validate() error {
	if len(c.Addresses) == 0 {
		return ErrNoAddress
	}
	for _, a := range c.Addresses {
		if a == "" {
			return ErrNoAddress
		}
	}
	if !c.Pattern.Valid() {
		return fmt.Errorf("%w: %v", ErrBadPattern, c.Pattern)
	}
	switch c.Direction {
	case Outgoing:
		if !c.Pattern.CanSend() {
			return fmt.Errorf("%w: %v cannot send", ErrBadDirection, c.Pattern)
		}
		// ROUTER only replies along envelopes it has received.
		if c.Pattern == ROUTER {
			return fmt.Errorf("%w: %v cannot originate messages", ErrBadDirection, c.Pattern)
		}
	case Incoming:
		if !c.Pattern.CanReceive() {
			return fmt.Errorf("%w: %v cannot receive", ErrBadDirection, c.Pattern)
		}
	default:
		return ErrBadDirection
	}
	if c.Acknowledge && !c.Pattern.Bidirectional() {
		return fmt.Errorf("%w: acknowledgement needs a bidirectional pattern, not %v",
			ErrBadConfig, c.Pattern)
	}
	if c.HeartbeatInterval < 0 || c.AutoPauseInterval < 0 || c.AckTimeout < 0 ||
		c.SocketWait < 0 || c.CloseTimeout < 0 {
		return fmt.Errorf("%w: negative interval", ErrBadConfig)
	}
	return nil
}

// Endpoint is one side of a proxy.
type Endpoint struct {
	Address string
	Pattern Pattern
	Bind    bool
}

// ProxyConfig describes a proxy.
type ProxyConfig struct {
	Name  string
	Front Endpoint
	Back  Endpoint

	// RetryInterval is the wait before retrying a bind to an address
	// held elsewhere.  MaxRetryInterval, when larger, lets the wait grow
	// on each attempt.
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration

	// Wait bounds blocking socket operations.
	Wait time.Duration

	Context   string
	Collector *metrics.Collector
	Logger    *zerolog.Logger
}

func (c ProxyConfig) withDefaults() ProxyConfig {
	if c.Name == "" {
		c.Name = c.Front.Address
	}
	c.RetryInterval = orDefault(c.RetryInterval, DefaultRetryInterval)
	if c.MaxRetryInterval < c.RetryInterval {
		c.MaxRetryInterval = c.RetryInterval
	}
	c.Wait = orDefault(c.Wait, DefaultSocketWait)
	if c.Context == "" {
		c.Context = DefaultContext
	}
	return c
}

// validRelay reports whether a front socket of pattern front can relay to
// a back socket of pattern back.
func validRelay(front, back Pattern) bool {
	switch front {
	case PULL:
		return back == PUSH
	case SUB:
		return back == PUB
	case ROUTER:
		return back == DEALER
	case DEALER:
		return back == ROUTER
	case PAIR:
		return back == PAIR
	}
	return false
}

// Validate checks that c describes a proxy that can relay.
func (c ProxyConfig) Validate() error {
	if c.Front.Address == "" || c.Back.Address == "" {
		return ErrNoAddress
	}
	if !c.Front.Pattern.Valid() || !c.Back.Pattern.Valid() {
		return ErrBadPattern
	}
	if !validRelay(c.Front.Pattern, c.Back.Pattern) {
		return fmt.Errorf("%w: cannot relay %v to %v", ErrBadPattern, c.Front.Pattern, c.Back.Pattern)
	}
	if c.RetryInterval < 0 || c.MaxRetryInterval < 0 || c.Wait < 0 {
		return fmt.Errorf("%w: negative interval", ErrBadConfig)
	}
	return nil
}
