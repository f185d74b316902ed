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
	"strings"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pair"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"
	"go.nanomsg.org/mangos/v3/protocol/sub"
	"go.nanomsg.org/mangos/v3/protocol/xpair"
	"go.nanomsg.org/mangos/v3/protocol/xpub"
	"go.nanomsg.org/mangos/v3/protocol/xpull"
	"go.nanomsg.org/mangos/v3/protocol/xpush"
	"go.nanomsg.org/mangos/v3/protocol/xrep"
	"go.nanomsg.org/mangos/v3/protocol/xreq"
	"go.nanomsg.org/mangos/v3/protocol/xsub"

	// register every transport
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// Pattern is the messaging pattern of a socket.
type Pattern int

// Patterns.  DEALER and ROUTER are carried by the raw request/reply
// protocols, so that any number of messages may flow either way.
const (
	PUSH Pattern = iota + 1
	PULL
	PUB
	SUB
	DEALER
	ROUTER
	PAIR
)

var patternNames = map[Pattern]string{
	PUSH:   "PUSH",
	PULL:   "PULL",
	PUB:    "PUB",
	SUB:    "SUB",
	DEALER: "DEALER",
	ROUTER: "ROUTER",
	PAIR:   "PAIR",
}

func (p Pattern) String() string {
	if s, ok := patternNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Pattern(%d)", int(p))
}

// ParsePattern parses a pattern name, ignoring case.
func ParsePattern(s string) (Pattern, error) {
	for p, name := range patternNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrBadPattern, s)
}

// Valid reports whether p is a known pattern.
func (p Pattern) Valid() bool {
	_, ok := patternNames[p]
	return ok
}

// CanSend reports whether sockets of this pattern can originate messages.
func (p Pattern) CanSend() bool {
	switch p {
	case PUSH, PUB, DEALER, ROUTER, PAIR:
		return true
	}
	return false
}

// CanReceive reports whether sockets of this pattern can take messages in.
func (p Pattern) CanReceive() bool {
	switch p {
	case PULL, SUB, DEALER, ROUTER, PAIR:
		return true
	}
	return false
}

// Bidirectional reports whether traffic can flow both ways, as needed for
// acknowledgements.
func (p Pattern) Bidirectional() bool {
	return p.CanSend() && p.CanReceive()
}

// Broadcast reports whether the pattern is publish/subscribe.
func (p Pattern) Broadcast() bool {
	return p == PUB || p == SUB
}

// Peer returns the pattern on the other end of a connection.
func (p Pattern) Peer() Pattern {
	switch p {
	case PUSH:
		return PULL
	case PULL:
		return PUSH
	case PUB:
		return SUB
	case SUB:
		return PUB
	case DEALER:
		return ROUTER
	case ROUTER:
		return DEALER
	case PAIR:
		return PAIR
	}
	return 0
}

// newSocket creates a socket for the pattern.  Raw sockets are used by
// proxies, which relay messages with their headers untouched.
func (p Pattern) newSocket(raw bool) (mangos.Socket, error) {
	switch p {
	case PUSH:
		if raw {
			return xpush.NewSocket()
		}
		return push.NewSocket()
	case PULL:
		if raw {
			return xpull.NewSocket()
		}
		return pull.NewSocket()
	case PUB:
		if raw {
			return xpub.NewSocket()
		}
		return pub.NewSocket()
	case SUB:
		if raw {
			return xsub.NewSocket()
		}
		return sub.NewSocket()
	case DEALER:
		return xreq.NewSocket()
	case ROUTER:
		return xrep.NewSocket()
	case PAIR:
		if raw {
			return xpair.NewSocket()
		}
		return pair.NewSocket()
	}
	return nil, ErrBadPattern
}

// Direction is the flow of application messages through a gateway.
type Direction int

// Directions.
const (
	Outgoing Direction = iota + 1
	Incoming
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParseDirection parses "outgoing" or "incoming", ignoring case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "outgoing", "out", "producer":
		return Outgoing, nil
	case "incoming", "in", "consumer":
		return Incoming, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadDirection, s)
}
