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

// Package event defines the events exchanged between gateway sockets:
// message sends, heartbeats and acknowledgements.
package event

import (
	"fmt"

	"nanomsg.org/go/gateway/message"
)

// Kind tags the variant of an Event.
type Kind uint8

// Event kinds.
const (
	KindSend Kind = iota + 1
	KindHeartbeat
	KindAck
)

func (k Kind) String() string {
	switch k {
	case KindSend:
		return "send"
	case KindHeartbeat:
		return "heartbeat"
	case KindAck:
		return "ack"
	}
	return "unknown"
}

// Event is an immutable value.  Only send events carry a message.
type Event struct {
	kind Kind
	id   string
	msg  *message.Message
}

// NewSend wraps a message.  The event id is the message id.
func NewSend(m *message.Message) Event {
	return Event{kind: KindSend, id: m.ID, msg: m}
}

// NewHeartbeat returns a contentless keep-alive event.
func NewHeartbeat(id string) Event {
	return Event{kind: KindHeartbeat, id: id}
}

// NewAck acknowledges the event with the given id.
func NewAck(id string) Event {
	return Event{kind: KindAck, id: id}
}

// Kind returns the event variant.
func (e Event) Kind() Kind { return e.kind }

// ID returns the event id.
func (e Event) ID() string { return e.id }

// Message returns the carried message, nil unless this is a send event.
func (e Event) Message() *message.Message { return e.msg }

// IsZero reports whether e is the zero Event.
func (e Event) IsZero() bool { return e.kind == 0 }

func (e Event) String() string {
	return fmt.Sprintf("%s[%s]", e.kind, e.id)
}

// Codec converts events to and from their wire frame.  Codecs are
// stateless and safe for concurrent use.
type Codec interface {
	Name() string
	Marshal(Event) ([]byte, error)
	Unmarshal([]byte) (Event, error)
}

// IDs returns the ids of evs, mostly for logging.
func IDs(evs []Event) []string {
	ids := make([]string, 0, len(evs))
	for _, e := range evs {
		ids = append(ids, e.id)
	}
	return ids
}
