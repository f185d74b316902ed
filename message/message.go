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

// Package message defines the application-facing message value carried by
// gateways, and the selector predicate used to filter received messages.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"nanomsg.org/go/gateway/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Type identifies the body variant of a Message.
type Type uint8

// Body variants.
const (
	TypeText Type = iota + 1
	TypeBytes
	TypeMap
	TypeObject
)

// DefaultPriority is the priority given to new messages.
const DefaultPriority = 4

func (t Type) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeBytes:
		return "bytes"
	case TypeMap:
		return "map"
	case TypeObject:
		return "object"
	}
	return "unknown"
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "text":
		return TypeText, nil
	case "bytes":
		return TypeBytes, nil
	case "map":
		return TypeMap, nil
	case "object":
		return TypeObject, nil
	}
	return 0, fmt.Errorf("%w: %q", errors.ErrBadBody, s)
}

// Message is what applications send and receive.  Map and object bodies
// are held in their JSON encoding.
type Message struct {
	ID            string                 `json:"id"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Priority      int                    `json:"priority"`
	Timestamp     time.Time              `json:"timestamp"`
	Destination   string                 `json:"destination,omitempty"`
	Properties    map[string]interface{} `json:"properties,omitempty"`
	Type          Type                   `json:"type"`
	Body          []byte                 `json:"body,omitempty"`
}

// New returns a message with a fresh id and the current time.
func New(t Type, body []byte) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Priority:  DefaultPriority,
		Timestamp: time.Now(),
		Type:      t,
		Body:      body,
	}
}

// NewText returns a text message.
func NewText(s string) *Message {
	return New(TypeText, []byte(s))
}

// NewBytes returns a bytes message.  The slice is not copied.
func NewBytes(b []byte) *Message {
	return New(TypeBytes, b)
}

// NewMap returns a map message.
func NewMap(m map[string]interface{}) (*Message, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return New(TypeMap, b), nil
}

// NewObject returns an object message holding the JSON encoding of v.
func NewObject(v interface{}) (*Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return New(TypeObject, b), nil
}

// Text returns the body as a string.  It works for any body type, which
// is mostly useful for logging.
func (m *Message) Text() string {
	return string(m.Body)
}

// Map decodes a map body.
func (m *Message) Map() (map[string]interface{}, error) {
	if m.Type != TypeMap {
		return nil, errors.ErrBadBody
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(m.Body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Object decodes an object body into v.
func (m *Message) Object(v interface{}) error {
	if m.Type != TypeObject {
		return errors.ErrBadBody
	}
	return json.Unmarshal(m.Body, v)
}

// SetProperty sets a string-keyed property.
func (m *Message) SetProperty(name string, v interface{}) {
	if m.Properties == nil {
		m.Properties = map[string]interface{}{}
	}
	m.Properties[name] = v
}

// Property returns a property value.
func (m *Message) Property(name string) (interface{}, bool) {
	v, ok := m.Properties[name]
	return v, ok
}

// StringProperty returns the string form of a property, or "" if unset.
func (m *Message) StringProperty(name string) string {
	v, ok := m.Properties[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a deep enough copy that the two messages can be mutated
// independently.
func (m *Message) Clone() *Message {
	c := *m
	if m.Body != nil {
		c.Body = append([]byte(nil), m.Body...)
	}
	if m.Properties != nil {
		c.Properties = make(map[string]interface{}, len(m.Properties))
		for k, v := range m.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

// Marshal encodes the whole message, for storage.
func Marshal(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(b []byte) (*Message, error) {
	m := &Message{}
	if err := propJSON.Unmarshal(b, m); err != nil {
		return nil, err
	}
	for k, v := range m.Properties {
		m.Properties[k] = normalize(v)
	}
	return m, nil
}

func (m *Message) String() string {
	return fmt.Sprintf("Message[id=%s type=%s len=%d]", m.ID, m.Type, len(m.Body))
}
