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

// Package protobuf implements a compact binary event codec using the
// protocol buffers wire format.  No generated code is involved; frames are
// assembled field by field.
//
//	1: kind (varint)       2: id (bytes)         3: correlation id (bytes)
//	4: priority (varint)   5: timestamp (varint) 6: body type (varint)
//	7: body (bytes)        8: destination (bytes)
//	9: property (bytes; nested 1: name, 2: JSON value)
package protobuf

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"nanomsg.org/go/gateway/errors"
	"nanomsg.org/go/gateway/event"
	"nanomsg.org/go/gateway/message"
)

// Name is the registry key of this codec.
const Name = "protobuf"

const (
	fieldKind protowire.Number = iota + 1
	fieldID
	fieldCorrelation
	fieldPriority
	fieldTimestamp
	fieldType
	fieldBody
	fieldDestination
	fieldProperty
)

const (
	fieldPropName  protowire.Number = 1
	fieldPropValue protowire.Number = 2
)

// Codec is the protobuf wire codec.
type Codec struct{}

// New returns a Codec.
func New() *Codec {
	return &Codec{}
}

// Name implements event.Codec.
func (*Codec) Name() string { return Name }

// Marshal implements event.Codec.
func (*Codec) Marshal(e event.Event) ([]byte, error) {
	if e.IsZero() {
		return nil, errors.ErrBadCommand
	}
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Kind()))
	b = appendString(b, fieldID, e.ID())

	if e.Kind() != event.KindSend {
		return b, nil
	}
	m := e.Message()
	if m == nil {
		return nil, errors.ErrCorruptFrame
	}
	b = appendString(b, fieldCorrelation, m.CorrelationID)
	b = protowire.AppendTag(b, fieldPriority, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(m.Priority)))
	if !m.Timestamp.IsZero() {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Timestamp.UnixNano()))
	}
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	if len(m.Body) > 0 {
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Body)
	}
	b = appendString(b, fieldDestination, m.Destination)
	for k, v := range m.Properties {
		val, err := message.EncodeProperty(v)
		if err != nil {
			return nil, err
		}
		var p []byte
		p = appendString(p, fieldPropName, k)
		p = protowire.AppendTag(p, fieldPropValue, protowire.BytesType)
		p = protowire.AppendBytes(p, val)
		b = protowire.AppendTag(b, fieldProperty, protowire.BytesType)
		b = protowire.AppendBytes(b, p)
	}
	return b, nil
}

func appendString(b []byte, n protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, n, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Unmarshal implements event.Codec.
func (*Codec) Unmarshal(b []byte) (event.Event, error) {
	var (
		kind   event.Kind
		id     string
		hasTyp bool
		m      = &message.Message{Priority: message.DefaultPriority}
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return event.Event{}, errors.ErrCorruptFrame
		}
		b = b[n:]
		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return event.Event{}, errors.ErrCorruptFrame
			}
			b = b[n:]
			switch num {
			case fieldKind:
				kind = event.Kind(v)
			case fieldPriority:
				m.Priority = int(protowire.DecodeZigZag(v))
			case fieldTimestamp:
				m.Timestamp = time.Unix(0, int64(v))
			case fieldType:
				m.Type = message.Type(v)
				hasTyp = true
			}
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return event.Event{}, errors.ErrCorruptFrame
			}
			b = b[n:]
			switch num {
			case fieldID:
				id = string(v)
			case fieldCorrelation:
				m.CorrelationID = string(v)
			case fieldBody:
				m.Body = append([]byte(nil), v...)
			case fieldDestination:
				m.Destination = string(v)
			case fieldProperty:
				if err := decodeProperty(m, v); err != nil {
					return event.Event{}, err
				}
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return event.Event{}, errors.ErrCorruptFrame
			}
			b = b[n:]
		}
	}

	if id == "" {
		return event.Event{}, errors.ErrMissingID
	}
	switch kind {
	case event.KindAck:
		return event.NewAck(id), nil
	case event.KindHeartbeat:
		return event.NewHeartbeat(id), nil
	case event.KindSend:
		if !hasTyp || m.Type < message.TypeText || m.Type > message.TypeObject {
			return event.Event{}, errors.ErrCorruptFrame
		}
		m.ID = id
		return event.NewSend(m), nil
	}
	return event.Event{}, errors.ErrBadCommand
}

func decodeProperty(m *message.Message, b []byte) error {
	var name string
	var val []byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 || typ != protowire.BytesType {
			return errors.ErrCorruptFrame
		}
		b = b[n:]
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return errors.ErrCorruptFrame
		}
		b = b[n:]
		switch num {
		case fieldPropName:
			name = string(v)
		case fieldPropValue:
			val = v
		}
	}
	if name == "" {
		return errors.ErrCorruptFrame
	}
	pv, err := message.DecodeProperty(val)
	if err != nil {
		return errors.ErrCorruptFrame
	}
	m.SetProperty(name, pv)
	return nil
}
