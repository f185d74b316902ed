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
	"bytes"
	"fmt"
	"sync/atomic"

	"go.nanomsg.org/mangos/v3"

	"nanomsg.org/go/gateway/event"
	"nanomsg.org/go/gateway/filter"
)

// wireCodec frames encoded events for a socket pattern.
//
// PUB bodies are the filter key, a NUL byte, then the frame; SUB strips
// through the first NUL.  DEALER messages carry a request id in the SP
// header, as the raw request protocol requires.  ROUTER messages arrive
// with the sender's envelope in the header, and replies echo it.
type wireCodec struct {
	pattern Pattern
	codec   event.Codec
	filter  filter.Policy
	reqID   uint32
}

func newWireCodec(p Pattern, c event.Codec, f filter.Policy) *wireCodec {
	return &wireCodec{pattern: p, codec: c, filter: f}
}

func (w *wireCodec) nextRequestID() uint32 {
	return atomic.AddUint32(&w.reqID, 1) | 0x80000000
}

// encode builds the wire message for ev.  For ROUTER the envelope must be
// the header of a message received from the intended peer.
func (w *wireCodec) encode(ev event.Event, envelope []byte) (*mangos.Message, error) {
	frame, err := w.codec.Marshal(ev)
	if err != nil {
		return nil, err
	}
	switch w.pattern {
	case PUB:
		key := filter.NoKey
		if ev.Kind() == event.KindSend {
			key = filter.Key(w.filter, ev.Message())
		}
		m := mangos.NewMessage(len(key) + 1 + len(frame))
		m.Body = append(m.Body, key...)
		m.Body = append(m.Body, 0)
		m.Body = append(m.Body, frame...)
		return m, nil
	case DEALER:
		m := mangos.NewMessage(len(frame))
		m.Header = make([]byte, 4)
		putUint32(m.Header, w.nextRequestID())
		m.Body = append(m.Body, frame...)
		return m, nil
	case ROUTER:
		if len(envelope) < 4 {
			return nil, errNoPeer
		}
		m := mangos.NewMessage(len(frame))
		m.Header = append([]byte(nil), envelope...)
		m.Body = append(m.Body, frame...)
		return m, nil
	}
	m := mangos.NewMessage(len(frame))
	m.Body = append(m.Body, frame...)
	return m, nil
}

// decode returns the event carried by m and, for ROUTER, the envelope to
// reply with.
func (w *wireCodec) decode(m *mangos.Message) (event.Event, []byte, error) {
	frame := m.Body
	var envelope []byte
	switch w.pattern {
	case SUB:
		i := bytes.IndexByte(frame, 0)
		if i < 0 {
			return event.Event{}, nil, fmt.Errorf("%w: no filter key", ErrCorruptFrame)
		}
		frame = frame[i+1:]
	case ROUTER:
		if len(m.Header) < 4 {
			return event.Event{}, nil, fmt.Errorf("%w: short envelope", ErrCorruptFrame)
		}
		envelope = append([]byte(nil), m.Header...)
	}
	ev, err := w.codec.Unmarshal(frame)
	if err != nil {
		return event.Event{}, nil, err
	}
	return ev, envelope, nil
}
