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

// Package stomp implements the default event codec: STOMP-style text
// frames of the form "COMMAND\nheader:value\n...\n\nBODY".
//
// SEND frames always carry a message-id header.  A SEND frame with no
// content-type and an empty body is a heartbeat.  ACK frames reference the
// acknowledged id in their id header.
package stomp

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver"

	"nanomsg.org/go/gateway/errors"
	"nanomsg.org/go/gateway/event"
	"nanomsg.org/go/gateway/message"
)

// Name is the registry key of this codec.
const Name = "stomp"

// Version is stamped on every frame written.
const Version = "1.0"

// Frame commands.
const (
	CmdSend = "SEND"
	CmdAck  = "ACK"
)

// Header names.
const (
	HdrMessageID     = "message-id"
	HdrID            = "id"
	HdrVersion       = "version"
	HdrContentType   = "content-type"
	HdrCorrelationID = "correlation-id"
	HdrPriority      = "priority"
	HdrTimestamp     = "timestamp"
	HdrDestination   = "destination"
	HdrPropPrefix    = "property-"
)

// Codec is the STOMP codec.  The zero value is not usable; use New.
type Codec struct {
	accept *semver.Constraints
}

// New returns a codec accepting frames of any 1.x version.
func New() *Codec {
	c, err := semver.NewConstraint(">= 1.0, < 2")
	if err != nil {
		panic(err)
	}
	return &Codec{accept: c}
}

// Name implements event.Codec.
func (*Codec) Name() string { return Name }

// Marshal implements event.Codec.
func (c *Codec) Marshal(e event.Event) ([]byte, error) {
	var b bytes.Buffer
	switch e.Kind() {
	case event.KindAck:
		b.WriteString(CmdAck)
		b.WriteByte('\n')
		writeHeader(&b, HdrID, e.ID())
		writeHeader(&b, HdrVersion, Version)
		b.WriteByte('\n')
		return b.Bytes(), nil

	case event.KindHeartbeat:
		b.WriteString(CmdSend)
		b.WriteByte('\n')
		writeHeader(&b, HdrMessageID, e.ID())
		writeHeader(&b, HdrVersion, Version)
		b.WriteByte('\n')
		return b.Bytes(), nil

	case event.KindSend:
		m := e.Message()
		if m == nil {
			return nil, errors.ErrCorruptFrame
		}
		b.WriteString(CmdSend)
		b.WriteByte('\n')
		writeHeader(&b, HdrMessageID, e.ID())
		writeHeader(&b, HdrVersion, Version)
		writeHeader(&b, HdrContentType, m.Type.String())
		if m.CorrelationID != "" {
			writeHeader(&b, HdrCorrelationID, m.CorrelationID)
		}
		writeHeader(&b, HdrPriority, strconv.Itoa(m.Priority))
		if !m.Timestamp.IsZero() {
			writeHeader(&b, HdrTimestamp, strconv.FormatInt(m.Timestamp.UnixNano(), 10))
		}
		if m.Destination != "" {
			writeHeader(&b, HdrDestination, m.Destination)
		}
		names := make([]string, 0, len(m.Properties))
		for k := range m.Properties {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			v, err := message.EncodeProperty(m.Properties[k])
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", k, err)
			}
			writeHeader(&b, HdrPropPrefix+k, string(v))
		}
		b.WriteByte('\n')
		b.Write(m.Body)
		return b.Bytes(), nil
	}
	return nil, errors.ErrBadCommand
}

// Unmarshal implements event.Codec.
func (c *Codec) Unmarshal(frame []byte) (event.Event, error) {
	end := bytes.Index(frame, []byte("\n\n"))
	if end < 0 {
		return event.Event{}, errors.ErrCorruptFrame
	}
	head := string(frame[:end])
	body := frame[end+2:]

	lines := strings.Split(head, "\n")
	cmd := lines[0]
	hdrs := make(map[string]string, len(lines)-1)
	for _, l := range lines[1:] {
		i := strings.IndexByte(l, ':')
		if i <= 0 {
			return event.Event{}, errors.ErrCorruptFrame
		}
		k, v := unescape(l[:i]), unescape(l[i+1:])
		// first occurrence wins, as in STOMP
		if _, dup := hdrs[k]; !dup {
			hdrs[k] = v
		}
	}
	if err := c.checkVersion(hdrs[HdrVersion]); err != nil {
		return event.Event{}, err
	}

	switch cmd {
	case CmdAck:
		id := hdrs[HdrID]
		if id == "" {
			return event.Event{}, errors.ErrMissingID
		}
		return event.NewAck(id), nil

	case CmdSend:
		id := hdrs[HdrMessageID]
		if id == "" {
			return event.Event{}, errors.ErrMissingID
		}
		ct, ok := hdrs[HdrContentType]
		if !ok {
			if len(body) != 0 {
				return event.Event{}, errors.ErrCorruptFrame
			}
			return event.NewHeartbeat(id), nil
		}
		return decodeSend(id, ct, hdrs, body)
	}
	return event.Event{}, errors.ErrBadCommand
}

func (c *Codec) checkVersion(s string) error {
	if s == "" {
		return errors.ErrBadVersion
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return errors.ErrBadVersion
	}
	if !c.accept.Check(v) {
		return errors.ErrBadVersion
	}
	return nil
}

func decodeSend(id, ct string, hdrs map[string]string, body []byte) (event.Event, error) {
	t, err := message.ParseType(ct)
	if err != nil {
		return event.Event{}, errors.ErrCorruptFrame
	}
	m := &message.Message{
		ID:            id,
		Type:          t,
		CorrelationID: hdrs[HdrCorrelationID],
		Destination:   hdrs[HdrDestination],
		Priority:      message.DefaultPriority,
	}
	if len(body) > 0 {
		m.Body = append([]byte(nil), body...)
	}
	if s, ok := hdrs[HdrPriority]; ok {
		if m.Priority, err = strconv.Atoi(s); err != nil {
			return event.Event{}, errors.ErrCorruptFrame
		}
	}
	if s, ok := hdrs[HdrTimestamp]; ok {
		ns, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return event.Event{}, errors.ErrCorruptFrame
		}
		m.Timestamp = time.Unix(0, ns)
	}
	for k, v := range hdrs {
		if !strings.HasPrefix(k, HdrPropPrefix) {
			continue
		}
		pv, err := message.DecodeProperty([]byte(v))
		if err != nil {
			return event.Event{}, errors.ErrCorruptFrame
		}
		m.SetProperty(strings.TrimPrefix(k, HdrPropPrefix), pv)
	}
	return event.NewSend(m), nil
}

func writeHeader(b *bytes.Buffer, k, v string) {
	b.WriteString(escape(k))
	b.WriteByte(':')
	b.WriteString(escape(v))
	b.WriteByte('\n')
}

var (
	escaper   = strings.NewReplacer("\\", "\\\\", "\n", "\\n", "\r", "\\r", ":", "\\c")
	unescaper = strings.NewReplacer("\\\\", "\\", "\\n", "\n", "\\r", "\r", "\\c", ":")
)

func escape(s string) string   { return escaper.Replace(s) }
func unescape(s string) string { return unescaper.Replace(s) }
