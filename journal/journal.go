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

// Package journal defines the durable staging area used by gateways to
// survive process restarts, along with an in-memory implementation.
//
// A Store offers through Read only those entries that were present when it
// was opened.  Entries created afterwards are already owned by the
// gateway's in-memory queues; they stay in the store purely as a recovery
// copy until they are deleted on egress or commit.
package journal

import (
	"nanomsg.org/go/gateway/errors"
	"nanomsg.org/go/gateway/message"
)

// Entry is a journaled message.
type Entry struct {
	ID      string
	Message *message.Message
}

// Store is the journal contract.  Implementations are safe for concurrent
// use.
type Store interface {
	// Open makes the store usable and snapshots the entries to recover.
	Open() error

	// Close releases the store.  Entries survive a Close.
	Close() error

	// Create persists a message under id, replacing any existing entry.
	Create(id string, m *message.Message) error

	// Read returns the next recovered entry, if any.  An entry is returned
	// at most once per Open.
	Read() (Entry, bool, error)

	// Delete removes an entry.  Deleting a missing entry is not an error.
	Delete(id string) error
}

// Encode returns the stored form of a message.
func Encode(m *message.Message) ([]byte, error) {
	if m == nil {
		return nil, errors.ErrBadParam
	}
	return message.Marshal(m)
}

// Decode is the inverse of Encode.
func Decode(b []byte) (*message.Message, error) {
	return message.Unmarshal(b)
}
