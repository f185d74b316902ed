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

package journal

import (
	"sort"
	"sync"

	"nanomsg.org/go/gateway/errors"
	"nanomsg.org/go/gateway/message"
)

// Memory is a Store kept in process memory.  Its contents outlive Close,
// so a gateway reopened within the same process recovers what it left.
type Memory struct {
	sync.Mutex
	open      bool
	seq       uint64
	entries   map[string]memEntry
	recovered []string
}

type memEntry struct {
	seq  uint64
	data []byte
}

// NewMemory returns an empty, closed store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memEntry)}
}

// Open implements Store.
func (s *Memory) Open() error {
	s.Lock()
	defer s.Unlock()
	if s.open {
		return nil
	}
	s.open = true
	s.recovered = s.recovered[:0]
	for id := range s.entries {
		s.recovered = append(s.recovered, id)
	}
	sort.Slice(s.recovered, func(i, j int) bool {
		return s.entries[s.recovered[i]].seq < s.entries[s.recovered[j]].seq
	})
	return nil
}

// Close implements Store.
func (s *Memory) Close() error {
	s.Lock()
	s.open = false
	s.recovered = nil
	s.Unlock()
	return nil
}

// Create implements Store.
func (s *Memory) Create(id string, m *message.Message) error {
	if id == "" {
		return errors.ErrMissingID
	}
	b, err := Encode(m)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	if !s.open {
		return errors.ErrJournalClosed
	}
	s.seq++
	s.entries[id] = memEntry{seq: s.seq, data: b}
	return nil
}

// Read implements Store.
func (s *Memory) Read() (Entry, bool, error) {
	s.Lock()
	defer s.Unlock()
	if !s.open {
		return Entry{}, false, errors.ErrJournalClosed
	}
	for len(s.recovered) > 0 {
		id := s.recovered[0]
		s.recovered = s.recovered[1:]
		e, ok := s.entries[id]
		if !ok {
			continue
		}
		m, err := Decode(e.data)
		if err != nil {
			return Entry{}, false, err
		}
		return Entry{ID: id, Message: m}, true, nil
	}
	return Entry{}, false, nil
}

// Delete implements Store.
func (s *Memory) Delete(id string) error {
	s.Lock()
	defer s.Unlock()
	if !s.open {
		return errors.ErrJournalClosed
	}
	delete(s.entries, id)
	return nil
}

// Len returns the number of entries held, recovered or not.
func (s *Memory) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.entries)
}
