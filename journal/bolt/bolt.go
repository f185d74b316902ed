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

// Package bolt implements a journal.Store on a bbolt database file.
package bolt

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"nanomsg.org/go/gateway/errors"
	"nanomsg.org/go/gateway/journal"
	"nanomsg.org/go/gateway/message"
)

var (
	entriesBucket = []byte("entries")
	indexBucket   = []byte("index")
)

// Store keeps entries keyed by a monotonically increasing sequence, with
// a secondary index from message id to sequence.  An entry value is the
// message id, a NUL byte, then the encoded message.
type Store struct {
	path string

	mu        sync.Mutex
	db        *bolt.DB
	watermark uint64
	cursor    uint64
}

// New returns a closed store for the database file at path.
func New(path string) *Store {
	return &Store{path: path}
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Open implements journal.Store.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	db, err := bolt.Open(s.path, os.FileMode(0600), &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	var mark uint64
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(entriesBucket)
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists(indexBucket); err != nil {
			return err
		}
		if k, _ := b.Cursor().Last(); k != nil {
			mark = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("init journal: %w", err)
	}
	s.db = db
	s.watermark = mark
	s.cursor = 0
	return nil
}

// Close implements journal.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func remove(tx *bolt.Tx, id []byte) error {
	idx := tx.Bucket(indexBucket)
	if old := idx.Get(id); old != nil {
		if err := tx.Bucket(entriesBucket).Delete(old); err != nil {
			return err
		}
		return idx.Delete(id)
	}
	return nil
}

// Create implements journal.Store.
func (s *Store) Create(id string, m *message.Message) error {
	if id == "" {
		return errors.ErrMissingID
	}
	data, err := journal.Encode(m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.ErrJournalClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := remove(tx, []byte(id)); err != nil {
			return err
		}
		b := tx.Bucket(entriesBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		k := seqKey(seq)
		v := make([]byte, 0, len(id)+1+len(data))
		v = append(v, id...)
		v = append(v, 0)
		v = append(v, data...)
		if err = b.Put(k, v); err != nil {
			return err
		}
		return tx.Bucket(indexBucket).Put([]byte(id), k)
	})
}

// Read implements journal.Store.
func (s *Store) Read() (journal.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return journal.Entry{}, false, errors.ErrJournalClosed
	}
	var (
		id   string
		data []byte
		seq  uint64
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(entriesBucket).Cursor()
		k, v := c.Seek(seqKey(s.cursor + 1))
		if k == nil {
			return nil
		}
		if seq = binary.BigEndian.Uint64(k); seq > s.watermark {
			seq = 0
			return nil
		}
		for i, ch := range v {
			if ch == 0 {
				id = string(v[:i])
				data = append([]byte(nil), v[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("entry %d: %w", seq, errors.ErrCorruptFrame)
	})
	if seq != 0 {
		s.cursor = seq
	}
	if err != nil || seq == 0 {
		return journal.Entry{}, false, err
	}
	m, err := journal.Decode(data)
	if err != nil {
		return journal.Entry{}, false, fmt.Errorf("entry %s: %w", id, err)
	}
	return journal.Entry{ID: id, Message: m}, true, nil
}

// Delete implements journal.Store.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.ErrJournalClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return remove(tx, []byte(id))
	})
}

// Len returns the number of stored entries.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, errors.ErrJournalClosed
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(indexBucket).Stats().KeyN
		return nil
	})
	return n, err
}
