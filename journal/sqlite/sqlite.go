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

// Package sqlite implements a journal.Store on an SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	_ "modernc.org/sqlite"

	"nanomsg.org/go/gateway/errors"
	"nanomsg.org/go/gateway/journal"
	"nanomsg.org/go/gateway/message"
)

const schema = `
CREATE TABLE IF NOT EXISTS journal (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	id      TEXT NOT NULL UNIQUE,
	message BLOB NOT NULL
);`

// Store keeps journal entries in one table.  Recovery walks the rows that
// existed at Open in insertion order.
type Store struct {
	path string

	mu        sync.Mutex
	db        *sql.DB
	watermark int64
	cursor    int64
}

// New returns a closed store for the database file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Open implements journal.Store.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	dsn := s.path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("migrate journal: %w", err)
	}
	var mark sql.NullInt64
	if err = db.QueryRow(`SELECT MAX(seq) FROM journal`).Scan(&mark); err != nil {
		db.Close()
		return fmt.Errorf("scan journal: %w", err)
	}
	s.db = db
	s.watermark = mark.Int64
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

// Create implements journal.Store.  A replaced entry is re-sequenced and so
// is not offered for recovery again during this open.
func (s *Store) Create(id string, m *message.Message) error {
	if id == "" {
		return errors.ErrMissingID
	}
	b, err := journal.Encode(m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.ErrJournalClosed
	}
	return retryOnContention(func() error {
		_, err := s.db.Exec(`INSERT OR REPLACE INTO journal (id, message) VALUES (?, ?)`, id, b)
		return err
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
		seq int64
		id  string
		b   []byte
	)
	err := s.db.QueryRow(
		`SELECT seq, id, message FROM journal WHERE seq > ? AND seq <= ? ORDER BY seq LIMIT 1`,
		s.cursor, s.watermark,
	).Scan(&seq, &id, &b)
	if err == sql.ErrNoRows {
		return journal.Entry{}, false, nil
	}
	if err != nil {
		return journal.Entry{}, false, err
	}
	s.cursor = seq
	m, err := journal.Decode(b)
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
	return retryOnContention(func() error {
		_, err := s.db.Exec(`DELETE FROM journal WHERE id = ?`, id)
		return err
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
	err := s.db.QueryRow(`SELECT COUNT(*) FROM journal`).Scan(&n)
	return n, err
}

const maxRetries = 3

func retryOnContention(fn func() error) error {
	b := &backoff.Backoff{
		Min:    20 * time.Millisecond,
		Max:    200 * time.Millisecond,
		Jitter: true,
	}
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = fn(); err == nil || !transient(err) {
			return err
		}
		time.Sleep(b.Duration())
	}
	return err
}

func transient(err error) bool {
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
