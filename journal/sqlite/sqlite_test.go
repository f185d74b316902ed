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

package sqlite

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "nanomsg.org/go/gateway/errors"
	"nanomsg.org/go/gateway/journal"
	"nanomsg.org/go/gateway/message"
)

var _ journal.Store = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, s.Open())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClosedStore(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "journal.db"))
	assert.Equal(t, gwerrors.ErrJournalClosed, s.Create("a", message.NewText("a")))
	assert.Equal(t, gwerrors.ErrJournalClosed, s.Delete("a"))
	_, _, err := s.Read()
	assert.Equal(t, gwerrors.ErrJournalClosed, err)
	assert.NoError(t, s.Close())
}

func TestCreateIsNotRecoveredInSameOpen(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("a", message.NewText("A")))
	_, ok, err := s.Read()
	require.NoError(t, err)
	assert.False(t, ok)
	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecoveryAfterReopen(t *testing.T) {
	s := newTestStore(t)
	m := message.NewText("body-1")
	m.SetProperty("region", "eu")
	require.NoError(t, s.Create("1", m))
	require.NoError(t, s.Create("2", message.NewText("body-2")))
	require.NoError(t, s.Create("3", message.NewText("body-3")))
	require.NoError(t, s.Delete("2"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Open())

	// entries created after the reopen are not part of the recovery
	require.NoError(t, s.Create("4", message.NewText("body-4")))

	e, ok, err := s.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", e.ID)
	assert.Equal(t, "body-1", e.Message.Text())
	assert.Equal(t, "eu", e.Message.StringProperty("region"))

	e, ok, err = s.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", e.ID)

	_, ok, err = s.Read()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplaceKeepsOneEntry(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("a", message.NewText("old")))
	require.NoError(t, s.Create("a", message.NewText("new")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Open())

	e, ok, err := s.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", e.Message.Text())
	n, _ := s.Len()
	assert.Equal(t, 1, n)
}

func TestMissingID(t *testing.T) {
	s := newTestStore(t)
	err := s.Create("", message.NewText("x"))
	assert.True(t, errors.Is(err, gwerrors.ErrMissingID))
}
