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

// Package errors just defines some constant error codes, and is intended
// to be directly imported.  It is safe to import using ".", so that
// short names can be used without concern about unrelated namespace
// pollution.
package errors

type err string

func (e err) Error() string {
	return string(e)
}

// Lifecycle errors are returned synchronously to callers.
const (
	ErrClosed        = err("gateway closed")
	ErrNotOpen       = err("gateway not open")
	ErrNotTransacted = err("gateway not transacted")
	ErrJoinTimeout   = err("timed out waiting for workers to stop")
	ErrReleased      = err("transport context released")
)

// Configuration errors.
const (
	ErrBadConfig    = err("invalid gateway configuration")
	ErrBadPattern   = err("invalid or unsupported socket pattern")
	ErrBadDirection = err("invalid gateway direction")
	ErrNoAddress    = err("no transport address configured")
	ErrUnknownKey   = err("unknown extension key")
	ErrBadParam     = err("invalid extension parameter")
)

// Protocol corruption.  Frames failing with these are dropped, never
// surfaced to the application.
const (
	ErrCorruptFrame = err("corrupt frame")
	ErrMissingID    = err("frame missing message id")
	ErrBadVersion   = err("incompatible frame version")
	ErrBadCommand   = err("unknown frame command")
	ErrBadBody      = err("message body type mismatch")
)

// Transport and storage errors.
const (
	ErrAddrInUse     = err("address in use")
	ErrNoPeer        = err("no peer to address")
	ErrJournalClosed = err("journal store not open")
	ErrNotFound      = err("journal entry not found")
)
