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
	"nanomsg.org/go/gateway/errors"
)

// Errors returned by gateways and proxies.  They are the values of the
// errors package, repeated here so that callers need only one import.
const (
	ErrClosed        = errors.ErrClosed
	ErrNotOpen       = errors.ErrNotOpen
	ErrNotTransacted = errors.ErrNotTransacted
	ErrJoinTimeout   = errors.ErrJoinTimeout
	ErrReleased      = errors.ErrReleased
	ErrBadConfig     = errors.ErrBadConfig
	ErrBadPattern    = errors.ErrBadPattern
	ErrBadDirection  = errors.ErrBadDirection
	ErrNoAddress     = errors.ErrNoAddress
	ErrUnknownKey    = errors.ErrUnknownKey
	ErrBadParam      = errors.ErrBadParam
	ErrCorruptFrame  = errors.ErrCorruptFrame
	ErrBadBody       = errors.ErrBadBody
	ErrAddrInUse     = errors.ErrAddrInUse
)

const errNoPeer = errors.ErrNoPeer
