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
	"time"
)

// The following are the defaults applied to a Config or ProxyConfig whose
// corresponding field is zero.

const (
	// DefaultHeartbeatInterval is how long output must be idle before a
	// heartbeat is sent.  It is also how long an output-only session
	// stays paused after a transmit failure.
	DefaultHeartbeatInterval = time.Second

	// DefaultAutoPauseInterval is how long input may be silent before a
	// heartbeating session pauses.  A paused session keeps listening and
	// keeps heartbeating, but takes no application traffic until it
	// hears from its peer again.
	DefaultAutoPauseInterval = 10 * time.Second

	// DefaultAckTimeout is how long a sent message may stay
	// unacknowledged before it is retransmitted.  Only used when
	// acknowledgement is enabled.
	DefaultAckTimeout = 5 * time.Second

	// DefaultSocketWait bounds every blocking socket and queue operation
	// made by session workers, and therefore how quickly they notice
	// that the gateway has been closed.
	DefaultSocketWait = 100 * time.Millisecond

	// DefaultCloseTimeout bounds the wait for worker goroutines on close.
	// A timeout is logged, not returned.
	DefaultCloseTimeout = 3 * time.Second

	// DefaultRetryInterval is how long a proxy waits before retrying a
	// bind that failed because the address is held elsewhere.
	DefaultRetryInterval = time.Second

	// DefaultContext is the transport context used when none is named.
	DefaultContext = "default"

	// maxBatch caps the events a session sends or receives in one pass
	// before turning to the other direction.
	maxBatch = 128
)
