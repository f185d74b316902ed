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
	"os"

	"github.com/rs/zerolog"
)

// DefaultLogger is used by gateways and proxies configured without one.
var DefaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)

// logEvent tags a log line with the kind of occurrence it records, so
// that operators can filter on the "event" field.
type logEvent string

func (e logEvent) log(ev *zerolog.Event) *zerolog.Event {
	return ev.Str("event", string(e))
}

const (
	evtOpened        = logEvent("opened")
	evtClosed        = logEvent("closed")
	evtSessionStatus = logEvent("session_status")
	evtPaused        = logEvent("paused")
	evtResumed       = logEvent("resumed")
	evtCorruptFrame  = logEvent("corrupt_frame")
	evtSendFailed    = logEvent("send_failed")
	evtUnexpectedAck = logEvent("unexpected_ack")
	evtRetransmit    = logEvent("retransmit")
	evtLostMessage   = logEvent("lost_message")
	evtJournal       = logEvent("journal_failure")
	evtJoinTimeout   = logEvent("join_timeout")
	evtRejected      = logEvent("selector_rejected")
	evtBindRetry     = logEvent("bind_retry")
	evtRelayFailed   = logEvent("relay_failed")
)

func loggerOf(l *zerolog.Logger) zerolog.Logger {
	if l == nil {
		return DefaultLogger
	}
	return *l
}
