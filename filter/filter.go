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

// Package filter computes the topic keys used to address broadcast
// (pub/sub) traffic.  Publishers resolve a key per message; subscribers
// register key prefixes.
package filter

import (
	"strings"

	"nanomsg.org/go/gateway/message"
)

// NoKey is published when a policy yields no key.  Broadcast frames always
// carry a non-empty key.
const NoKey = "*"

// Policy is a filter policy.
type Policy interface {
	// Resolve returns the publish key of m, if it has one.
	Resolve(m *message.Message) (string, bool)

	// SubscribeFilters returns the key prefixes to subscribe to.  An
	// empty prefix matches every key.
	SubscribeFilters() []string
}

// A NUL ends the key on the wire, so keys and subscription prefixes are
// escaped alike.  The escape is a prefix code: one escaped string is a
// prefix of another exactly when the unescaped strings are.
var keyEscaper = strings.NewReplacer(`\`, `\\`, "\x00", `\0`)

// EscapeKey returns s with backslashes and NUL bytes escaped.
func EscapeKey(s string) string {
	return keyEscaper.Replace(s)
}

// Key returns the escaped publish key of m under p, falling back to NoKey.
func Key(p Policy, m *message.Message) string {
	if p == nil || m == nil {
		return NoKey
	}
	if k, ok := p.Resolve(m); ok && k != "" {
		return EscapeKey(k)
	}
	return NoKey
}

// Subscriptions returns the escaped prefixes p subscribes to, or
// everything when p is nil or has none.
func Subscriptions(p Policy) []string {
	if p == nil {
		return []string{""}
	}
	if f := p.SubscribeFilters(); len(f) > 0 {
		out := make([]string, len(f))
		for i, prefix := range f {
			out[i] = EscapeKey(prefix)
		}
		return out
	}
	return []string{""}
}

// None publishes without a key and subscribes to everything.
type None struct{}

// Resolve implements Policy.
func (None) Resolve(*message.Message) (string, bool) { return "", false }

// SubscribeFilters implements Policy.
func (None) SubscribeFilters() []string { return []string{""} }

// Property keys messages by the value of one of their properties.
type Property struct {
	Name          string
	Subscriptions []string
}

// NewProperty returns a Property policy.  With no subscriptions the
// subscriber side receives every key.
func NewProperty(name string, subscriptions ...string) *Property {
	return &Property{Name: name, Subscriptions: subscriptions}
}

// Resolve implements Policy.
func (p *Property) Resolve(m *message.Message) (string, bool) {
	s := m.StringProperty(p.Name)
	return s, s != ""
}

// SubscribeFilters implements Policy.
func (p *Property) SubscribeFilters() []string {
	if len(p.Subscriptions) == 0 {
		return []string{""}
	}
	return append([]string(nil), p.Subscriptions...)
}
