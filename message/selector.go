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

package message

import (
	"fmt"
	"math/big"
)

// Selector decides whether a received message is delivered.  The selector
// language itself lives with the application; gateways only evaluate it.
type Selector interface {
	Matches(properties map[string]interface{}) bool
}

// SelectorFunc adapts an ordinary function to a Selector.
type SelectorFunc func(map[string]interface{}) bool

// Matches calls f.
func (f SelectorFunc) Matches(p map[string]interface{}) bool {
	return f(p)
}

// PropertyEquals selects messages whose named property has the given
// value.  Numbers compare by value whatever their Go type, and a string
// compared against a number is parsed first; anything else compares by
// printed form.
func PropertyEquals(name string, value interface{}) Selector {
	return SelectorFunc(func(p map[string]interface{}) bool {
		v, ok := p[name]
		return ok && valuesEqual(v, value)
	})
}

func valuesEqual(a, b interface{}) bool {
	x, xok := toNumber(a)
	y, yok := toNumber(b)
	switch {
	case xok && yok:
		return x.Cmp(y) == 0
	case xok:
		y, yok = numericString(b)
	case yok:
		x, xok = numericString(a)
	}
	if xok && yok {
		return x.Cmp(y) == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func numericString(v interface{}) (*big.Float, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	return parseNumber(new(big.Float).SetPrec(128), s)
}

// Accept applies s to m, treating a nil selector as accepting everything.
func Accept(s Selector, m *Message) bool {
	if s == nil {
		return true
	}
	return s.Matches(m.Properties)
}
