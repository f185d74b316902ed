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
	"math"
	"math/big"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// propJSON keeps numeric literals intact so that integers wider than a
// float64 mantissa decode without loss.
var propJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// number is satisfied by both json.Number and jsoniter.Number.
type number interface {
	String() string
	Int64() (int64, error)
	Float64() (float64, error)
}

// EncodeProperty returns the JSON encoding of a property value.
func EncodeProperty(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeProperty is the inverse of EncodeProperty.  Integral numbers come
// back as int64 (or uint64 when too large for int64), others as float64.
func DecodeProperty(b []byte) (interface{}, error) {
	var v interface{}
	if err := propJSON.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case number:
		s := x.String()
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return s
	case map[string]interface{}:
		for k, e := range x {
			x[k] = normalize(e)
		}
	case []interface{}:
		for i, e := range x {
			x[i] = normalize(e)
		}
	}
	return v
}

// toNumber returns v as an exact big.Float if it is numeric.
func toNumber(v interface{}) (*big.Float, bool) {
	f := new(big.Float).SetPrec(128)
	switch x := v.(type) {
	case int:
		return f.SetInt64(int64(x)), true
	case int8:
		return f.SetInt64(int64(x)), true
	case int16:
		return f.SetInt64(int64(x)), true
	case int32:
		return f.SetInt64(int64(x)), true
	case int64:
		return f.SetInt64(x), true
	case uint:
		return f.SetUint64(uint64(x)), true
	case uint8:
		return f.SetUint64(uint64(x)), true
	case uint16:
		return f.SetUint64(uint64(x)), true
	case uint32:
		return f.SetUint64(uint64(x)), true
	case uint64:
		return f.SetUint64(x), true
	case float32:
		return floatNumber(f, float64(x))
	case float64:
		return floatNumber(f, x)
	case number:
		return parseNumber(f, x.String())
	}
	return nil, false
}

func floatNumber(f *big.Float, x float64) (*big.Float, bool) {
	if math.IsNaN(x) {
		return nil, false
	}
	return f.SetFloat64(x), true
}

func parseNumber(f *big.Float, s string) (*big.Float, bool) {
	if _, ok := f.SetString(s); !ok {
		return nil, false
	}
	return f, true
}
