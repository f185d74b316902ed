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
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nanomsg.org/go/gateway/codec/protobuf"
	"nanomsg.org/go/gateway/codec/stomp"
	"nanomsg.org/go/gateway/event"
	"nanomsg.org/go/gateway/filter"
	"nanomsg.org/go/gateway/journal"
	"nanomsg.org/go/gateway/journal/bolt"
	"nanomsg.org/go/gateway/journal/sqlite"
	"nanomsg.org/go/gateway/message"
	"nanomsg.org/go/gateway/redelivery"
)

// Params are the string parameters of an extension.
type Params map[string]string

// Int returns the integer parameter key, or def when absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadParam, key, v)
	}
	return n, nil
}

// List returns the comma separated parameter key.
func (p Params) List(key string) []string {
	v := strings.TrimSpace(p[key])
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Factories for each kind of extension.
type (
	CodecFactory      func(Params) (event.Codec, error)
	FilterFactory     func(Params) (filter.Policy, error)
	RedeliveryFactory func(Params, zerolog.Logger) (redelivery.Policy, error)
	JournalFactory    func(Params) (journal.Store, error)
)

// Registry maps configuration keys to gateway kinds and to the factories
// of codecs, filter policies, redelivery policies and journal stores.
type Registry struct {
	mu         sync.RWMutex
	kinds      map[string]Kind
	codecs     map[string]CodecFactory
	filters    map[string]FilterFactory
	redelivery map[string]RedeliveryFactory
	journals   map[string]JournalFactory
}

// NewRegistry returns a registry holding every built-in extension.
func NewRegistry() *Registry {
	r := &Registry{
		kinds:      make(map[string]Kind),
		codecs:     make(map[string]CodecFactory),
		filters:    make(map[string]FilterFactory),
		redelivery: make(map[string]RedeliveryFactory),
		journals:   make(map[string]JournalFactory),
	}
	r.RegisterKind(FireAndForget)
	r.RegisterKind(PAR)

	r.RegisterCodec(stomp.Name, func(Params) (event.Codec, error) { return stomp.New(), nil })
	r.RegisterCodec(protobuf.Name, func(Params) (event.Codec, error) { return protobuf.New(), nil })

	r.RegisterFilter("none", func(Params) (filter.Policy, error) { return filter.None{}, nil })
	r.RegisterFilter("property", func(p Params) (filter.Policy, error) {
		name := p["property"]
		if name == "" {
			return nil, fmt.Errorf("%w: property filter needs a property", ErrBadParam)
		}
		return filter.NewProperty(name, p.List("subscribe")...), nil
	})

	r.RegisterRedelivery("retry", func(p Params, log zerolog.Logger) (redelivery.Policy, error) {
		max, err := p.Int("max", redelivery.DefaultMaxRetries)
		if err != nil {
			return nil, err
		}
		return redelivery.NewRetryPolicy(max, log), nil
	})

	r.RegisterJournal("memory", func(Params) (journal.Store, error) { return journal.NewMemory(), nil })
	r.RegisterJournal("sqlite", func(p Params) (journal.Store, error) {
		if p["path"] == "" {
			return nil, fmt.Errorf("%w: sqlite journal needs a path", ErrBadParam)
		}
		return sqlite.New(p["path"]), nil
	})
	r.RegisterJournal("bolt", func(p Params) (journal.Store, error) {
		if p["path"] == "" {
			return nil, fmt.Errorf("%w: bolt journal needs a path", ErrBadParam)
		}
		return bolt.New(p["path"]), nil
	})
	return r
}

// RegisterKind adds or replaces a gateway kind under its name.
func (r *Registry) RegisterKind(k Kind) {
	r.mu.Lock()
	r.kinds[k.Name] = k
	r.mu.Unlock()
}

// RegisterCodec adds or replaces a codec factory.
func (r *Registry) RegisterCodec(key string, f CodecFactory) {
	r.mu.Lock()
	r.codecs[key] = f
	r.mu.Unlock()
}

// RegisterFilter adds or replaces a filter policy factory.
func (r *Registry) RegisterFilter(key string, f FilterFactory) {
	r.mu.Lock()
	r.filters[key] = f
	r.mu.Unlock()
}

// RegisterRedelivery adds or replaces a redelivery policy factory.
func (r *Registry) RegisterRedelivery(key string, f RedeliveryFactory) {
	r.mu.Lock()
	r.redelivery[key] = f
	r.mu.Unlock()
}

// RegisterJournal adds or replaces a journal store factory.
func (r *Registry) RegisterJournal(key string, f JournalFactory) {
	r.mu.Lock()
	r.journals[key] = f
	r.mu.Unlock()
}

func unknown(what, key string) error {
	return fmt.Errorf("%w: %s %q", ErrUnknownKey, what, key)
}

// Kind returns the kind registered under key.
func (r *Registry) Kind(key string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[key]
	if !ok {
		return Kind{}, unknown("kind", key)
	}
	return k, nil
}

// Codec builds the codec registered under key.
func (r *Registry) Codec(key string, p Params) (event.Codec, error) {
	r.mu.RLock()
	f, ok := r.codecs[key]
	r.mu.RUnlock()
	if !ok {
		return nil, unknown("codec", key)
	}
	return f(p)
}

// Filter builds the filter policy registered under key.
func (r *Registry) Filter(key string, p Params) (filter.Policy, error) {
	r.mu.RLock()
	f, ok := r.filters[key]
	r.mu.RUnlock()
	if !ok {
		return nil, unknown("filter", key)
	}
	return f(p)
}

// Redelivery builds the redelivery policy registered under key.
func (r *Registry) Redelivery(key string, p Params, log zerolog.Logger) (redelivery.Policy, error) {
	r.mu.RLock()
	f, ok := r.redelivery[key]
	r.mu.RUnlock()
	if !ok {
		return nil, unknown("redelivery policy", key)
	}
	return f(p, log)
}

// Journal builds the journal store registered under key.
func (r *Registry) Journal(key string, p Params) (journal.Store, error) {
	r.mu.RLock()
	f, ok := r.journals[key]
	r.mu.RUnlock()
	if !ok {
		return nil, unknown("journal", key)
	}
	return f(p)
}

// Keys lists the registered keys of one extension kind: "kind", "codec",
// "filter", "redelivery" or "journal".
func (r *Registry) Keys(what string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	switch what {
	case "kind":
		for k := range r.kinds {
			keys = append(keys, k)
		}
	case "codec":
		for k := range r.codecs {
			keys = append(keys, k)
		}
	case "filter":
		for k := range r.filters {
			keys = append(keys, k)
		}
	case "redelivery":
		for k := range r.redelivery {
			keys = append(keys, k)
		}
	case "journal":
		for k := range r.journals {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// ExtensionSpec names an extension and its parameters.
type ExtensionSpec struct {
	Type   string `yaml:"type"`
	Params Params `yaml:"params,omitempty"`
}

// GatewaySpec is the declarative form of a gateway Config.
type GatewaySpec struct {
	Name              string            `yaml:"name"`
	Kind              string            `yaml:"kind"`
	Direction         string            `yaml:"direction"`
	Pattern           string            `yaml:"pattern,omitempty"`
	Addresses         []string          `yaml:"addresses"`
	Bind              bool              `yaml:"bind,omitempty"`
	Transacted        bool              `yaml:"transacted,omitempty"`
	HeartbeatInterval time.Duration     `yaml:"heartbeatInterval,omitempty"`
	AutoPauseInterval time.Duration     `yaml:"autoPauseInterval,omitempty"`
	AckTimeout        time.Duration     `yaml:"ackTimeout,omitempty"`
	SocketWait        time.Duration     `yaml:"socketWait,omitempty"`
	Context           string            `yaml:"context,omitempty"`
	Codec             *ExtensionSpec    `yaml:"codec,omitempty"`
	Filter            *ExtensionSpec    `yaml:"filter,omitempty"`
	Redelivery        *ExtensionSpec    `yaml:"redelivery,omitempty"`
	Journal           *ExtensionSpec    `yaml:"journal,omitempty"`
	Selector          map[string]string `yaml:"selector,omitempty"`
	LogMetrics        bool              `yaml:"logMetrics,omitempty"`
}

// EndpointSpec is the declarative form of an Endpoint.
type EndpointSpec struct {
	Address string `yaml:"address"`
	Pattern string `yaml:"pattern"`
	Bind    bool   `yaml:"bind,omitempty"`
}

// ProxySpec is the declarative form of a ProxyConfig.
type ProxySpec struct {
	Name             string        `yaml:"name"`
	Front            EndpointSpec  `yaml:"front"`
	Back             EndpointSpec  `yaml:"back"`
	RetryInterval    time.Duration `yaml:"retryInterval,omitempty"`
	MaxRetryInterval time.Duration `yaml:"maxRetryInterval,omitempty"`
	Context          string        `yaml:"context,omitempty"`
}

// selectAll accepts messages whose properties equal every given value.
func selectAll(want map[string]string) message.Selector {
	sels := make([]message.Selector, 0, len(want))
	for k, v := range want {
		sels = append(sels, message.PropertyEquals(k, v))
	}
	return message.SelectorFunc(func(props map[string]interface{}) bool {
		for _, s := range sels {
			if !s.Matches(props) {
				return false
			}
		}
		return true
	})
}

// Config turns a spec into a gateway Config, building its extensions.
func (r *Registry) Config(s GatewaySpec, log zerolog.Logger) (Config, error) {
	kindKey := s.Kind
	if kindKey == "" {
		kindKey = FireAndForget.Name
	}
	kind, err := r.Kind(kindKey)
	if err != nil {
		return Config{}, err
	}
	dir, err := ParseDirection(s.Direction)
	if err != nil {
		return Config{}, err
	}
	c := Config{
		Name:              s.Name,
		Direction:         dir,
		Addresses:         s.Addresses,
		Bind:              s.Bind,
		Transacted:        s.Transacted,
		HeartbeatInterval: s.HeartbeatInterval,
		AutoPauseInterval: s.AutoPauseInterval,
		AckTimeout:        s.AckTimeout,
		SocketWait:        s.SocketWait,
		Context:           s.Context,
		LogMetrics:        s.LogMetrics,
	}
	if s.Pattern != "" {
		if c.Pattern, err = ParsePattern(s.Pattern); err != nil {
			return Config{}, err
		}
	}
	kind.Apply(&c)

	c.Logger = &log
	glog := log.With().Str("gateway", s.Name).Logger()
	if s.Codec != nil {
		if c.Codec, err = r.Codec(s.Codec.Type, s.Codec.Params); err != nil {
			return Config{}, err
		}
	}
	if s.Filter != nil {
		if c.Filter, err = r.Filter(s.Filter.Type, s.Filter.Params); err != nil {
			return Config{}, err
		}
	}
	if s.Redelivery != nil {
		if c.Redelivery, err = r.Redelivery(s.Redelivery.Type, s.Redelivery.Params, glog); err != nil {
			return Config{}, err
		}
	}
	if s.Journal != nil {
		if c.Journal, err = r.Journal(s.Journal.Type, s.Journal.Params); err != nil {
			return Config{}, err
		}
	}
	if len(s.Selector) > 0 {
		c.Selector = selectAll(s.Selector)
	}
	return c, c.Validate()
}

// ProxyConfig turns a spec into a ProxyConfig.
func (r *Registry) ProxyConfig(s ProxySpec, log zerolog.Logger) (ProxyConfig, error) {
	front, err := ParsePattern(s.Front.Pattern)
	if err != nil {
		return ProxyConfig{}, err
	}
	back, err := ParsePattern(s.Back.Pattern)
	if err != nil {
		return ProxyConfig{}, err
	}
	c := ProxyConfig{
		Name:             s.Name,
		Front:            Endpoint{Address: s.Front.Address, Pattern: front, Bind: s.Front.Bind},
		Back:             Endpoint{Address: s.Back.Address, Pattern: back, Bind: s.Back.Bind},
		RetryInterval:    s.RetryInterval,
		MaxRetryInterval: s.MaxRetryInterval,
		Context:          s.Context,
		Logger:           &log,
	}
	return c, c.Validate()
}
