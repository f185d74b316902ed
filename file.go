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
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// BridgeSpec moves every message received by one gateway to another.
type BridgeSpec struct {
	Name string `yaml:"name"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// FileConfig is the layout of a gateway daemon configuration file.
type FileConfig struct {
	Proxies  []ProxySpec   `yaml:"proxies,omitempty"`
	Gateways []GatewaySpec `yaml:"gateways,omitempty"`
	Bridges  []BridgeSpec  `yaml:"bridges,omitempty"`
}

// ParseFileConfig decodes YAML.  Unknown fields are errors.
func ParseFileConfig(b []byte) (*FileConfig, error) {
	fc := &FileConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	names := make(map[string]bool)
	for _, g := range fc.Gateways {
		if g.Name == "" {
			return nil, fmt.Errorf("%w: gateway without a name", ErrBadConfig)
		}
		if names[g.Name] {
			return nil, fmt.Errorf("%w: duplicate gateway %q", ErrBadConfig, g.Name)
		}
		names[g.Name] = true
	}
	for _, b := range fc.Bridges {
		if !names[b.From] || !names[b.To] {
			return nil, fmt.Errorf("%w: bridge %q joins unknown gateways", ErrBadConfig, b.Name)
		}
	}
	return fc, nil
}

// LoadFileConfig reads and decodes the YAML file at path.
func LoadFileConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFileConfig(b)
}
