// Copyright 2015 The Govisor Authors
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

// Package manifest decodes a process-pilot manifest from JSON or YAML.
// It performs strict schema decoding only -- unknown fields are
// rejected -- and leaves every business-rule invariant (uniqueness,
// dependency resolution, cycle detection, capability resolution) to
// pilot.ProcessManifest.Validate.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dcondrey/process-pilot"
	"gopkg.in/yaml.v3"
)

// document is the top-level manifest shape: a single "processes" array.
type document struct {
	Processes []*pilot.ProcessSpec `json:"processes" yaml:"processes"`
}

// LoadFile reads and decodes a manifest from path, selecting JSON or
// YAML decoding by the file's extension (.json vs .yml/.yaml).
func LoadFile(path string) (*pilot.ProcessManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return decodeYAML(f)
	default:
		return decodeJSON(f)
	}
}

// Load decodes a manifest from r as JSON. Use LoadYAML for YAML input.
func Load(r io.Reader) (*pilot.ProcessManifest, error) {
	return decodeJSON(r)
}

// LoadYAML decodes a manifest from r as YAML.
func LoadYAML(r io.Reader) (*pilot.ProcessManifest, error) {
	return decodeYAML(r)
}

func decodeJSON(r io.Reader) (*pilot.ProcessManifest, error) {
	var doc document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return pilot.NewManifest(doc.Processes), nil
}

func decodeYAML(r io.Reader) (*pilot.ProcessManifest, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return pilot.NewManifest(doc.Processes), nil
}
