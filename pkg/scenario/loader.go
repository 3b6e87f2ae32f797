// Copyright 2026 Stageflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// LoadDefinitionFile parses a scenario file into a Definition, dispatching on
// the file extension (.json, .yaml, .yml; case-insensitive). Parse errors are
// wrapped with the file path.
func LoadDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}

	var def *Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		def, err = ParseDefinitionJSON(data)
	case ".yaml", ".yml":
		def, err = ParseDefinitionYAML(data)
	default:
		return nil, fmt.Errorf("%w: unsupported scenario file extension %q (%s)",
			ErrInvalidDefinition, filepath.Ext(path), path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, path, err)
	}
	return def, nil
}

// ParseDefinitionYAML parses a YAML scenario document.
func ParseDefinitionYAML(data []byte) (*Definition, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return decodeDefinition(raw)
}

// ParseDefinitionJSON parses a JSON scenario document.
func ParseDefinitionJSON(data []byte) (*Definition, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return decodeDefinition(raw)
}

// decodeDefinition decodes a parsed document into a Definition using
// mapstructure with the yaml tag names, so both formats share one tag set.
func decodeDefinition(input map[string]any) (*Definition, error) {
	def := &Definition{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           def,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(input); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}

	return def, nil
}
