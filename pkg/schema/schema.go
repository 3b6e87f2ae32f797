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

// Package schema maintains a name-addressed table of JSON schemas.
//
// Schemas enter the table either as literal JSON documents or generated from
// Go types via struct-tag reflection. Resolution at scenario-build time is a
// pure lookup; nothing is reflected after registration.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/stageflow-ai/stageflow/pkg/registry"
)

// Registry maps schema names to JSON schema documents.
// Safe for concurrent use. Owned by the orchestrator; tests construct their own.
type Registry struct {
	schemas *registry.BaseRegistry[string]
}

func NewRegistry() *Registry {
	return &Registry{
		schemas: registry.NewBaseRegistry[string](),
	}
}

// RegisterSchema stores a literal JSON schema under name, replacing any
// previous registration. The document must be valid JSON.
func (r *Registry) RegisterSchema(name, schemaJSON string) error {
	if name == "" {
		return fmt.Errorf("schema name cannot be empty")
	}

	var probe map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &probe); err != nil {
		return fmt.Errorf("schema %q is not valid JSON: %w", name, err)
	}

	return r.schemas.Set(name, schemaJSON)
}

// Resolve returns the schema registered under name.
func (r *Registry) Resolve(name string) (string, bool) {
	return r.schemas.Get(name)
}

// Names returns registered schema names in sorted order.
func (r *Registry) Names() []string {
	return r.schemas.Names()
}

// RegisterType generates a JSON schema from T's struct tags and stores it
// under name.
//
// Supported tags:
//   - json:"name" - Property name
//   - json:",omitempty" - Optional property
//   - jsonschema:"required" - Explicitly mark as required
//   - jsonschema:"description=..." - Property description
//   - jsonschema:"enum=val1|val2" - Allowed values
//   - jsonschema:"minimum=N,maximum=M" - Numeric constraints
func RegisterType[T any](r *Registry, name string) error {
	schemaJSON, err := Generate[T]()
	if err != nil {
		return err
	}
	return r.schemas.Set(name, schemaJSON)
}

// Generate reflects T into a standalone JSON schema document.
func Generate[T any]() (string, error) {
	reflector := &jsonschema.Reflector{
		// Use jsonschema tags to determine required fields
		RequiredFromJSONSchemaTags: true,

		// Don't add $ref for definitions (inline everything)
		ExpandedStruct: true,

		// Don't add $schema and $id
		DoNotReference: true,
	}

	schema := reflector.Reflect(new(T))

	schemaMap, err := schemaToMap(schema)
	if err != nil {
		return "", fmt.Errorf("failed to convert schema to map: %w", err)
	}

	data, err := json.Marshal(schemaMap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}

	return string(data), nil
}

// schemaToMap converts a jsonschema.Schema to map[string]any.
func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	// Marshal to JSON then unmarshal to map so all jsonschema types are
	// properly converted.
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	// $schema and $id are noise for response-format payloads.
	delete(result, "$schema")
	delete(result, "$id")

	return result, nil
}
