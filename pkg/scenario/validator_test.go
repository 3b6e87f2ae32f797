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
	"strings"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func validDefinition() *Definition {
	return &Definition{
		Name:        "sample",
		ValidModels: []string{"gpt-4o"},
		Stages: []StageDefinition{
			{
				ID:   1,
				Name: "first",
				UserPrompts: []UserPromptDefinition{
					{Template: "do the thing"},
				},
			},
		},
	}
}

func TestValidateAcceptsWellFormedDefinition(t *testing.T) {
	if errs := Validate(validDefinition()); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Definition)
		wantPath string
	}{
		{
			name:     "empty name",
			mutate:   func(d *Definition) { d.Name = "" },
			wantPath: "name",
		},
		{
			name:     "no valid models",
			mutate:   func(d *Definition) { d.ValidModels = nil },
			wantPath: "validModels",
		},
		{
			name:     "no stages",
			mutate:   func(d *Definition) { d.Stages = nil },
			wantPath: "stages",
		},
		{
			name: "duplicate stage id",
			mutate: func(d *Definition) {
				d.Stages = append(d.Stages, d.Stages[0])
			},
			wantPath: "stages[1].id",
		},
		{
			name:     "no user prompts",
			mutate:   func(d *Definition) { d.Stages[0].UserPrompts = nil },
			wantPath: "stages[0].userPrompts",
		},
		{
			name:     "empty template",
			mutate:   func(d *Definition) { d.Stages[0].UserPrompts[0].Template = "" },
			wantPath: "stages[0].userPrompts[0].template",
		},
		{
			name:     "temperature out of range",
			mutate:   func(d *Definition) { d.Stages[0].Temperature = floatPtr(1.5) },
			wantPath: "stages[0].temperature",
		},
		{
			name:     "topP out of range",
			mutate:   func(d *Definition) { d.Stages[0].UserPrompts[0].TopP = floatPtr(-0.1) },
			wantPath: "stages[0].userPrompts[0].topP",
		},
		{
			name:     "maxTokens not positive",
			mutate:   func(d *Definition) { d.Stages[0].MaxTokens = intPtr(0) },
			wantPath: "stages[0].maxTokens",
		},
		{
			name: "json schema with both sources",
			mutate: func(d *Definition) {
				d.Stages[0].UserPrompts[0].ResponseFormatConfig = &ResponseFormatConfig{
					Type:             ResponseFormatJSONSchema,
					Schema:           `{"type":"object"}`,
					ResponseTypeName: "Thing",
				}
			},
			wantPath: "stages[0].userPrompts[0].responseFormatConfig",
		},
		{
			name: "json schema with neither source",
			mutate: func(d *Definition) {
				d.Stages[0].UserPrompts[0].ResponseFormatConfig = &ResponseFormatConfig{
					Type: ResponseFormatJSONSchema,
				}
			},
			wantPath: "stages[0].userPrompts[0].responseFormatConfig",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)

			errs := Validate(def)
			if len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}

			found := false
			for _, e := range errs {
				if e.PropertyPath == tt.wantPath {
					found = true
					break
				}
			}
			if !found {
				var paths []string
				for _, e := range errs {
					paths = append(paths, e.PropertyPath)
				}
				t.Fatalf("no error at %q, got paths: %s", tt.wantPath, strings.Join(paths, ", "))
			}
		})
	}
}

func TestValidateNilDefinition(t *testing.T) {
	errs := Validate(nil)
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
}

func TestValidateCollectsAllFailures(t *testing.T) {
	def := &Definition{}
	errs := Validate(def)
	if len(errs) < 3 {
		t.Fatalf("expected name, validModels, and stages errors, got %v", errs)
	}
}
