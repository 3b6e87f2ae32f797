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

// Package scenario defines the declarative scenario model, its loader,
// validator and builder, and the multi-store scenario registry.
package scenario

import "errors"

var (
	// ErrInvalidDefinition reports a scenario file that fails schema or
	// business rules.
	ErrInvalidDefinition = errors.New("invalid scenario definition")

	// ErrNotFound reports an unknown scenario or stage.
	ErrNotFound = errors.New("scenario not found")
)

// Definition is the declarative form of a scenario as loaded from a file.
// Definitions are read-only once loaded.
type Definition struct {
	// Name uniquely identifies the scenario; lookup is case-insensitive.
	Name        string            `yaml:"name" json:"name"`
	Version     string            `yaml:"version,omitempty" json:"version,omitempty"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	ValidModels []string          `yaml:"validModels" json:"validModels"`
	Metadata    map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Stages      []StageDefinition `yaml:"stages" json:"stages"`
}

// StageDefinition is one unit of work in a scenario.
type StageDefinition struct {
	// ID is a stable integer, unique within the scenario.
	ID          int    `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	SystemPrompt string                 `yaml:"systemPrompt,omitempty" json:"systemPrompt,omitempty"`
	UserPrompts  []UserPromptDefinition `yaml:"userPrompts" json:"userPrompts"`

	// Model optionally overrides the scenario's model; when absent,
	// validModels[0] applies.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// Stage-level knobs propagate to user prompts that do not override them.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	TopP        *float64 `yaml:"topP,omitempty" json:"topP,omitempty"`
	MaxTokens   *int     `yaml:"maxTokens,omitempty" json:"maxTokens,omitempty"`

	Parameters map[string]any     `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Functions  *FunctionsConfig   `yaml:"functions,omitempty" json:"functions,omitempty"`
	Tools      []ToolDefinitionV2 `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// UserPromptDefinition is one templated user message within a stage.
type UserPromptDefinition struct {
	// Template may contain {{key}} context markers and {param} parameter
	// markers, resolved before the model call.
	Template   string         `yaml:"template" json:"template"`
	Parameters map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`

	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	TopP        *float64 `yaml:"topP,omitempty" json:"topP,omitempty"`
	MaxTokens   *int     `yaml:"maxTokens,omitempty" json:"maxTokens,omitempty"`

	ResponseFormatConfig *ResponseFormatConfig `yaml:"responseFormatConfig,omitempty" json:"responseFormatConfig,omitempty"`
}

// ResponseFormatType enumerates the structured-output modes.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "Text"
	ResponseFormatJSONObject ResponseFormatType = "JsonObject"
	ResponseFormatJSONSchema ResponseFormatType = "JsonSchema"
)

// ResponseFormatConfig selects the response format of a user prompt.
// For JsonSchema, exactly one of Schema or ResponseTypeName must be present.
type ResponseFormatConfig struct {
	Type             ResponseFormatType `yaml:"type" json:"type"`
	Schema           string             `yaml:"schema,omitempty" json:"schema,omitempty"`
	ResponseTypeName string             `yaml:"responseTypeName,omitempty" json:"responseTypeName,omitempty"`
}

// FunctionsConfig declares the callable functions of a stage and the
// function-call policy: "auto", "none", or a specific function name.
type FunctionsConfig struct {
	Functions    []FunctionDefinition `yaml:"functions" json:"functions"`
	FunctionCall string               `yaml:"functionCall,omitempty" json:"functionCall,omitempty"`
}

// FunctionDefinition declares one callable function. Parameters is a JSON
// schema literal; ParametersType names a registered schema instead.
type FunctionDefinition struct {
	Name           string `yaml:"name" json:"name"`
	Description    string `yaml:"description,omitempty" json:"description,omitempty"`
	Parameters     string `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	ParametersType string `yaml:"parametersType,omitempty" json:"parametersType,omitempty"`
}

// ToolDefinitionV2 is the tools-array flavor of a function declaration.
type ToolDefinitionV2 struct {
	Type     string             `yaml:"type" json:"type"`
	Function FunctionDefinition `yaml:"function" json:"function"`
}
