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

import "maps"

// Role tags one message in the chat conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// MetadataHistoryDepth is the completion-prompt metadata key carrying the
// number of prior conversation turns to include.
const MetadataHistoryDepth = "history_depth"

// Scenario is the runtime representation of a built scenario.
// Immutable after insertion into the registry cache.
type Scenario struct {
	Name        string
	Version     string
	Description string
	ValidModels []string
	Metadata    map[string]string
	Stages      []*Stage
}

// StageByID locates a stage by its stable id.
func (s *Scenario) StageByID(id int) (*Stage, bool) {
	for _, stage := range s.Stages {
		if stage.ID == id {
			return stage, true
		}
	}
	return nil, false
}

// Stage is one runtime unit of work: at most one system turn followed by one
// or more user turns, plus shared configuration.
type Stage struct {
	ID          int
	Name        string
	Description string

	// Model is the effective model, stamped at build time (stage override or
	// the scenario's first valid model).
	Model string

	// Turns is [system?, user1, user2, ...].
	Turns []PromptTurn

	// Params is the free-form stage parameter bag dereferenced by {param}
	// markers in user-turn templates.
	Params map[string]any

	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	Functions  []FunctionSpec
	ToolChoice ToolChoice
}

// UserTurns returns the user turns of the stage in declaration order.
func (s *Stage) UserTurns() []PromptTurn {
	var turns []PromptTurn
	for _, t := range s.Turns {
		if t.Role == RoleUser {
			turns = append(turns, t)
		}
	}
	return turns
}

// SystemTurn returns the stage's system turn, if any.
func (s *Stage) SystemTurn() *PromptTurn {
	for i := range s.Turns {
		if s.Turns[i].Role == RoleSystem {
			return &s.Turns[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the stage so pipeline runs can rewrite turn
// contents without touching the cached scenario.
func (s *Stage) Clone() *Stage {
	clone := *s

	clone.Turns = make([]PromptTurn, len(s.Turns))
	for i, t := range s.Turns {
		clone.Turns[i] = t.clone()
	}

	clone.Params = maps.Clone(s.Params)
	clone.Functions = append([]FunctionSpec(nil), s.Functions...)
	return &clone
}

// ToCompletionPrompts lowers the stage to one CompletionPrompt per user turn,
// each carrying the stage's function configuration and the shared execution
// metadata plus history_depth.
func (s *Stage) ToCompletionPrompts(sessionID string, metadata map[string]any) []CompletionPrompt {
	system := s.SystemTurn()

	historyDepth := 0
	if v, ok := s.Params[MetadataHistoryDepth]; ok {
		switch n := v.(type) {
		case int:
			historyDepth = n
		case float64:
			historyDepth = int(n)
		}
	}

	var prompts []CompletionPrompt
	for _, user := range s.UserTurns() {
		md := make(map[string]any, len(metadata)+1)
		maps.Copy(md, metadata)
		md[MetadataHistoryDepth] = historyDepth

		prompts = append(prompts, CompletionPrompt{
			SessionID:  sessionID,
			Model:      s.Model,
			System:     system,
			User:       user,
			Functions:  s.Functions,
			ToolChoice: s.ToolChoice,
			Metadata:   md,
		})
	}
	return prompts
}

// PromptTurn is a single message in the conversation.
type PromptTurn struct {
	Role    Role
	Content string

	// Name uniquely identifies a user turn within its stage.
	Name string

	Parameters TurnParameters
}

func (t PromptTurn) clone() PromptTurn {
	c := t
	c.Parameters = t.Parameters.clone()
	return c
}

// TurnParameters carries the typed per-turn knobs projected out of the
// definition's parameter bag, plus a free-form extras map.
type TurnParameters struct {
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	ResponseFormat *ResponseFormat
	Extras         map[string]any
}

func (p TurnParameters) clone() TurnParameters {
	c := p
	c.Extras = maps.Clone(p.Extras)
	return c
}

// ResponseFormat is the resolved response format of a user turn. After a
// successful build, a JSONSchema format always carries a non-empty Schema.
type ResponseFormat struct {
	Type       ResponseFormatType
	SchemaName string
	Schema     string
}

// FunctionSpec is a built function or tool declaration: Parameters is always
// a JSON schema string after build.
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  string
}

// ToolChoiceMode selects how the model may call functions.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice is the stage's function-call policy.
type ToolChoice struct {
	Mode ToolChoiceMode

	// Name is set when Mode is ToolChoiceFunction.
	Name string
}

// CompletionPrompt is the input of one LLM conversation: a resolved user
// turn, the optional system turn, and the stage's function configuration.
type CompletionPrompt struct {
	SessionID  string
	Model      string
	System     *PromptTurn
	User       PromptTurn
	Functions  []FunctionSpec
	ToolChoice ToolChoice
	Metadata   map[string]any
}
