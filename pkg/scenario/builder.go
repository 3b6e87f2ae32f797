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
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/stageflow-ai/stageflow/pkg/schema"
)

// Build lowers a definition to its runtime form, validating it first and
// resolving every named schema through the schema registry.
func Build(def *Definition, schemas *schema.Registry) (*Scenario, error) {
	if errs := Validate(def); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.String()
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidDefinition, def.Name, strings.Join(msgs, "; "))
	}

	s := &Scenario{
		Name:        def.Name,
		Version:     def.Version,
		Description: def.Description,
		ValidModels: append([]string(nil), def.ValidModels...),
		Metadata:    maps.Clone(def.Metadata),
	}

	for i := range def.Stages {
		stage, err := buildStage(def, &def.Stages[i], schemas)
		if err != nil {
			return nil, err
		}
		s.Stages = append(s.Stages, stage)
	}

	return s, nil
}

func buildStage(def *Definition, sd *StageDefinition, schemas *schema.Registry) (*Stage, error) {
	model := sd.Model
	if model == "" {
		// Routing is external; the first valid model is the default target.
		model = def.ValidModels[0]
	}

	stage := &Stage{
		ID:          sd.ID,
		Name:        sd.Name,
		Description: sd.Description,
		Model:       model,
		Params:      maps.Clone(sd.Parameters),
		Temperature: sd.Temperature,
		TopP:        sd.TopP,
		MaxTokens:   sd.MaxTokens,
	}

	if sd.SystemPrompt != "" {
		stage.Turns = append(stage.Turns, PromptTurn{
			Role:    RoleSystem,
			Content: sd.SystemPrompt,
		})
	}

	for j := range sd.UserPrompts {
		turn, err := buildUserTurn(def.Name, sd, &sd.UserPrompts[j], schemas)
		if err != nil {
			return nil, err
		}
		stage.Turns = append(stage.Turns, turn)
	}

	functions, choice, err := buildFunctions(def.Name, sd, schemas)
	if err != nil {
		return nil, err
	}
	stage.Functions = functions
	stage.ToolChoice = choice

	return stage, nil
}

func buildUserTurn(scenarioName string, sd *StageDefinition, pd *UserPromptDefinition, schemas *schema.Registry) (PromptTurn, error) {
	params := TurnParameters{
		Temperature: coalesceFloat(pd.Temperature, sd.Temperature),
		TopP:        coalesceFloat(pd.TopP, sd.TopP),
		MaxTokens:   coalesceInt(pd.MaxTokens, sd.MaxTokens),
		Extras:      maps.Clone(pd.Parameters),
	}

	format, err := resolveResponseFormat(scenarioName, pd.ResponseFormatConfig, schemas)
	if err != nil {
		return PromptTurn{}, err
	}
	params.ResponseFormat = format

	return PromptTurn{
		Role:       RoleUser,
		Content:    pd.Template,
		Name:       uuid.NewString(),
		Parameters: params,
	}, nil
}

// resolveResponseFormat applies the structured-output policy: named types
// that fail resolution downgrade to JsonObject rather than failing the build.
func resolveResponseFormat(scenarioName string, cfg *ResponseFormatConfig, schemas *schema.Registry) (*ResponseFormat, error) {
	if cfg == nil {
		return &ResponseFormat{Type: ResponseFormatText}, nil
	}

	switch cfg.Type {
	case ResponseFormatText:
		return &ResponseFormat{Type: ResponseFormatText}, nil

	case ResponseFormatJSONObject:
		return &ResponseFormat{Type: ResponseFormatJSONObject}, nil

	case ResponseFormatJSONSchema:
		if cfg.ResponseTypeName != "" {
			if resolved, ok := schemas.Resolve(cfg.ResponseTypeName); ok {
				return &ResponseFormat{
					Type:       ResponseFormatJSONSchema,
					SchemaName: cfg.ResponseTypeName,
					Schema:     resolved,
				}, nil
			}
			slog.Warn("Response schema not registered, downgrading to JsonObject",
				"scenario", scenarioName, "type", cfg.ResponseTypeName)
			return &ResponseFormat{Type: ResponseFormatJSONObject}, nil
		}
		if cfg.Schema != "" {
			return &ResponseFormat{
				Type:   ResponseFormatJSONSchema,
				Schema: cfg.Schema,
			}, nil
		}
		return nil, fmt.Errorf("%w: %s: JsonSchema response format has neither schema nor responseTypeName",
			ErrInvalidDefinition, scenarioName)

	default:
		return nil, fmt.Errorf("%w: %s: unknown response format type %q",
			ErrInvalidDefinition, scenarioName, cfg.Type)
	}
}

func buildFunctions(scenarioName string, sd *StageDefinition, schemas *schema.Registry) ([]FunctionSpec, ToolChoice, error) {
	var specs []FunctionSpec
	choice := ToolChoice{Mode: ToolChoiceAuto}

	if sd.Functions != nil {
		for _, fd := range sd.Functions.Functions {
			spec, err := buildFunctionSpec(scenarioName, fd, schemas)
			if err != nil {
				return nil, choice, err
			}
			specs = append(specs, spec)
		}

		switch call := sd.Functions.FunctionCall; strings.ToLower(call) {
		case "", "auto":
			choice = ToolChoice{Mode: ToolChoiceAuto}
		case "none":
			choice = ToolChoice{Mode: ToolChoiceNone}
		default:
			choice = ToolChoice{Mode: ToolChoiceFunction, Name: call}
		}
	}

	for _, td := range sd.Tools {
		if td.Type != "" && !strings.EqualFold(td.Type, "function") {
			return nil, choice, fmt.Errorf("%w: %s: unsupported tool type %q",
				ErrInvalidDefinition, scenarioName, td.Type)
		}
		spec, err := buildFunctionSpec(scenarioName, td.Function, schemas)
		if err != nil {
			return nil, choice, err
		}
		specs = append(specs, spec)
	}

	return specs, choice, nil
}

// buildFunctionSpec resolves a function's parameter schema: named type first,
// then the literal schema, then an empty object.
func buildFunctionSpec(scenarioName string, fd FunctionDefinition, schemas *schema.Registry) (FunctionSpec, error) {
	if fd.Name == "" {
		return FunctionSpec{}, fmt.Errorf("%w: %s: function name cannot be empty",
			ErrInvalidDefinition, scenarioName)
	}

	parameters := "{}"
	switch {
	case fd.ParametersType != "":
		if resolved, ok := schemas.Resolve(fd.ParametersType); ok {
			parameters = resolved
		} else if fd.Parameters != "" {
			parameters = fd.Parameters
		} else {
			slog.Warn("Function parameter schema not registered, using empty object",
				"scenario", scenarioName, "function", fd.Name, "type", fd.ParametersType)
		}
	case fd.Parameters != "":
		parameters = fd.Parameters
	}

	return FunctionSpec{
		Name:        fd.Name,
		Description: fd.Description,
		Parameters:  parameters,
	}, nil
}

func coalesceFloat(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func coalesceInt(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
