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

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stageflow-ai/stageflow/pkg/llm"
	"github.com/stageflow-ai/stageflow/pkg/placeholder"
	"github.com/stageflow-ai/stageflow/pkg/scenario"
)

// Completer runs one completion prompt to its final result.
type Completer interface {
	Complete(ctx context.Context, prompt scenario.CompletionPrompt) (*llm.CompletionResult, error)
}

// ContextPopulation rewrites every user turn's content through the
// placeholder resolver before the rest of the chain runs.
type ContextPopulation struct {
	resolver *placeholder.Resolver
}

func NewContextPopulation(resolver *placeholder.Resolver) *ContextPopulation {
	return &ContextPopulation{resolver: resolver}
}

func (m *ContextPopulation) Execute(ctx context.Context, ec *ExecutionContext, next Handler) error {
	for i := range ec.Stage.Turns {
		turn := &ec.Stage.Turns[i]
		if turn.Role != scenario.RoleUser {
			continue
		}
		resolved, err := m.resolver.Resolve(ctx, ec.SessionID, turn.Content, ec.Stage.Params)
		if err != nil {
			return fmt.Errorf("stage %d: %w", ec.Stage.ID, err)
		}
		turn.Content = resolved
	}
	return next(ctx, ec)
}

// PlaceholderValidation fails the run when any user turn still carries a
// template marker after population. Runs before the provider is called.
type PlaceholderValidation struct{}

func NewPlaceholderValidation() *PlaceholderValidation {
	return &PlaceholderValidation{}
}

func (m *PlaceholderValidation) Execute(ctx context.Context, ec *ExecutionContext, next Handler) error {
	for _, turn := range ec.Stage.Turns {
		if turn.Role != scenario.RoleUser {
			continue
		}
		if placeholder.ContainsMarker(turn.Content) {
			return fmt.Errorf("%w: stage %d turn %s: %q",
				ErrUnresolvedPlaceholder, ec.Stage.ID, turn.Name, turn.Content)
		}
	}
	return next(ctx, ec)
}

// LLMInvoke lowers the stage to completion prompts and runs them serially,
// one per user turn, appending each result to the execution context.
type LLMInvoke struct {
	completer Completer
}

func NewLLMInvoke(completer Completer) *LLMInvoke {
	return &LLMInvoke{completer: completer}
}

func (m *LLMInvoke) Execute(ctx context.Context, ec *ExecutionContext, next Handler) error {
	prompts := ec.Stage.ToCompletionPrompts(ec.SessionID, ec.Metadata)
	for _, prompt := range prompts {
		result, err := m.completer.Complete(ctx, prompt)
		if err != nil {
			return fmt.Errorf("stage %d: %w", ec.Stage.ID, err)
		}
		ec.Results = append(ec.Results, result)
	}
	return next(ctx, ec)
}

// Logging brackets the rest of the chain with start/finish lines and a
// duration measurement.
type Logging struct{}

func NewLogging() *Logging {
	return &Logging{}
}

func (m *Logging) Execute(ctx context.Context, ec *ExecutionContext, next Handler) error {
	slog.Info("Stage execution started",
		"session", ec.SessionID, "stage", ec.Stage.ID, "name", ec.Stage.Name)

	start := time.Now()
	err := next(ctx, ec)
	duration := time.Since(start)

	if err != nil {
		slog.Error("Stage execution failed",
			"session", ec.SessionID, "stage", ec.Stage.ID, "duration", duration, "error", err)
		return err
	}

	slog.Info("Stage execution finished",
		"session", ec.SessionID, "stage", ec.Stage.ID, "duration", duration, "results", len(ec.Results))
	return nil
}
