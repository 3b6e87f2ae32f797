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

// Package orchestrator drives whole scenarios: it resolves a scenario from
// the registry and walks each stage through the execution pipeline in
// declared order, so later stages can read what earlier stages persisted.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stageflow-ai/stageflow/pkg/contextstore"
	"github.com/stageflow-ai/stageflow/pkg/llm"
	"github.com/stageflow-ai/stageflow/pkg/pipeline"
	"github.com/stageflow-ai/stageflow/pkg/placeholder"
	"github.com/stageflow-ai/stageflow/pkg/scenario"
)

// Orchestrator executes scenarios session by session. Safe for concurrent
// use across sessions; stages within one call run sequentially.
type Orchestrator struct {
	registry *scenario.Registry
	run      pipeline.Handler
}

// New assembles an orchestrator with the standard middleware chain over the
// given completer and context store.
func New(registry *scenario.Registry, completer pipeline.Completer, items contextstore.ItemStore) *Orchestrator {
	chain := pipeline.Chain(
		pipeline.NewContextPopulation(placeholder.NewResolver(items)),
		pipeline.NewPlaceholderValidation(),
		pipeline.NewLLMInvoke(completer),
		pipeline.NewLogging(),
		pipeline.NewContextPersist(items),
	)
	return NewWithHandler(registry, chain)
}

// NewWithHandler assembles an orchestrator over a prebuilt pipeline handler.
func NewWithHandler(registry *scenario.Registry, handler pipeline.Handler) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		run:      handler,
	}
}

// ExecuteScenario runs every stage of the named scenario in order and
// returns one result list per stage. A stage failure aborts the run;
// state persisted by earlier stages stays in place.
func (o *Orchestrator) ExecuteScenario(ctx context.Context, sessionID, scenarioName string) ([][]*llm.CompletionResult, error) {
	s, err := o.registry.GetScenario(ctx, scenarioName)
	if err != nil {
		return nil, err
	}

	slog.Info("Scenario execution started",
		"session", sessionID, "scenario", s.Name, "stages", len(s.Stages))

	metadata := make(map[string]any)
	results := make([][]*llm.CompletionResult, 0, len(s.Stages))

	for _, stage := range s.Stages {
		stageResults, err := o.runStage(ctx, sessionID, stage, metadata)
		if err != nil {
			return nil, err
		}
		results = append(results, stageResults)
	}

	slog.Info("Scenario execution finished",
		"session", sessionID, "scenario", s.Name, "stages", len(results))
	return results, nil
}

// ExecuteStage runs a single stage of the named scenario with a fresh,
// empty metadata map.
func (o *Orchestrator) ExecuteStage(ctx context.Context, sessionID, scenarioName string, stageID int) ([]*llm.CompletionResult, error) {
	s, err := o.registry.GetScenario(ctx, scenarioName)
	if err != nil {
		return nil, err
	}

	stage, ok := s.StageByID(stageID)
	if !ok {
		return nil, fmt.Errorf("%w: scenario %s has no stage %d", scenario.ErrNotFound, s.Name, stageID)
	}

	return o.runStage(ctx, sessionID, stage, make(map[string]any))
}

// runStage executes one stage on a private clone so the cached scenario
// never sees the populated turn contents.
func (o *Orchestrator) runStage(ctx context.Context, sessionID string, stage *scenario.Stage, metadata map[string]any) ([]*llm.CompletionResult, error) {
	ec := &pipeline.ExecutionContext{
		SessionID: sessionID,
		Stage:     stage.Clone(),
		Metadata:  metadata,
	}
	if err := o.run(ctx, ec); err != nil {
		return nil, err
	}
	return ec.Results, nil
}
