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

// Package store provides scenario store implementations: an in-memory store
// for tests and administrative flows, and a filesystem store that loads and
// builds scenario files.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/stageflow-ai/stageflow/pkg/registry"
	"github.com/stageflow-ai/stageflow/pkg/scenario"
)

// Memory holds scenarios in process. Safe for concurrent use.
type Memory struct {
	scenarios *registry.BaseRegistry[*scenario.Scenario]
}

func NewMemory() *Memory {
	return &Memory{
		scenarios: registry.NewBaseRegistry[*scenario.Scenario](),
	}
}

func (m *Memory) GetScenario(ctx context.Context, name string) (*scenario.Scenario, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s, ok := m.scenarios.Get(strings.ToLower(name))
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (m *Memory) GetAllScenarios(ctx context.Context) ([]*scenario.Scenario, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.scenarios.List(), nil
}

func (m *Memory) ListScenarioNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, m.scenarios.Count())
	for _, s := range m.scenarios.List() {
		names = append(names, s.Name)
	}
	return names, nil
}

func (m *Memory) StoreScenario(ctx context.Context, s *scenario.Scenario) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.Name == "" {
		return fmt.Errorf("scenario with a non-empty name is required")
	}
	return m.scenarios.Set(strings.ToLower(s.Name), s)
}

func (m *Memory) DeleteScenario(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.scenarios.Remove(strings.ToLower(name))
}

var _ scenario.Store = (*Memory)(nil)
