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

import "context"

// Store is one source of runtime scenarios. Implementations live in the
// store subpackage; remote stores implement the same interface.
type Store interface {
	// GetScenario returns the named scenario, or (nil, nil) when the store
	// does not hold it. Lookup is case-insensitive.
	GetScenario(ctx context.Context, name string) (*Scenario, error)

	// GetAllScenarios returns every scenario the store holds.
	GetAllScenarios(ctx context.Context) ([]*Scenario, error)

	// ListScenarioNames returns the names of all held scenarios.
	ListScenarioNames(ctx context.Context) ([]string, error)

	// StoreScenario adds or replaces a scenario. Administrative use.
	StoreScenario(ctx context.Context, s *Scenario) error

	// DeleteScenario removes a scenario by name. Administrative use.
	DeleteScenario(ctx context.Context, name string) error
}
