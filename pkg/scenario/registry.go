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
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stageflow-ai/stageflow/pkg/registry"
)

// Registry aggregates an ordered list of scenario stores behind a concurrent,
// case-insensitive cache. Construction kicks off an asynchronous warm-up that
// loads every scenario from every store; later stores win on name ties.
type Registry struct {
	stores []Store
	cache  *registry.BaseRegistry[*Scenario]

	mu     sync.Mutex
	warmed chan struct{}
}

// NewRegistry creates a registry over the given stores and starts the
// asynchronous warm-up. At least one store is required.
func NewRegistry(ctx context.Context, stores ...Store) (*Registry, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("at least one scenario store is required")
	}

	r := &Registry{
		stores: stores,
		cache:  registry.NewBaseRegistry[*Scenario](),
		warmed: make(chan struct{}),
	}

	go func() {
		r.warmUp(ctx)
		close(r.warmed)
	}()

	return r, nil
}

// warmUp loads all scenarios from all stores concurrently and fills the
// cache in store order, so later stores overwrite earlier ones on ties.
// A failing store is logged and skipped; warm-up itself always completes.
func (r *Registry) warmUp(ctx context.Context) {
	results := make([][]*Scenario, len(r.stores))

	g, gctx := errgroup.WithContext(ctx)
	for i, store := range r.stores {
		i, store := i, store
		g.Go(func() error {
			scenarios, err := store.GetAllScenarios(gctx)
			if err != nil {
				slog.Warn("Scenario store warm-up failed", "store", i, "error", err)
				return nil
			}
			results[i] = scenarios
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, scenarios := range results {
		for _, s := range scenarios {
			_ = r.cache.Set(strings.ToLower(s.Name), s)
			count++
		}
	}

	slog.Info("Scenario registry warmed up", "stores", len(r.stores), "scenarios", count)
}

// awaitWarmUp blocks until warm-up completes or ctx is done.
func (r *Registry) awaitWarmUp(ctx context.Context) error {
	select {
	case <-r.warmed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetScenario returns the named scenario, consulting the cache first and
// fanning out to all stores in parallel on a miss. Safe for concurrent
// callers.
func (r *Registry) GetScenario(ctx context.Context, name string) (*Scenario, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: scenario name cannot be empty", ErrNotFound)
	}
	if err := r.awaitWarmUp(ctx); err != nil {
		return nil, err
	}

	key := strings.ToLower(name)
	if s, ok := r.cache.Get(key); ok {
		return s, nil
	}

	// Fan out across stores; every hit lands in the cache keyed by its own
	// name, not just the one asked for.
	g, gctx := errgroup.WithContext(ctx)
	for i, store := range r.stores {
		i, store := i, store
		g.Go(func() error {
			s, err := store.GetScenario(gctx, name)
			if err != nil {
				slog.Warn("Scenario store lookup failed", "store", i, "scenario", name, "error", err)
				return nil
			}
			if s != nil {
				_ = r.cache.Set(strings.ToLower(s.Name), s)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s, ok := r.cache.Get(key); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// ListScenarioNames returns the cached scenario names in sorted order.
func (r *Registry) ListScenarioNames() []string {
	names := make([]string, 0, r.cache.Count())
	for _, s := range r.cache.List() {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Refresh clears the cache and re-runs warm-up synchronously. Used after a
// store reports changed content.
func (r *Registry) Refresh(ctx context.Context) error {
	if err := r.awaitWarmUp(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Clear()
	r.warmUp(ctx)
	return ctx.Err()
}
