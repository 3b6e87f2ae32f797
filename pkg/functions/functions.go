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

// Package functions provides the registry of callable tool implementations
// invoked during tool-calling conversation rounds.
package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Func is a callable tool implementation: parsed JSON arguments in, JSON
// string out.
type Func func(ctx context.Context, args json.RawMessage) (string, error)

type entry struct {
	name string // as registered, for listing
	fn   Func
}

// Registry is a case-insensitive mapping from function names to
// implementations. Register replaces atomically; safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]entry // keyed by lowercased name
}

func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]entry),
	}
}

// Register adds or replaces the function under name.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("function %q cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.funcs[strings.ToLower(name)] = entry{name: name, fn: fn}
	return nil
}

// Get looks up a function by name, ignoring case.
func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.funcs[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for _, e := range r.funcs {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}
