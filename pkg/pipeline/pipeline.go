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

// Package pipeline runs one stage through an ordered middleware chain:
// populate, validate, invoke, log, persist. Middlewares compose as a
// Russian doll; each decides what runs before and after the rest of the
// chain. A middleware failure unwinds the whole run with no rollback of
// already-persisted state.
package pipeline

import (
	"context"
	"errors"

	"github.com/stageflow-ai/stageflow/pkg/llm"
	"github.com/stageflow-ai/stageflow/pkg/scenario"
)

// ErrUnresolvedPlaceholder marks user-turn content that still carries a
// template marker after population.
var ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")

// ExecutionContext is the shared state of one stage run. Stage is a private
// clone the populate middleware may rewrite; Results is append-only.
type ExecutionContext struct {
	SessionID string
	Stage     *scenario.Stage
	Metadata  map[string]any
	Results   []*llm.CompletionResult
}

// Handler continues the chain from the current middleware onward.
type Handler func(ctx context.Context, ec *ExecutionContext) error

// Middleware is one link of the stage execution chain.
type Middleware interface {
	Execute(ctx context.Context, ec *ExecutionContext, next Handler) error
}

// MiddlewareFunc adapts a function to the Middleware interface.
type MiddlewareFunc func(ctx context.Context, ec *ExecutionContext, next Handler) error

func (f MiddlewareFunc) Execute(ctx context.Context, ec *ExecutionContext, next Handler) error {
	return f(ctx, ec, next)
}

// Chain composes middlewares into a single handler, outermost first.
func Chain(middlewares ...Middleware) Handler {
	handler := func(ctx context.Context, ec *ExecutionContext) error {
		return nil
	}
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		next := handler
		handler = func(ctx context.Context, ec *ExecutionContext) error {
			return mw.Execute(ctx, ec, next)
		}
	}
	return Handler(handler)
}
