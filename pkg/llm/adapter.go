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

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/stageflow-ai/stageflow/pkg/contextstore"
	"github.com/stageflow-ai/stageflow/pkg/functions"
	"github.com/stageflow-ai/stageflow/pkg/scenario"
)

// Completion defaults applied when the prompt carries no knob overrides.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 1.0
	DefaultTopP        = 1.0
)

// Adapter runs completion prompts through the tool-calling conversation
// loop: it sends the prompt, executes every function the model requests,
// feeds the results back, and repeats until the model answers with content.
type Adapter struct {
	client            ChatClient
	functions         *functions.Registry
	turns             contextstore.TurnStore
	parallelToolCalls bool
	supportedModels   []string
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithParallelToolCalls executes the tool calls of one round concurrently.
// Audit order stays the model's issue order either way.
func WithParallelToolCalls(enabled bool) AdapterOption {
	return func(a *Adapter) {
		a.parallelToolCalls = enabled
	}
}

// WithSupportedModels restricts the adapter to an allowlist of models.
// An empty allowlist accepts any model.
func WithSupportedModels(models ...string) AdapterOption {
	return func(a *Adapter) {
		a.supportedModels = models
	}
}

// WithTurnStore records completed conversations per session and feeds prior
// turns back into prompts that request a history depth.
func WithTurnStore(turns contextstore.TurnStore) AdapterOption {
	return func(a *Adapter) {
		a.turns = turns
	}
}

// NewAdapter creates an adapter over a chat client and a function registry.
// The registry may be nil when no scenario declares functions.
func NewAdapter(client ChatClient, funcs *functions.Registry, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		client:    client,
		functions: funcs,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Complete runs one completion prompt to its final content answer.
// The conversation loop has no round cap; it ends when the model stops
// requesting tools or a call fails.
func (a *Adapter) Complete(ctx context.Context, prompt scenario.CompletionPrompt) (*CompletionResult, error) {
	if prompt.User.Role != scenario.RoleUser {
		return nil, fmt.Errorf("%w: completion prompt requires a user turn, got role %q",
			ErrInvalidInput, prompt.User.Role)
	}
	if prompt.Model == "" {
		return nil, fmt.Errorf("%w: completion prompt has no model", ErrInvalidInput)
	}
	if len(a.supportedModels) > 0 && !slices.Contains(a.supportedModels, prompt.Model) {
		return nil, fmt.Errorf("%w: model %q is not supported", ErrInvalidInput, prompt.Model)
	}

	req := a.buildRequest(prompt, a.loadHistory(ctx, prompt))

	result := &CompletionResult{
		SessionID:  prompt.SessionID,
		UserPrompt: prompt.User.Content,
		Metadata: ResultMetadata{
			Usage: &TokenUsage{},
			Extra: maps.Clone(prompt.User.Parameters.Extras),
		},
	}
	if prompt.System != nil {
		result.SystemPrompt = prompt.System.Content
	}

	round := 0
	for {
		resp, err := a.client.CompleteChat(ctx, req)
		if err != nil {
			return nil, err
		}

		result.Metadata.Usage.add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			result.Content = resp.Content
			result.Metadata.ID = resp.ID
			result.Metadata.Model = resp.Model
			result.Metadata.FinishReason = resp.FinishReason
			a.recordTurns(ctx, prompt, resp.Content)
			return result, nil
		}

		round++
		slog.Debug("Executing tool calls", "session", prompt.SessionID, "round", round, "calls", len(resp.ToolCalls))

		audits, err := a.executeToolCalls(ctx, resp.ToolCalls)
		if err != nil {
			return nil, err
		}
		result.Metadata.ToolCalls = append(result.Metadata.ToolCalls, audits...)

		req.Messages = append(req.Messages, Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, audit := range audits {
			req.Messages = append(req.Messages, Message{
				Role:       "tool",
				Content:    audit.Result,
				ToolCallID: audit.ID,
			})
		}

		// A forced function choice binds the first round only; the follow-up
		// rounds must be free to answer with content.
		if req.ToolChoice.Mode == scenario.ToolChoiceFunction {
			req.ToolChoice = scenario.ToolChoice{Mode: scenario.ToolChoiceAuto}
		}
	}
}

// loadHistory reads prior conversation turns when the prompt requests a
// history depth. History is best effort: a failing turn store degrades to an
// empty history rather than failing the completion.
func (a *Adapter) loadHistory(ctx context.Context, prompt scenario.CompletionPrompt) []Message {
	if a.turns == nil {
		return nil
	}

	depth := 0
	switch v := prompt.Metadata[scenario.MetadataHistoryDepth].(type) {
	case int:
		depth = v
	case float64:
		depth = int(v)
	}
	if depth <= 0 {
		return nil
	}

	turns, err := a.turns.LoadTurns(ctx, prompt.SessionID, depth)
	if err != nil {
		slog.Warn("Failed to load conversation history", "session", prompt.SessionID, "error", err)
		return nil
	}

	// Stored newest first; the message list wants oldest first.
	messages := make([]Message, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		messages = append(messages, Message{
			Role:    turns[i].Role,
			Content: turns[i].Content,
		})
	}
	return messages
}

// recordTurns appends the finished exchange to the session's turn history.
func (a *Adapter) recordTurns(ctx context.Context, prompt scenario.CompletionPrompt, answer string) {
	if a.turns == nil {
		return
	}

	exchange := []contextstore.Turn{
		{Role: string(scenario.RoleUser), Content: prompt.User.Content, Name: prompt.User.Name},
		{Role: string(scenario.RoleAssistant), Content: answer},
	}
	for _, turn := range exchange {
		if err := a.turns.SaveTurn(ctx, prompt.SessionID, turn); err != nil {
			slog.Warn("Failed to record conversation turn", "session", prompt.SessionID, "error", err)
			return
		}
	}
}

func (a *Adapter) buildRequest(prompt scenario.CompletionPrompt, history []Message) *Request {
	params := prompt.User.Parameters

	maxTokens := DefaultMaxTokens
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}
	temperature := DefaultTemperature
	if params.Temperature != nil {
		temperature = *params.Temperature
	}
	topP := DefaultTopP
	if params.TopP != nil {
		topP = *params.TopP
	}

	var messages []Message
	if prompt.System != nil && prompt.System.Content != "" {
		messages = append(messages, Message{
			Role:    string(scenario.RoleSystem),
			Content: prompt.System.Content,
		})
	}
	messages = append(messages, history...)
	messages = append(messages, Message{
		Role:    string(scenario.RoleUser),
		Content: prompt.User.Content,
	})

	return &Request{
		Model:          prompt.Model,
		Messages:       messages,
		Temperature:    &temperature,
		TopP:           &topP,
		MaxTokens:      &maxTokens,
		Tools:          prompt.Functions,
		ToolChoice:     prompt.ToolChoice,
		ResponseFormat: params.ResponseFormat,
	}
}

// executeToolCalls runs one round's tool calls and returns their audits in
// the model's issue order, regardless of execution order.
func (a *Adapter) executeToolCalls(ctx context.Context, calls []ToolCall) ([]ToolCallAudit, error) {
	audits := make([]ToolCallAudit, len(calls))

	run := func(ctx context.Context, i int, call ToolCall) error {
		fn, ok := a.lookup(call.Name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrToolMissing, call.Name)
		}

		args := call.Arguments
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			return fmt.Errorf("%w: tool %s received invalid JSON arguments", ErrInvalidInput, call.Name)
		}

		result, err := fn(ctx, json.RawMessage(args))
		if err != nil {
			return fmt.Errorf("tool %s failed: %w", call.Name, err)
		}

		audits[i] = ToolCallAudit{
			ID:           call.ID,
			FunctionName: call.Name,
			Arguments:    call.Arguments,
			Result:       result,
		}
		return nil
	}

	if a.parallelToolCalls && len(calls) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i, call := range calls {
			i, call := i, call
			g.Go(func() error {
				return run(gctx, i, call)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return audits, nil
	}

	for i, call := range calls {
		if err := run(ctx, i, call); err != nil {
			return nil, err
		}
	}
	return audits, nil
}

// SupportedModels returns the adapter's model allowlist.
func (a *Adapter) SupportedModels() []string {
	return slices.Clone(a.supportedModels)
}

func (a *Adapter) lookup(name string) (functions.Func, bool) {
	if a.functions == nil {
		return nil, false
	}
	return a.functions.Get(name)
}
