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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stageflow-ai/stageflow/pkg/contextstore"
	"github.com/stageflow-ai/stageflow/pkg/llm"
	"github.com/stageflow-ai/stageflow/pkg/placeholder"
	"github.com/stageflow-ai/stageflow/pkg/scenario"
)

// echoCompleter returns a canned result per call and records the prompts it
// received.
type echoCompleter struct {
	content string
	id      string
	prompts []scenario.CompletionPrompt
}

func (c *echoCompleter) Complete(ctx context.Context, prompt scenario.CompletionPrompt) (*llm.CompletionResult, error) {
	c.prompts = append(c.prompts, prompt)

	result := &llm.CompletionResult{
		SessionID:  prompt.SessionID,
		UserPrompt: prompt.User.Content,
		Content:    c.content,
		Metadata: llm.ResultMetadata{
			ID:           c.id,
			Model:        prompt.Model,
			FinishReason: "stop",
		},
	}
	if prompt.System != nil {
		result.SystemPrompt = prompt.System.Content
	}
	return result, nil
}

func newTestStore(t *testing.T) *contextstore.Memory {
	t.Helper()
	store, err := contextstore.NewMemory(contextstore.Options{
		KeyPrefix:       "test:",
		DefaultTTL:      time.Minute,
		DefaultMaxTurns: 10,
	})
	require.NoError(t, err)
	return store
}

func testStage(template string) *scenario.Stage {
	return &scenario.Stage{
		ID:    1,
		Name:  "test",
		Model: "gpt-4o",
		Turns: []scenario.PromptTurn{
			{Role: scenario.RoleUser, Content: template, Name: "t1"},
		},
	}
}

func standardChain(completer Completer, store *contextstore.Memory) Handler {
	return Chain(
		NewContextPopulation(placeholder.NewResolver(store)),
		NewPlaceholderValidation(),
		NewLLMInvoke(completer),
		NewLogging(),
		NewContextPersist(store),
	)
}

func TestChainComposesOutermostFirst(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return MiddlewareFunc(func(ctx context.Context, ec *ExecutionContext, next Handler) error {
			order = append(order, name+" in")
			err := next(ctx, ec)
			order = append(order, name+" out")
			return err
		})
	}

	run := Chain(mw("a"), mw("b"))
	require.NoError(t, run(context.Background(), &ExecutionContext{}))

	assert.Equal(t, []string{"a in", "b in", "b out", "a out"}, order)
}

func TestPipelineResolvesAndPersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveItem(ctx, "sess", "topic", "whales"))

	completer := &echoCompleter{content: "all about whales", id: "r1"}
	run := standardChain(completer, store)

	ec := &ExecutionContext{
		SessionID: "sess",
		Stage:     testStage("Tell me about {{topic}}"),
		Metadata:  map[string]any{},
	}
	require.NoError(t, run(ctx, ec))

	// The provider saw the resolved prompt.
	require.Len(t, completer.prompts, 1)
	assert.Equal(t, "Tell me about whales", completer.prompts[0].User.Content)

	require.Len(t, ec.Results, 1)
	assert.Equal(t, "all about whales", ec.Results[0].Content)

	// Persisted under the stage key schema.
	output, found, err := store.LoadItem(ctx, "sess", "stage:1-1:output")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "all about whales", output)

	userPrompt, found, err := store.LoadItem(ctx, "sess", "stage:1-1:input:user_prompt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Tell me about whales", userPrompt)

	execID, found, err := store.LoadItem(ctx, "sess", "stage:1-1:output:params:execution_id")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "r1", execID)

	model, found, err := store.LoadItem(ctx, "sess", "stage:1-1:metadata:output_model")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "gpt-4o", model)
}

func TestPipelineUnresolvedPlaceholderAbortsBeforeProvider(t *testing.T) {
	store := newTestStore(t)
	completer := &echoCompleter{content: "never"}
	run := standardChain(completer, store)

	ec := &ExecutionContext{
		SessionID: "sess",
		Stage:     testStage("Hi {{nope}}"),
		Metadata:  map[string]any{},
	}
	err := run(context.Background(), ec)

	assert.ErrorIs(t, err, ErrUnresolvedPlaceholder)
	assert.Empty(t, completer.prompts)
	assert.Empty(t, ec.Results)
}

func TestPipelinePersistsSystemPromptOnlyWhenPresent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stage := testStage("hello")
	stage.Turns = append([]scenario.PromptTurn{
		{Role: scenario.RoleSystem, Content: "be kind"},
	}, stage.Turns...)

	run := standardChain(&echoCompleter{content: "ok", id: "r1"}, store)
	ec := &ExecutionContext{SessionID: "sess", Stage: stage, Metadata: map[string]any{}}
	require.NoError(t, run(ctx, ec))

	system, found, err := store.LoadItem(ctx, "sess", "stage:1-1:input:system_prompt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "be kind", system)
}

func TestPipelinePersistsExecutionIDFallback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := standardChain(&echoCompleter{content: "ok"}, store)
	ec := &ExecutionContext{SessionID: "sess", Stage: testStage("x"), Metadata: map[string]any{}}
	require.NoError(t, run(ctx, ec))

	execID, found, err := store.LoadItem(ctx, "sess", "stage:1-1:output:params:execution_id")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1-1", execID)
}

func TestPipelinePersistsOneKeySetPerUserTurn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stage := testStage("first")
	stage.Turns = append(stage.Turns, scenario.PromptTurn{
		Role: scenario.RoleUser, Content: "second", Name: "t2",
	})

	run := standardChain(&echoCompleter{content: "answer"}, store)
	ec := &ExecutionContext{SessionID: "sess", Stage: stage, Metadata: map[string]any{}}
	require.NoError(t, run(ctx, ec))

	require.Len(t, ec.Results, 2)
	for _, key := range []string{"stage:1-1:output", "stage:1-2:output"} {
		_, found, err := store.LoadItem(ctx, "sess", key)
		require.NoError(t, err)
		assert.True(t, found, "missing %s", key)
	}
}

func TestPipelinePersistsToolAuditsAndUsage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	completer := &auditCompleter{}
	run := standardChain(completer, store)
	ec := &ExecutionContext{SessionID: "sess", Stage: testStage("x"), Metadata: map[string]any{}}
	require.NoError(t, run(ctx, ec))

	raw, found, err := store.LoadItem(ctx, "sess", "stage:1-1:tool:lookup:call_1")
	require.NoError(t, err)
	require.True(t, found)

	var audit llm.ToolCallAudit
	require.NoError(t, json.Unmarshal([]byte(raw), &audit))
	assert.Equal(t, "lookup", audit.FunctionName)

	tokens, found, err := store.LoadItem(ctx, "sess", "stage:1-1:metadata:total_tokens")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "12", tokens)
}

// auditCompleter fabricates a result carrying a tool audit and usage counts.
type auditCompleter struct{}

func (c *auditCompleter) Complete(ctx context.Context, prompt scenario.CompletionPrompt) (*llm.CompletionResult, error) {
	return &llm.CompletionResult{
		SessionID:  prompt.SessionID,
		UserPrompt: prompt.User.Content,
		Content:    "done",
		Metadata: llm.ResultMetadata{
			ID:           "r9",
			Model:        prompt.Model,
			FinishReason: "stop",
			ToolCalls: []llm.ToolCallAudit{
				{ID: "call_1", FunctionName: "lookup", Arguments: "{}", Result: `{"ok":true}`},
			},
			Usage: &llm.TokenUsage{InputTokens: 7, OutputTokens: 5, TotalTokens: 12},
		},
	}, nil
}
