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
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/stageflow-ai/stageflow/pkg/contextstore"
	"github.com/stageflow-ai/stageflow/pkg/llm"
)

// ContextPersist writes every completion result into the context store after
// the rest of the chain has run. All writes of one result fan out
// concurrently; the middleware waits for their joint completion.
type ContextPersist struct {
	items contextstore.ItemStore
}

func NewContextPersist(items contextstore.ItemStore) *ContextPersist {
	return &ContextPersist{items: items}
}

func (m *ContextPersist) Execute(ctx context.Context, ec *ExecutionContext, next Handler) error {
	if err := next(ctx, ec); err != nil {
		return err
	}

	for i, result := range ec.Results {
		stageKey := contextstore.StageKey(ec.Stage.ID, i)
		if err := m.persistResult(ctx, ec.SessionID, stageKey, result); err != nil {
			return fmt.Errorf("stage %d: failed to persist result %s: %w", ec.Stage.ID, stageKey, err)
		}
	}
	return nil
}

func (m *ContextPersist) persistResult(ctx context.Context, sessionID, stageKey string, result *llm.CompletionResult) error {
	g, gctx := errgroup.WithContext(ctx)

	save := func(key string, value any) {
		g.Go(func() error {
			return m.items.SaveItem(gctx, sessionID, key, value)
		})
	}

	if result.SystemPrompt != "" {
		save(contextstore.InputKey(stageKey, "system_prompt"), result.SystemPrompt)
	}
	save(contextstore.InputKey(stageKey, "user_prompt"), result.UserPrompt)

	for key, value := range result.Metadata.Extra {
		save(contextstore.InputParamKey(stageKey, key), value)
	}

	save(contextstore.OutputKey(stageKey), result.Content)

	executionID := result.Metadata.ID
	if executionID == "" {
		executionID = stageKey
	}
	save(contextstore.OutputParamKey(stageKey, "execution_id"), executionID)

	if result.Metadata.Model != "" {
		save(contextstore.MetadataKey(stageKey, "output_model"), result.Metadata.Model)
	}
	if result.Metadata.FinishReason != "" {
		save(contextstore.MetadataKey(stageKey, "finish_reason"), result.Metadata.FinishReason)
	}

	for _, audit := range result.Metadata.ToolCalls {
		data, err := json.Marshal(audit)
		if err != nil {
			return fmt.Errorf("failed to serialize tool call audit %s: %w", audit.ID, err)
		}
		save(contextstore.ToolKey(stageKey, audit.FunctionName, audit.ID), string(data))
	}

	if usage := result.Metadata.Usage; usage != nil {
		save(contextstore.MetadataKey(stageKey, "input_tokens"), strconv.Itoa(usage.InputTokens))
		save(contextstore.MetadataKey(stageKey, "output_tokens"), strconv.Itoa(usage.OutputTokens))
		save(contextstore.MetadataKey(stageKey, "total_tokens"), strconv.Itoa(usage.TotalTokens))
	}

	return g.Wait()
}
