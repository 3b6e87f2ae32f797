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

package placeholder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stageflow-ai/stageflow/pkg/contextstore"
)

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

func TestResolveContextLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveItem(ctx, "s1", "name", "Ada"))

	r := NewResolver(store)
	got, err := r.Resolve(ctx, "s1", "Hello {{name}}!", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!", got)
}

func TestResolveSessionID(t *testing.T) {
	r := NewResolver(newTestStore(t))

	got, err := r.Resolve(context.Background(), "session-42", "id is {{sessionId}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "id is session-42", got)
}

func TestResolveAbsentKeyLeavesMarker(t *testing.T) {
	r := NewResolver(newTestStore(t))

	got, err := r.Resolve(context.Background(), "s1", "Hi {{nope}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi {{nope}}", got)
	assert.True(t, ContainsMarker(got))
}

func TestResolveParameterLookup(t *testing.T) {
	r := NewResolver(newTestStore(t))
	params := map[string]any{
		"tone":  "formal",
		"count": 3,
	}

	got, err := r.Resolve(context.Background(), "s1", "Write {count} lines in a {tone} tone", params)
	require.NoError(t, err)
	assert.Equal(t, "Write 3 lines in a formal tone", got)
}

func TestResolveParameterIndirection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveItem(ctx, "s1", "topic", "compilers"))

	r := NewResolver(store)
	params := map[string]any{"subject": "{{topic}}"}

	got, err := r.Resolve(ctx, "s1", "Explain {subject}", params)
	require.NoError(t, err)
	assert.Equal(t, "Explain compilers", got)
}

func TestResolveAbsentParameterLeavesMarker(t *testing.T) {
	r := NewResolver(newTestStore(t))

	got, err := r.Resolve(context.Background(), "s1", "use {missing}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "use {missing}", got)
}

func TestResolveOutputPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveItem(ctx, "s1", "stage:1-1:output", `{"x":1,"items":["a","b"],"nested":{"deep":true}}`))
	require.NoError(t, store.SaveItem(ctx, "s1", "stage:2-1:output", "not json at all"))

	r := NewResolver(store)

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"scalar field", "echo {{1-1:output:x}}", "echo 1"},
		{"prefixed record key", "full {{stage:1-1:output:x}}", "full 1"},
		{"array index", "got {{1-1:output:items:1}}", "got b"},
		{"dot separator", "deep {{1-1:output:nested.deep}}", "deep true"},
		{"missing node", "miss {{1-1:output:ghost}}", "miss {}"},
		{"whole record", "all {{1-1:output}}", `all {"x":1,"items":["a","b"],"nested":{"deep":true}}`},
		{"non json record", "raw {{2-1:output:x}}", "raw not json at all"},
		{"absent record", "gone {{9-9:output:x}}", "gone "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, "s1", tt.template, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveAmbiguousBraces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveItem(ctx, "s1", "a", "X"))

	r := NewResolver(store)

	// The double-brace form wins, leaving the stray outer braces in place.
	got, err := r.Resolve(ctx, "s1", "{{{a}}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "{X}", got)
}

func TestResolveMixedMarkers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveItem(ctx, "s1", "city", "Lisbon"))

	r := NewResolver(store)
	params := map[string]any{"style": "short"}

	got, err := r.Resolve(ctx, "s1", "{style} report on {{city}} for {{sessionId}}", params)
	require.NoError(t, err)
	assert.Equal(t, "short report on Lisbon for s1", got)
}

func TestResolveLeavesLiteralBraceText(t *testing.T) {
	r := NewResolver(newTestStore(t))

	tests := []struct {
		name     string
		template string
	}{
		{"json example", `reply with JSON like {x:1}`},
		{"json object", `the shape is {"claims": ["..."]}`},
		{"set notation", "values in {1, 2, 3}"},
		{"spaced words", "choose {one of these}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), "s1", tt.template, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.template, got)
			assert.False(t, ContainsMarker(got))
		})
	}
}

func TestContainsMarker(t *testing.T) {
	assert.True(t, ContainsMarker("hello {{x}}"))
	assert.True(t, ContainsMarker("hello {x}"))
	assert.False(t, ContainsMarker("no markers here"))
	assert.False(t, ContainsMarker("empty braces {} do not count"))
	assert.False(t, ContainsMarker("literal {x:1} stays put"))
	assert.True(t, ContainsMarker("but {{x:1}} is a context marker"))
}
