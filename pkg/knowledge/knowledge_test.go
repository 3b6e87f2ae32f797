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

package knowledge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stageflow-ai/stageflow/pkg/functions"
)

// stubEmbedding maps words to fixed axes so similarity is deterministic and
// no network is involved.
func stubEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 3)
	lower := strings.ToLower(text)
	if strings.Contains(lower, "cat") {
		v[0] = 1
	}
	if strings.Contains(lower, "dog") {
		v[1] = 1
	}
	if strings.Contains(lower, "fish") {
		v[2] = 1
	}
	if v[0] == 0 && v[1] == 0 && v[2] == 0 {
		v[0], v[1], v[2] = 0.5, 0.5, 0.5
	}
	return v, nil
}

func newTestStore(t *testing.T, persistPath string) *Store {
	t.Helper()
	store, err := NewStore(Config{
		Collection:    "test",
		PersistPath:   persistPath,
		EmbeddingFunc: stubEmbedding,
	})
	require.NoError(t, err)
	return store
}

func TestNewStoreRequiresCollection(t *testing.T) {
	_, err := NewStore(Config{})
	assert.Error(t, err)
}

func TestAddDocumentAndSearch(t *testing.T) {
	store := newTestStore(t, "")
	ctx := context.Background()

	require.NoError(t, store.AddDocument(ctx, "d1", "cats are cats", map[string]string{"kind": "pet"}))
	require.NoError(t, store.AddDocument(ctx, "d2", "dogs are dogs", nil))

	results, err := store.Search(ctx, "a cat", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)
	assert.Equal(t, "pet", results[0].Metadata["kind"])
	assert.Greater(t, results[0].Score, float32(0))
}

func TestAddDocumentValidation(t *testing.T) {
	store := newTestStore(t, "")
	ctx := context.Background()

	assert.Error(t, store.AddDocument(ctx, "", "content", nil))
	assert.Error(t, store.AddDocument(ctx, "id", "", nil))
}

func TestSearchEmptyCollection(t *testing.T) {
	store := newTestStore(t, "")

	results, err := store.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchClampsTopK(t *testing.T) {
	store := newTestStore(t, "")
	ctx := context.Background()

	require.NoError(t, store.AddDocument(ctx, "d1", "cat fact", nil))

	// Asking for more hits than documents must not fail.
	results, err := store.Search(ctx, "cat", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	store := newTestStore(t, "")

	_, err := store.Search(context.Background(), "", 5)
	assert.Error(t, err)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := newTestStore(t, dir)
	require.NoError(t, first.AddDocument(ctx, "d1", "fish swim", nil))

	second := newTestStore(t, dir)
	results, err := second.Search(ctx, "fish", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)
}

func TestRegisterSearchFunction(t *testing.T) {
	store := newTestStore(t, "")
	ctx := context.Background()
	require.NoError(t, store.AddDocument(ctx, "d1", "dog walking tips", nil))

	reg := functions.NewRegistry()
	require.NoError(t, store.RegisterSearchFunction(reg))

	fn, ok := reg.Get(SearchFunctionName)
	require.True(t, ok)

	out, err := fn(ctx, json.RawMessage(`{"query":"dog","topK":3}`))
	require.NoError(t, err)

	var results []Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)

	// Invalid arguments surface as errors.
	_, err = fn(ctx, json.RawMessage("not json"))
	assert.Error(t, err)
}

func TestSearchFunctionReturnsEmptyArray(t *testing.T) {
	store := newTestStore(t, "")

	reg := functions.NewRegistry()
	require.NoError(t, store.RegisterSearchFunction(reg))

	fn, _ := reg.Get(SearchFunctionName)
	out, err := fn(context.Background(), json.RawMessage(`{"query":"nothing here"}`))
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestSearchFunctionSchemaIsValidJSON(t *testing.T) {
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(SearchFunctionSchema), &parsed))
	assert.Equal(t, "object", parsed["type"])
}
