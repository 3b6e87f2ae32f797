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

package contextstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	m, err := NewMemory(Options{
		KeyPrefix:       "test:",
		DefaultTTL:      time.Minute,
		DefaultMaxTurns: 10,
	})
	require.NoError(t, err)
	return m
}

func TestNewMemoryValidatesOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"empty prefix", Options{DefaultTTL: time.Minute, DefaultMaxTurns: 5}},
		{"zero ttl", Options{KeyPrefix: "p:", DefaultMaxTurns: 5}},
		{"zero max turns", Options{KeyPrefix: "p:", DefaultTTL: time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMemory(tt.opts)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestMemorySaveAndLoadItem(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.SaveItem(ctx, "s1", "greeting", "hello"))

	value, found, err := m.LoadItem(ctx, "s1", "greeting")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", value)
}

func TestMemoryLoadItemMissing(t *testing.T) {
	m := newTestMemory(t)

	value, found, err := m.LoadItem(context.Background(), "s1", "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, value)
}

func TestMemoryItemEncoding(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string verbatim", "plain text", "plain text"},
		{"int encoded", 42, "42"},
		{"map encoded", map[string]int{"x": 1}, `{"x":1}`},
		{"bytes verbatim", []byte(`{"raw":true}`), `{"raw":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, m.SaveItem(ctx, "s1", tt.name, tt.value))
			got, found, err := m.LoadItem(ctx, "s1", tt.name)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryItemExpiry(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.SaveItem(ctx, "s1", "ephemeral", "v", WithTTL(time.Millisecond)))
	time.Sleep(5 * time.Millisecond)

	_, found, err := m.LoadItem(ctx, "s1", "ephemeral")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemorySaveItemRejectsNonPositiveTTL(t *testing.T) {
	m := newTestMemory(t)

	err := m.SaveItem(context.Background(), "s1", "k", "v", WithTTL(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMemoryItemsAreSessionScoped(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.SaveItem(ctx, "s1", "k", "one"))
	require.NoError(t, m.SaveItem(ctx, "s2", "k", "two"))

	v1, _, err := m.LoadItem(ctx, "s1", "k")
	require.NoError(t, err)
	v2, _, err := m.LoadItem(ctx, "s2", "k")
	require.NoError(t, err)

	assert.Equal(t, "one", v1)
	assert.Equal(t, "two", v2)
}

func TestMemoryTurnsNewestFirst(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		turn := Turn{Role: "user", Content: fmt.Sprintf("message %d", i)}
		require.NoError(t, m.SaveTurn(ctx, "s1", turn))
	}

	turns, err := m.LoadTurns(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "message 3", turns[0].Content)
	assert.Equal(t, "message 1", turns[2].Content)
}

func TestMemoryLoadTurnsTrimsWindow(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, m.SaveTurn(ctx, "s1", Turn{Role: "user", Content: fmt.Sprintf("m%d", i)}))
	}

	turns, err := m.LoadTurns(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "m5", turns[0].Content)
	assert.Equal(t, "m4", turns[1].Content)

	// The trim is a side effect on the stored list, not just the view.
	turns, err = m.LoadTurns(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestMemoryLoadTurnsMissingSession(t *testing.T) {
	m := newTestMemory(t)

	turns, err := m.LoadTurns(context.Background(), "ghost", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestMemoryLoadTurnsDefaultWindow(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	// DefaultMaxTurns is 10; a non-positive window falls back to it.
	for i := 1; i <= 12; i++ {
		require.NoError(t, m.SaveTurn(ctx, "s1", Turn{Role: "user", Content: fmt.Sprintf("m%d", i)}))
	}

	turns, err := m.LoadTurns(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 10)
	assert.Equal(t, "m12", turns[0].Content)
	assert.Equal(t, "m3", turns[9].Content)
}

func TestLoadItemAs(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	type record struct {
		X int `json:"x"`
	}

	require.NoError(t, m.SaveItem(ctx, "s1", "rec", record{X: 7}))

	got, found, err := LoadItemAs[record](ctx, m, "s1", "rec")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, got.X)

	_, found, err = LoadItemAs[record](ctx, m, "s1", "missing")
	require.NoError(t, err)
	assert.False(t, found)
}
