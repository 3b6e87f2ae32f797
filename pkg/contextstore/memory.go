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
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store used for tests and single-node runs.
// Expired entries are reaped lazily on access.
type Memory struct {
	opts Options

	mu    sync.Mutex
	turns map[string]*turnList
	items map[string]memEntry
}

type turnList struct {
	entries []string // newest first, encoded turns
	expires time.Time
}

type memEntry struct {
	value   string
	expires time.Time
}

func NewMemory(opts Options) (*Memory, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &Memory{
		opts:  opts,
		turns: make(map[string]*turnList),
		items: make(map[string]memEntry),
	}, nil
}

func (m *Memory) turnKey(sessionID string) string {
	return m.opts.KeyPrefix + sessionID
}

func (m *Memory) itemKey(sessionID, key string) string {
	return m.opts.KeyPrefix + sessionID + ":" + key
}

func (m *Memory) SaveTurn(ctx context.Context, sessionID string, turn Turn, opts ...SaveOption) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id cannot be empty", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ttl, err := resolveTTL(m.opts.DefaultTTL, opts)
	if err != nil {
		return err
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("%w: turn is not JSON-encodable: %v", ErrInvalidArgument, err)
	}

	key := m.turnKey(sessionID)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.turns[key]
	if list == nil || now.After(list.expires) {
		list = &turnList{}
		m.turns[key] = list
	}

	list.entries = append([]string{string(data)}, list.entries...)
	list.expires = now.Add(ttl)
	return nil
}

func (m *Memory) LoadTurns(ctx context.Context, sessionID string, maxTurns int) ([]Turn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id cannot be empty", ErrInvalidArgument)
	}
	if maxTurns <= 0 {
		maxTurns = m.opts.DefaultMaxTurns
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := m.turnKey(sessionID)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.turns[key]
	if list == nil {
		return []Turn{}, nil
	}
	if now.After(list.expires) {
		delete(m.turns, key)
		return []Turn{}, nil
	}

	// Sliding window: trim the stored list when it exceeds the window.
	if len(list.entries) > maxTurns {
		list.entries = list.entries[:maxTurns]
	}

	turns := make([]Turn, 0, len(list.entries))
	for _, raw := range list.entries {
		var t Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("corrupt turn entry for session %q: %w", sessionID, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (m *Memory) SaveItem(ctx context.Context, sessionID, key string, value any, opts ...SaveOption) error {
	if sessionID == "" || key == "" {
		return fmt.Errorf("%w: session id and key cannot be empty", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ttl, err := resolveTTL(m.opts.DefaultTTL, opts)
	if err != nil {
		return err
	}

	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[m.itemKey(sessionID, key)] = memEntry{
		value:   encoded,
		expires: time.Now().Add(ttl),
	}
	return nil
}

func (m *Memory) LoadItem(ctx context.Context, sessionID, key string) (string, bool, error) {
	if sessionID == "" || key == "" {
		return "", false, fmt.Errorf("%w: session id and key cannot be empty", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	fullKey := m.itemKey(sessionID, key)

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.items[fullKey]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(entry.expires) {
		delete(m.items, fullKey)
		return "", false, nil
	}
	return entry.value, true, nil
}

// SessionKeys returns the item keys stored for a session, prefix stripped.
// Intended for tests and diagnostics.
func (m *Memory) SessionKeys(sessionID string) []string {
	prefix := m.opts.KeyPrefix + sessionID + ":"
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for k, entry := range m.items {
		if strings.HasPrefix(k, prefix) && now.Before(entry.expires) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}
	return keys
}

var _ Store = (*Memory)(nil)
