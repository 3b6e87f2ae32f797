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

// Package contextstore provides per-session keyed state with TTL: a bounded
// turn history and a general-purpose item store read by placeholder
// resolution and written by the persistence middleware.
package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidArgument reports a missing or malformed argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorageUnavailable reports that the backing store refused an operation.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Turn is one conversation message stored in a session's turn history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// TurnStore keeps a bounded, newest-first conversation history per session.
type TurnStore interface {
	// SaveTurn prepends turn to the session's history and resets the key TTL.
	// The prepend and the TTL reset are atomic with respect to the key.
	SaveTurn(ctx context.Context, sessionID string, turn Turn, opts ...SaveOption) error

	// LoadTurns returns up to maxTurns entries, newest first (index 0 is the
	// newest). When the stored list exceeds the window the excess is trimmed
	// as a side effect. Missing or expired sessions yield an empty slice.
	// A non-positive maxTurns falls back to the store's DefaultMaxTurns.
	LoadTurns(ctx context.Context, sessionID string, maxTurns int) ([]Turn, error)
}

// ItemStore is the session-scoped KV store used by the pipeline for
// cross-stage data. Values are stored in their JSON-encoded string form;
// plain strings are stored verbatim.
type ItemStore interface {
	SaveItem(ctx context.Context, sessionID, key string, value any, opts ...SaveOption) error

	// LoadItem returns the stored string form of the value.
	// Missing keys return ("", false, nil), never an error.
	LoadItem(ctx context.Context, sessionID, key string) (string, bool, error)
}

// Store combines both facades; the provided backends implement it over
// shared storage.
type Store interface {
	TurnStore
	ItemStore
}

// SaveOptions carries per-call overrides for Save operations.
type SaveOptions struct {
	TTL time.Duration
}

type SaveOption func(*SaveOptions)

// WithTTL overrides the store's default TTL for a single save.
// The value must be strictly positive.
func WithTTL(ttl time.Duration) SaveOption {
	return func(o *SaveOptions) {
		o.TTL = ttl
	}
}

// Options configures a store backend.
type Options struct {
	// KeyPrefix namespaces every session bucket. Required.
	KeyPrefix string

	// DefaultTTL applies to saves without an explicit TTL. Must be positive.
	DefaultTTL time.Duration

	// DefaultMaxTurns bounds the turn-history sliding window when LoadTurns
	// is called without a positive window. Must be positive.
	DefaultMaxTurns int
}

func (o *Options) Validate() error {
	if o.KeyPrefix == "" {
		return fmt.Errorf("%w: key prefix cannot be empty", ErrInvalidArgument)
	}
	if o.DefaultTTL <= 0 {
		return fmt.Errorf("%w: default TTL must be positive", ErrInvalidArgument)
	}
	if o.DefaultMaxTurns <= 0 {
		return fmt.Errorf("%w: default max turns must be positive", ErrInvalidArgument)
	}
	return nil
}

// resolveTTL applies per-call options over the default and validates the result.
func resolveTTL(defaultTTL time.Duration, opts []SaveOption) (time.Duration, error) {
	options := SaveOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	ttl := options.TTL
	if len(opts) > 0 && ttl <= 0 {
		return 0, fmt.Errorf("%w: ttl must be strictly positive", ErrInvalidArgument)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return ttl, nil
}

// encodeValue produces the stored string form: strings and raw JSON pass
// through verbatim, everything else is JSON-encoded.
func encodeValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("%w: value is not JSON-encodable: %v", ErrInvalidArgument, err)
		}
		return string(data), nil
	}
}

// LoadItemAs loads and JSON-decodes an item into T.
func LoadItemAs[T any](ctx context.Context, store ItemStore, sessionID, key string) (T, bool, error) {
	var out T

	raw, found, err := store.LoadItem(ctx, sessionID, key)
	if err != nil || !found {
		return out, found, err
	}

	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, true, fmt.Errorf("failed to decode item %q: %w", key, err)
	}
	return out, true, nil
}
