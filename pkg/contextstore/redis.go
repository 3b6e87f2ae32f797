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
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a shared Redis instance. Turn histories are
// lists (LPUSH newest-first), items are plain keys; both carry TTLs.
type Redis struct {
	client *redis.Client
	opts   Options
}

func NewRedis(client *redis.Client, opts Options) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrInvalidArgument)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &Redis{
		client: client,
		opts:   opts,
	}, nil
}

func (r *Redis) turnKey(sessionID string) string {
	return r.opts.KeyPrefix + sessionID
}

func (r *Redis) itemKey(sessionID, key string) string {
	return r.opts.KeyPrefix + sessionID + ":" + key
}

func (r *Redis) SaveTurn(ctx context.Context, sessionID string, turn Turn, opts ...SaveOption) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id cannot be empty", ErrInvalidArgument)
	}

	ttl, err := resolveTTL(r.opts.DefaultTTL, opts)
	if err != nil {
		return err
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("%w: turn is not JSON-encodable: %v", ErrInvalidArgument, err)
	}

	key := r.turnKey(sessionID)

	// LPUSH + EXPIRE commit together or the save fails.
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: turn save failed: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (r *Redis) LoadTurns(ctx context.Context, sessionID string, maxTurns int) ([]Turn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id cannot be empty", ErrInvalidArgument)
	}
	if maxTurns <= 0 {
		maxTurns = r.opts.DefaultMaxTurns
	}

	key := r.turnKey(sessionID)

	values, err := r.client.LRange(ctx, key, 0, int64(maxTurns-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: turn load failed: %v", ErrStorageUnavailable, err)
	}

	// Sliding window: drop anything past the window.
	if err := r.client.LTrim(ctx, key, 0, int64(maxTurns-1)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: turn trim failed: %v", ErrStorageUnavailable, err)
	}

	turns := make([]Turn, 0, len(values))
	for _, raw := range values {
		var t Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("corrupt turn entry for session %q: %w", sessionID, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (r *Redis) SaveItem(ctx context.Context, sessionID, key string, value any, opts ...SaveOption) error {
	if sessionID == "" || key == "" {
		return fmt.Errorf("%w: session id and key cannot be empty", ErrInvalidArgument)
	}

	ttl, err := resolveTTL(r.opts.DefaultTTL, opts)
	if err != nil {
		return err
	}

	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.itemKey(sessionID, key), encoded, ttl).Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: item save failed: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (r *Redis) LoadItem(ctx context.Context, sessionID, key string) (string, bool, error) {
	if sessionID == "" || key == "" {
		return "", false, fmt.Errorf("%w: session id and key cannot be empty", ErrInvalidArgument)
	}

	value, err := r.client.Get(ctx, r.itemKey(sessionID, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, ctxErr
		}
		return "", false, fmt.Errorf("%w: item load failed: %v", ErrStorageUnavailable, err)
	}
	return value, true, nil
}

var _ Store = (*Redis)(nil)
