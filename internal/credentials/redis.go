// Copyright (c) 2026 John Earle
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

package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding app id -> secret fields.
const DefaultRedisKey = "gateway:app-credentials"

// HashReader is the subset of redis.Cmdable the Redis provider uses.
type HashReader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

// RedisProvider reads app secrets from a Redis hash.
type RedisProvider struct {
	rdb HashReader
	key string
}

// NewRedisProvider creates a provider reading fields of the given hash key.
func NewRedisProvider(rdb HashReader, key string) *RedisProvider {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisProvider{rdb: rdb, key: key}
}

// GetSecret returns the hash field for appID.
func (p *RedisProvider) GetSecret(ctx context.Context, appID string) (string, error) {
	secret, err := p.rdb.HGet(ctx, p.key, appID).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrUnknownApp, appID)
	}
	if err != nil {
		return "", fmt.Errorf("redis HGET: %w", err)
	}
	return secret, nil
}
