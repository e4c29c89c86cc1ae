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

// Package credentials resolves and caches the per-application secrets the
// gateway uses to authenticate outbound connector calls.
//
// A Cache is owned by one gateway instance and shared by every request it
// serves. Entries are created on first use and live for the lifetime of the
// process; the number of entries is bounded by the number of distinct bot
// applications calling the gateway.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// fetchTimeout bounds one provider lookup.
const fetchTimeout = 10 * time.Second

var (
	// ErrUnknownApp is returned by providers that hold no secret for an app id.
	ErrUnknownApp = errors.New("no credential for app id")
	// ErrProviderMissing is returned when a cache has no provider to consult.
	ErrProviderMissing = errors.New("credential provider not configured")
)

// AppCredential is the resolved secret material for one application id.
// It is immutable once created.
type AppCredential struct {
	AppID  string
	Secret string
}

// Empty is the credential returned for anonymous callers.
var Empty = AppCredential{}

// IsEmpty reports whether c is the anonymous credential.
func (c AppCredential) IsEmpty() bool {
	return c.AppID == "" && c.Secret == ""
}

// String never renders the secret.
func (c AppCredential) String() string {
	if c.IsEmpty() {
		return "AppCredential(anonymous)"
	}
	return fmt.Sprintf("AppCredential(%s)", c.AppID)
}

// Provider fetches the secret for an application id from an external store.
type Provider interface {
	GetSecret(ctx context.Context, appID string) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, appID string) (string, error)

// GetSecret calls f.
func (f ProviderFunc) GetSecret(ctx context.Context, appID string) (string, error) {
	return f(ctx, appID)
}

// Cache maps app ids to resolved credentials.
type Cache struct {
	provider Provider

	mu      sync.RWMutex
	entries map[string]AppCredential

	// group collapses concurrent misses for the same app id into one
	// provider call.
	group singleflight.Group
}

// NewCache creates an empty cache backed by the given provider.
func NewCache(provider Provider) *Cache {
	return &Cache{
		provider: provider,
		entries:  make(map[string]AppCredential),
	}
}

// Resolve returns the credential for appID. An empty app id yields the
// anonymous credential without touching the cache or the provider. A miss
// consults the provider once and stores the result; provider failures are
// returned and nothing is cached.
func (c *Cache) Resolve(ctx context.Context, appID string) (AppCredential, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return Empty, nil
	}

	if cred, ok := c.lookup(appID); ok {
		return cred, nil
	}

	ch := c.group.DoChan(appID, func() (any, error) {
		// A concurrent resolution may have finished between lookup and here.
		if cred, ok := c.lookup(appID); ok {
			return cred, nil
		}
		// The shared fetch outlives any one waiter's cancellation.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return c.fetch(fetchCtx, appID)
	})

	select {
	case <-ctx.Done():
		return AppCredential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return AppCredential{}, res.Err
		}
		return res.Val.(AppCredential), nil
	}
}

// Len returns the number of cached credentials.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(appID string) (AppCredential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cred, ok := c.entries[appID]
	return cred, ok
}

func (c *Cache) fetch(ctx context.Context, appID string) (AppCredential, error) {
	if c.provider == nil {
		return AppCredential{}, ErrProviderMissing
	}

	secret, err := c.provider.GetSecret(ctx, appID)
	if err != nil {
		return AppCredential{}, fmt.Errorf("resolve credential for %s: %w", appID, err)
	}

	cred := AppCredential{AppID: appID, Secret: secret}

	c.mu.Lock()
	if existing, ok := c.entries[appID]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.entries[appID] = cred
	size := len(c.entries)
	c.mu.Unlock()

	slog.Info("credential cached", "app_id", appID, "cached_apps", size)
	return cred, nil
}
