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
	"sync"
	"testing"
	"time"
)

// --- Mock provider ---

type countingProvider struct {
	mu      sync.Mutex
	calls   map[string]int
	secrets map[string]string
	err     error
	delay   time.Duration
}

func newCountingProvider(secrets map[string]string) *countingProvider {
	return &countingProvider{calls: make(map[string]int), secrets: secrets}
}

func (p *countingProvider) GetSecret(ctx context.Context, appID string) (string, error) {
	p.mu.Lock()
	p.calls[appID]++
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.err != nil {
		return "", p.err
	}
	return p.secrets[appID], nil
}

func (p *countingProvider) count(appID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[appID]
}

// TestResolve_MissThenHit verifies one provider call on a miss and none on a hit.
func TestResolve_MissThenHit(t *testing.T) {
	p := newCountingProvider(map[string]string{"app-1": "s3cret"})
	c := NewCache(p)
	ctx := context.Background()

	cred, err := c.Resolve(ctx, "app-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.AppID != "app-1" || cred.Secret != "s3cret" {
		t.Errorf("cred = %+v", cred)
	}
	if p.count("app-1") != 1 {
		t.Fatalf("provider calls = %d, want 1", p.count("app-1"))
	}

	again, err := c.Resolve(ctx, "app-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != cred {
		t.Errorf("second resolve = %+v, want %+v", again, cred)
	}
	if p.count("app-1") != 1 {
		t.Errorf("provider calls after hit = %d, want 1", p.count("app-1"))
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

// TestResolve_EmptyAppID verifies the anonymous short-circuit.
func TestResolve_EmptyAppID(t *testing.T) {
	p := newCountingProvider(nil)
	p.err = errors.New("must not be called")
	c := NewCache(p)

	for _, id := range []string{"", "   "} {
		cred, err := c.Resolve(context.Background(), id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cred.IsEmpty() {
			t.Errorf("cred = %+v, want empty", cred)
		}
	}

	if len(p.calls) != 0 {
		t.Errorf("provider was called: %v", p.calls)
	}
	if c.Len() != 0 {
		t.Errorf("anonymous credential should not be cached")
	}
}

// TestResolve_EmptyWithoutProvider verifies anonymous access needs no provider.
func TestResolve_EmptyWithoutProvider(t *testing.T) {
	c := NewCache(nil)
	cred, err := c.Resolve(context.Background(), "")
	if err != nil || !cred.IsEmpty() {
		t.Fatalf("Resolve(\"\") = (%+v, %v), want (Empty, nil)", cred, err)
	}

	if _, err := c.Resolve(context.Background(), "app"); !errors.Is(err, ErrProviderMissing) {
		t.Errorf("err = %v, want ErrProviderMissing", err)
	}
}

// TestResolve_ProviderFailureNotCached verifies failures propagate and are retried later.
func TestResolve_ProviderFailureNotCached(t *testing.T) {
	p := newCountingProvider(map[string]string{"app-1": "s"})
	p.err = errors.New("vault down")
	c := NewCache(p)

	if _, err := c.Resolve(context.Background(), "app-1"); err == nil {
		t.Fatal("expected error")
	}
	if c.Len() != 0 {
		t.Fatal("failure must not be cached")
	}

	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()

	if _, err := c.Resolve(context.Background(), "app-1"); err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if p.count("app-1") != 2 {
		t.Errorf("provider calls = %d, want 2", p.count("app-1"))
	}
}

// TestResolve_ConcurrentMisses verifies concurrent cold misses converge on one value.
func TestResolve_ConcurrentMisses(t *testing.T) {
	p := newCountingProvider(map[string]string{"app-1": "s"})
	p.delay = 20 * time.Millisecond
	c := NewCache(p)

	const workers = 32
	results := make([]AppCredential, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cred, err := c.Resolve(context.Background(), "app-1")
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = cred
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r != results[0] {
			t.Errorf("worker %d got %+v, want %+v", i, r, results[0])
		}
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if n := p.count("app-1"); n > workers {
		t.Errorf("provider calls = %d, exceeds workers", n)
	}
}

// TestResolve_Cancelled verifies a waiting caller observes its own context.
func TestResolve_Cancelled(t *testing.T) {
	p := newCountingProvider(map[string]string{"app-1": "s"})
	p.delay = time.Second
	c := NewCache(p)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Resolve(ctx, "app-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Resolve did not return promptly after cancellation")
	}
}

func TestAppCredential_StringHidesSecret(t *testing.T) {
	cred := AppCredential{AppID: "app", Secret: "hunter2"}
	if s := cred.String(); s != "AppCredential(app)" {
		t.Errorf("String() = %q", s)
	}
	if Empty.String() != "AppCredential(anonymous)" {
		t.Errorf("Empty.String() = %q", Empty.String())
	}
}
