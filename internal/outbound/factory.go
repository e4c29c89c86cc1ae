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

package outbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/activitygateway/internal/credentials"
)

const (
	// DefaultTokenURL issues connector tokens for multi-tenant bot apps.
	DefaultTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	// DefaultScope is the connector API scope.
	DefaultScope = "https://api.botframework.com/.default"
)

// FactoryConfig configures client construction.
type FactoryConfig struct {
	TokenURL string
	Scope    string
	Policy   RetryPolicy
	// HTTPClient is used for both token and connector requests. Defaults to
	// a client with a 30s timeout.
	HTTPClient *http.Client
}

// Factory builds connector clients. Tokens are cached per app id so
// repeated turns from the same bot reuse a valid access token.
type Factory struct {
	tokenURL string
	scope    string
	policy   RetryPolicy
	base     *http.Client

	mu     sync.Mutex
	tokens map[string]*appTokens
}

// NewFactory validates cfg and creates a factory.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Factory{
		tokenURL: cfg.TokenURL,
		scope:    cfg.Scope,
		policy:   cfg.Policy,
		base:     cfg.HTTPClient,
		tokens:   make(map[string]*appTokens),
	}, nil
}

// Policy returns the retry policy applied to every client.
func (f *Factory) Policy() RetryPolicy {
	return f.policy
}

// NewClient returns a client for serviceURL authenticated with cred. The
// anonymous credential yields an unauthenticated client.
func (f *Factory) NewClient(serviceURL string, cred credentials.AppCredential) (*Client, error) {
	serviceURL = strings.TrimSpace(serviceURL)
	if serviceURL == "" {
		return nil, fmt.Errorf("service url is required")
	}

	httpClient := f.base
	if !cred.IsEmpty() {
		httpClient = &http.Client{
			Timeout: f.base.Timeout,
			Transport: &tokenTransport{
				tokens: f.appTokens(cred),
				base:   f.base.Transport,
			},
		}
	}

	return &Client{
		httpClient: httpClient,
		serviceURL: serviceURL,
		appID:      cred.AppID,
		policy:     f.policy,
	}, nil
}

func (f *Factory) appTokens(cred credentials.AppCredential) *appTokens {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t, ok := f.tokens[cred.AppID]; ok {
		return t
	}

	t := &appTokens{
		config: &clientcredentials.Config{
			ClientID:     cred.AppID,
			ClientSecret: cred.Secret,
			TokenURL:     f.tokenURL,
			Scopes:       []string{f.scope},
		},
		httpClient: f.base,
		sem:        make(chan struct{}, 1),
	}
	f.tokens[cred.AppID] = t
	return t
}

// appTokens holds the last access token for one app. Fetches run under the
// caller's context so a slow token endpoint cannot outlive the request.
type appTokens struct {
	config     *clientcredentials.Config
	httpClient *http.Client

	// sem serialises refreshes; waiters give up when their context ends.
	sem   chan struct{}
	token *oauth2.Token
}

func (t *appTokens) Token(ctx context.Context) (*oauth2.Token, error) {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-t.sem }()

	if t.token.Valid() {
		return t.token, nil
	}
	tok, err := t.config.Token(context.WithValue(ctx, oauth2.HTTPClient, t.httpClient))
	if err != nil {
		return nil, err
	}
	t.token = tok
	return tok, nil
}

// tokenTransport sets the bearer token on each connector request.
type tokenTransport struct {
	tokens *appTokens
	base   http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.tokens.Token(req.Context())
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, fmt.Errorf("fetch access token: %w", err)
	}

	authed := req.Clone(req.Context())
	tok.SetAuthHeader(authed)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(authed)
}
