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

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bcem/activitygateway/internal/credentials"
	"github.com/bcem/activitygateway/internal/dispatch"
	"github.com/bcem/activitygateway/internal/identity"
	"github.com/bcem/activitygateway/internal/models"
	"github.com/bcem/activitygateway/internal/outbound"
	"github.com/bcem/activitygateway/internal/tenant"
)

const (
	allowedTenant = "72f988bf-86f1-41af-91ab-2d7cd011db47"
	otherTenant   = "0d2b7d5a-1f5e-4c4b-9b7e-8c3f2a1e6d90"
)

// --- Mock bot ---

type mockBot struct {
	mu         sync.Mutex
	messages   []*dispatch.Turn
	channels   []models.ChannelEvent
	queries    []models.MessagingExtensionQuery
	invokeResp *models.InvokeResponse
	onMessage  func(ctx context.Context, turn *dispatch.Turn) error
}

func (b *mockBot) OnMessage(ctx context.Context, turn *dispatch.Turn) error {
	b.mu.Lock()
	b.messages = append(b.messages, turn)
	fn := b.onMessage
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, turn)
	}
	return nil
}

func (b *mockBot) OnChannelRenamed(_ context.Context, _ *dispatch.Turn, e models.ChannelEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, e)
	return nil
}

func (b *mockBot) OnMessagingExtensionQuery(_ context.Context, _ *dispatch.Turn, q models.MessagingExtensionQuery) (*models.InvokeResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries = append(b.queries, q)
	return b.invokeResp, nil
}

func (b *mockBot) handlerCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages) + len(b.channels) + len(b.queries)
}

// --- Helpers ---

func newGateway(t *testing.T, bot any, cfg Config) *Gateway {
	t.Helper()
	cfg.Dispatcher = dispatch.New(dispatch.HandlersFor(bot))
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return g
}

func teamsMessage(t *testing.T, tenantID string) *models.Activity {
	t.Helper()
	a := &models.Activity{
		Type:         models.ActivityTypeMessage,
		ID:           "act-1",
		ChannelID:    models.ChannelMSTeams,
		Conversation: models.ConversationAccount{ID: "conv-1"},
		Text:         "hello",
	}
	if tenantID != "" {
		raw, err := json.Marshal(map[string]any{"tenant": map[string]string{"id": tenantID}})
		if err != nil {
			t.Fatal(err)
		}
		a.ChannelData = raw
	}
	return a
}

func claimsFor(appID string) *identity.ClaimsIdentity {
	return &identity.ClaimsIdentity{Claims: jwt.MapClaims{identity.ClaimAudience: appID}}
}

// --- Tests ---

func TestNew_RequiresDispatcher(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without dispatcher")
	}
}

func TestProcessActivity_InvalidActivity(t *testing.T) {
	g := newGateway(t, &mockBot{}, Config{})
	for _, a := range []*models.Activity{nil, {}, {Type: "  "}} {
		if _, err := g.ProcessActivity(context.Background(), a, nil); !errors.Is(err, ErrInvalidActivity) {
			t.Errorf("ProcessActivity(%+v) err = %v, want ErrInvalidActivity", a, err)
		}
	}
}

func TestProcessActivity_AnonymousWhenNoClaims(t *testing.T) {
	bot := &mockBot{}
	g := newGateway(t, bot, Config{})

	if _, err := g.ProcessActivity(context.Background(), teamsMessage(t, ""), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bot.messages) != 1 {
		t.Fatalf("message handler calls = %d, want 1", len(bot.messages))
	}
	turn := bot.messages[0]
	if !turn.Identity.IsAnonymous() {
		t.Errorf("identity = %+v, want anonymous", turn.Identity)
	}
	if !turn.Credential.IsEmpty() {
		t.Errorf("credential = %v, want empty", turn.Credential)
	}
	if turn.Client != nil {
		t.Error("client attached without a service url")
	}
}

func TestProcessActivity_TenantAdmission(t *testing.T) {
	policy, err := tenant.NewPolicy(true, []string{allowedTenant})
	if err != nil {
		t.Fatalf("NewPolicy() error: %v", err)
	}

	tests := []struct {
		name      string
		tenantID  string
		wantErr   bool
		wantCalls int
	}{
		{"allowed tenant", allowedTenant, false, 1},
		{"allowed tenant upper case", strings.ToUpper(allowedTenant), false, 1},
		{"other tenant", otherTenant, true, 0},
		{"no tenant metadata", "", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := &mockBot{}
			g := newGateway(t, bot, Config{Tenants: policy})

			_, err := g.ProcessActivity(context.Background(), teamsMessage(t, tt.tenantID), nil)
			if tt.wantErr {
				if !errors.Is(err, tenant.ErrAdmissionDenied) {
					t.Fatalf("err = %v, want ErrAdmissionDenied", err)
				}
				if got := StatusForError(err); got != http.StatusForbidden {
					t.Errorf("status = %d, want 403", got)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := bot.handlerCalls(); got != tt.wantCalls {
				t.Errorf("handler calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestProcessActivity_MalformedSiblingDoesNotBypassAdmission(t *testing.T) {
	policy, err := tenant.NewPolicy(true, []string{allowedTenant})
	if err != nil {
		t.Fatalf("NewPolicy() error: %v", err)
	}

	tests := []struct {
		name        string
		channelData string
		wantErr     bool
	}{
		{"other tenant, team is a string", `{"team":"oops","tenant":{"id":"` + otherTenant + `"}}`, true},
		{"other tenant, numeric event type", `{"eventType":7,"tenant":{"id":"` + otherTenant + `"}}`, true},
		{"tenant is a number", `{"tenant":5}`, true},
		{"allowed tenant, team is a string", `{"team":"oops","tenant":{"id":"` + allowedTenant + `"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := &mockBot{}
			g := newGateway(t, bot, Config{Tenants: policy})
			a := teamsMessage(t, "")
			a.ChannelData = json.RawMessage(tt.channelData)

			_, err := g.ProcessActivity(context.Background(), a, nil)
			if tt.wantErr {
				if !errors.Is(err, tenant.ErrAdmissionDenied) {
					t.Fatalf("err = %v, want ErrAdmissionDenied", err)
				}
				if bot.handlerCalls() != 0 {
					t.Error("handler ran for a denied tenant")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if bot.handlerCalls() != 1 {
				t.Errorf("handler calls = %d, want 1", bot.handlerCalls())
			}
		})
	}
}

func TestProcessActivity_TurnCarriesTenantContext(t *testing.T) {
	bot := &mockBot{}
	g := newGateway(t, bot, Config{})

	if _, err := g.ProcessActivity(context.Background(), teamsMessage(t, allowedTenant), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := bot.messages[0].TenantID(); got != allowedTenant {
		t.Errorf("TenantID() = %q, want %q", got, allowedTenant)
	}
}

func TestProcessActivity_CredentialFailureStopsActivity(t *testing.T) {
	bot := &mockBot{}
	cache := credentials.NewCache(credentials.NewStaticProvider(nil))
	g := newGateway(t, bot, Config{Credentials: cache})

	_, err := g.ProcessActivity(context.Background(), teamsMessage(t, ""), claimsFor("unknown-app"))
	if !errors.Is(err, credentials.ErrUnknownApp) {
		t.Fatalf("err = %v, want ErrUnknownApp", err)
	}
	if bot.handlerCalls() != 0 {
		t.Error("handler invoked after credential failure")
	}
}

func TestProcessActivity_ClientAttachedAndUsable(t *testing.T) {
	var tokenCalls atomic.Int32
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenCalls.Add(1)
			if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
				t.Errorf("unexpected token request: %v", r.PostForm)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"tok-abc","token_type":"Bearer","expires_in":3600}`))
			return
		}
		gotAuth.Store(r.Header.Get("Authorization"))
		if r.URL.Path != "/v3/conversations/conv-1/activities/act-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"reply-1"}`))
	}))
	defer srv.Close()

	factory, err := outbound.NewFactory(outbound.FactoryConfig{
		TokenURL: srv.URL + "/token",
		Policy:   outbound.DefaultRetryPolicy(),
	})
	if err != nil {
		t.Fatalf("NewFactory() error: %v", err)
	}

	cache := credentials.NewCache(credentials.NewStaticProvider(map[string]string{"app-1": "s3cret"}))
	bot := &mockBot{}
	var replyID string
	bot.onMessage = func(ctx context.Context, turn *dispatch.Turn) error {
		if turn.Credential.AppID != "app-1" {
			t.Errorf("credential app id = %q", turn.Credential.AppID)
		}
		if turn.Client == nil {
			return fmt.Errorf("no client attached")
		}
		res, err := turn.Reply(ctx, "pong")
		if err != nil {
			return err
		}
		replyID = res.ID
		return nil
	}

	g := newGateway(t, bot, Config{Credentials: cache, Clients: factory})
	a := teamsMessage(t, "")
	a.ServiceURL = srv.URL

	for i := 0; i < 2; i++ {
		if _, err := g.ProcessActivity(context.Background(), a, claimsFor("app-1")); err != nil {
			t.Fatalf("ProcessActivity() error: %v", err)
		}
	}

	if replyID != "reply-1" {
		t.Errorf("reply id = %q, want reply-1", replyID)
	}
	if got, _ := gotAuth.Load().(string); got != "Bearer tok-abc" {
		t.Errorf("Authorization = %q, want Bearer tok-abc", got)
	}
	if tokenCalls.Load() != 1 {
		t.Errorf("token calls = %d, want 1", tokenCalls.Load())
	}
	if cache.Len() != 1 {
		t.Errorf("cache len = %d, want 1", cache.Len())
	}
}

func TestProcessActivity_ChannelRenamedEndToEnd(t *testing.T) {
	bot := &mockBot{}
	g := newGateway(t, bot, Config{})
	a := &models.Activity{
		Type:        models.ActivityTypeConversationUpdate,
		ChannelID:   models.ChannelMSTeams,
		ChannelData: json.RawMessage(`{"eventType":"channelRenamed","channel":{"id":"C1"},"team":{"id":"T1"}}`),
	}

	resp, err := g.ProcessActivity(context.Background(), a, nil)
	if err != nil || resp != nil {
		t.Fatalf("ProcessActivity() = (%v, %v), want (nil, nil)", resp, err)
	}
	if len(bot.channels) != 1 || bot.channels[0].Channel.ID != "C1" {
		t.Fatalf("channel events = %+v, want one for C1", bot.channels)
	}
	if bot.handlerCalls() != 1 {
		t.Errorf("handler calls = %d, want 1", bot.handlerCalls())
	}
}

func TestProcessActivity_MessagingExtensionEndToEnd(t *testing.T) {
	want := &models.InvokeResponse{Status: http.StatusOK, Body: map[string]any{"composeExtension": map[string]string{"type": "result"}}}
	bot := &mockBot{invokeResp: want}
	g := newGateway(t, bot, Config{})
	a := &models.Activity{
		Type:  models.ActivityTypeInvoke,
		Name:  "composeExtension/query",
		Value: json.RawMessage(`{"commandId":"search"}`),
	}

	resp, err := g.ProcessActivity(context.Background(), a, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != want {
		t.Errorf("resp = %+v, want the handler's response", resp)
	}
	if len(bot.queries) != 1 || bot.queries[0].CommandID != "search" {
		t.Errorf("queries = %+v", bot.queries)
	}
}

func TestProcessActivity_HandlerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	bot := &mockBot{onMessage: func(context.Context, *dispatch.Turn) error { return boom }}
	g := newGateway(t, bot, Config{})

	_, err := g.ProcessActivity(context.Background(), teamsMessage(t, ""), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if StatusForError(err) != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", StatusForError(err))
	}
}

func TestProcessActivity_HooksRunInOrderBeforeDispatch(t *testing.T) {
	var order []string
	bot := &mockBot{onMessage: func(context.Context, *dispatch.Turn) error {
		order = append(order, "dispatch")
		return nil
	}}
	g := newGateway(t, bot, Config{Hooks: []Hook{
		func(context.Context, *dispatch.Turn) error { order = append(order, "first"); return nil },
		nil,
		func(context.Context, *dispatch.Turn) error { order = append(order, "second"); return nil },
	}})

	if _, err := g.ProcessActivity(context.Background(), teamsMessage(t, ""), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(order, ",") != "first,second,dispatch" {
		t.Errorf("order = %v", order)
	}
}

func TestProcessActivity_HookErrorStopsDispatch(t *testing.T) {
	bot := &mockBot{}
	stop := errors.New("rejected by hook")
	g := newGateway(t, bot, Config{Hooks: []Hook{
		func(context.Context, *dispatch.Turn) error { return stop },
	}})

	if _, err := g.ProcessActivity(context.Background(), teamsMessage(t, ""), nil); !errors.Is(err, stop) {
		t.Fatalf("err = %v, want hook error", err)
	}
	if bot.handlerCalls() != 0 {
		t.Error("handler invoked after hook failure")
	}
}

func TestProcessActivity_CancelledContext(t *testing.T) {
	bot := &mockBot{}
	g := newGateway(t, bot, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.ProcessActivity(ctx, teamsMessage(t, ""), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if bot.handlerCalls() != 0 {
		t.Error("handler invoked with cancelled context")
	}
}

func TestProcessActivity_DeadlineReachesOutboundCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	bot := &mockBot{onMessage: func(ctx context.Context, turn *dispatch.Turn) error {
		_, err := turn.Reply(ctx, "slow")
		return err
	}}
	g := newGateway(t, bot, Config{})
	a := teamsMessage(t, "")
	a.ServiceURL = srv.URL

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.ProcessActivity(ctx, a, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("took %s, deadline not propagated", elapsed)
	}
	if StatusForError(err) != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", StatusForError(err))
	}
}

func TestProcessActivity_ConcurrentActivities(t *testing.T) {
	bot := &mockBot{}
	cache := credentials.NewCache(credentials.NewStaticProvider(map[string]string{"app-1": "s"}))
	g := newGateway(t, bot, Config{Credentials: cache})

	a := teamsMessage(t, "")
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.ProcessActivity(context.Background(), a, claimsFor("app-1")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	if bot.handlerCalls() != 40 {
		t.Errorf("handler calls = %d, want 40", bot.handlerCalls())
	}
}
