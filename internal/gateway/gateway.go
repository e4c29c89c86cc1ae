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

// Package gateway is the single entry point for an inbound activity.
//
// ProcessActivity runs a fixed, ordered pipeline: resolve the caller
// identity, apply tenant admission, resolve the app credential and attach
// an outbound client, run any host hooks, then dispatch. Each stage sees
// the same *dispatch.Turn and a failing stage stops the pipeline, so a
// rejected activity never reaches a handler.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bcem/activitygateway/internal/credentials"
	"github.com/bcem/activitygateway/internal/dispatch"
	"github.com/bcem/activitygateway/internal/identity"
	"github.com/bcem/activitygateway/internal/models"
	"github.com/bcem/activitygateway/internal/outbound"
	"github.com/bcem/activitygateway/internal/tenant"
)

// ErrInvalidActivity is returned for a nil activity or one without a type.
var ErrInvalidActivity = errors.New("invalid activity")

// Hook runs after the built-in stages and before dispatch. Returning an
// error stops the activity.
type Hook func(ctx context.Context, turn *dispatch.Turn) error

// Config wires the gateway's collaborators. Dispatcher is required.
type Config struct {
	// Tenants may be nil, which admits every activity.
	Tenants *tenant.Policy
	// Credentials defaults to a cache with no provider, which only serves
	// anonymous callers.
	Credentials *credentials.Cache
	// Clients defaults to a factory with the default retry policy.
	Clients    *outbound.Factory
	Dispatcher *dispatch.Dispatcher
	// Deferred is optional.
	Deferred dispatch.DeferredSender
	Hooks    []Hook
}

type stage struct {
	name string
	run  Hook
}

// Gateway processes inbound activities. It is safe for concurrent use.
type Gateway struct {
	tenants    *tenant.Policy
	creds      *credentials.Cache
	clients    *outbound.Factory
	dispatcher *dispatch.Dispatcher
	deferred   dispatch.DeferredSender
	stages     []stage
}

// New validates cfg and builds a gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("gateway: dispatcher is required")
	}
	if cfg.Credentials == nil {
		cfg.Credentials = credentials.NewCache(nil)
	}
	if cfg.Clients == nil {
		f, err := outbound.NewFactory(outbound.FactoryConfig{Policy: outbound.DefaultRetryPolicy()})
		if err != nil {
			return nil, fmt.Errorf("gateway: default client factory: %w", err)
		}
		cfg.Clients = f
	}

	g := &Gateway{
		tenants:    cfg.Tenants,
		creds:      cfg.Credentials,
		clients:    cfg.Clients,
		dispatcher: cfg.Dispatcher,
		deferred:   cfg.Deferred,
	}
	g.stages = []stage{
		{name: "admission", run: g.admit},
		{name: "credentials", run: g.attachClient},
	}
	for i, h := range cfg.Hooks {
		if h == nil {
			continue
		}
		g.stages = append(g.stages, stage{name: fmt.Sprintf("hook %d", i), run: h})
	}
	return g, nil
}

// ProcessActivity runs one activity through the pipeline. claims is the
// identity verified by the transport, or nil when authentication is
// disabled. The returned response is non-nil only for invoke activities.
//
// Errors are wrapped with the stage that produced them; sentinels such as
// tenant.ErrAdmissionDenied stay reachable with errors.Is.
func (g *Gateway) ProcessActivity(ctx context.Context, activity *models.Activity, claims *identity.ClaimsIdentity) (*models.InvokeResponse, error) {
	if activity == nil {
		return nil, fmt.Errorf("%w: nil activity", ErrInvalidActivity)
	}
	if strings.TrimSpace(string(activity.Type)) == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidActivity)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	turn := &dispatch.Turn{
		Activity: activity,
		Identity: identity.Resolve(claims),
		Deferred: g.deferred,
	}
	if data, ok := activity.TeamsChannelData(); ok {
		turn.ChannelData = data
	}

	for _, s := range g.stages {
		if err := s.run(ctx, turn); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	resp, err := g.dispatcher.Dispatch(ctx, turn)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", activity.Type, err)
	}
	return resp, nil
}

func (g *Gateway) admit(_ context.Context, turn *dispatch.Turn) error {
	return g.tenants.Check(turn.Activity)
}

// attachClient resolves the caller's credential and binds an outbound
// client to the activity's service URL. Activities without a service URL
// get no client.
func (g *Gateway) attachClient(ctx context.Context, turn *dispatch.Turn) error {
	appID := turn.Identity.AppID()
	cred, err := g.creds.Resolve(ctx, appID)
	if err != nil {
		return fmt.Errorf("resolve credential for %q: %w", appID, err)
	}
	turn.Credential = cred

	serviceURL := strings.TrimSpace(turn.Activity.ServiceURL)
	if serviceURL == "" {
		slog.Debug("activity has no service url, skipping outbound client",
			"activity_type", turn.Activity.Type,
			"app_id", appID,
		)
		return nil
	}

	client, err := g.clients.NewClient(serviceURL, cred)
	if err != nil {
		return fmt.Errorf("create outbound client: %w", err)
	}
	turn.Client = client
	return nil
}
