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

// Activity Gateway server
//
// Entry point for the chat-platform activity gateway. It:
//  1. Loads configuration from config.yaml
//  2. Connects the configured credential provider (static, PostgreSQL or Redis)
//  3. Builds the credential cache, outbound client factory and tenant policy
//  4. Serves POST /api/messages and GET /health
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/activitygateway/internal/config"
	"github.com/bcem/activitygateway/internal/credentials"
	"github.com/bcem/activitygateway/internal/deferred"
	"github.com/bcem/activitygateway/internal/dispatch"
	"github.com/bcem/activitygateway/internal/gateway"
	"github.com/bcem/activitygateway/internal/identity"
	"github.com/bcem/activitygateway/internal/outbound"
	"github.com/bcem/activitygateway/internal/tenant"
	"github.com/bcem/activitygateway/internal/webhook"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting activity gateway",
		"port", cfg.Port,
		"auth_enabled", cfg.Auth.Enabled,
		"tenant_filtering", cfg.Tenants.EnableFiltering,
		"allowed_tenants", len(cfg.Tenants.Allowed),
		"credential_provider", cfg.Credentials.Provider,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway shut down cleanly")
}

func run(ctx context.Context, cfg *config.Config) error {
	var checks []webhook.HealthCheck
	redisClients := make(map[string]*redis.Client)

	connectRedis := func(url string) (*redis.Client, error) {
		if rdb, ok := redisClients[url]; ok {
			return rdb, nil
		}
		opt, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		redisClients[url] = rdb
		checks = append(checks, webhook.HealthCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		slog.Info("connected to Redis")
		return rdb, nil
	}
	defer func() {
		for _, rdb := range redisClients {
			rdb.Close()
		}
	}()

	// --- Credential Provider ---
	var provider credentials.Provider
	switch cfg.Credentials.Provider {
	case config.ProviderPostgres:
		pool, err := pgxpool.New(ctx, cfg.Credentials.DatabaseURL)
		if err != nil {
			return fmt.Errorf("create Postgres pool: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		slog.Info("connected to PostgreSQL")
		checks = append(checks, webhook.HealthCheck{Name: "postgres", Ping: pool.Ping})

		pg, err := credentials.NewPostgresProvider(ctx, pool)
		if err != nil {
			return err
		}
		if err := pg.Seed(ctx, cfg.Credentials.Apps); err != nil {
			return err
		}
		provider = pg
	case config.ProviderRedis:
		rdb, err := connectRedis(cfg.Credentials.RedisURL)
		if err != nil {
			return err
		}
		provider = credentials.NewRedisProvider(rdb, cfg.Credentials.RedisKey)
	default:
		provider = credentials.NewStaticProvider(cfg.Credentials.Apps)
	}

	// --- Deferred Sends (optional) ---
	var sender dispatch.DeferredSender
	if cfg.Deferred.RedisURL != "" {
		rdb, err := connectRedis(cfg.Deferred.RedisURL)
		if err != nil {
			return err
		}
		sender = deferred.NewPublisher(rdb, cfg.Deferred.Queue)
	}

	// --- Gateway ---
	factory, err := outbound.NewFactory(outbound.FactoryConfig{
		TokenURL: cfg.OAuth.TokenURL,
		Scope:    cfg.OAuth.Scope,
		Policy:   cfg.Retry,
	})
	if err != nil {
		return fmt.Errorf("create client factory: %w", err)
	}

	policy, err := tenant.NewPolicy(cfg.Tenants.EnableFiltering, cfg.Tenants.Allowed)
	if err != nil {
		return fmt.Errorf("build tenant policy: %w", err)
	}

	gw, err := gateway.New(gateway.Config{
		Tenants:     policy,
		Credentials: credentials.NewCache(provider),
		Clients:     factory,
		Dispatcher:  dispatch.New(dispatch.HandlersFor(&echoBot{})),
		Deferred:    sender,
	})
	if err != nil {
		return err
	}

	verifier, err := identity.NewVerifier(cfg.Auth)
	if err != nil {
		return fmt.Errorf("build token verifier: %w", err)
	}
	if !verifier.Enabled() {
		slog.Warn("inbound authentication disabled; every caller is anonymous")
	}

	// --- Ingress ---
	handler := webhook.NewHandler(gw, verifier, checks...)
	ready, stopped, err := webhook.Serve(ctx, webhook.ServerConfig{
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, handler)
	if err != nil {
		return err
	}
	<-ready
	slog.Info("gateway ready")

	<-ctx.Done()
	slog.Info("received shutdown signal")
	<-stopped
	return nil
}
