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

// Package webhook is the HTTP ingress for the chat platform. The connector
// POSTs each activity to /api/messages; the handler verifies the caller,
// runs the activity through the gateway and writes the resulting envelope
// back synchronously, which is how invoke activities receive their reply.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bcem/activitygateway/internal/gateway"
	"github.com/bcem/activitygateway/internal/identity"
	"github.com/bcem/activitygateway/internal/models"
)

// maxActivityBytes bounds an inbound activity body.
const maxActivityBytes = 1 << 20

// Processor runs one activity. *gateway.Gateway satisfies it.
type Processor interface {
	ProcessActivity(ctx context.Context, activity *models.Activity, claims *identity.ClaimsIdentity) (*models.InvokeResponse, error)
}

// Authenticator verifies the inbound request. *identity.Verifier satisfies
// it; a nil claims identity with a nil error means authentication is off.
type Authenticator interface {
	VerifyRequest(r *http.Request) (*identity.ClaimsIdentity, error)
}

// HealthCheck is one backend checked by /health.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handler serves the activity and health endpoints.
type Handler struct {
	processor Processor
	auth      Authenticator
	checks    []HealthCheck
}

// NewHandler creates an ingress handler. auth may be nil, in which case
// every caller is treated as anonymous.
func NewHandler(processor Processor, auth Authenticator, checks ...HealthCheck) *Handler {
	return &Handler{
		processor: processor,
		auth:      auth,
		checks:    checks,
	}
}

// ServeActivity handles POST /api/messages.
func (h *Handler) ServeActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var claims *identity.ClaimsIdentity
	if h.auth != nil {
		var err error
		claims, err = h.auth.VerifyRequest(r)
		if err != nil {
			slog.Warn("rejected unauthenticated activity",
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			writeEnvelope(w, gateway.BuildEnvelope(nil, err))
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActivityBytes))
	if err != nil {
		slog.Warn("failed to read activity body", "error", err)
		writeEnvelope(w, gateway.BuildEnvelope(nil, fmt.Errorf("%w: %v", gateway.ErrInvalidActivity, err)))
		return
	}

	var activity models.Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		slog.Info("activity body not valid JSON",
			"body_len", len(body),
			"error", err,
		)
		writeEnvelope(w, gateway.BuildEnvelope(nil, fmt.Errorf("%w: %v", gateway.ErrInvalidActivity, err)))
		return
	}

	resp, err := h.processor.ProcessActivity(r.Context(), &activity, claims)
	env := gateway.BuildEnvelope(resp, err)
	if err != nil {
		attrs := []any{
			"activity_type", activity.Type,
			"activity_id", activity.ID,
			"status", env.Status,
			"error", err,
		}
		if env.Status >= http.StatusInternalServerError {
			slog.Error("activity processing failed", attrs...)
		} else {
			slog.Warn("activity rejected", attrs...)
		}
	}
	writeEnvelope(w, env)
}

// ServeHealth handles GET /health by pinging every configured backend.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := c.Ping(ctx)
		cancel()
		if err != nil {
			slog.Warn("health check failed", "backend", c.Name, "error", err)
			http.Error(w, c.Name+" unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}

func writeEnvelope(w http.ResponseWriter, env gateway.Envelope) {
	if env.Body == nil {
		w.WriteHeader(env.Status)
		return
	}
	data, err := json.Marshal(env.Body)
	if err != nil {
		slog.Error("failed to encode response body", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(env.Status)
	w.Write(data)
}

// Routes returns the ingress mux.
func Routes(handler *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages", handler.ServeActivity)
	mux.HandleFunc("GET /health", handler.ServeHealth)
	return mux
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Serve starts the ingress HTTP server.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections. Cancelling ctx drains in-flight
// requests for up to 15 seconds; stopped is closed once the drain finishes.
func Serve(ctx context.Context, cfg ServerConfig, handler *Handler) (ready, stopped <-chan struct{}, err error) {
	server := &http.Server{
		Handler:      Routes(handler),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, nil, fmt.Errorf("bind ingress port %d: %w", cfg.Port, err)
	}

	readyCh := make(chan struct{})
	stoppedCh := make(chan struct{})

	go func() {
		defer close(stoppedCh)
		<-ctx.Done()
		slog.Info("ingress server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("ingress server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("ingress server listening", "port", cfg.Port)
		close(readyCh)
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ingress server error", "error", err)
		}
	}()

	return readyCh, stoppedCh, nil
}
