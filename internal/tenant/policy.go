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

// Package tenant implements the optional tenant allow-list that gates
// activities before they are dispatched.
package tenant

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bcem/activitygateway/internal/models"
)

var (
	// ErrAdmissionDenied is returned for activities from tenants outside the allow-list.
	ErrAdmissionDenied = errors.New("tenant not permitted")
	// ErrInvalidTenantID is returned at construction for malformed tenant ids.
	ErrInvalidTenantID = errors.New("invalid tenant id")
)

// Policy is the tenant admission configuration. It is read-only after
// construction and safe for concurrent use.
type Policy struct {
	enabled bool
	allowed map[string]struct{}
}

// NewPolicy validates and normalises the allow-list. Every id must be a
// GUID; ids are compared case-insensitively.
func NewPolicy(enableFiltering bool, allowedTenantIDs []string) (*Policy, error) {
	allowed := make(map[string]struct{}, len(allowedTenantIDs))
	for _, raw := range allowedTenantIDs {
		id, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		allowed[id] = struct{}{}
	}

	if enableFiltering && len(allowed) == 0 {
		slog.Warn("tenant filtering enabled with an empty allow-list; every tenant-tagged activity will be denied")
	}

	return &Policy{enabled: enableFiltering, allowed: allowed}, nil
}

// Normalize returns the canonical lower-case form of a GUID tenant id.
func Normalize(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidTenantID, raw, err)
	}
	return id.String(), nil
}

// Enabled reports whether filtering is on.
func (p *Policy) Enabled() bool {
	return p != nil && p.enabled
}

// Allows reports whether tenantID is on the allow-list.
func (p *Policy) Allows(tenantID string) bool {
	if p == nil {
		return false
	}
	id, err := Normalize(tenantID)
	if err != nil {
		return false
	}
	_, ok := p.allowed[id]
	return ok
}

// Check admits or rejects an activity. With filtering disabled every
// activity passes. Activities without tenant metadata also pass: not every
// channel carries a tenant, and those channels are not multi-tenant. A
// tenant that is present but cannot be read is denied.
func (p *Policy) Check(activity *models.Activity) error {
	if !p.Enabled() || activity == nil {
		return nil
	}

	tenantID, err := tenantFromChannelData(activity.ChannelData)
	if err != nil {
		slog.Warn("activity rejected by tenant filter",
			"channel", activity.ChannelID,
			"activity_type", activity.Type,
			"error", err,
		)
		return fmt.Errorf("%w: unreadable tenant metadata: %v", ErrAdmissionDenied, err)
	}
	if tenantID == "" {
		return nil
	}

	if !p.Allows(tenantID) {
		slog.Warn("activity rejected by tenant filter",
			"tenant", tenantID,
			"channel", activity.ChannelID,
			"activity_type", activity.Type,
		)
		return fmt.Errorf("%w: %s", ErrAdmissionDenied, tenantID)
	}
	return nil
}

// tenantFromChannelData reads channelData.tenant.id and nothing else, so a
// sibling field of the wrong type cannot hide the tenant. Non-object
// channelData carries no tenant.
func tenantFromChannelData(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return "", nil
	}

	var envelope struct {
		Tenant json.RawMessage `json:"tenant"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", err
	}
	if len(envelope.Tenant) == 0 || bytes.Equal(envelope.Tenant, []byte("null")) {
		return "", nil
	}

	var t struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(envelope.Tenant, &t); err != nil {
		return "", fmt.Errorf("decode tenant: %w", err)
	}
	return strings.TrimSpace(t.ID), nil
}
