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

package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned when a request carries no valid bearer token
// while authentication is enabled.
var ErrUnauthorized = errors.New("unauthorized")

// VerifierConfig configures inbound bearer-token verification.
type VerifierConfig struct {
	Enabled    bool
	SigningKey string
	Issuer     string
	Audience   string
}

// Verifier turns the Authorization header of an inbound request into a
// ClaimsIdentity.
type Verifier struct {
	enabled bool
	key     []byte
	parser  *jwt.Parser
}

// NewVerifier creates a verifier. A signing key is required when enabled.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if !cfg.Enabled {
		return &Verifier{}, nil
	}
	if strings.TrimSpace(cfg.SigningKey) == "" {
		return nil, fmt.Errorf("auth signing key is required when auth is enabled")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{
		enabled: true,
		key:     []byte(cfg.SigningKey),
		parser:  jwt.NewParser(opts...),
	}, nil
}

// Enabled reports whether requests are authenticated.
func (v *Verifier) Enabled() bool {
	return v != nil && v.enabled
}

// VerifyRequest validates the bearer token of r. With authentication
// disabled it returns (nil, nil) and the caller substitutes the anonymous
// identity.
func (v *Verifier) VerifyRequest(r *http.Request) (*ClaimsIdentity, error) {
	if !v.Enabled() {
		return nil, nil
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	claims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(strings.TrimSpace(token), claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	return &ClaimsIdentity{Claims: claims}, nil
}
