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

// Package identity models the verified identity of the application calling
// the gateway and extracts the app id used to resolve outbound credentials.
package identity

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ClaimAudience is checked first when looking for the caller's app id.
	ClaimAudience = "aud"
	// ClaimAppID is the fallback app id claim.
	ClaimAppID = "appid"
)

// ClaimsIdentity is the verified claim set attached to an inbound request.
// An identity with no claims is anonymous.
type ClaimsIdentity struct {
	Claims jwt.MapClaims
}

// Anonymous returns the identity substituted when authentication is disabled.
func Anonymous() ClaimsIdentity {
	return ClaimsIdentity{Claims: jwt.MapClaims{}}
}

// Resolve passes an upstream identity through, or substitutes the anonymous
// identity when none was attached.
func Resolve(claims *ClaimsIdentity) ClaimsIdentity {
	if claims == nil || claims.Claims == nil {
		return Anonymous()
	}
	return *claims
}

// IsAnonymous reports whether the identity carries no claims.
func (c ClaimsIdentity) IsAnonymous() bool {
	return len(c.Claims) == 0
}

// AppID returns the calling application's id: the audience claim if present,
// otherwise the app id claim. It returns "" for anonymous callers.
func (c ClaimsIdentity) AppID() string {
	if v := claimString(c.Claims, ClaimAudience); v != "" {
		return v
	}
	return claimString(c.Claims, ClaimAppID)
}

// Claim returns a single claim rendered as a string.
func (c ClaimsIdentity) Claim(key string) string {
	return claimString(c.Claims, key)
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		// aud may be an array; the first entry is the bot's own app id.
		if len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	case []any:
		if len(v) > 0 {
			return claimString(jwt.MapClaims{key: v[0]}, key)
		}
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
