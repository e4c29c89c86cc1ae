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
	"fmt"
)

// StaticProvider serves secrets listed in the configuration file.
type StaticProvider struct {
	secrets map[string]string
}

// NewStaticProvider copies the given app id -> secret map.
func NewStaticProvider(secrets map[string]string) *StaticProvider {
	m := make(map[string]string, len(secrets))
	for k, v := range secrets {
		m[k] = v
	}
	return &StaticProvider{secrets: m}
}

// GetSecret returns the configured secret for appID.
func (p *StaticProvider) GetSecret(_ context.Context, appID string) (string, error) {
	secret, ok := p.secrets[appID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownApp, appID)
	}
	return secret, nil
}
