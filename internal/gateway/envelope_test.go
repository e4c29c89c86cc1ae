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
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bcem/activitygateway/internal/identity"
	"github.com/bcem/activitygateway/internal/models"
	"github.com/bcem/activitygateway/internal/tenant"
)

func TestBuildEnvelope(t *testing.T) {
	tests := []struct {
		name       string
		resp       *models.InvokeResponse
		err        error
		wantStatus int
		wantBody   any
	}{
		{"no response", nil, nil, http.StatusOK, nil},
		{"invoke response", &models.InvokeResponse{Status: 200, Body: "X"}, nil, http.StatusOK, "X"},
		{"custom status", &models.InvokeResponse{Status: http.StatusConflict, Body: "dup"}, nil, http.StatusConflict, "dup"},
		{"zero status", &models.InvokeResponse{Body: "Y"}, nil, http.StatusOK, "Y"},
		{"unauthorized", nil, fmt.Errorf("verify: %w", identity.ErrUnauthorized), http.StatusUnauthorized, ErrorBody{Error: "Unauthorized"}},
		{"admission denied", nil, fmt.Errorf("admission: %w", tenant.ErrAdmissionDenied), http.StatusForbidden, ErrorBody{Error: "Forbidden"}},
		{"invalid activity", nil, ErrInvalidActivity, http.StatusBadRequest, ErrorBody{Error: "Bad Request"}},
		{"deadline", nil, fmt.Errorf("dispatch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, ErrorBody{Error: "Gateway Timeout"}},
		{"handler failure", nil, errors.New("boom"), http.StatusInternalServerError, ErrorBody{Error: "Internal Server Error"}},
		{"error wins over response", &models.InvokeResponse{Status: 200}, errors.New("boom"), http.StatusInternalServerError, ErrorBody{Error: "Internal Server Error"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := BuildEnvelope(tt.resp, tt.err)
			if env.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", env.Status, tt.wantStatus)
			}
			if env.Body != tt.wantBody {
				t.Errorf("Body = %#v, want %#v", env.Body, tt.wantBody)
			}
		})
	}
}
