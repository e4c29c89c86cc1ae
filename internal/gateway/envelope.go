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
	"net/http"

	"github.com/bcem/activitygateway/internal/identity"
	"github.com/bcem/activitygateway/internal/models"
	"github.com/bcem/activitygateway/internal/tenant"
)

// Envelope is the transport-level result of one activity. A nil Body means
// the response has no body.
type Envelope struct {
	Status int
	Body   any
}

// ErrorBody is the body sent with a failed envelope. Internal error detail
// is logged, not returned to the caller.
type ErrorBody struct {
	Error string `json:"error"`
}

// BuildEnvelope maps the outcome of ProcessActivity to a status and body.
func BuildEnvelope(resp *models.InvokeResponse, err error) Envelope {
	if err != nil {
		status := StatusForError(err)
		return Envelope{Status: status, Body: ErrorBody{Error: http.StatusText(status)}}
	}
	if resp == nil {
		return Envelope{Status: http.StatusOK}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	return Envelope{Status: status, Body: resp.Body}
}

// StatusForError classifies a pipeline error.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, identity.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, tenant.ErrAdmissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidActivity):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
