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

// Package outbound provides the connector client handlers use to post back
// into a conversation, and the factory that builds one per service URL and
// application credential. Every call is wrapped in a RetryPolicy that
// retries only rate-limited (HTTP 429) responses.
package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bcem/activitygateway/internal/models"
)

// maxErrorBody caps how much of a failed response body is kept on HTTPError.
const maxErrorBody = 4 << 10

// Client talks to the connector API rooted at one service URL.
type Client struct {
	httpClient *http.Client
	serviceURL string
	appID      string
	policy     RetryPolicy
}

// ServiceURL returns the base URL this client posts to.
func (c *Client) ServiceURL() string {
	return c.serviceURL
}

// AppID returns the application id the client authenticates as, or "" for
// an anonymous client.
func (c *Client) AppID() string {
	return c.appID
}

// SendToConversation posts an activity to the end of a conversation.
func (c *Client) SendToConversation(ctx context.Context, conversationID string, activity *models.Activity) (*models.ResourceResponse, error) {
	var out models.ResourceResponse
	path := fmt.Sprintf("v3/conversations/%s/activities", url.PathEscape(conversationID))
	if err := c.do(ctx, http.MethodPost, path, activity, &out); err != nil {
		return nil, fmt.Errorf("send to conversation: %w", err)
	}
	return &out, nil
}

// ReplyToActivity posts an activity as a reply to activityID.
func (c *Client) ReplyToActivity(ctx context.Context, conversationID, activityID string, activity *models.Activity) (*models.ResourceResponse, error) {
	var out models.ResourceResponse
	path := fmt.Sprintf("v3/conversations/%s/activities/%s",
		url.PathEscape(conversationID), url.PathEscape(activityID))
	if err := c.do(ctx, http.MethodPost, path, activity, &out); err != nil {
		return nil, fmt.Errorf("reply to activity: %w", err)
	}
	return &out, nil
}

// UpdateActivity replaces a previously sent activity.
func (c *Client) UpdateActivity(ctx context.Context, conversationID, activityID string, activity *models.Activity) (*models.ResourceResponse, error) {
	var out models.ResourceResponse
	path := fmt.Sprintf("v3/conversations/%s/activities/%s",
		url.PathEscape(conversationID), url.PathEscape(activityID))
	if err := c.do(ctx, http.MethodPut, path, activity, &out); err != nil {
		return nil, fmt.Errorf("update activity: %w", err)
	}
	return &out, nil
}

// DeleteActivity removes a previously sent activity.
func (c *Client) DeleteActivity(ctx context.Context, conversationID, activityID string) error {
	path := fmt.Sprintf("v3/conversations/%s/activities/%s",
		url.PathEscape(conversationID), url.PathEscape(activityID))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return nil
}

// GetConversationMembers lists the members of a conversation.
func (c *Client) GetConversationMembers(ctx context.Context, conversationID string) ([]models.ChannelAccount, error) {
	var out []models.ChannelAccount
	path := fmt.Sprintf("v3/conversations/%s/members", url.PathEscape(conversationID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("get conversation members: %w", err)
	}
	return out, nil
}

// do performs one logical call under the client's retry policy. The body is
// marshalled once and replayed on every attempt.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	endpoint := strings.TrimRight(c.serviceURL, "/") + "/" + path

	return Retry(ctx, c.policy, func(ctx context.Context) error {
		return c.attempt(ctx, method, endpoint, payload, out)
	})
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseRetryAfter understands the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
