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

package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/bcem/activitygateway/internal/credentials"
	"github.com/bcem/activitygateway/internal/identity"
	"github.com/bcem/activitygateway/internal/models"
	"github.com/bcem/activitygateway/internal/outbound"
)

var (
	// ErrNoClient is returned by Turn helpers when the activity carried no
	// service URL to post back to.
	ErrNoClient = errors.New("turn has no outbound client")
	// ErrNoDeferredSender is returned by Turn.Defer when deferred sends are
	// not configured.
	ErrNoDeferredSender = errors.New("deferred send not configured")
)

// DeferredSender posts an activity into a conversation at a later time.
type DeferredSender interface {
	Enqueue(ctx context.Context, ref models.ConversationReference, activity *models.Activity, notBefore time.Time) (string, error)
}

// Turn is everything a handler gets for one inbound activity. The gateway
// fills it in before dispatch; handlers treat it as read-only.
type Turn struct {
	Activity    *models.Activity
	Identity    identity.ClaimsIdentity
	Credential  credentials.AppCredential
	ChannelData *models.TeamsChannelData

	// Client posts back to Activity.ServiceURL as Credential. Nil when the
	// activity had no service URL.
	Client *outbound.Client

	// Deferred is nil when deferred sends are not configured.
	Deferred DeferredSender
}

// TenantID returns the Teams tenant of the activity, or "".
func (t *Turn) TenantID() string {
	return t.ChannelData.TenantID()
}

// Reply posts a text reply to the inbound activity.
func (t *Turn) Reply(ctx context.Context, text string) (*models.ResourceResponse, error) {
	if t.Client == nil {
		return nil, ErrNoClient
	}
	reply := t.Activity.CreateReply(text)
	if t.Activity.ID == "" {
		return t.Client.SendToConversation(ctx, t.Activity.Conversation.ID, reply)
	}
	return t.Client.ReplyToActivity(ctx, t.Activity.Conversation.ID, t.Activity.ID, reply)
}

// Send posts an activity to the end of the inbound conversation.
func (t *Turn) Send(ctx context.Context, activity *models.Activity) (*models.ResourceResponse, error) {
	if t.Client == nil {
		return nil, ErrNoClient
	}
	return t.Client.SendToConversation(ctx, t.Activity.Conversation.ID, activity)
}

// Defer hands activity to the deferred sender for delivery into this
// conversation no earlier than notBefore.
func (t *Turn) Defer(ctx context.Context, activity *models.Activity, notBefore time.Time) (string, error) {
	if t.Deferred == nil {
		return "", ErrNoDeferredSender
	}
	return t.Deferred.Enqueue(ctx, t.Activity.ConversationReference(), activity, notBefore)
}
