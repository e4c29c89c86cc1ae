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

// Package dispatch routes an inbound activity to exactly one registered
// handler.
//
// Routing is two-level. The activity type selects message, reaction,
// conversation update or invoke. Conversation updates are then routed on
// channelData.eventType (exact match) and invokes on the activity name
// (ordered, case-insensitive prefix match). Anything that does not match a
// typed handler falls back to the generic handler for its type, and a
// missing handler is a no-op rather than an error.
//
// A Dispatcher holds no per-call state and may serve any number of
// concurrent turns.
package dispatch

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bcem/activitygateway/internal/models"
)

// Dispatcher routes turns to handlers.
type Dispatcher struct {
	handlers Handlers
}

// New creates a dispatcher over the given handler set.
func New(handlers Handlers) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// Dispatch delivers the turn to one handler. Invoke activities always yield
// a non-nil response; every other type yields nil. Handler errors are
// returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, turn *Turn) (*models.InvokeResponse, error) {
	switch r := Classify(turn.Activity).(type) {
	case MessageRoute:
		if d.handlers.Message == nil {
			return nil, nil
		}
		return nil, d.handlers.Message.OnMessage(ctx, turn)

	case ReactionRoute:
		if d.handlers.Reaction == nil {
			return nil, nil
		}
		return nil, d.handlers.Reaction.OnMessageReaction(ctx, turn)

	case ConversationUpdateRoute:
		if turn.ChannelData == nil {
			turn.ChannelData = r.ChannelData
		}
		return nil, d.conversationUpdate(ctx, turn, r)

	case InvokeRoute:
		return d.invoke(ctx, turn, r)

	case IgnoredRoute:
		slog.Debug("no route for activity type", "activity_type", r.Type)
		return nil, nil

	default:
		return nil, nil
	}
}

func (d *Dispatcher) conversationUpdate(ctx context.Context, turn *Turn, r ConversationUpdateRoute) error {
	a := turn.Activity
	var teamCtx models.TeamContext
	var channel *models.ChannelInfo
	if r.ChannelData != nil {
		teamCtx = models.TeamContext{Team: r.ChannelData.Team, Tenant: r.ChannelData.Tenant}
		channel = r.ChannelData.Channel
	}

	h := d.handlers
	switch r.Kind {
	case models.ConversationEventTeamMemberAdded:
		if h.TeamMembersAdded != nil {
			return h.TeamMembersAdded.OnTeamMembersAdded(ctx, turn, models.TeamMembersAddedEvent{
				TeamContext:  teamCtx,
				MembersAdded: a.MembersAdded,
			})
		}
	case models.ConversationEventTeamMemberRemoved:
		if h.TeamMembersRemoved != nil {
			return h.TeamMembersRemoved.OnTeamMembersRemoved(ctx, turn, models.TeamMembersRemovedEvent{
				TeamContext:    teamCtx,
				MembersRemoved: a.MembersRemoved,
			})
		}
	case models.ConversationEventChannelCreated:
		if h.ChannelCreated != nil {
			return h.ChannelCreated.OnChannelCreated(ctx, turn, models.ChannelEvent{TeamContext: teamCtx, Channel: channel})
		}
	case models.ConversationEventChannelDeleted:
		if h.ChannelDeleted != nil {
			return h.ChannelDeleted.OnChannelDeleted(ctx, turn, models.ChannelEvent{TeamContext: teamCtx, Channel: channel})
		}
	case models.ConversationEventChannelRenamed:
		if h.ChannelRenamed != nil {
			return h.ChannelRenamed.OnChannelRenamed(ctx, turn, models.ChannelEvent{TeamContext: teamCtx, Channel: channel})
		}
	case models.ConversationEventTeamRenamed:
		if h.TeamRenamed != nil {
			return h.TeamRenamed.OnTeamRenamed(ctx, turn, models.TeamRenamedEvent{TeamContext: teamCtx})
		}
	case models.ConversationEventUnknown:
	}

	if h.ConversationUpdate == nil {
		return nil
	}
	return h.ConversationUpdate.OnConversationUpdate(ctx, turn)
}

func (d *Dispatcher) invoke(ctx context.Context, turn *Turn, r InvokeRoute) (*models.InvokeResponse, error) {
	h := d.handlers
	var (
		resp    *models.InvokeResponse
		err     error
		handled = true
	)

	switch r.Kind {
	case models.InvokeMessagingExtensionQuery:
		if h.MessagingExtensionQuery == nil {
			handled = false
			break
		}
		var q models.MessagingExtensionQuery
		decodeValue(turn.Activity, &q)
		resp, err = h.MessagingExtensionQuery.OnMessagingExtensionQuery(ctx, turn, q)
	case models.InvokeConnectorCardAction:
		if h.ConnectorCardAction == nil {
			handled = false
			break
		}
		var q models.ConnectorCardActionQuery
		decodeValue(turn.Activity, &q)
		resp, err = h.ConnectorCardAction.OnConnectorCardAction(ctx, turn, q)
	case models.InvokeSigninVerifyState:
		if h.SigninVerifyState == nil {
			handled = false
			break
		}
		var q models.SigninStateVerificationQuery
		decodeValue(turn.Activity, &q)
		resp, err = h.SigninVerifyState.OnSigninVerifyState(ctx, turn, q)
	case models.InvokeGeneric:
		handled = false
	}

	if !handled && h.Invoke != nil {
		resp, err = h.Invoke.OnInvoke(ctx, turn)
	}
	if err != nil {
		return nil, err
	}
	return normalizeInvokeResponse(resp), nil
}

// decodeValue fills v from the activity value. A value of the wrong shape
// leaves v zeroed; the handler still runs and can inspect Activity.Value.
func decodeValue(a *models.Activity, v any) {
	if err := a.DecodeValue(v); err != nil {
		slog.Debug("invoke value did not match expected shape",
			"name", a.Name,
			"error", err,
		)
	}
}

func normalizeInvokeResponse(resp *models.InvokeResponse) *models.InvokeResponse {
	if resp == nil {
		return &models.InvokeResponse{Status: http.StatusOK}
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	return resp
}
