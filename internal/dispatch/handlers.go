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

	"github.com/bcem/activitygateway/internal/models"
)

// MessageHandler handles message activities.
type MessageHandler interface {
	OnMessage(ctx context.Context, turn *Turn) error
}

// ReactionHandler handles message reaction activities.
type ReactionHandler interface {
	OnMessageReaction(ctx context.Context, turn *Turn) error
}

// ConversationUpdateHandler receives conversation updates that have no
// typed handler: unknown event types, non-Teams channels, or typed events
// whose handler is not registered.
type ConversationUpdateHandler interface {
	OnConversationUpdate(ctx context.Context, turn *Turn) error
}

// TeamMembersAddedHandler handles the teamMemberAdded event.
type TeamMembersAddedHandler interface {
	OnTeamMembersAdded(ctx context.Context, turn *Turn, event models.TeamMembersAddedEvent) error
}

// TeamMembersRemovedHandler handles the teamMemberRemoved event.
type TeamMembersRemovedHandler interface {
	OnTeamMembersRemoved(ctx context.Context, turn *Turn, event models.TeamMembersRemovedEvent) error
}

// ChannelCreatedHandler handles the channelCreated event.
type ChannelCreatedHandler interface {
	OnChannelCreated(ctx context.Context, turn *Turn, event models.ChannelEvent) error
}

// ChannelDeletedHandler handles the channelDeleted event.
type ChannelDeletedHandler interface {
	OnChannelDeleted(ctx context.Context, turn *Turn, event models.ChannelEvent) error
}

// ChannelRenamedHandler handles the channelRenamed event.
type ChannelRenamedHandler interface {
	OnChannelRenamed(ctx context.Context, turn *Turn, event models.ChannelEvent) error
}

// TeamRenamedHandler handles the teamRenamed event.
type TeamRenamedHandler interface {
	OnTeamRenamed(ctx context.Context, turn *Turn, event models.TeamRenamedEvent) error
}

// InvokeHandler receives invoke activities with no typed handler.
type InvokeHandler interface {
	OnInvoke(ctx context.Context, turn *Turn) (*models.InvokeResponse, error)
}

// MessagingExtensionQueryHandler handles composeExtension/* and messagingExtension/* invokes.
type MessagingExtensionQueryHandler interface {
	OnMessagingExtensionQuery(ctx context.Context, turn *Turn, query models.MessagingExtensionQuery) (*models.InvokeResponse, error)
}

// ConnectorCardActionHandler handles actionableMessage/executeAction invokes.
type ConnectorCardActionHandler interface {
	OnConnectorCardAction(ctx context.Context, turn *Turn, query models.ConnectorCardActionQuery) (*models.InvokeResponse, error)
}

// SigninVerifyStateHandler handles signin/verifyState invokes.
type SigninVerifyStateHandler interface {
	OnSigninVerifyState(ctx context.Context, turn *Turn, query models.SigninStateVerificationQuery) (*models.InvokeResponse, error)
}

// Handlers is the set of registered handlers. Nil fields are unregistered.
type Handlers struct {
	Message            MessageHandler
	Reaction           ReactionHandler
	ConversationUpdate ConversationUpdateHandler

	TeamMembersAdded   TeamMembersAddedHandler
	TeamMembersRemoved TeamMembersRemovedHandler
	ChannelCreated     ChannelCreatedHandler
	ChannelDeleted     ChannelDeletedHandler
	ChannelRenamed     ChannelRenamedHandler
	TeamRenamed        TeamRenamedHandler

	Invoke                  InvokeHandler
	MessagingExtensionQuery MessagingExtensionQueryHandler
	ConnectorCardAction     ConnectorCardActionHandler
	SigninVerifyState       SigninVerifyStateHandler
}

// HandlersFor registers every handler interface bot implements.
func HandlersFor(bot any) Handlers {
	var h Handlers
	h.Message, _ = bot.(MessageHandler)
	h.Reaction, _ = bot.(ReactionHandler)
	h.ConversationUpdate, _ = bot.(ConversationUpdateHandler)
	h.TeamMembersAdded, _ = bot.(TeamMembersAddedHandler)
	h.TeamMembersRemoved, _ = bot.(TeamMembersRemovedHandler)
	h.ChannelCreated, _ = bot.(ChannelCreatedHandler)
	h.ChannelDeleted, _ = bot.(ChannelDeletedHandler)
	h.ChannelRenamed, _ = bot.(ChannelRenamedHandler)
	h.TeamRenamed, _ = bot.(TeamRenamedHandler)
	h.Invoke, _ = bot.(InvokeHandler)
	h.MessagingExtensionQuery, _ = bot.(MessagingExtensionQueryHandler)
	h.ConnectorCardAction, _ = bot.(ConnectorCardActionHandler)
	h.SigninVerifyState, _ = bot.(SigninVerifyStateHandler)
	return h
}
