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

package models

import (
	"encoding/json"
	"strings"
)

// TeamInfo describes the team an activity was raised in.
type TeamInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	AADGroupID string `json:"aadGroupId,omitempty"`
}

// ChannelInfo describes a channel within a team.
type ChannelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// TenantInfo identifies the organisation that owns the conversation.
type TenantInfo struct {
	ID string `json:"id"`
}

// TeamsChannelData is the Teams-specific channelData payload.
// Every field is optional; other channels omit channelData entirely.
type TeamsChannelData struct {
	EventType string       `json:"eventType,omitempty"`
	Team      *TeamInfo    `json:"team,omitempty"`
	Channel   *ChannelInfo `json:"channel,omitempty"`
	Tenant    *TenantInfo  `json:"tenant,omitempty"`
}

// TenantID returns the tenant id carried in the channel data, or "".
func (d *TeamsChannelData) TenantID() string {
	if d == nil || d.Tenant == nil {
		return ""
	}
	return strings.TrimSpace(d.Tenant.ID)
}

// TeamContext is the team and tenant context copied from channelData onto
// every typed conversation-update event.
type TeamContext struct {
	Team   *TeamInfo
	Tenant *TenantInfo
}

// TeamMembersAddedEvent is raised when members join a team or chat.
type TeamMembersAddedEvent struct {
	TeamContext
	MembersAdded []ChannelAccount
}

// TeamMembersRemovedEvent is raised when members leave a team or chat.
type TeamMembersRemovedEvent struct {
	TeamContext
	MembersRemoved []ChannelAccount
}

// ChannelEvent is raised for channel creation, deletion and rename.
type ChannelEvent struct {
	TeamContext
	Channel *ChannelInfo
}

// TeamRenamedEvent carries the team with its new name.
type TeamRenamedEvent struct {
	TeamContext
}

// ConversationEventKind is the decoded form of channelData.eventType.
type ConversationEventKind int

const (
	ConversationEventUnknown ConversationEventKind = iota
	ConversationEventTeamMemberAdded
	ConversationEventTeamMemberRemoved
	ConversationEventChannelCreated
	ConversationEventChannelDeleted
	ConversationEventChannelRenamed
	ConversationEventTeamRenamed
)

var conversationEventNames = map[string]ConversationEventKind{
	"teamMemberAdded":   ConversationEventTeamMemberAdded,
	"teamMemberRemoved": ConversationEventTeamMemberRemoved,
	"channelCreated":    ConversationEventChannelCreated,
	"channelDeleted":    ConversationEventChannelDeleted,
	"channelRenamed":    ConversationEventChannelRenamed,
	"teamRenamed":       ConversationEventTeamRenamed,
}

// ParseConversationEventKind maps an eventType string to its kind. Matching
// is exact and case-sensitive; anything else is ConversationEventUnknown.
func ParseConversationEventKind(eventType string) ConversationEventKind {
	if kind, ok := conversationEventNames[eventType]; ok {
		return kind
	}
	return ConversationEventUnknown
}

func (k ConversationEventKind) String() string {
	switch k {
	case ConversationEventTeamMemberAdded:
		return "teamMemberAdded"
	case ConversationEventTeamMemberRemoved:
		return "teamMemberRemoved"
	case ConversationEventChannelCreated:
		return "channelCreated"
	case ConversationEventChannelDeleted:
		return "channelDeleted"
	case ConversationEventChannelRenamed:
		return "channelRenamed"
	case ConversationEventTeamRenamed:
		return "teamRenamed"
	default:
		return "unknown"
	}
}

// InvokeKind is the decoded form of an invoke activity's name.
type InvokeKind int

const (
	InvokeGeneric InvokeKind = iota
	InvokeMessagingExtensionQuery
	InvokeConnectorCardAction
	InvokeSigninVerifyState
)

// invokePrefixes is checked in order; the first matching prefix wins.
var invokePrefixes = []struct {
	prefix string
	kind   InvokeKind
}{
	{"composeExtension", InvokeMessagingExtensionQuery},
	{"messagingExtension", InvokeMessagingExtensionQuery},
	{"actionableMessage/executeAction", InvokeConnectorCardAction},
	{"signin/verifyState", InvokeSigninVerifyState},
}

// ParseInvokeKind classifies an invoke name by case-insensitive prefix.
func ParseInvokeKind(name string) InvokeKind {
	lower := strings.ToLower(name)
	for _, p := range invokePrefixes {
		if strings.HasPrefix(lower, strings.ToLower(p.prefix)) {
			return p.kind
		}
	}
	return InvokeGeneric
}

func (k InvokeKind) String() string {
	switch k {
	case InvokeMessagingExtensionQuery:
		return "messagingExtensionQuery"
	case InvokeConnectorCardAction:
		return "connectorCardAction"
	case InvokeSigninVerifyState:
		return "signinVerifyState"
	default:
		return "generic"
	}
}

// MessagingExtensionParameter is one named parameter of a query.
type MessagingExtensionParameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// MessagingExtensionQueryOptions holds paging options for a query.
type MessagingExtensionQueryOptions struct {
	Skip  int `json:"skip,omitempty"`
	Count int `json:"count,omitempty"`
}

// MessagingExtensionQuery is the value of a composeExtension/query invoke.
type MessagingExtensionQuery struct {
	CommandID    string                          `json:"commandId,omitempty"`
	Parameters   []MessagingExtensionParameter   `json:"parameters,omitempty"`
	QueryOptions *MessagingExtensionQueryOptions `json:"queryOptions,omitempty"`
	State        string                          `json:"state,omitempty"`
}

// ConnectorCardActionQuery is the value of an actionableMessage/executeAction invoke.
type ConnectorCardActionQuery struct {
	Body     string `json:"body,omitempty"`
	ActionID string `json:"actionId,omitempty"`
}

// SigninStateVerificationQuery is the value of a signin/verifyState invoke.
type SigninStateVerificationQuery struct {
	State string `json:"state,omitempty"`
}

// DecodeValue unmarshals the activity value into v. An absent value leaves
// v untouched and is not an error.
func (a *Activity) DecodeValue(v any) error {
	if a == nil || len(a.Value) == 0 || string(a.Value) == "null" {
		return nil
	}
	return json.Unmarshal(a.Value, v)
}
