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

// Package models defines the activity structures shared across the gateway.
//
// The JSON tags follow the chat platform's wire format so an inbound request
// body can be decoded straight into an Activity and outbound activities can
// be posted back to the connector without a translation layer.
package models

import (
	"encoding/json"
	"time"
)

// ActivityType is the coarse kind of an inbound activity.
type ActivityType string

const (
	ActivityTypeMessage            ActivityType = "message"
	ActivityTypeConversationUpdate ActivityType = "conversationUpdate"
	ActivityTypeInvoke             ActivityType = "invoke"
	ActivityTypeMessageReaction    ActivityType = "messageReaction"
)

// ChannelMSTeams is the channelId the Teams connector stamps on its activities.
const ChannelMSTeams = "msteams"

// ChannelAccount identifies a user or bot on a channel.
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
}

// MessageReaction is a single reaction added to or removed from a message.
type MessageReaction struct {
	Type string `json:"type"`
}

// Attachment is a card or file carried on a message activity.
type Attachment struct {
	ContentType  string          `json:"contentType"`
	ContentURL   string          `json:"contentUrl,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
	Name         string          `json:"name,omitempty"`
	ThumbnailURL string          `json:"thumbnailUrl,omitempty"`
}

// Activity is one inbound (or outbound) chat-platform event.
type Activity struct {
	Type             ActivityType        `json:"type"`
	ID               string              `json:"id,omitempty"`
	Timestamp        *time.Time          `json:"timestamp,omitempty"`
	ChannelID        string              `json:"channelId,omitempty"`
	ServiceURL       string              `json:"serviceUrl,omitempty"`
	From             ChannelAccount      `json:"from"`
	Recipient        ChannelAccount      `json:"recipient"`
	Conversation     ConversationAccount `json:"conversation"`
	ReplyToID        string              `json:"replyToId,omitempty"`
	Text             string              `json:"text,omitempty"`
	TextFormat       string              `json:"textFormat,omitempty"`
	Locale           string              `json:"locale,omitempty"`
	Name             string              `json:"name,omitempty"`
	Value            json.RawMessage     `json:"value,omitempty"`
	ChannelData      json.RawMessage     `json:"channelData,omitempty"`
	MembersAdded     []ChannelAccount    `json:"membersAdded,omitempty"`
	MembersRemoved   []ChannelAccount    `json:"membersRemoved,omitempty"`
	ReactionsAdded   []MessageReaction   `json:"reactionsAdded,omitempty"`
	ReactionsRemoved []MessageReaction   `json:"reactionsRemoved,omitempty"`
	Attachments      []Attachment        `json:"attachments,omitempty"`
}

// TeamsChannelData returns the decoded Teams channel data of the activity.
// The second return value is false when channelData is absent or is not a
// JSON object of the expected shape.
func (a *Activity) TeamsChannelData() (*TeamsChannelData, bool) {
	if a == nil || len(a.ChannelData) == 0 {
		return nil, false
	}
	var data TeamsChannelData
	if err := json.Unmarshal(a.ChannelData, &data); err != nil {
		return nil, false
	}
	return &data, true
}

// CreateReply builds a message activity addressed back to the sender of a.
func (a *Activity) CreateReply(text string) *Activity {
	return &Activity{
		Type:         ActivityTypeMessage,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		From:         a.Recipient,
		Recipient:    a.From,
		Conversation: a.Conversation,
		ReplyToID:    a.ID,
		Text:         text,
		Locale:       a.Locale,
	}
}

// ConversationReference is the minimum needed to post into a conversation
// after the inbound turn has completed.
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	User         ChannelAccount      `json:"user"`
	Bot          ChannelAccount      `json:"bot"`
	Conversation ConversationAccount `json:"conversation"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl"`
}

// ConversationReference captures the reference of an inbound activity.
func (a *Activity) ConversationReference() ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
	}
}

// ResourceResponse is what the connector returns after creating or
// updating an activity.
type ResourceResponse struct {
	ID string `json:"id"`
}

// InvokeResponse is the synchronous result of an invoke activity. A nil
// *InvokeResponse from a handler means "no body, default success".
type InvokeResponse struct {
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}
