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

import "github.com/bcem/activitygateway/internal/models"

// Route is the classified destination of an activity. The concrete types
// below are the only implementations.
type Route interface {
	route()
}

// MessageRoute routes to the message handler.
type MessageRoute struct{}

// ReactionRoute routes to the reaction handler.
type ReactionRoute struct{}

// ConversationUpdateRoute routes on the Teams event type. Kind is
// ConversationEventUnknown when channelData or eventType is missing or
// unrecognised; ChannelData may be nil.
type ConversationUpdateRoute struct {
	Kind        models.ConversationEventKind
	ChannelData *models.TeamsChannelData
}

// InvokeRoute routes on the invoke name.
type InvokeRoute struct {
	Kind models.InvokeKind
}

// IgnoredRoute is any activity type the gateway does not handle.
type IgnoredRoute struct {
	Type models.ActivityType
}

func (MessageRoute) route()            {}
func (ReactionRoute) route()           {}
func (ConversationUpdateRoute) route() {}
func (InvokeRoute) route()             {}
func (IgnoredRoute) route()            {}

// Classify decodes the routing fields of an activity. It never fails:
// missing or malformed fields classify to the generic arm of their type.
func Classify(a *models.Activity) Route {
	if a == nil {
		return IgnoredRoute{}
	}

	switch a.Type {
	case models.ActivityTypeMessage:
		return MessageRoute{}
	case models.ActivityTypeMessageReaction:
		return ReactionRoute{}
	case models.ActivityTypeConversationUpdate:
		data, ok := a.TeamsChannelData()
		if !ok {
			return ConversationUpdateRoute{Kind: models.ConversationEventUnknown}
		}
		return ConversationUpdateRoute{
			Kind:        models.ParseConversationEventKind(data.EventType),
			ChannelData: data,
		}
	case models.ActivityTypeInvoke:
		return InvokeRoute{Kind: models.ParseInvokeKind(a.Name)}
	default:
		return IgnoredRoute{Type: a.Type}
	}
}
