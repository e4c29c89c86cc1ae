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

package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bcem/activitygateway/internal/dispatch"
	"github.com/bcem/activitygateway/internal/models"
)

// echoBot is the built-in handler set. It echoes messages, welcomes new
// team members and acknowledges invokes.
type echoBot struct{}

func (echoBot) OnMessage(ctx context.Context, turn *dispatch.Turn) error {
	text := strings.TrimSpace(turn.Activity.Text)
	if text == "" || turn.Client == nil {
		return nil
	}
	_, err := turn.Reply(ctx, "You said: "+text)
	return err
}

func (echoBot) OnTeamMembersAdded(ctx context.Context, turn *dispatch.Turn, e models.TeamMembersAddedEvent) error {
	for _, m := range e.MembersAdded {
		if m.ID == turn.Activity.Recipient.ID {
			continue
		}
		slog.Info("team member added",
			"tenant", turn.TenantID(),
			"member", m.ID,
		)
		if turn.Client == nil {
			continue
		}
		name := m.Name
		if name == "" {
			name = "there"
		}
		if _, err := turn.Send(ctx, turn.Activity.CreateReply("Welcome, "+name+"!")); err != nil {
			return err
		}
	}
	return nil
}

func (echoBot) OnConversationUpdate(_ context.Context, turn *dispatch.Turn) error {
	slog.Debug("conversation update",
		"tenant", turn.TenantID(),
		"conversation", turn.Activity.Conversation.ID,
	)
	return nil
}

func (echoBot) OnInvoke(_ context.Context, turn *dispatch.Turn) (*models.InvokeResponse, error) {
	slog.Info("invoke received", "name", turn.Activity.Name)
	return &models.InvokeResponse{Status: http.StatusOK}, nil
}
