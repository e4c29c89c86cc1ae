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

// Package deferred queues proactive sends in Redis. A handler that wants to
// post into a conversation after its turn has finished enqueues the
// conversation reference and the activity; a separate worker pops the list
// and delivers each job once its not_before time has passed.
package deferred

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/activitygateway/internal/models"
)

// DefaultQueue is the Redis list jobs are pushed to.
const DefaultQueue = "gateway:deferred"

// ListPusher is the subset of the Redis client the publisher needs.
type ListPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Job is one queued send.
type Job struct {
	ID        string                       `json:"id"`
	Reference models.ConversationReference `json:"reference"`
	Activity  *models.Activity             `json:"activity"`
	NotBefore time.Time                    `json:"not_before"`
	CreatedAt time.Time                    `json:"created_at"`
}

// Publisher pushes deferred-send jobs onto a Redis list.
type Publisher struct {
	rdb       ListPusher
	queueName string
	now       func() time.Time
}

// NewPublisher creates a publisher targeting queueName, or DefaultQueue
// when it is empty.
func NewPublisher(rdb ListPusher, queueName string) *Publisher {
	if strings.TrimSpace(queueName) == "" {
		queueName = DefaultQueue
	}
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		now:       time.Now,
	}
}

// Enqueue queues activity for delivery into the conversation identified by
// ref no earlier than notBefore. A zero notBefore means as soon as
// possible. It returns the job id.
func (p *Publisher) Enqueue(ctx context.Context, ref models.ConversationReference, activity *models.Activity, notBefore time.Time) (string, error) {
	if activity == nil {
		return "", fmt.Errorf("deferred send: activity is required")
	}
	if ref.ServiceURL == "" || ref.Conversation.ID == "" {
		return "", fmt.Errorf("deferred send: reference needs a service url and conversation id")
	}

	now := p.now().UTC()
	if notBefore.IsZero() {
		notBefore = now
	}

	job := Job{
		ID:        uuid.New().String(),
		Reference: ref,
		Activity:  activity,
		NotBefore: notBefore.UTC(),
		CreatedAt: now,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal deferred job: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(data)).Err(); err != nil {
		return "", fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("queued deferred send",
		"job_id", job.ID,
		"conversation", ref.Conversation.ID,
		"not_before", job.NotBefore,
		"queue", p.queueName,
	)

	return job.ID, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
