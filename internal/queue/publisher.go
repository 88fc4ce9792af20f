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

// Package queue publishes review notifications to a Redis list. Each
// conversation that enters pending review produces one entry for whatever
// dashboard or mailer consumes the queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

// DefaultQueue is the list review notifications are pushed to.
const DefaultQueue = "procurement:review"

// Event names.
const (
	EventCreated = "conversation.created"
	EventUpdated = "conversation.updated"
)

// ReviewNotification is the JSON document pushed per conversation.
type ReviewNotification struct {
	ID             string    `json:"id"`
	Event          string    `json:"event"`
	ConversationID string    `json:"conversationId"`
	RFPID          string    `json:"rfpId"`
	VendorID       string    `json:"vendorId"`
	Subject        string    `json:"subject"`
	TotalAmount    float64   `json:"totalAmount"`
	ItemCount      int       `json:"itemCount"`
	ReceivedAt     time.Time `json:"receivedAt"`
	PublishedAt    time.Time `json:"publishedAt"`
}

// Publisher pushes review notifications to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// NotifyReview publishes c. created distinguishes a first reply from a
// revised one.
func (p *Publisher) NotifyReview(ctx context.Context, c *models.Conversation, created bool) error {
	n := ReviewNotification{
		ID:             uuid.New().String(),
		Event:          EventUpdated,
		ConversationID: c.ID,
		RFPID:          c.RFPID,
		VendorID:       c.VendorID,
		Subject:        c.EmailSubject,
		TotalAmount:    c.Quote.TotalAmount,
		ItemCount:      len(c.Quote.Items),
		ReceivedAt:     c.ReceivedAt,
		PublishedAt:    time.Now().UTC(),
	}
	if created {
		n.Event = EventCreated
	}

	msg, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal review notification: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, msg).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published review notification",
		"notification_id", n.ID,
		"event", n.Event,
		"rfp_id", c.RFPID,
		"vendor_id", c.VendorID,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
