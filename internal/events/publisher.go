/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"relationship-custody-go/internal/metrics"
	"relationship-custody-go/internal/models"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types
const (
	TypeCustodyRegistered = "custody.registered"
	TypePayoutsCreated    = "payouts.created"
	TypeTrustUpdated      = "trust.updated"
)

// Publisher emits domain events after their state changes commit.
type Publisher interface {
	CustodyRegistered(ctx context.Context, relationship models.Relationship) error
	PayoutsCreated(ctx context.Context, dealId int64, milestoneName string, payouts []models.Payout) error
	TrustUpdated(ctx context.Context, snapshot models.TrustSnapshot) error
	Close() error
}

// MessageWriter is the subset of *kafkago.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	Type       string          `json:"type"`
	OccurredAt string          `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

type custodyRegistered struct {
	RelationshipId int64  `json:"relationshipId"`
	OwnerId        int64  `json:"ownerId"`
	ContactId      int64  `json:"contactId"`
	EstablishedAt  string `json:"establishedAt"`
	Hash           string `json:"hash"`
	PrevHash       string `json:"prevHash"`
}

type payoutLine struct {
	PayoutId   string `json:"payoutId"`
	UserId     int64  `json:"userId"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	PayoutType string `json:"payoutType"`
	Role       string `json:"role"`
	IsFollowOn bool   `json:"isFollowOn"`
}

type payoutsCreated struct {
	DealId        int64        `json:"dealId"`
	MilestoneName string       `json:"milestoneName"`
	Payouts       []payoutLine `json:"payouts"`
}

type trustUpdated struct {
	UserId        int64   `json:"userId"`
	PreviousScore float64 `json:"previousScore"`
	NewScore      float64 `json:"newScore"`
	Reason        string  `json:"reason"`
	Source        string  `json:"source"`
}

// KafkaPublisher writes events to a single topic keyed by the owning entity,
// so events for one owner, deal or user stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaPublisher builds a synchronous writer for cfg.
func NewKafkaPublisher(cfg models.EventsConfig) *KafkaPublisher {
	requiredAcks := kafkago.RequireAll
	switch cfg.RequiredAcks {
	case 0:
		requiredAcks = kafkago.RequireNone
	case 1:
		requiredAcks = kafkago.RequireOne
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: requiredAcks,
		Async:        false,
	}
	return NewPublisherWithWriter(writer)
}

func NewPublisherWithWriter(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, now: time.Now}
}

func (p *KafkaPublisher) CustodyRegistered(ctx context.Context, r models.Relationship) error {
	return p.publish(ctx, TypeCustodyRegistered, strconv.FormatInt(r.OwnerId, 10), custodyRegistered{
		RelationshipId: r.Id,
		OwnerId:        r.OwnerId,
		ContactId:      r.ContactId,
		EstablishedAt:  r.EstablishedAt.UTC().Format(time.RFC3339Nano),
		Hash:           r.TimestampHash,
		PrevHash:       r.PrevHash,
	})
}

func (p *KafkaPublisher) PayoutsCreated(ctx context.Context, dealId int64, milestoneName string, payouts []models.Payout) error {
	lines := make([]payoutLine, 0, len(payouts))
	for _, payout := range payouts {
		lines = append(lines, payoutLine{
			PayoutId:   payout.Id,
			UserId:     payout.UserId,
			Amount:     payout.Amount.StringFixed(2),
			Currency:   payout.Currency,
			PayoutType: payout.PayoutType,
			Role:       payout.Role,
			IsFollowOn: payout.IsFollowOn,
		})
	}
	return p.publish(ctx, TypePayoutsCreated, strconv.FormatInt(dealId, 10), payoutsCreated{
		DealId:        dealId,
		MilestoneName: milestoneName,
		Payouts:       lines,
	})
}

func (p *KafkaPublisher) TrustUpdated(ctx context.Context, s models.TrustSnapshot) error {
	return p.publish(ctx, TypeTrustUpdated, strconv.FormatInt(s.UserId, 10), trustUpdated{
		UserId:        s.UserId,
		PreviousScore: s.PreviousScore,
		NewScore:      s.NewScore,
		Reason:        s.Reason,
		Source:        s.Source,
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, eventType, key string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	at := p.now().UTC()
	value, err := json.Marshal(Envelope{Type: eventType, OccurredAt: at.Format(time.RFC3339Nano), Data: body})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := kafkago.Message{
		Key:     []byte(key),
		Value:   value,
		Time:    at,
		Headers: []kafkago.Header{{Key: "event-type", Value: []byte(eventType)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(eventType, "error").Inc()
		return fmt.Errorf("write %s: %w", eventType, err)
	}

	metrics.EventsPublishedTotal.WithLabelValues(eventType, "ok").Inc()
	zap.L().Debug("Event published", zap.String("type", eventType), zap.String("key", key))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop discards every event. It is used when no brokers are configured.
type Noop struct{}

func (Noop) CustodyRegistered(context.Context, models.Relationship) error {
	return nil
}

func (Noop) PayoutsCreated(context.Context, int64, string, []models.Payout) error {
	return nil
}

func (Noop) TrustUpdated(context.Context, models.TrustSnapshot) error {
	return nil
}

func (Noop) Close() error {
	return nil
}

// New returns a Kafka publisher when brokers are configured and Noop otherwise.
func New(cfg models.EventsConfig) Publisher {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		zap.L().Info("Event publishing disabled (no Kafka brokers configured)")
		return Noop{}
	}
	zap.L().Info("Event publishing enabled", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return NewKafkaPublisher(cfg)
}
