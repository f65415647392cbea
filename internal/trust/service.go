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

package trust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relationship-custody-go/internal/events"
	"relationship-custody-go/internal/metrics"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"go.uber.org/zap"
)

// Mode selects which path owns a user's current score.
type Mode string

const (
	ModeNormalized  Mode = "normalized"
	ModeIncremental Mode = "incremental"
)

// ParseMode validates a configured scoring mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNormalized, ModeIncremental:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown trust score mode %q", s)
	}
}

const kybApproved = "approved"

// Service applies trust events and recomputations against a TrustStore.
type Service struct {
	store  store.TrustStore
	mode   Mode
	events events.Publisher
	now    func() time.Time
}

func NewService(s store.TrustStore, mode Mode) *Service {
	return &Service{store: s, mode: mode, events: events.Noop{}, now: time.Now}
}

// WithPublisher sends a trust.updated event for every recorded snapshot.
func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.events = p
	return s
}

func (s *Service) publish(ctx context.Context, snapshot *models.TrustSnapshot) {
	if err := s.events.TrustUpdated(ctx, *snapshot); err != nil {
		zap.L().Warn("Failed to publish trust update", zap.Int64("user_id", snapshot.UserId), zap.Error(err))
	}
}

func (s *Service) Mode() Mode { return s.mode }

// ApplyEvent runs the incremental path for one event. It returns a nil
// snapshot when the event carries no delta or was already applied.
func (s *Service) ApplyEvent(ctx context.Context, userId int64, kind EventKind, relatedEntityId int64, relatedEntityType string, override *float64) (*models.TrustSnapshot, error) {
	plan, ok := PlanEvent(kind, override)
	if !ok {
		metrics.TrustEventsTotal.WithLabelValues(string(kind), "noop").Inc()
		return nil, nil
	}

	snapshot, err := s.store.ApplyScoreEvent(ctx, store.ScoreEventParams{
		UserId:            userId,
		Source:            string(plan.Source),
		RelatedEntityId:   relatedEntityId,
		RelatedEntityType: relatedEntityType,
		Reason:            plan.Reason,
		Next: func(prev float64) float64 {
			return ApplyDelta(prev, plan.Delta)
		},
	})
	if errors.Is(err, store.ErrDuplicateSnapshot) {
		zap.L().Info("Trust event already applied, skipping",
			zap.Int64("user_id", userId),
			zap.String("source", string(plan.Source)),
			zap.Int64("related_entity_id", relatedEntityId))
		metrics.TrustEventsTotal.WithLabelValues(string(kind), "duplicate").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply trust event %s for user %d: %w", kind, userId, err)
	}

	metrics.TrustEventsTotal.WithLabelValues(string(kind), "applied").Inc()
	s.publish(ctx, snapshot)
	zap.L().Info("Trust event applied",
		zap.Int64("user_id", userId),
		zap.String("reason", plan.Reason),
		zap.Float64("previous_score", snapshot.PreviousScore),
		zap.Float64("new_score", snapshot.NewScore))
	return snapshot, nil
}

// Recalculate derives the normalized score from current state and always
// records a snapshot.
func (s *Service) Recalculate(ctx context.Context, userId int64) (Breakdown, *models.TrustSnapshot, error) {
	inputs, err := s.store.GetTrustInputs(ctx, userId)
	if err != nil {
		return Breakdown{}, nil, fmt.Errorf("failed to load trust inputs for user %d: %w", userId, err)
	}

	breakdown := Normalized(toInputs(inputs, s.now()))

	snapshot, err := s.store.RecordRecalculation(ctx, store.RecalculationParams{
		UserId:   userId,
		NewScore: float64(breakdown.Score),
		Reason:   RecalculationReason,
		Source:   string(SourceManualAdjustment),
	})
	if err != nil {
		return Breakdown{}, nil, fmt.Errorf("failed to record recalculation for user %d: %w", userId, err)
	}

	metrics.TrustRecalculationsTotal.Inc()
	s.publish(ctx, snapshot)
	zap.L().Info("Trust score recalculated",
		zap.Int64("user_id", userId),
		zap.Int("score", breakdown.Score),
		zap.Float64("tier", breakdown.Tier),
		zap.Float64("deals", breakdown.Deals),
		zap.Float64("reviews", breakdown.Reviews),
		zap.Float64("compliance", breakdown.Compliance),
		zap.Float64("tenure", breakdown.Tenure))
	return breakdown, snapshot, nil
}

// AssignBadge evaluates the badge gates and writes badge and tier together.
func (s *Service) AssignBadge(ctx context.Context, userId int64, score int) (Tier, error) {
	inputs, err := s.store.GetTrustInputs(ctx, userId)
	if err != nil {
		return TierNone, fmt.Errorf("failed to load trust inputs for user %d: %w", userId, err)
	}

	statuses := toStatuses(inputs.ComplianceStatuses)
	tier := AssignBadge(score, inputs.User.KybStatus == kybApproved, AllCompliancePassed(statuses))

	if err := s.store.SetVerificationTier(ctx, userId, string(tier)); err != nil {
		return TierNone, fmt.Errorf("failed to set verification tier for user %d: %w", userId, err)
	}

	zap.L().Info("Badge assigned",
		zap.Int64("user_id", userId),
		zap.Int("score", score),
		zap.String("tier", string(tier)))
	return tier, nil
}

// Rescore recomputes the normalized score and reassigns the badge.
func (s *Service) Rescore(ctx context.Context, userId int64) (Breakdown, Tier, error) {
	breakdown, _, err := s.Recalculate(ctx, userId)
	if err != nil {
		return Breakdown{}, TierNone, err
	}
	tier, err := s.AssignBadge(ctx, userId, breakdown.Score)
	if err != nil {
		return Breakdown{}, TierNone, err
	}
	return breakdown, tier, nil
}

// OnDealCompleted updates an originator's standing after a deal completes,
// using whichever path the service is configured for.
func (s *Service) OnDealCompleted(ctx context.Context, userId, dealId int64) error {
	if s.mode == ModeIncremental {
		_, err := s.ApplyEvent(ctx, userId, EventDealCompletion, dealId, "deal", nil)
		return err
	}
	_, _, err := s.Rescore(ctx, userId)
	return err
}

// History returns the user's most recent snapshots, newest first.
func (s *Service) History(ctx context.Context, userId int64, limit int) ([]models.TrustSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.GetTrustHistory(ctx, userId, limit)
}

func toInputs(in *store.TrustInputs, now time.Time) Inputs {
	tier := Tier(in.User.VerificationTier)
	if _, ok := tierScores[tier]; !ok {
		tier = TierNone
	}
	return Inputs{
		VerificationTier:   tier,
		CompletedDeals:     in.User.TotalDeals,
		PeerRatings:        in.PeerRatings,
		ComplianceStatuses: toStatuses(in.ComplianceStatuses),
		AccountCreatedAt:   in.User.CreatedAt,
		Now:                now,
	}
}

func toStatuses(raw []string) []ComplianceStatus {
	statuses := make([]ComplianceStatus, len(raw))
	for i, s := range raw {
		statuses[i] = ComplianceStatus(s)
	}
	return statuses
}
