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

package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relationship-custody-go/internal/attribution"
	"relationship-custody-go/internal/auditlog"
	"relationship-custody-go/internal/events"
	"relationship-custody-go/internal/lock"
	"relationship-custody-go/internal/metrics"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/payout"
	"relationship-custody-go/internal/store"
	"relationship-custody-go/internal/trust"

	"go.uber.org/zap"
)

const (
	// DealCloseMilestone names the payout batch created when a deal closes.
	DealCloseMilestone = "deal_close"

	StageCompleted = "completed"

	milestoneCompleted = "completed"
)

// Store is what settlement reads and writes.
type Store interface {
	store.DealStore
	store.PayoutStore
	GetUserById(ctx context.Context, userId int64) (*models.User, error)
	GetRelationshipForAttribution(ctx context.Context, ownerId, contactId int64) (*models.Relationship, error)
}

// Ledger mirrors persisted payouts into an external ledger.
type Ledger interface {
	RecordPayouts(ctx context.Context, deal models.Deal, payouts []models.Payout) error
}

type Service struct {
	store    Store
	trust    *trust.Service
	audit    *auditlog.Recorder
	locker   lock.Locker
	fees     *FeeSchedule
	resolver *attribution.Resolver
	events   events.Publisher
	ledger   Ledger
}

func NewService(s Store, trustSvc *trust.Service, audit *auditlog.Recorder, locker lock.Locker, fees *FeeSchedule) *Service {
	return &Service{
		store:    s,
		trust:    trustSvc,
		audit:    audit,
		locker:   locker,
		fees:     fees,
		resolver: attribution.NewResolver(participantSource{s}),
		events:   events.Noop{},
	}
}

func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.events = p
	return s
}

func (s *Service) WithLedger(l Ledger) *Service {
	s.ledger = l
	return s
}

// participantSource adapts stored participants for the attribution resolver.
type participantSource struct {
	store store.DealStore
}

func (p participantSource) GetDealParticipants(ctx context.Context, dealId int64) ([]payout.Participant, error) {
	rows, err := p.store.GetDealParticipants(ctx, dealId)
	if err != nil {
		return nil, err
	}
	return toParticipants(rows)
}

func toParticipants(rows []models.DealParticipant) ([]payout.Participant, error) {
	participants := make([]payout.Participant, 0, len(rows))
	for _, row := range rows {
		role, err := payout.ParseRole(row.Role)
		if err != nil {
			return nil, fmt.Errorf("participant %d on deal %d: %w", row.UserId, row.DealId, err)
		}
		participants = append(participants, payout.Participant{
			UserId:                row.UserId,
			Role:                  role,
			AttributionPercentage: row.AttributionPercentage,
			RelationshipId:        row.RelationshipId,
		})
	}
	return participants, nil
}

// CreateDeal opens a deal. When the caller does not name an original deal, a
// deal with a counterparty is checked against the originator's completed deals
// and flagged as a follow-on of the most recent one the counterparty was on.
func (s *Service) CreateDeal(ctx context.Context, params store.CreateDealParams) (*models.Deal, error) {
	if params.DealValue.IsNegative() {
		return nil, fmt.Errorf("deal value cannot be negative")
	}
	if _, err := s.store.GetUserById(ctx, params.OriginatorId); err != nil {
		return nil, err
	}
	if params.Currency == "" {
		params.Currency = s.fees.Currency()
	}

	if params.OriginalDealId != nil {
		original, err := s.store.GetDealById(ctx, *params.OriginalDealId)
		if err != nil {
			return nil, fmt.Errorf("original deal %d: %w", *params.OriginalDealId, err)
		}
		if original.Stage != StageCompleted {
			return nil, fmt.Errorf("original deal %d is %s, not %s", original.Id, original.Stage, StageCompleted)
		}
		params.IsFollowOn = true
	} else if params.CounterpartyId != nil {
		original, found, err := s.findOriginalDeal(ctx, params.OriginatorId, *params.CounterpartyId)
		if err != nil {
			return nil, err
		}
		if found {
			params.IsFollowOn = true
			params.OriginalDealId = &original.Id
		}
	}

	deal, err := s.store.CreateDeal(ctx, params)
	if err != nil {
		return nil, err
	}

	if _, err := s.audit.Record(ctx, auditlog.Entry{
		Action:     "deal_created",
		EntityType: "deal",
		EntityId:   &deal.Id,
		NewState:   dealState(deal),
	}); err != nil {
		return nil, err
	}
	return deal, nil
}

func (s *Service) findOriginalDeal(ctx context.Context, originatorId, counterpartyId int64) (attribution.PriorDeal, bool, error) {
	completed, err := s.store.ListCompletedDealsByOriginator(ctx, originatorId)
	if err != nil {
		return attribution.PriorDeal{}, false, err
	}

	prior := make([]attribution.PriorDeal, 0, len(completed))
	for _, d := range completed {
		rows, err := s.store.GetDealParticipants(ctx, d.Id)
		if err != nil {
			return attribution.PriorDeal{}, false, err
		}
		ids := make([]int64, 0, len(rows)+1)
		for _, row := range rows {
			ids = append(ids, row.UserId)
		}
		if d.CounterpartyId != nil {
			ids = append(ids, *d.CounterpartyId)
		}
		var closedAt time.Time
		if d.ClosedAt != nil {
			closedAt = *d.ClosedAt
		}
		prior = append(prior, attribution.PriorDeal{
			Id:             d.Id,
			OriginatorId:   d.OriginatorId,
			Completed:      d.Stage == StageCompleted,
			ParticipantIds: ids,
			ClosedAt:       closedAt,
		})
	}

	original, found := attribution.FindOriginalDeal(prior, originatorId, counterpartyId)
	return original, found, nil
}

// AddParticipant attaches a user to a deal. Originators and introducers
// without an explicit relationship pick up their current custody record with
// the deal's counterparty, which is what later follow-on attribution pays.
func (s *Service) AddParticipant(ctx context.Context, params store.AddParticipantParams) (*models.DealParticipant, error) {
	role, err := payout.ParseRole(params.Role)
	if err != nil {
		return nil, err
	}
	if params.AttributionPercentage != nil && params.AttributionPercentage.IsNegative() {
		return nil, fmt.Errorf("attribution percentage cannot be negative")
	}

	deal, err := s.store.GetDealById(ctx, params.DealId)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetUserById(ctx, params.UserId); err != nil {
		return nil, err
	}

	if params.RelationshipId == nil && deal.CounterpartyId != nil &&
		(role == payout.RoleOriginator || role == payout.RoleIntroducer) {
		r, err := s.store.GetRelationshipForAttribution(ctx, params.UserId, *deal.CounterpartyId)
		switch {
		case err == nil:
			params.RelationshipId = &r.Id
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	participant, err := s.store.AddParticipant(ctx, params)
	if err != nil {
		return nil, err
	}

	if _, err := s.audit.Record(ctx, auditlog.Entry{
		Action:     "participant_added",
		EntityType: "deal",
		EntityId:   &deal.Id,
		NewState: map[string]any{
			"userId":                participant.UserId,
			"role":                  participant.Role,
			"attributionPercentage": participant.AttributionPercentage,
			"relationshipId":        participant.RelationshipId,
		},
	}); err != nil {
		return nil, err
	}
	return participant, nil
}

// CloseDeal is the payout trigger for a deal moving into its closed state. It
// is idempotent: a completed deal is reported as already closed and nothing is
// recomputed. A close that stored its payouts but failed before completing the
// deal is finished on the next call without paying again.
func (s *Service) CloseDeal(ctx context.Context, dealId int64) (*models.DealCloseResult, error) {
	var result *models.DealCloseResult
	err := s.locker.WithLock(ctx, lock.DealKey(dealId), func(ctx context.Context) error {
		var err error
		result, err = s.closeDeal(ctx, dealId)
		return err
	})
	if err != nil {
		metrics.DealsClosedTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	return result, nil
}

func (s *Service) closeDeal(ctx context.Context, dealId int64) (*models.DealCloseResult, error) {
	deal, err := s.store.GetDealById(ctx, dealId)
	if err != nil {
		return nil, err
	}
	result := &models.DealCloseResult{DealId: deal.Id, TotalFees: "0.00", Payouts: []models.Payout{}}

	if deal.Stage == StageCompleted {
		zap.L().Info("Deal already closed, skipping", zap.Int64("deal_id", deal.Id))
		if err := s.loadClosePayouts(ctx, deal, result); err != nil {
			return nil, err
		}
		result.AlreadyClosed = true
		metrics.DealsClosedTotal.WithLabelValues("already_closed").Inc()
		return result, nil
	}

	exists, err := s.store.HasPayouts(ctx, deal.Id, DealCloseMilestone)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.GetDealParticipants(ctx, deal.Id)
	if err != nil {
		return nil, err
	}
	participants, err := toParticipants(rows)
	if err != nil {
		return nil, err
	}

	var status string
	switch {
	case exists:
		status = "resumed"
		zap.L().Warn("Deal close payouts exist but deal is not completed, finishing close",
			zap.Int64("deal_id", deal.Id),
			zap.String("stage", deal.Stage))
		if err := s.loadClosePayouts(ctx, deal, result); err != nil {
			return nil, err
		}
	case deal.DealValue.IsPositive():
		status = "paid"
		if err := s.payDealClose(ctx, deal, participants, result); err != nil {
			return nil, err
		}
	default:
		status = "no_value"
		zap.L().Info("Deal has no value, closing without payouts", zap.Int64("deal_id", deal.Id))
	}

	previousStage := deal.Stage
	if err := s.store.UpdateDealStage(ctx, deal.Id, StageCompleted); err != nil {
		return nil, err
	}

	if _, err := s.audit.Record(ctx, auditlog.Entry{
		Action:        "deal_closed",
		EntityType:    "deal",
		EntityId:      &deal.Id,
		PreviousState: map[string]string{"stage": previousStage},
		NewState:      map[string]string{"stage": StageCompleted},
		Metadata: map[string]any{
			"totalFees":     result.TotalFees,
			"payoutCount":   len(result.Payouts),
			"followOnCount": result.FollowOnCount,
		},
	}); err != nil {
		return nil, err
	}

	for _, p := range participants {
		if p.Role != payout.RoleOriginator || contains(result.OriginatorsRescored, p.UserId) {
			continue
		}
		if err := s.trust.OnDealCompleted(ctx, p.UserId, deal.Id); err != nil {
			zap.L().Error("Failed to update originator trust score",
				zap.Int64("deal_id", deal.Id),
				zap.Int64("user_id", p.UserId),
				zap.Error(err))
			continue
		}
		result.OriginatorsRescored = append(result.OriginatorsRescored, p.UserId)
	}

	metrics.DealsClosedTotal.WithLabelValues(status).Inc()
	zap.L().Info("Deal closed",
		zap.Int64("deal_id", deal.Id),
		zap.String("total_fees", result.TotalFees),
		zap.Int("payouts", len(result.Payouts)),
		zap.Int("follow_ons", result.FollowOnCount))
	return result, nil
}

// loadClosePayouts fills result from close payouts already stored. The fee
// total is recomputed from the current fee schedule.
func (s *Service) loadClosePayouts(ctx context.Context, deal *models.Deal, result *models.DealCloseResult) error {
	payouts, err := s.payoutsForMilestone(ctx, deal.Id, DealCloseMilestone)
	if err != nil {
		return err
	}
	result.Payouts = payouts
	if deal.DealValue.IsPositive() {
		result.TotalFees = payout.Round(payout.TotalFees(deal.DealValue, s.fees.RateFor(deal.DealValue))).StringFixed(2)
	}
	for _, p := range payouts {
		if p.PayoutType == string(payout.TypeLifetimeAttribution) {
			result.FollowOnCount++
		}
	}
	return nil
}

func (s *Service) payDealClose(ctx context.Context, deal *models.Deal, participants []payout.Participant, result *models.DealCloseResult) error {
	followOns, err := s.resolver.FollowOns(ctx, attribution.Deal{
		Id:             deal.Id,
		IsFollowOn:     deal.IsFollowOn,
		OriginalDealId: deal.OriginalDealId,
	})
	if err != nil {
		return err
	}

	feeRate := s.fees.RateFor(deal.DealValue)
	total := payout.TotalFees(deal.DealValue, feeRate)
	splits := payout.Calculate(deal.DealValue, feeRate, participants, followOns)

	result.TotalFees = payout.Round(total).StringFixed(2)
	result.FollowOnCount = len(followOns)
	if len(splits) == 0 {
		return nil
	}

	payouts, err := s.persist(ctx, deal, fmt.Sprintf("deal_close_%d", deal.Id), DealCloseMilestone, splits)
	if err != nil {
		return err
	}
	result.Payouts = payouts
	return nil
}

// CompleteMilestone marks a deal milestone completed. Completing a payout
// trigger pays originators and introducers their milestone bonus once.
func (s *Service) CompleteMilestone(ctx context.Context, dealId int64, milestoneId string) ([]models.Payout, error) {
	var payouts []models.Payout
	err := s.locker.WithLock(ctx, lock.DealKey(dealId), func(ctx context.Context) error {
		var err error
		payouts, err = s.completeMilestone(ctx, dealId, milestoneId)
		return err
	})
	return payouts, err
}

func (s *Service) completeMilestone(ctx context.Context, dealId int64, milestoneId string) ([]models.Payout, error) {
	deal, err := s.store.GetDealById(ctx, dealId)
	if err != nil {
		return nil, err
	}

	idx, triggers := -1, 0
	for i, m := range deal.Milestones {
		if m.Id == milestoneId {
			idx = i
		}
		if m.PayoutTrigger {
			triggers++
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: milestone %s on deal %d", store.ErrNotFound, milestoneId, dealId)
	}
	milestone := deal.Milestones[idx]

	if milestone.Status != milestoneCompleted {
		previous := milestone.Status
		completedAt := time.Now().UTC().Truncate(time.Millisecond)
		deal.Milestones[idx].Status = milestoneCompleted
		deal.Milestones[idx].CompletedAt = &completedAt
		if err := s.store.UpdateMilestones(ctx, deal.Id, deal.Milestones); err != nil {
			return nil, err
		}
		if _, err := s.audit.Record(ctx, auditlog.Entry{
			Action:        "milestone_completed",
			EntityType:    "deal",
			EntityId:      &deal.Id,
			PreviousState: map[string]string{"milestone": milestone.Id, "status": previous},
			NewState:      map[string]string{"milestone": milestone.Id, "status": milestoneCompleted},
		}); err != nil {
			return nil, err
		}
	}

	if !milestone.PayoutTrigger {
		return []models.Payout{}, nil
	}

	exists, err := s.store.HasPayouts(ctx, deal.Id, milestone.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return s.payoutsForMilestone(ctx, deal.Id, milestone.Name)
	}

	rows, err := s.store.GetDealParticipants(ctx, deal.Id)
	if err != nil {
		return nil, err
	}
	participants, err := toParticipants(rows)
	if err != nil {
		return nil, err
	}

	splits := payout.MilestoneSplits(deal.DealValue, participants, triggers)
	if len(splits) == 0 {
		return []models.Payout{}, nil
	}
	return s.persist(ctx, deal, milestone.Id, milestone.Name, splits)
}

// persist rounds splits to cents, writes them with their subledger credits,
// mirrors them to the external ledger and announces them.
func (s *Service) persist(ctx context.Context, deal *models.Deal, milestoneId, milestoneName string, splits []payout.Split) ([]models.Payout, error) {
	rows := make([]store.NewPayout, 0, len(splits))
	for _, split := range splits {
		rows = append(rows, store.NewPayout{
			UserId:                split.UserId,
			Amount:                payout.Round(split.Amount),
			PayoutType:            string(split.Type),
			Role:                  string(split.Role),
			AttributionPercentage: split.AttributionPercentage,
			RelationshipId:        split.RelationshipId,
			IsFollowOn:            split.IsFollowOn,
		})
	}

	payouts, err := s.store.CreatePayouts(ctx, store.CreatePayoutsParams{
		DealId:         deal.Id,
		Currency:       deal.Currency,
		MilestoneId:    milestoneId,
		MilestoneName:  milestoneName,
		OriginalDealId: deal.OriginalDealId,
		Payouts:        rows,
	})
	if err != nil {
		return nil, err
	}

	for _, p := range payouts {
		metrics.PayoutsCreatedTotal.WithLabelValues(p.PayoutType).Inc()
	}

	if s.ledger != nil {
		if err := s.ledger.RecordPayouts(ctx, *deal, payouts); err != nil {
			zap.L().Error("Failed to mirror payouts to ledger",
				zap.Int64("deal_id", deal.Id),
				zap.String("milestone", milestoneName),
				zap.Error(err))
		}
	}

	lines := make([]map[string]any, 0, len(payouts))
	for _, p := range payouts {
		lines = append(lines, map[string]any{
			"payoutId":   p.Id,
			"userId":     p.UserId,
			"amount":     p.Amount.StringFixed(2),
			"payoutType": p.PayoutType,
		})
	}
	if _, err := s.audit.Record(ctx, auditlog.Entry{
		Action:     "payouts_created",
		EntityType: "deal",
		EntityId:   &deal.Id,
		NewState:   lines,
		Metadata:   map[string]string{"milestoneId": milestoneId, "milestone": milestoneName},
	}); err != nil {
		return nil, err
	}

	if err := s.events.PayoutsCreated(ctx, deal.Id, milestoneName, payouts); err != nil {
		zap.L().Warn("Failed to publish payouts event", zap.Int64("deal_id", deal.Id), zap.Error(err))
	}
	return payouts, nil
}

func (s *Service) payoutsForMilestone(ctx context.Context, dealId int64, milestoneName string) ([]models.Payout, error) {
	all, err := s.store.GetPayoutsByDeal(ctx, dealId)
	if err != nil {
		return nil, err
	}
	payouts := []models.Payout{}
	for _, p := range all {
		if p.MilestoneName == milestoneName {
			payouts = append(payouts, p)
		}
	}
	return payouts, nil
}

// ApprovePayout releases a pending payout for disbursement.
func (s *Service) ApprovePayout(ctx context.Context, payoutId string) error {
	if err := s.store.UpdatePayoutStatus(ctx, payoutId, "approved", ""); err != nil {
		return err
	}
	_, err := s.audit.Record(ctx, auditlog.Entry{
		Action:     "payout_approved",
		EntityType: "payout",
		NewState:   map[string]string{"payoutId": payoutId, "status": "approved"},
	})
	return err
}

// Statement summarizes a member's standing, balances and payouts.
func (s *Service) Statement(ctx context.Context, userId int64) (*models.PayoutStatement, error) {
	user, err := s.store.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	balances, err := s.store.GetAllUserBalances(ctx, userId)
	if err != nil {
		return nil, err
	}
	payouts, err := s.store.GetPayoutsByUser(ctx, userId)
	if err != nil {
		return nil, err
	}

	statement := &models.PayoutStatement{
		UserId:     user.Id,
		TrustScore: user.TrustScore,
		Badge:      user.VerificationBadge,
		Balances:   make([]models.UserBalance, 0, len(balances)),
		Payouts:    make([]models.PayoutRecord, 0, len(payouts)),
	}
	for _, b := range balances {
		statement.Balances = append(statement.Balances, models.UserBalance{Asset: b.Asset, Balance: b.Balance})
	}
	for _, p := range payouts {
		statement.Payouts = append(statement.Payouts, models.PayoutRecord{
			Id:                    p.Id,
			DealId:                p.DealId,
			PayoutType:            p.PayoutType,
			Amount:                p.Amount,
			Currency:              p.Currency,
			AttributionPercentage: p.AttributionPercentage,
			IsFollowOn:            p.IsFollowOn,
			RelationshipId:        p.RelationshipId,
			MilestoneName:         p.MilestoneName,
			Status:                p.Status,
			CreatedAt:             p.CreatedAt,
		})
	}
	return statement, nil
}

func dealState(d *models.Deal) map[string]any {
	return map[string]any{
		"title":          d.Title,
		"originatorId":   d.OriginatorId,
		"counterpartyId": d.CounterpartyId,
		"dealValue":      d.DealValue.String(),
		"currency":       d.Currency,
		"stage":          d.Stage,
		"isFollowOn":     d.IsFollowOn,
		"originalDealId": d.OriginalDealId,
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

