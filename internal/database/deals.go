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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const stageCompleted = "completed"

func scanDeal(row rowScanner) (*models.Deal, error) {
	var (
		deal                   models.Deal
		counterparty, original sql.NullInt64
		value, milestones      string
		closedAt               sql.NullTime
	)
	err := row.Scan(&deal.Id, &deal.Title, &deal.OriginatorId, &counterparty, &value, &deal.Currency,
		&deal.Stage, &deal.IsFollowOn, &original, &milestones, &deal.CreatedAt, &closedAt)
	if err != nil {
		return nil, err
	}

	deal.CounterpartyId = int64Ptr(counterparty)
	deal.OriginalDealId = int64Ptr(original)
	if closedAt.Valid {
		t := closedAt.Time
		deal.ClosedAt = &t
	}

	deal.DealValue, err = decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deal value '%s': %w", value, err)
	}
	if err := json.Unmarshal([]byte(milestones), &deal.Milestones); err != nil {
		return nil, fmt.Errorf("failed to decode milestones: %w", err)
	}
	return &deal, nil
}

func scanParticipant(row rowScanner) (*models.DealParticipant, error) {
	var (
		p            models.DealParticipant
		pct          sql.NullString
		relationship sql.NullInt64
	)
	if err := row.Scan(&p.Id, &p.DealId, &p.UserId, &p.Role, &pct, &relationship); err != nil {
		return nil, err
	}
	p.RelationshipId = int64Ptr(relationship)
	if pct.Valid && pct.String != "" {
		value, err := decimal.NewFromString(pct.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse attribution percentage '%s': %w", pct.String, err)
		}
		p.AttributionPercentage = &value
	}
	return &p, nil
}

func (s *Service) CreateDeal(ctx context.Context, params store.CreateDealParams) (*models.Deal, error) {
	if params.Title == "" {
		return nil, fmt.Errorf("deal title is required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}
	milestones := params.Milestones
	if milestones == nil {
		milestones = []models.Milestone{}
	}
	encoded, err := json.Marshal(milestones)
	if err != nil {
		return nil, fmt.Errorf("failed to encode milestones: %w", err)
	}

	deal, err := scanDeal(s.db.QueryRowContext(ctx, queryInsertDeal,
		params.Title, params.OriginatorId, nullInt64(params.CounterpartyId), params.DealValue.String(),
		currency, "lead", params.IsFollowOn, nullInt64(params.OriginalDealId), string(encoded), now()))
	if err != nil {
		return nil, fmt.Errorf("unable to create deal: %w", err)
	}

	zap.L().Info("Created deal",
		zap.Int64("deal_id", deal.Id),
		zap.Int64("originator_id", deal.OriginatorId),
		zap.Bool("follow_on", deal.IsFollowOn))
	return deal, nil
}

func (s *Service) GetDealById(ctx context.Context, dealId int64) (*models.Deal, error) {
	deal, err := scanDeal(s.db.QueryRowContext(ctx, queryGetDealById, dealId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", store.ErrDealNotFound, dealId)
		}
		return nil, fmt.Errorf("unable to query deal: %w", err)
	}
	return deal, nil
}

func (s *Service) AddParticipant(ctx context.Context, params store.AddParticipantParams) (*models.DealParticipant, error) {
	var pct sql.NullString
	if params.AttributionPercentage != nil {
		pct = sql.NullString{String: params.AttributionPercentage.String(), Valid: true}
	}

	participant, err := scanParticipant(s.db.QueryRowContext(ctx, queryInsertParticipant,
		params.DealId, params.UserId, params.Role, pct, nullInt64(params.RelationshipId)))
	if err != nil {
		return nil, fmt.Errorf("unable to add participant: %w", err)
	}
	return participant, nil
}

// GetDealParticipants returns participants in the order they joined the deal.
func (s *Service) GetDealParticipants(ctx context.Context, dealId int64) ([]models.DealParticipant, error) {
	rows, err := s.db.QueryContext(ctx, queryGetDealParticipants, dealId)
	if err != nil {
		return nil, fmt.Errorf("unable to query participants: %w", err)
	}
	defer closeRows(rows)

	var participants []models.DealParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan participant: %w", err)
		}
		participants = append(participants, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}
	return participants, nil
}

// ListCompletedDealsByOriginator returns completed deals, most recently closed first.
func (s *Service) ListCompletedDealsByOriginator(ctx context.Context, originatorId int64) ([]models.Deal, error) {
	rows, err := s.db.QueryContext(ctx, queryListCompletedDealsByOriginator, originatorId)
	if err != nil {
		return nil, fmt.Errorf("unable to query completed deals: %w", err)
	}
	defer closeRows(rows)

	var deals []models.Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan deal: %w", err)
		}
		deals = append(deals, *deal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deal rows: %w", err)
	}
	return deals, nil
}

// UpdateDealStage moves a deal to stage. Completing a deal stamps closed_at and
// counts the deal for every participant.
func (s *Service) UpdateDealStage(ctx context.Context, dealId int64, stage string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var closedAt sql.NullTime
		at := now()
		if stage == stageCompleted {
			closedAt = sql.NullTime{Time: at, Valid: true}
		}

		result, err := tx.ExecContext(ctx, queryUpdateDealStage, stage, closedAt, dealId)
		if err != nil {
			return fmt.Errorf("unable to update deal stage: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %d", store.ErrDealNotFound, dealId)
		}

		if stage == stageCompleted {
			if _, err := tx.ExecContext(ctx, queryIncrementTotalDeals, at, dealId); err != nil {
				return fmt.Errorf("unable to update participant deal counts: %w", err)
			}
		}
		return nil
	})
}

func (s *Service) UpdateMilestones(ctx context.Context, dealId int64, milestones []models.Milestone) error {
	encoded, err := json.Marshal(milestones)
	if err != nil {
		return fmt.Errorf("failed to encode milestones: %w", err)
	}
	result, err := s.db.ExecContext(ctx, queryUpdateMilestones, string(encoded), dealId)
	if err != nil {
		return fmt.Errorf("unable to update milestones: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", store.ErrDealNotFound, dealId)
	}
	return nil
}
