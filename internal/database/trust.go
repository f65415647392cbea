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
	"errors"
	"fmt"

	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"go.uber.org/zap"
)

func scanSnapshot(row rowScanner) (*models.TrustSnapshot, error) {
	var (
		snapshot models.TrustSnapshot
		related  sql.NullInt64
	)
	err := row.Scan(&snapshot.Id, &snapshot.UserId, &snapshot.PreviousScore, &snapshot.NewScore,
		&snapshot.Reason, &snapshot.Source, &related, &snapshot.RelatedEntityType, &snapshot.CreatedAt)
	if err != nil {
		return nil, err
	}
	snapshot.RelatedEntityId = int64Ptr(related)
	return &snapshot, nil
}

// ApplyScoreEvent records one incremental trust event. A repeat of the same
// (user, source, related entity) returns store.ErrDuplicateSnapshot and leaves
// the score untouched.
func (s *Service) ApplyScoreEvent(ctx context.Context, params store.ScoreEventParams) (*models.TrustSnapshot, error) {
	if params.Next == nil {
		return nil, fmt.Errorf("score function is required")
	}

	var snapshot *models.TrustSnapshot
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRowContext(ctx, queryCheckTrustEvent, params.UserId, params.Source, params.RelatedEntityId).Scan(&existing)
		if err == nil {
			return fmt.Errorf("%w: user %d source %s entity %d",
				store.ErrDuplicateSnapshot, params.UserId, params.Source, params.RelatedEntityId)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unable to check trust history: %w", err)
		}

		previous, err := currentScore(ctx, tx, params.UserId)
		if err != nil {
			return err
		}

		related := params.RelatedEntityId
		snapshot, err = writeSnapshot(ctx, tx, params.UserId, previous, params.Next(previous),
			params.Reason, params.Source, &related, params.RelatedEntityType)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Trust event applied",
		zap.Int64("user_id", snapshot.UserId),
		zap.String("source", snapshot.Source),
		zap.Float64("previous_score", snapshot.PreviousScore),
		zap.Float64("new_score", snapshot.NewScore))
	return snapshot, nil
}

// RecordRecalculation writes the result of a normalized recomputation. It is
// never deduplicated.
func (s *Service) RecordRecalculation(ctx context.Context, params store.RecalculationParams) (*models.TrustSnapshot, error) {
	var snapshot *models.TrustSnapshot
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		previous, err := currentScore(ctx, tx, params.UserId)
		if err != nil {
			return err
		}
		snapshot, err = writeSnapshot(ctx, tx, params.UserId, previous, params.NewScore,
			params.Reason, params.Source, nil, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func currentScore(ctx context.Context, tx *sql.Tx, userId int64) (float64, error) {
	var score float64
	if err := tx.QueryRowContext(ctx, queryGetTrustScore, userId).Scan(&score); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %d", store.ErrUserNotFound, userId)
		}
		return 0, fmt.Errorf("unable to read trust score: %w", err)
	}
	return score, nil
}

func writeSnapshot(ctx context.Context, tx *sql.Tx, userId int64, previous, next float64,
	reason, source string, related *int64, relatedType string) (*models.TrustSnapshot, error) {
	at := now()
	snapshot, err := scanSnapshot(tx.QueryRowContext(ctx, queryInsertSnapshot,
		userId, previous, next, reason, source, nullInt64(related), relatedType, at))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: user %d source %s", store.ErrDuplicateSnapshot, userId, source)
		}
		return nil, fmt.Errorf("unable to insert trust snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, queryUpdateTrustScore, next, at, userId); err != nil {
		return nil, fmt.Errorf("unable to update trust score: %w", err)
	}
	return snapshot, nil
}

// GetTrustInputs loads the member and the signals a normalized score is built from.
func (s *Service) GetTrustInputs(ctx context.Context, userId int64) (*store.TrustInputs, error) {
	user, err := s.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	inputs := &store.TrustInputs{User: *user}

	rows, err := s.db.QueryContext(ctx, queryGetPeerRatings, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query peer ratings: %w", err)
	}
	for rows.Next() {
		var rating int
		if err := rows.Scan(&rating); err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("unable to scan peer rating: %w", err)
		}
		inputs.PeerRatings = append(inputs.PeerRatings, rating)
	}
	closeRows(rows)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating peer ratings: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, queryGetComplianceStatuses, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query compliance checks: %w", err)
	}
	defer closeRows(rows)
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, fmt.Errorf("unable to scan compliance status: %w", err)
		}
		inputs.ComplianceStatuses = append(inputs.ComplianceStatuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating compliance checks: %w", err)
	}

	return inputs, nil
}

// SetVerificationTier stores the tier and the matching display badge.
func (s *Service) SetVerificationTier(ctx context.Context, userId int64, tier string) error {
	badge := tier
	if tier == "none" {
		badge = ""
	}
	result, err := s.db.ExecContext(ctx, queryUpdateVerificationTier, tier, badge, now(), userId)
	if err != nil {
		return fmt.Errorf("unable to update verification tier: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", store.ErrUserNotFound, userId)
	}
	return nil
}

// GetTrustHistory returns the member's most recent snapshots, newest first.
func (s *Service) GetTrustHistory(ctx context.Context, userId int64, limit int) ([]models.TrustSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, queryGetTrustHistory, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query trust history: %w", err)
	}
	defer closeRows(rows)

	var history []models.TrustSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan trust snapshot: %w", err)
		}
		history = append(history, *snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trust history: %w", err)
	}
	return history, nil
}
