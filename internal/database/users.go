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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.Id, &user.Name, &user.Email, &user.TrustScore, &user.VerificationTier,
		&user.VerificationBadge, &user.KybStatus, &user.TotalDeals, &user.PayoutAddress,
		&user.PayoutNetwork, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, queryGetActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	defer closeRows(rows)

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	zap.L().Debug("Retrieved users from database", zap.Int("count", len(users)))
	return users, nil
}

func (s *Service) GetUserById(ctx context.Context, userId int64) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, queryGetUserById, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", store.ErrUserNotFound, userId)
		}
		return nil, fmt.Errorf("unable to query user: %w", err)
	}
	return user, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, queryGetUserByEmail, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, email)
		}
		return nil, fmt.Errorf("unable to query user by email: %w", err)
	}
	return user, nil
}

func (s *Service) CreateUser(ctx context.Context, params store.CreateUserParams) (*models.User, error) {
	if params.Name == "" || params.Email == "" {
		return nil, fmt.Errorf("name and email are required")
	}

	kyb := params.KybStatus
	if kyb == "" {
		kyb = "pending"
	}
	tier := params.VerificationTier
	if tier == "" {
		tier = "none"
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}

	user, err := scanUser(s.db.QueryRowContext(ctx, queryInsertUser,
		params.Name, params.Email, kyb, tier, params.PayoutAddress, params.PayoutNetwork, createdAt.UTC(), now()))
	if err != nil {
		return nil, fmt.Errorf("unable to create user: %w", err)
	}

	zap.L().Info("Created user", zap.Int64("id", user.Id), zap.String("email", user.Email))
	return user, nil
}

func (s *Service) UpdateKybStatus(ctx context.Context, userId int64, status string) error {
	result, err := s.db.ExecContext(ctx, queryUpdateKybStatus, status, now(), userId)
	if err != nil {
		return fmt.Errorf("unable to update kyb status: %w", err)
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

func (s *Service) AddPeerReview(ctx context.Context, review models.PeerReview) (*models.PeerReview, error) {
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now()
	}
	err := s.db.QueryRowContext(ctx, queryInsertPeerReview,
		review.ReviewerId, review.RevieweeId, nullInt64(review.DealId), review.Rating, review.CreatedAt).Scan(&review.Id)
	if err != nil {
		return nil, fmt.Errorf("unable to add peer review: %w", err)
	}
	return &review, nil
}

func (s *Service) AddComplianceCheck(ctx context.Context, check models.ComplianceCheck) (*models.ComplianceCheck, error) {
	if check.CreatedAt.IsZero() {
		check.CreatedAt = now()
	}
	err := s.db.QueryRowContext(ctx, queryInsertComplianceCheck,
		check.UserId, check.CheckType, check.Status, check.CreatedAt).Scan(&check.Id)
	if err != nil {
		return nil, fmt.Errorf("unable to add compliance check: %w", err)
	}
	return &check, nil
}
