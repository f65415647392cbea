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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Payout statuses
const (
	PayoutStatusPending   = "pending"
	PayoutStatusApproved  = "approved"
	PayoutStatusPaid      = "paid"
	PayoutStatusFailed    = "failed"
	PayoutStatusCancelled = "cancelled"
)

var payoutTransitions = map[string][]string{
	PayoutStatusPending:  {PayoutStatusApproved, PayoutStatusCancelled},
	PayoutStatusApproved: {PayoutStatusPaid, PayoutStatusFailed, PayoutStatusCancelled},
	PayoutStatusFailed:   {PayoutStatusApproved, PayoutStatusCancelled},
}

// CanTransition reports whether a payout may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func scanPayout(row rowScanner) (*models.Payout, error) {
	var (
		p                      models.Payout
		amount, pct            string
		relationship, original sql.NullInt64
	)
	err := row.Scan(&p.Id, &p.DealId, &p.UserId, &amount, &p.Currency, &p.PayoutType, &p.Role, &pct,
		&relationship, &p.IsFollowOn, &original, &p.MilestoneId, &p.MilestoneName, &p.Status,
		&p.ExternalRef, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.RelationshipId = int64Ptr(relationship)
	p.OriginalDealId = int64Ptr(original)

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse payout amount '%s': %w", amount, err)
	}
	if p.AttributionPercentage, err = decimal.NewFromString(pct); err != nil {
		return nil, fmt.Errorf("failed to parse attribution percentage '%s': %w", pct, err)
	}
	return &p, nil
}

// CreatePayouts inserts the payouts for one deal milestone and credits every
// payee's subledger balance in the same transaction.
func (s *Service) CreatePayouts(ctx context.Context, params store.CreatePayoutsParams) ([]models.Payout, error) {
	if params.MilestoneName == "" {
		return nil, fmt.Errorf("milestone name is required")
	}

	var created []models.Payout
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, queryHasPayouts, params.DealId, params.MilestoneName).Scan(&exists); err != nil {
			return fmt.Errorf("unable to check existing payouts: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: deal %d milestone %s", store.ErrPayoutsExist, params.DealId, params.MilestoneName)
		}

		at := now()
		for _, np := range params.Payouts {
			payout, err := scanPayout(tx.QueryRowContext(ctx, queryInsertPayout,
				uuid.New().String(), params.DealId, np.UserId, np.Amount.String(), params.Currency,
				np.PayoutType, np.Role, np.AttributionPercentage.String(), nullInt64(np.RelationshipId),
				np.IsFollowOn, nullInt64(params.OriginalDealId), params.MilestoneId, params.MilestoneName,
				PayoutStatusPending, "", at, at))
			if err != nil {
				return fmt.Errorf("unable to insert payout: %w", err)
			}

			if payout.Amount.IsPositive() {
				_, err = s.subledger.processTransactionTx(ctx, tx, ProcessTransactionParams{
					UserId:          accountId(payout.UserId),
					Asset:           payout.Currency,
					TransactionType: TxTypePayoutCredit,
					Amount:          payout.Amount,
					ExternalTxId:    payout.Id,
					Reference:       payout.MilestoneId,
					Counterparty:    fmt.Sprintf("deal_%d", payout.DealId),
				})
				if err != nil {
					return fmt.Errorf("unable to credit payout %s: %w", payout.Id, err)
				}
			}
			created = append(created, *payout)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Payouts created",
		zap.Int64("deal_id", params.DealId),
		zap.String("milestone", params.MilestoneName),
		zap.Int("count", len(created)))
	return created, nil
}

func (s *Service) HasPayouts(ctx context.Context, dealId int64, milestoneName string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, queryHasPayouts, dealId, milestoneName).Scan(&exists); err != nil {
		return false, fmt.Errorf("unable to check existing payouts: %w", err)
	}
	return exists, nil
}

func (s *Service) GetPayoutsByUser(ctx context.Context, userId int64) ([]models.Payout, error) {
	return s.listPayouts(ctx, queryGetPayoutsByUser, userId)
}

func (s *Service) GetPayoutsByDeal(ctx context.Context, dealId int64) ([]models.Payout, error) {
	return s.listPayouts(ctx, queryGetPayoutsByDeal, dealId)
}

func (s *Service) GetPayoutsByStatus(ctx context.Context, status string) ([]models.Payout, error) {
	return s.listPayouts(ctx, queryGetPayoutsByStatus, status)
}

func (s *Service) listPayouts(ctx context.Context, query string, arg any) ([]models.Payout, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("unable to query payouts: %w", err)
	}
	defer closeRows(rows)

	var payouts []models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan payout: %w", err)
		}
		payouts = append(payouts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payout rows: %w", err)
	}
	return payouts, nil
}

// UpdatePayoutStatus moves a payout along its lifecycle.
func (s *Service) UpdatePayoutStatus(ctx context.Context, payoutId, status, externalRef string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return updatePayoutStatus(ctx, tx, payoutId, status, externalRef)
	})
}

func updatePayoutStatus(ctx context.Context, tx *sql.Tx, payoutId, status, externalRef string) error {
	var current string
	if err := tx.QueryRowContext(ctx, queryGetPayoutStatus, payoutId).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: payout %s", store.ErrNotFound, payoutId)
		}
		return fmt.Errorf("unable to read payout status: %w", err)
	}
	if !CanTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidPayoutStatus, current, status)
	}

	result, err := tx.ExecContext(ctx, queryUpdatePayoutStatus, status, externalRef, now(), payoutId, current)
	if err != nil {
		return fmt.Errorf("unable to update payout status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("payout %s - %w", payoutId, store.ErrConcurrentModification)
	}
	return nil
}

// RecordDisbursement marks an approved payout as paid and debits the member's
// payout balance by the disbursed amount.
func (s *Service) RecordDisbursement(ctx context.Context, payout models.Payout, externalRef string) error {
	if externalRef == "" {
		return fmt.Errorf("external reference is required")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updatePayoutStatus(ctx, tx, payout.Id, PayoutStatusPaid, externalRef); err != nil {
			return err
		}
		_, err := s.subledger.processTransactionTx(ctx, tx, ProcessTransactionParams{
			UserId:          accountId(payout.UserId),
			Asset:           payout.Currency,
			TransactionType: TxTypeDisbursement,
			Amount:          payout.Amount.Neg(),
			ExternalTxId:    externalRef,
			Reference:       payout.Id,
			Counterparty:    "prime_wallet",
		})
		return err
	})
}
