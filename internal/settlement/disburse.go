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
	"fmt"

	"relationship-custody-go/internal/auditlog"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/prime"

	"go.uber.org/zap"
)

// DisburseStore is what the disburser reads and writes.
type DisburseStore interface {
	GetPayoutsByStatus(ctx context.Context, status string) ([]models.Payout, error)
	GetUserById(ctx context.Context, userId int64) (*models.User, error)
	UpdatePayoutStatus(ctx context.Context, payoutId, status, externalRef string) error
	RecordDisbursement(ctx context.Context, payout models.Payout, externalRef string) error
}

// Withdrawer sends funds out of the platform wallet.
type Withdrawer interface {
	CreateWithdrawal(ctx context.Context, params prime.CreateWithdrawalParams) (*models.Withdrawal, error)
}

// DisbursementLedger mirrors completed disbursements.
type DisbursementLedger interface {
	RecordDisbursement(ctx context.Context, payout models.Payout, activityId string) error
}

type DisburseResult struct {
	Paid    int `json:"paid"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Disburser pays approved payouts to members' registered addresses.
type Disburser struct {
	store       DisburseStore
	withdrawer  Withdrawer
	audit       *auditlog.Recorder
	ledger      DisbursementLedger
	portfolioId string
	walletId    string
	asset       string
}

func NewDisburser(s DisburseStore, w Withdrawer, audit *auditlog.Recorder, portfolioId string, cfg models.DisburseConfig) *Disburser {
	return &Disburser{
		store:       s,
		withdrawer:  w,
		audit:       audit,
		portfolioId: portfolioId,
		walletId:    cfg.WalletId,
		asset:       cfg.Asset,
	}
}

func (d *Disburser) WithLedger(l DisbursementLedger) *Disburser {
	d.ledger = l
	return d
}

// Run disburses every approved payout once. The payout id is the withdrawal
// idempotency key, so a payout retried after a failure is never sent twice.
func (d *Disburser) Run(ctx context.Context) (DisburseResult, error) {
	var result DisburseResult

	approved, err := d.store.GetPayoutsByStatus(ctx, "approved")
	if err != nil {
		return result, err
	}
	zap.L().Info("Disbursing approved payouts", zap.Int("count", len(approved)))

	for _, p := range approved {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !p.Amount.IsPositive() {
			result.Skipped++
			continue
		}

		user, err := d.store.GetUserById(ctx, p.UserId)
		if err != nil {
			return result, err
		}
		if user.PayoutAddress == "" {
			zap.L().Warn("User has no payout address, skipping",
				zap.String("payout_id", p.Id),
				zap.Int64("user_id", p.UserId))
			result.Skipped++
			continue
		}

		withdrawal, err := d.withdrawer.CreateWithdrawal(ctx, prime.CreateWithdrawalParams{
			PortfolioId:        d.portfolioId,
			WalletId:           d.walletId,
			DestinationAddress: user.PayoutAddress,
			Amount:             p.Amount.StringFixed(2),
			Asset:              d.assetFor(user),
			IdempotencyKey:     p.Id,
		})
		if err != nil {
			result.Failed++
			if err := d.fail(ctx, p, err); err != nil {
				return result, err
			}
			continue
		}

		if err := d.store.RecordDisbursement(ctx, p, withdrawal.ActivityId); err != nil {
			return result, fmt.Errorf("withdrawal %s sent but not recorded for payout %s: %w", withdrawal.ActivityId, p.Id, err)
		}
		if d.ledger != nil {
			if err := d.ledger.RecordDisbursement(ctx, p, withdrawal.ActivityId); err != nil {
				zap.L().Error("Failed to mirror disbursement to ledger", zap.String("payout_id", p.Id), zap.Error(err))
			}
		}
		if _, err := d.audit.Record(ctx, auditlog.Entry{
			Action:        "payout_disbursed",
			EntityType:    "deal",
			EntityId:      &p.DealId,
			PreviousState: map[string]string{"payoutId": p.Id, "status": "approved"},
			NewState: map[string]string{
				"payoutId":    p.Id,
				"status":      "paid",
				"activityId":  withdrawal.ActivityId,
				"destination": withdrawal.Destination,
				"network":     withdrawal.Network,
			},
		}); err != nil {
			return result, err
		}
		result.Paid++
	}

	zap.L().Info("Disbursement run finished",
		zap.Int("paid", result.Paid),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (d *Disburser) fail(ctx context.Context, p models.Payout, cause error) error {
	zap.L().Error("Failed to disburse payout",
		zap.String("payout_id", p.Id),
		zap.Int64("user_id", p.UserId),
		zap.Error(cause))

	if err := d.store.UpdatePayoutStatus(ctx, p.Id, "failed", ""); err != nil {
		return err
	}
	_, err := d.audit.Record(ctx, auditlog.Entry{
		Action:        "payout_failed",
		EntityType:    "deal",
		EntityId:      &p.DealId,
		PreviousState: map[string]string{"payoutId": p.Id, "status": "approved"},
		NewState:      map[string]string{"payoutId": p.Id, "status": "failed"},
		Metadata:      map[string]string{"error": cause.Error()},
	})
	return err
}

// assetFor appends the member's network, e.g. USDC-ethereum-mainnet.
func (d *Disburser) assetFor(user *models.User) string {
	if user.PayoutNetwork == "" {
		return d.asset
	}
	return d.asset + "-" + user.PayoutNetwork
}
