package formance

import (
	"context"
	"fmt"
	"strconv"

	"relationship-custody-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Deal fee pools are funded by the deal's settlement, so the pool account may
// run negative until the fee is collected.
const numscriptPayoutCredit = `vars {
  asset $asset
  number $amount
  account $deal_id
  account $user_id
  string $payout_id
  string $payout_type
  string $milestone
}

send [$asset $amount] (
  source = @deals:$deal_id:fees allowing unbounded overdraft
  destination = @users:$user_id:payouts
)

set_tx_meta("event_type", "payout_credit")
set_tx_meta("payout_id", $payout_id)
set_tx_meta("payout_type", $payout_type)
set_tx_meta("milestone", $milestone)
`

const numscriptPayoutDisbursed = `vars {
  asset $asset
  number $amount
  account $user_id
  string $payout_id
  string $activity_id
}

send [$asset $amount] (
  source = @users:$user_id:payouts
  destination = @platform:disbursed
)

set_tx_meta("event_type", "payout_disbursed")
set_tx_meta("payout_id", $payout_id)
set_tx_meta("activity_id", $activity_id)
`

// RecordPayouts posts one credit per payout, referenced by the payout id.
// Payouts already in the ledger are skipped.
func (s *Service) RecordPayouts(ctx context.Context, deal models.Deal, payouts []models.Payout) error {
	for _, p := range payouts {
		if !p.Amount.IsPositive() {
			continue
		}
		err := s.post(ctx, "credit:"+p.Id, numscriptPayoutCredit, map[string]string{
			"asset":       formanceAsset(p.Currency),
			"amount":      smallestUnit(p.Amount, p.Currency),
			"deal_id":     strconv.FormatInt(deal.Id, 10),
			"user_id":     strconv.FormatInt(p.UserId, 10),
			"payout_id":   p.Id,
			"payout_type": p.PayoutType,
			"milestone":   p.MilestoneName,
		})
		if err != nil {
			return fmt.Errorf("error mirroring payout %s: %w", p.Id, err)
		}
	}

	zap.L().Info("Payouts mirrored to Formance",
		zap.Int64("deal_id", deal.Id),
		zap.Int("count", len(payouts)))
	return nil
}

// RecordDisbursement moves a paid payout out of the member's account.
func (s *Service) RecordDisbursement(ctx context.Context, p models.Payout, activityId string) error {
	err := s.post(ctx, "disbursed:"+p.Id, numscriptPayoutDisbursed, map[string]string{
		"asset":       formanceAsset(p.Currency),
		"amount":      smallestUnit(p.Amount, p.Currency),
		"user_id":     strconv.FormatInt(p.UserId, 10),
		"payout_id":   p.Id,
		"activity_id": activityId,
	})
	if err != nil {
		return fmt.Errorf("error mirroring disbursement of payout %s: %w", p.Id, err)
	}
	return nil
}

func (s *Service) post(ctx context.Context, reference, script string, vars map[string]string) error {
	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: &reference,
			Script: &shared.V2PostTransactionScript{
				Plain: script,
				Vars:  vars,
			},
		},
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Ledger transaction already recorded", zap.String("reference", reference))
			return nil
		}
		return err
	}
	return nil
}

// smallestUnit converts an amount into integer minor units of its asset.
func smallestUnit(amount decimal.Decimal, symbol string) string {
	return amount.Shift(int32(precisionFor(symbol))).BigInt().String()
}
