package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/prime"
	"relationship-custody-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWithdrawer struct {
	mu       sync.Mutex
	requests []prime.CreateWithdrawalParams
	failFor  string
}

func (w *fakeWithdrawer) CreateWithdrawal(_ context.Context, params prime.CreateWithdrawalParams) (*models.Withdrawal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requests = append(w.requests, params)
	if params.DestinationAddress == w.failFor {
		return nil, errors.New("insufficient funds")
	}
	return &models.Withdrawal{
		ActivityId:  "activity-" + params.IdempotencyKey,
		PayoutId:    params.IdempotencyKey,
		Symbol:      params.Asset,
		Amount:      params.Amount,
		Destination: params.DestinationAddress,
	}, nil
}

type disbursementLedger struct {
	activities []string
}

func (l *disbursementLedger) RecordDisbursement(_ context.Context, _ models.Payout, activityId string) error {
	l.activities = append(l.activities, activityId)
	return nil
}

func TestDisburser_PaysApprovedPayouts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	erin, err := f.db.CreateUser(ctx, store.CreateUserParams{
		Name:          "erin",
		Email:         "erin@example.com",
		PayoutAddress: "0xerin",
		PayoutNetwork: "ethereum-mainnet",
	})
	require.NoError(t, err)
	f.users["erin"] = erin
	frank, err := f.db.CreateUser(ctx, store.CreateUserParams{
		Name:          "frank",
		Email:         "frank@example.com",
		PayoutAddress: "0xfrank",
	})
	require.NoError(t, err)
	f.users["frank"] = frank

	deal := f.deal(t, 100000)
	f.join(t, deal.Id, "erin", "originator", 50)
	f.join(t, deal.Id, "frank", "advisor", 25)
	f.join(t, deal.Id, "bob", "advisor", 25)

	result, err := f.svc.CloseDeal(ctx, deal.Id)
	require.NoError(t, err)
	for _, p := range result.Payouts {
		require.NoError(t, f.svc.ApprovePayout(ctx, p.Id))
	}

	w := &fakeWithdrawer{failFor: "0xfrank"}
	mirror := &disbursementLedger{}
	d := NewDisburser(f.db, w, f.audit, "portfolio-1", models.DisburseConfig{WalletId: "wallet-1", Asset: "USDC"}).
		WithLedger(mirror)

	summary, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, DisburseResult{Paid: 1, Failed: 1, Skipped: 1}, summary)

	require.Len(t, w.requests, 2)
	for _, req := range w.requests {
		assert.Equal(t, "portfolio-1", req.PortfolioId)
		assert.Equal(t, "wallet-1", req.WalletId)
		if req.DestinationAddress == "0xerin" {
			assert.Equal(t, "USDC-ethereum-mainnet", req.Asset)
			assert.Equal(t, "1000.00", req.Amount)
		}
	}

	assert.Len(t, mirror.activities, 1)

	payouts, err := f.db.GetPayoutsByDeal(ctx, deal.Id)
	require.NoError(t, err)
	statuses := map[int64]models.Payout{}
	for _, p := range payouts {
		statuses[p.UserId] = p
	}
	assert.Equal(t, "paid", statuses[erin.Id].Status)
	assert.Equal(t, "activity-"+statuses[erin.Id].Id, statuses[erin.Id].ExternalRef)
	assert.Equal(t, "failed", statuses[frank.Id].Status)
	assert.Equal(t, "approved", statuses[f.users["bob"].Id].Status)

	balance, err := f.db.GetUserBalance(ctx, erin.Id, "USD")
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "expected paid balance to be debited, got %s", balance)

	again, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, DisburseResult{Skipped: 1}, again)
}
