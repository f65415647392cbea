package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"relationship-custody-go/internal/auditlog"
	"relationship-custody-go/internal/database"
	"relationship-custody-go/internal/events"
	"relationship-custody-go/internal/lock"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"
	"relationship-custody-go/internal/trust"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events.Noop
	mu      sync.Mutex
	batches map[string]int
}

func (p *recordingPublisher) PayoutsCreated(_ context.Context, _ int64, milestone string, payouts []models.Payout) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.batches == nil {
		p.batches = map[string]int{}
	}
	p.batches[milestone] += len(payouts)
	return nil
}

type recordingLedger struct {
	mu      sync.Mutex
	payouts []models.Payout
}

func (l *recordingLedger) RecordPayouts(_ context.Context, _ models.Deal, payouts []models.Payout) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payouts = append(l.payouts, payouts...)
	return nil
}

type fixture struct {
	svc    *Service
	db     *database.Service
	audit  *auditlog.Recorder
	pub    *recordingPublisher
	ledger *recordingLedger
	users  map[string]*models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	locker := lock.NewKeyedMutex()
	f := &fixture{
		db:     db,
		audit:  auditlog.NewRecorder(db, locker),
		pub:    &recordingPublisher{},
		ledger: &recordingLedger{},
		users:  map[string]*models.User{},
	}
	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		u, err := db.CreateUser(ctx, store.CreateUserParams{Name: name, Email: name + "@example.com"})
		require.NoError(t, err)
		f.users[name] = u
	}

	f.svc = NewService(db, trust.NewService(db, trust.ModeNormalized), f.audit, locker, NewFeeSchedule(decimal.RequireFromString("0.02"), "USD")).
		WithPublisher(f.pub).
		WithLedger(f.ledger)
	return f
}

func (f *fixture) deal(t *testing.T, value int64, milestones ...models.Milestone) *models.Deal {
	t.Helper()
	dave := f.users["dave"].Id
	deal, err := f.svc.CreateDeal(context.Background(), store.CreateDealParams{
		Title:          "Secondary block",
		OriginatorId:   f.users["alice"].Id,
		CounterpartyId: &dave,
		DealValue:      decimal.NewFromInt(value),
		Milestones:     milestones,
	})
	require.NoError(t, err)
	return deal
}

func (f *fixture) join(t *testing.T, dealId int64, name, role string, pct int64) *models.DealParticipant {
	t.Helper()
	p := decimal.NewFromInt(pct)
	participant, err := f.svc.AddParticipant(context.Background(), store.AddParticipantParams{
		DealId:                dealId,
		UserId:                f.users[name].Id,
		Role:                  role,
		AttributionPercentage: &p,
	})
	require.NoError(t, err)
	return participant
}

func amountsByUser(payouts []models.Payout) map[int64]string {
	out := map[int64]string{}
	for _, p := range payouts {
		out[p.UserId] = p.Amount.StringFixed(2)
	}
	return out
}

func TestCloseDeal_SplitsFeePool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal := f.deal(t, 100000)
	f.join(t, deal.Id, "alice", "originator", 50)
	f.join(t, deal.Id, "bob", "advisor", 30)
	f.join(t, deal.Id, "carol", "introducer", 10)

	result, err := f.svc.CloseDeal(ctx, deal.Id)
	require.NoError(t, err)

	assert.False(t, result.AlreadyClosed)
	assert.Equal(t, "2000.00", result.TotalFees)
	assert.Equal(t, 0, result.FollowOnCount)
	assert.Equal(t, map[int64]string{
		f.users["alice"].Id: "1000.00",
		f.users["bob"].Id:   "750.00",
		f.users["carol"].Id: "250.00",
	}, amountsByUser(result.Payouts))
	assert.Equal(t, []int64{f.users["alice"].Id}, result.OriginatorsRescored)

	stored, err := f.db.GetDealById(ctx, deal.Id)
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, stored.Stage)
	assert.NotNil(t, stored.ClosedAt)

	balance, err := f.db.GetUserBalance(ctx, f.users["bob"].Id, "USD")
	require.NoError(t, err)
	assert.Equal(t, "750.00", balance.StringFixed(2))

	assert.Len(t, f.ledger.payouts, 3)
	assert.Equal(t, 3, f.pub.batches[DealCloseMilestone])

	for _, p := range result.Payouts {
		assert.Equal(t, fmt.Sprintf("deal_close_%d", deal.Id), p.MilestoneId)
		assert.Equal(t, DealCloseMilestone, p.MilestoneName)
		assert.Equal(t, "pending", p.Status)
	}

	n, err := f.audit.VerifyChain(ctx)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestCloseDeal_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal := f.deal(t, 100000)
	f.join(t, deal.Id, "alice", "originator", 50)
	f.join(t, deal.Id, "bob", "advisor", 50)

	first, err := f.svc.CloseDeal(ctx, deal.Id)
	require.NoError(t, err)

	second, err := f.svc.CloseDeal(ctx, deal.Id)
	require.NoError(t, err)
	assert.True(t, second.AlreadyClosed)
	assert.Equal(t, amountsByUser(first.Payouts), amountsByUser(second.Payouts))

	payouts, err := f.db.GetPayoutsByDeal(ctx, deal.Id)
	require.NoError(t, err)
	assert.Len(t, payouts, 2)

	balance, err := f.db.GetUserBalance(ctx, f.users["alice"].Id, "USD")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", balance.StringFixed(2))
}

func TestCloseDeal_ConcurrentClosesPayOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal := f.deal(t, 50000)
	f.join(t, deal.Id, "alice", "originator", 60)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CloseDeal(ctx, deal.Id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	payouts, err := f.db.GetPayoutsByDeal(ctx, deal.Id)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, "600.00", payouts[0].Amount.StringFixed(2))
}

func TestCloseDeal_ZeroValueSkipsPayouts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal := f.deal(t, 0)
	f.join(t, deal.Id, "alice", "originator", 50)

	result, err := f.svc.CloseDeal(ctx, deal.Id)
	require.NoError(t, err)
	assert.Empty(t, result.Payouts)
	assert.Equal(t, "0.00", result.TotalFees)

	stored, err := f.db.GetDealById(ctx, deal.Id)
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, stored.Stage)
	assert.Empty(t, f.ledger.payouts)
}

// flakyStageStore fails the next n stage updates.
type flakyStageStore struct {
	*database.Service
	failures int
}

func (s *flakyStageStore) UpdateDealStage(ctx context.Context, dealId int64, stage string) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("disk I/O error")
	}
	return s.Service.UpdateDealStage(ctx, dealId, stage)
}

func (f *fixture) auditActions(t *testing.T, action string) int {
	t.Helper()
	chain, err := f.db.GetAuditChain(context.Background())
	require.NoError(t, err)
	n := 0
	for _, e := range chain {
		if e.Action == action {
			n++
		}
	}
	return n
}

func TestCloseDeal_ZeroValueClosesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.users["alice"]

	deal := f.deal(t, 0)
	f.join(t, deal.Id, "alice", "originator", 50)

	first, err := f.svc.CloseDeal(ctx, deal.Id)
	require.NoError(t, err)
	assert.False(t, first.AlreadyClosed)
	assert.Equal(t, []int64{alice.Id}, first.OriginatorsRescored)

	second, err := f.svc.CloseDeal(ctx, deal.Id)
	require.NoError(t, err)
	assert.True(t, second.AlreadyClosed)
	assert.Empty(t, second.Payouts)
	assert.Empty(t, second.OriginatorsRescored)

	assert.Equal(t, 1, f.auditActions(t, "deal_closed"))
	history, err := f.db.GetTrustHistory(ctx, alice.Id, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCloseDeal_FinishesCloseAfterStageUpdateFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.users["alice"]

	flaky := &flakyStageStore{Service: f.db, failures: 1}
	svc := NewService(flaky, trust.NewService(f.db, trust.ModeNormalized), f.audit, lock.NewKeyedMutex(),
		NewFeeSchedule(decimal.RequireFromString("0.02"), "USD"))

	deal := f.deal(t, 100000)
	f.join(t, deal.Id, "alice", "originator", 50)
	f.join(t, deal.Id, "bob", "advisor", 50)

	_, err := svc.CloseDeal(ctx, deal.Id)
	require.Error(t, err)

	stored, err := f.db.GetDealById(ctx, deal.Id)
	require.NoError(t, err)
	assert.NotEqual(t, StageCompleted, stored.Stage)
	paid, err := f.db.GetPayoutsByDeal(ctx, deal.Id)
	require.NoError(t, err)
	require.Len(t, paid, 2)

	result, err := svc.CloseDeal(ctx, deal.Id)
	require.NoError(t, err)
	assert.False(t, result.AlreadyClosed)
	assert.Equal(t, "2000.00", result.TotalFees)
	assert.Equal(t, amountsByUser(paid), amountsByUser(result.Payouts))
	assert.Equal(t, []int64{alice.Id}, result.OriginatorsRescored)

	stored, err = f.db.GetDealById(ctx, deal.Id)
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, stored.Stage)

	balance, err := f.db.GetUserBalance(ctx, alice.Id, "USD")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", balance.StringFixed(2))
	assert.Equal(t, 1, f.auditActions(t, "deal_closed"))

	again, err := svc.CloseDeal(ctx, deal.Id)
	require.NoError(t, err)
	assert.True(t, again.AlreadyClosed)
	assert.Len(t, again.Payouts, 2)
}

func TestCreateDeal_ValidatesOriginalDeal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.users["alice"]

	create := func(originalId int64) (*models.Deal, error) {
		return f.svc.CreateDeal(ctx, store.CreateDealParams{
			Title:          "Follow-on",
			OriginatorId:   alice.Id,
			DealValue:      decimal.NewFromInt(1000),
			OriginalDealId: &originalId,
		})
	}

	_, err := create(999)
	assert.ErrorIs(t, err, store.ErrDealNotFound)

	open := f.deal(t, 100000)
	_, err = create(open.Id)
	assert.ErrorContains(t, err, "not completed")

	f.join(t, open.Id, "alice", "originator", 50)
	_, err = f.svc.CloseDeal(ctx, open.Id)
	require.NoError(t, err)

	followOn, err := create(open.Id)
	require.NoError(t, err)
	assert.True(t, followOn.IsFollowOn)
	assert.Equal(t, open.Id, *followOn.OriginalDealId)
}

func TestCloseDeal_FollowOnPaysLifetimeAttribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, dave := f.users["alice"], f.users["dave"]

	r, err := f.db.AppendCustody(ctx, store.CustodyParams{OwnerId: alice.Id, ContactId: dave.Id})
	require.NoError(t, err)

	original := f.deal(t, 100000)
	p := f.join(t, original.Id, "alice", "originator", 50)
	require.NotNil(t, p.RelationshipId)
	assert.Equal(t, r.Id, *p.RelationshipId)
	_, err = f.svc.CloseDeal(ctx, original.Id)
	require.NoError(t, err)

	followOn := f.deal(t, 100000)
	assert.True(t, followOn.IsFollowOn)
	require.NotNil(t, followOn.OriginalDealId)
	assert.Equal(t, original.Id, *followOn.OriginalDealId)

	f.join(t, followOn.Id, "alice", "originator", 50)
	f.join(t, followOn.Id, "bob", "advisor", 20)

	result, err := f.svc.CloseDeal(ctx, followOn.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FollowOnCount)

	var lifetime *models.Payout
	for i, payout := range result.Payouts {
		if payout.IsFollowOn {
			lifetime = &result.Payouts[i]
		}
	}
	require.NotNil(t, lifetime)
	assert.Equal(t, "lifetime_attribution", lifetime.PayoutType)
	assert.Equal(t, alice.Id, lifetime.UserId)
	assert.Equal(t, "200.00", lifetime.Amount.StringFixed(2))
	require.NotNil(t, lifetime.OriginalDealId)
	assert.Equal(t, original.Id, *lifetime.OriginalDealId)

	for _, payout := range result.Payouts {
		if payout.UserId == f.users["bob"].Id {
			assert.Equal(t, "800.00", payout.Amount.StringFixed(2))
		}
	}
}

func TestAddParticipant_RejectsUnknownRole(t *testing.T) {
	f := newFixture(t)
	deal := f.deal(t, 1000)

	_, err := f.svc.AddParticipant(context.Background(), store.AddParticipantParams{
		DealId: deal.Id,
		UserId: f.users["bob"].Id,
		Role:   "janitor",
	})
	assert.Error(t, err)
}

func TestCompleteMilestone_PaysBonusOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal := f.deal(t, 100000,
		models.Milestone{Id: "m1", Name: "term_sheet", Status: "pending", PayoutTrigger: true},
		models.Milestone{Id: "m2", Name: "diligence", Status: "pending"},
		models.Milestone{Id: "m3", Name: "signing", Status: "pending", PayoutTrigger: true},
	)
	f.join(t, deal.Id, "carol", "introducer", 10)
	f.join(t, deal.Id, "bob", "advisor", 20)

	payouts, err := f.svc.CompleteMilestone(ctx, deal.Id, "m1")
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, f.users["carol"].Id, payouts[0].UserId)
	assert.Equal(t, "milestone_bonus", payouts[0].PayoutType)
	assert.Equal(t, "5000.00", payouts[0].Amount.StringFixed(2))

	again, err := f.svc.CompleteMilestone(ctx, deal.Id, "m1")
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, payouts[0].Id, again[0].Id)

	none, err := f.svc.CompleteMilestone(ctx, deal.Id, "m2")
	require.NoError(t, err)
	assert.Empty(t, none)

	stored, err := f.db.GetDealById(ctx, deal.Id)
	require.NoError(t, err)
	assert.Equal(t, "completed", stored.Milestones[0].Status)
	assert.NotNil(t, stored.Milestones[0].CompletedAt)
	assert.Equal(t, "completed", stored.Milestones[1].Status)
	assert.Equal(t, "pending", stored.Milestones[2].Status)

	_, err = f.svc.CompleteMilestone(ctx, deal.Id, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatementAndApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deal := f.deal(t, 100000)
	f.join(t, deal.Id, "alice", "originator", 50)
	result, err := f.svc.CloseDeal(ctx, deal.Id)
	require.NoError(t, err)
	require.Len(t, result.Payouts, 1)

	require.NoError(t, f.svc.ApprovePayout(ctx, result.Payouts[0].Id))
	assert.ErrorIs(t, f.svc.ApprovePayout(ctx, result.Payouts[0].Id), store.ErrInvalidPayoutStatus)

	statement, err := f.svc.Statement(ctx, f.users["alice"].Id)
	require.NoError(t, err)
	assert.Equal(t, f.users["alice"].Id, statement.UserId)
	require.Len(t, statement.Balances, 1)
	assert.Equal(t, "USD", statement.Balances[0].Asset)
	assert.Equal(t, "1000.00", statement.Balances[0].Balance.StringFixed(2))
	require.Len(t, statement.Payouts, 1)
	assert.Equal(t, "approved", statement.Payouts[0].Status)

	_, err = f.svc.Statement(ctx, 999)
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}
