package payout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	million = decimal.NewFromInt(1_000_000)
	twoPct  = decimal.RequireFromString("0.02")
)

func pct(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func relId(v int64) *int64 { return &v }

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(decimal.New(1, -6))
}

func TestCalculate_EmptyParticipants(t *testing.T) {
	splits := Calculate(million, twoPct, nil, []FollowOnAttribution{{UserId: 9, RelationshipId: 42}})
	require.NotNil(t, splits)
	assert.Empty(t, splits)
}

func TestCalculate_OriginatorClamp(t *testing.T) {
	tests := []struct {
		name      string
		requested *decimal.Decimal
		wantPct   string
		wantAmt   string
	}{
		{"above ceiling", pct(90), "60", "12000"},
		{"below floor", pct(10), "40", "8000"},
		{"default", nil, "50", "10000"},
		{"within range", pct(55), "55", "11000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			splits := Calculate(million, twoPct, []Participant{
				{UserId: 1, Role: RoleOriginator, AttributionPercentage: tt.requested},
			}, nil)

			require.Len(t, splits, 1)
			assert.Equal(t, TypeOriginatorFee, splits[0].Type)
			assertAmount(t, tt.wantPct, splits[0].AttributionPercentage)
			assertAmount(t, tt.wantAmt, splits[0].Amount)
		})
	}
}

func TestCalculate_ConservesFeePool(t *testing.T) {
	participants := []Participant{
		{UserId: 1, Role: RoleOriginator, AttributionPercentage: pct(50), RelationshipId: relId(7)},
		{UserId: 2, Role: RoleIntroducer, AttributionPercentage: pct(30)},
		{UserId: 3, Role: RoleAdvisor, AttributionPercentage: pct(20)},
	}
	followOns := []FollowOnAttribution{{UserId: 4, RelationshipId: 42, AttributionPercentage: decimal.NewFromInt(FollowOnPct)}}

	splits := Calculate(million, twoPct, participants, followOns)
	require.Len(t, splits, 4)

	assertAmount(t, "10000", splits[0].Amount)
	assert.Equal(t, int64(7), *splits[0].RelationshipId)

	assert.Equal(t, TypeLifetimeAttribution, splits[1].Type)
	assert.Equal(t, RoleIntroducer, splits[1].Role)
	assert.True(t, splits[1].IsFollowOn)
	assert.Equal(t, int64(42), *splits[1].RelationshipId)
	assertAmount(t, "2000", splits[1].Amount)

	assert.Equal(t, TypeIntroducerFee, splits[2].Type)
	assertAmount(t, "4800", splits[2].Amount)
	assert.Equal(t, TypeAdvisorFee, splits[3].Type)
	assertAmount(t, "3200", splits[3].Amount)

	assertAmount(t, "20000", Sum(splits))
}

func TestCalculate_ConservesUnevenShares(t *testing.T) {
	participants := []Participant{
		{UserId: 1, Role: RoleOriginator, AttributionPercentage: pct(45)},
		{UserId: 2, Role: RoleBuyer, AttributionPercentage: pct(1)},
		{UserId: 3, Role: RoleSeller, AttributionPercentage: pct(1)},
		{UserId: 4, Role: RoleLegal, AttributionPercentage: pct(1)},
	}
	dealValue := decimal.RequireFromString("1234567.89")

	splits := Calculate(dealValue, twoPct, participants, nil)
	require.Len(t, splits, 4)
	for _, s := range splits[1:] {
		assert.Equal(t, TypeSuccessFee, s.Type)
	}
	assert.True(t, withinTolerance(TotalFees(dealValue, twoPct), Sum(splits)))
}

func TestCalculate_NothingRemaining(t *testing.T) {
	participants := []Participant{
		{UserId: 1, Role: RoleOriginator, AttributionPercentage: pct(60)},
		{UserId: 2, Role: RoleIntroducer, AttributionPercentage: pct(100)},
	}

	t.Run("exactly consumed", func(t *testing.T) {
		followOns := make([]FollowOnAttribution, 4)
		for i := range followOns {
			followOns[i] = FollowOnAttribution{UserId: int64(10 + i), RelationshipId: int64(i + 1)}
		}

		splits := Calculate(million, twoPct, participants, followOns)
		assert.Len(t, splits, 5)
		assertAmount(t, "20000", Sum(splits))
	})

	t.Run("over consumed", func(t *testing.T) {
		followOns := make([]FollowOnAttribution, 5)
		for i := range followOns {
			followOns[i] = FollowOnAttribution{UserId: int64(10 + i), RelationshipId: int64(i + 1)}
		}

		splits := Calculate(million, twoPct, participants, followOns)
		assert.Len(t, splits, 6)
		for _, s := range splits {
			assert.False(t, s.Amount.IsNegative())
			assert.NotEqual(t, TypeIntroducerFee, s.Type)
		}
	})
}

func TestCalculate_SkipsMissingPercentages(t *testing.T) {
	participants := []Participant{
		{UserId: 1, Role: RoleOriginator},
		{UserId: 2, Role: RoleAdvisor},
		{UserId: 3, Role: RoleObserver, AttributionPercentage: pct(0)},
		{UserId: 4, Role: RoleIntroducer, AttributionPercentage: pct(5)},
	}

	splits := Calculate(million, twoPct, participants, nil)
	require.Len(t, splits, 2)
	assert.Equal(t, int64(4), splits[1].UserId)
	assertAmount(t, "10000", splits[1].Amount)
}

func TestCalculate_NoOtherPercentages(t *testing.T) {
	splits := Calculate(million, twoPct, []Participant{
		{UserId: 1, Role: RoleOriginator},
		{UserId: 2, Role: RoleBuyer},
	}, nil)

	require.Len(t, splits, 1)
	assertAmount(t, "10000", Sum(splits))
}

func TestCalculate_OnlyFirstOriginatorIsPaid(t *testing.T) {
	splits := Calculate(million, twoPct, []Participant{
		{UserId: 1, Role: RoleOriginator, AttributionPercentage: pct(50)},
		{UserId: 2, Role: RoleOriginator, AttributionPercentage: pct(50)},
		{UserId: 3, Role: RoleAdvisor, AttributionPercentage: pct(10)},
	}, nil)

	require.Len(t, splits, 2)
	assert.Equal(t, int64(1), splits[0].UserId)
	assert.Equal(t, int64(3), splits[1].UserId)
	assertAmount(t, "10000", splits[1].Amount)
}

func TestMilestoneSplits(t *testing.T) {
	participants := []Participant{
		{UserId: 1, Role: RoleOriginator, AttributionPercentage: pct(50)},
		{UserId: 2, Role: RoleIntroducer, AttributionPercentage: pct(20)},
		{UserId: 3, Role: RoleAdvisor, AttributionPercentage: pct(30)},
		{UserId: 4, Role: RoleIntroducer},
	}

	splits := MilestoneSplits(million, participants, 2)
	require.Len(t, splits, 2)
	for _, s := range splits {
		assert.Equal(t, TypeMilestoneBonus, s.Type)
	}
	assertAmount(t, "250000", splits[0].Amount)
	assertAmount(t, "100000", splits[1].Amount)

	assert.Empty(t, MilestoneSplits(million, participants, 0))
	assert.Empty(t, MilestoneSplits(decimal.Zero, participants, 2))
}

func TestRound(t *testing.T) {
	assertAmount(t, "2666.67", Round(decimal.RequireFromString("2666.666666")))
	assertAmount(t, "0.01", Round(decimal.RequireFromString("0.005")))
}
