package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanEvent(t *testing.T) {
	plan, ok := PlanEvent(EventDealCompletion, nil)
	require.True(t, ok)
	assert.Equal(t, 50.0, plan.Delta)
	assert.Equal(t, SourceDealCompletion, plan.Source)
	assert.Equal(t, "+50 deal_completion", plan.Reason)

	plan, ok = PlanEvent(EventDocRejected, nil)
	require.True(t, ok)
	assert.Equal(t, -10.0, plan.Delta)
	assert.Equal(t, SourceVerificationUpgrade, plan.Source)
	assert.Equal(t, "-10 doc_rejected", plan.Reason)

	plan, ok = PlanEvent(EventDocApproved, nil)
	require.True(t, ok)
	assert.Equal(t, SourceVerificationUpgrade, plan.Source)
}

func TestPlanEvent_ZeroDeltaIsNoop(t *testing.T) {
	for _, k := range []EventKind{EventComplianceCheck, EventTimeDecay, EventManualAdjustment} {
		_, ok := PlanEvent(k, nil)
		assert.False(t, ok, "kind %s", k)
	}

	zero := 0.0
	_, ok := PlanEvent(EventDealCompletion, &zero)
	assert.False(t, ok)

	_, ok = PlanEvent(EventKind("unknown"), nil)
	assert.False(t, ok)
}

func TestPlanEvent_Override(t *testing.T) {
	delta := 7.5
	plan, ok := PlanEvent(EventManualAdjustment, &delta)
	require.True(t, ok)
	assert.Equal(t, 7.5, plan.Delta)
	assert.Equal(t, "+7.5 manual_adjustment", plan.Reason)
	assert.Equal(t, SourceManualAdjustment, plan.Source)
}

func TestApplyDelta_Clamps(t *testing.T) {
	assert.Equal(t, 50.0, ApplyDelta(0, 50))
	assert.Equal(t, 0.0, ApplyDelta(20, -30))
	assert.Equal(t, 1000.0, ApplyDelta(990, 50))
}

func TestParseEventKind(t *testing.T) {
	k, err := ParseEventKind("peer_review")
	require.NoError(t, err)
	assert.Equal(t, EventPeerReview, k)

	_, err = ParseEventKind("bribe")
	assert.Error(t, err)
}
