package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMilestones(t *testing.T) {
	milestones, err := parseMilestones("m1:term_sheet:trigger, m2:diligence")
	require.NoError(t, err)
	require.Len(t, milestones, 2)
	assert.True(t, milestones[0].PayoutTrigger)
	assert.Equal(t, "term_sheet", milestones[0].Name)
	assert.False(t, milestones[1].PayoutTrigger)
	assert.Equal(t, "pending", milestones[1].Status)

	empty, err := parseMilestones("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, bad := range []string{"m1", ":name", "m1:name:later"} {
		_, err := parseMilestones(bad)
		assert.Error(t, err, bad)
	}
}
