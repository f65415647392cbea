package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDelta(t *testing.T) {
	d, err := parseDelta("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = parseDelta("-12.5")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, -12.5, *d)

	_, err = parseDelta("ten")
	assert.Error(t, err)
}

func TestValidComplianceStatus(t *testing.T) {
	for _, s := range []string{"pending", "passed", "failed", "flagged"} {
		assert.True(t, validComplianceStatus(s), s)
	}
	assert.False(t, validComplianceStatus("PASSED"))
	assert.False(t, validComplianceStatus(""))
}
