package settlement

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchedule = `
default_rate: "0.03"
currency: EUR
tiers:
  - min_deal_value: "1000000"
    rate: "0.02"
  - min_deal_value: "10000000"
    rate: "0.015"
`

func TestParseFeeSchedule_Tiers(t *testing.T) {
	schedule, err := ParseFeeSchedule([]byte(testSchedule), decimal.RequireFromString("0.02"), "USD")
	require.NoError(t, err)

	assert.Equal(t, "EUR", schedule.Currency())
	assert.True(t, schedule.RateFor(decimal.NewFromInt(500000)).Equal(decimal.RequireFromString("0.03")))
	assert.True(t, schedule.RateFor(decimal.NewFromInt(1000000)).Equal(decimal.RequireFromString("0.02")))
	assert.True(t, schedule.RateFor(decimal.NewFromInt(25000000)).Equal(decimal.RequireFromString("0.015")))
}

func TestParseFeeSchedule_Defaults(t *testing.T) {
	schedule, err := ParseFeeSchedule([]byte("tiers: []\n"), decimal.RequireFromString("0.02"), "USD")
	require.NoError(t, err)
	assert.Equal(t, "USD", schedule.Currency())
	assert.True(t, schedule.RateFor(decimal.NewFromInt(1)).Equal(decimal.RequireFromString("0.02")))
}

func TestParseFeeSchedule_Invalid(t *testing.T) {
	for _, doc := range []string{
		"default_rate: \"abc\"\n",
		"default_rate: \"1.5\"\n",
		"tiers:\n  - min_deal_value: \"-1\"\n    rate: \"0.01\"\n",
		"tiers:\n  - min_deal_value: \"10\"\n    rate: \"-0.01\"\n",
		"tiers: {",
	} {
		_, err := ParseFeeSchedule([]byte(doc), decimal.Zero, "USD")
		assert.Error(t, err, doc)
	}
}

func TestLoadFeeSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fees.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchedule), 0o600))

	schedule, err := LoadFeeSchedule(path, decimal.Zero, "USD")
	require.NoError(t, err)
	assert.Equal(t, "EUR", schedule.Currency())

	_, err = LoadFeeSchedule(filepath.Join(t.TempDir(), "missing.yaml"), decimal.Zero, "USD")
	assert.Error(t, err)
}
