package formance

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"relationship-custody-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

// GetPayoutBalances returns the member's undisbursed payout balances as the
// ledger sees them, for reconciling against the local subledger.
func (s *Service) GetPayoutBalances(ctx context.Context, userId int64) ([]models.UserBalance, error) {
	address := "users:" + strconv.FormatInt(userId, 10) + ":payouts"
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}
	return balancesFromVolumes(resp.V2AccountResponse.Data.Volumes), nil
}

func balancesFromVolumes(vols map[string]shared.V2Volume) []models.UserBalance {
	balances := []models.UserBalance{}
	for fAsset, vol := range vols {
		bal := volumeBalance(vol)
		if bal == nil || bal.Sign() == 0 {
			continue
		}
		symbol := assetSymbol(fAsset)
		balances = append(balances, models.UserBalance{
			Asset:   symbol,
			Balance: bigIntToDecimal(bal, symbol),
		})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Asset < balances[j].Asset })
	return balances
}

func volumeBalance(vol shared.V2Volume) *big.Int {
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts minor units back to a decimal amount.
func bigIntToDecimal(raw *big.Int, symbol string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(symbol)))
}

// assetSymbol extracts the symbol from a Formance asset like "USD/2".
func assetSymbol(fAsset string) string {
	for i, c := range fAsset {
		if c == '/' {
			return fAsset[:i]
		}
	}
	return fAsset
}
