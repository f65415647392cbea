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

package main

import (
	"context"
	"flag"
	"fmt"

	"relationship-custody-go/internal/common"
	"relationship-custody-go/internal/config"
	"relationship-custody-go/internal/formance"
	"relationship-custody-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceSource interface {
	GetAllUserBalances(ctx context.Context, userId int64) ([]models.AccountBalance, error)
}

type balanceStats struct {
	totalUsers        int
	totalBalances     int
	usersWithBalances int
	mismatches        int
}

func formatTransactionId(txId string) string {
	if txId == "" {
		return "none"
	}
	if len(txId) > 8 {
		return txId[:8] + "..."
	}
	return txId
}

// ledgerColumn renders the mirrored Formance balance next to the local one.
func ledgerColumn(local decimal.Decimal, mirrored map[string]decimal.Decimal, asset string, enabled bool) (string, bool) {
	if !enabled {
		return "", true
	}
	remote, ok := mirrored[asset]
	if !ok {
		remote = decimal.Zero
	}
	return fmt.Sprintf(" ledger: %s %s", remote.String(), common.Check(remote.Equal(local))), remote.Equal(local)
}

func printUserHeader(user models.User, balanceCount int) {
	fmt.Printf("\n┌─ Member: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %d\n", user.Id)
	fmt.Printf("│  Assets: %d\n", balanceCount)
	common.PrintBoxSeparator(78)
}

func processUser(ctx context.Context, user models.User, balances balanceSource, ledger *formance.Service) (int, int, error) {
	local, err := balances.GetAllUserBalances(ctx, user.Id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get balances: %w", err)
	}
	if len(local) == 0 {
		return 0, 0, nil
	}

	mirrored := map[string]decimal.Decimal{}
	if ledger != nil {
		remote, err := ledger.GetPayoutBalances(ctx, user.Id)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to get ledger balances: %w", err)
		}
		for _, b := range remote {
			mirrored[b.Asset] = b.Balance
		}
	}

	printUserHeader(user, len(local))
	mismatches := 0
	for i, balance := range local {
		column, ok := ledgerColumn(balance.Balance, mirrored, balance.Asset, ledger != nil)
		if !ok {
			mismatches++
		}
		fmt.Printf("%s %-8s: %14s (v%d, last_tx: %s, updated: %s)%s\n",
			common.BoxPrefix(i == len(local)-1),
			balance.Asset,
			balance.Balance.StringFixed(2),
			balance.Version,
			formatTransactionId(balance.LastTransactionId),
			balance.UpdatedAt.Format("2006-01-02 15:04:05"),
			column)
	}
	return len(local), mismatches, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific member email (optional)")
	flag.Parse()

	logger.Info("Starting payout balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	users, err := common.ResolveUsers(ctx, services.DbService, *emailFlag)
	if err != nil {
		logger.Fatal("Failed to resolve members", zap.Error(err))
	}

	common.PrintHeader("PAYOUT BALANCE REPORT", common.DefaultWidth)

	stats := balanceStats{}
	for _, user := range users {
		stats.totalUsers++
		count, mismatches, err := processUser(ctx, user, services.DbService, services.Formance)
		if err != nil {
			logger.Error("Failed to process member",
				zap.Int64("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
			continue
		}
		if count > 0 {
			stats.usersWithBalances++
			stats.totalBalances += count
		}
		stats.mismatches += mismatches
	}

	summary := fmt.Sprintf("SUMMARY: %d members with balances (%d total balances across %d members queried)",
		stats.usersWithBalances, stats.totalBalances, stats.totalUsers)
	if services.Formance != nil {
		summary += fmt.Sprintf(", %d ledger mismatches", stats.mismatches)
	}
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Payout balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_balances", stats.usersWithBalances),
		zap.Int("total_balances", stats.totalBalances),
		zap.Int("ledger_mismatches", stats.mismatches))
}
