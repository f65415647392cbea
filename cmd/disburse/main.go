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
	"os"

	"relationship-custody-go/internal/common"
	"relationship-custody-go/internal/config"
	"relationship-custody-go/internal/models"

	"go.uber.org/zap"
)

func printPending(payouts []models.Payout) {
	common.PrintHeader("APPROVED PAYOUTS (DRY RUN)", common.WideWidth)
	if len(payouts) == 0 {
		fmt.Println("Nothing to disburse")
	}
	for i, p := range payouts {
		fmt.Printf("%s %s  deal %-4d member %-4d %12s %s\n", common.BoxPrefix(i == len(payouts)-1),
			p.Id, p.DealId, p.UserId, p.Amount.StringFixed(2), p.Currency)
	}
	common.PrintSeparator("=", common.WideWidth)
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	dryRunFlag := flag.Bool("dry-run", false, "List approved payouts without sending them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *dryRunFlag {
		payouts, err := services.DbService.GetPayoutsByStatus(ctx, "approved")
		if err != nil {
			logger.Fatal("Failed to list approved payouts", zap.Error(err))
		}
		printPending(payouts)
		return
	}

	disburser, err := common.InitializeDisburser(ctx, cfg, services)
	if err != nil {
		logger.Fatal("Failed to initialize disburser", zap.Error(err))
	}

	result, err := disburser.Run(ctx)
	if err != nil {
		logger.Error("Disbursement run failed", zap.Error(err))
		services.Close()
		os.Exit(1)
	}

	summary := fmt.Sprintf("SUMMARY: %d paid, %d failed, %d skipped", result.Paid, result.Failed, result.Skipped)
	common.PrintFooter(summary, common.DefaultWidth)

	if result.Failed > 0 {
		services.Close()
		os.Exit(1)
	}
}
