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
	"fmt"
	"os"

	"relationship-custody-go/internal/common"
	"relationship-custody-go/internal/config"
	"relationship-custody-go/internal/watcher"

	"go.uber.org/zap"
)

// Runs one integrity walk over every custody chain and the audit chain and
// exits non-zero when any chain fails.
func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	report := watcher.NewChainWatcher(watcher.Config{
		Custody: services.Custody,
		Audit:   services.Audit,
	}).Check(ctx)

	common.PrintHeader("CHAIN INTEGRITY REPORT", common.DefaultWidth)
	fmt.Printf("Owners checked: %d\n", report.OwnersChecked)
	fmt.Printf("Links checked:  %d\n", report.LinksChecked)
	for i, f := range report.Failures {
		label := fmt.Sprintf("owner %d", f.OwnerId)
		switch {
		case f.Chain == "audit":
			label = "audit chain"
		case f.OwnerId == 0:
			label = "custody owners"
		}
		fmt.Printf("%s %s %s: %v\n", common.BoxPrefix(i == len(report.Failures)-1), common.Check(false), label, f.Err)
	}
	common.PrintFooter(fmt.Sprintf("%s %d failing chains", common.Check(report.Healthy()), len(report.Failures)), common.DefaultWidth)

	if !report.Healthy() {
		services.Close()
		loggerCleanup()
		os.Exit(1)
	}
}
