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
	"errors"
	"flag"
	"fmt"
	"regexp"

	"relationship-custody-go/internal/auditlog"
	"relationship-custody-go/internal/common"
	"relationship-custody-go/internal/config"
	"relationship-custody-go/internal/store"
	"relationship-custody-go/internal/trust"

	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var kybStatuses = map[string]bool{"pending": true, "approved": true, "rejected": true}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "Member's full name (required)")
	emailFlag := flag.String("email", "", "Member's email address (required)")
	kybFlag := flag.String("kyb", "pending", "KYB status: pending, approved or rejected")
	addressFlag := flag.String("payout-address", "", "Blockchain address payouts are sent to (optional)")
	networkFlag := flag.String("payout-network", "", "Network of the payout address, e.g. ethereum-mainnet (optional)")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}
	if !kybStatuses[*kybFlag] {
		zap.L().Fatal("Invalid KYB status", zap.String("kyb", *kybFlag))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if _, err := services.DbService.GetUserByEmail(ctx, *emailFlag); err == nil {
		zap.L().Fatal("User already exists with this email", zap.String("email", *emailFlag))
	} else if !errors.Is(err, store.ErrUserNotFound) {
		zap.L().Fatal("Failed to check existing user", zap.Error(err))
	}

	user, err := services.DbService.CreateUser(ctx, store.CreateUserParams{
		Name:          *nameFlag,
		Email:         *emailFlag,
		KybStatus:     *kybFlag,
		PayoutAddress: *addressFlag,
		PayoutNetwork: *networkFlag,
	})
	if err != nil {
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	if _, err := services.Audit.Record(ctx, auditlog.Entry{
		Action:     "user_created",
		EntityType: "user",
		EntityId:   &user.Id,
		NewState: map[string]string{
			"name":      user.Name,
			"email":     user.Email,
			"kybStatus": user.KybStatus,
		},
	}); err != nil {
		zap.L().Fatal("Failed to record audit entry", zap.Error(err))
	}

	if services.Trust.Mode() == trust.ModeNormalized {
		if _, _, err := services.Trust.Rescore(ctx, user.Id); err != nil {
			zap.L().Warn("Failed to compute initial trust score", zap.Error(err))
		}
	}

	fmt.Println()
	common.PrintHeader("MEMBER CREATED", common.DefaultWidth)
	fmt.Printf("ID:     %d\n", user.Id)
	fmt.Printf("Name:   %s\n", user.Name)
	fmt.Printf("Email:  %s\n", user.Email)
	fmt.Printf("KYB:    %s\n", user.KybStatus)
	if user.PayoutAddress != "" {
		fmt.Printf("Payout: %s (%s)\n", user.PayoutAddress, user.PayoutNetwork)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("Member created successfully", zap.Int64("id", user.Id))
}
