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
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"relationship-custody-go/internal/common"
	"relationship-custody-go/internal/config"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const usage = `usage: deals <command> [flags]

commands:
  create     --title t --originator <id|email> [--counterparty <id|email>] --value 100000
             [--currency USD] [--original-deal id] [--milestones "m1:term_sheet:trigger,m2:signing"]
  add        --deal id --member <id|email> --role advisor [--pct 30]
  close      --deal id
  milestone  --deal id --milestone m1
  approve    --payout <uuid>
  show       --deal id`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

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

	args := os.Args[2:]
	switch os.Args[1] {
	case "create":
		runCreate(ctx, services, args)
	case "add":
		runAdd(ctx, services, args)
	case "close":
		runClose(ctx, services, args)
	case "milestone":
		runMilestone(ctx, services, args)
	case "approve":
		runApprove(ctx, services, args)
	case "show":
		runShow(ctx, services, args)
	default:
		fmt.Println(usage)
		os.Exit(2)
	}
}

func runCreate(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	titleFlag := fs.String("title", "", "Deal title")
	originatorFlag := fs.String("originator", "", "Originating member")
	counterpartyFlag := fs.String("counterparty", "", "Counterparty member (optional)")
	valueFlag := fs.String("value", "0", "Deal value")
	currencyFlag := fs.String("currency", "", "Deal currency (default from settlement config)")
	originalFlag := fs.Int64("original-deal", 0, "Deal this one follows on from (optional, detected when omitted)")
	milestonesFlag := fs.String("milestones", "", "Comma separated id:name[:trigger] milestones")
	_ = fs.Parse(args)

	if *titleFlag == "" {
		zap.L().Fatal("--title is required")
	}
	value, err := decimal.NewFromString(*valueFlag)
	if err != nil {
		zap.L().Fatal("Invalid --value", zap.String("value", *valueFlag), zap.Error(err))
	}
	milestones, err := parseMilestones(*milestonesFlag)
	if err != nil {
		zap.L().Fatal("Invalid --milestones", zap.Error(err))
	}

	originator := mustResolve(ctx, services, *originatorFlag)
	params := store.CreateDealParams{
		Title:        *titleFlag,
		OriginatorId: originator.Id,
		DealValue:    value,
		Currency:     *currencyFlag,
		Milestones:   milestones,
	}
	if *counterpartyFlag != "" {
		counterparty := mustResolve(ctx, services, *counterpartyFlag)
		params.CounterpartyId = &counterparty.Id
	}
	if *originalFlag > 0 {
		params.OriginalDealId = originalFlag
	}

	deal, err := services.Settlement.CreateDeal(models.WithActor(ctx, originator.Id), params)
	if err != nil {
		zap.L().Fatal("Failed to create deal", zap.Error(err))
	}
	printDeal(deal)
}

func runAdd(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	dealFlag := fs.Int64("deal", 0, "Deal id")
	memberFlag := fs.String("member", "", "Participating member")
	roleFlag := fs.String("role", "", "Participant role")
	pctFlag := fs.String("pct", "", "Attribution percentage (optional)")
	_ = fs.Parse(args)

	member := mustResolve(ctx, services, *memberFlag)
	params := store.AddParticipantParams{
		DealId: *dealFlag,
		UserId: member.Id,
		Role:   *roleFlag,
	}
	if *pctFlag != "" {
		pct, err := decimal.NewFromString(*pctFlag)
		if err != nil {
			zap.L().Fatal("Invalid --pct", zap.String("pct", *pctFlag), zap.Error(err))
		}
		params.AttributionPercentage = &pct
	}

	p, err := services.Settlement.AddParticipant(ctx, params)
	if err != nil {
		zap.L().Fatal("Failed to add participant", zap.Error(err))
	}
	fmt.Printf("%s %s joined deal %d as %s", common.Check(true), member.Name, p.DealId, p.Role)
	if p.RelationshipId != nil {
		fmt.Printf(" (relationship %d)", *p.RelationshipId)
	}
	fmt.Println()
}

func runClose(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	dealFlag := fs.Int64("deal", 0, "Deal id")
	_ = fs.Parse(args)

	result, err := services.Settlement.CloseDeal(ctx, *dealFlag)
	if err != nil {
		zap.L().Fatal("Failed to close deal", zap.Int64("deal_id", *dealFlag), zap.Error(err))
	}

	title := fmt.Sprintf("DEAL %d CLOSED", result.DealId)
	if result.AlreadyClosed {
		title = fmt.Sprintf("DEAL %d ALREADY CLOSED", result.DealId)
	}
	common.PrintHeader(title, common.WideWidth)
	fmt.Printf("Fee pool:   %s\n", result.TotalFees)
	fmt.Printf("Follow-ons: %d\n", result.FollowOnCount)
	printPayouts(result.Payouts)
	common.PrintSeparator("=", common.WideWidth)
}

func runMilestone(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("milestone", flag.ExitOnError)
	dealFlag := fs.Int64("deal", 0, "Deal id")
	milestoneFlag := fs.String("milestone", "", "Milestone id")
	_ = fs.Parse(args)

	payouts, err := services.Settlement.CompleteMilestone(ctx, *dealFlag, *milestoneFlag)
	if err != nil {
		zap.L().Fatal("Failed to complete milestone", zap.Error(err))
	}
	common.PrintHeader(fmt.Sprintf("MILESTONE %s COMPLETED", *milestoneFlag), common.WideWidth)
	printPayouts(payouts)
	common.PrintSeparator("=", common.WideWidth)
}

func runApprove(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	payoutFlag := fs.String("payout", "", "Payout id")
	_ = fs.Parse(args)

	if err := services.Settlement.ApprovePayout(ctx, *payoutFlag); err != nil {
		zap.L().Fatal("Failed to approve payout", zap.String("payout_id", *payoutFlag), zap.Error(err))
	}
	fmt.Printf("%s payout %s approved\n", common.Check(true), *payoutFlag)
}

func runShow(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	dealFlag := fs.Int64("deal", 0, "Deal id")
	_ = fs.Parse(args)

	deal, err := services.DbService.GetDealById(ctx, *dealFlag)
	if err != nil {
		zap.L().Fatal("Failed to load deal", zap.Error(err))
	}
	printDeal(deal)

	participants, err := services.DbService.GetDealParticipants(ctx, deal.Id)
	if err != nil {
		zap.L().Fatal("Failed to load participants", zap.Error(err))
	}
	for i, p := range participants {
		pct := "-"
		if p.AttributionPercentage != nil {
			pct = p.AttributionPercentage.String()
		}
		fmt.Printf("%s member %d  %-12s pct=%s\n", common.BoxPrefix(i == len(participants)-1), p.UserId, p.Role, pct)
	}

	payouts, err := services.DbService.GetPayoutsByDeal(ctx, deal.Id)
	if err != nil {
		zap.L().Fatal("Failed to load payouts", zap.Error(err))
	}
	printPayouts(payouts)
}

func printDeal(deal *models.Deal) {
	common.PrintHeader(fmt.Sprintf("DEAL %d: %s", deal.Id, deal.Title), common.WideWidth)
	fmt.Printf("Originator: %d\n", deal.OriginatorId)
	fmt.Printf("Value:      %s %s\n", deal.DealValue.StringFixed(2), deal.Currency)
	fmt.Printf("Stage:      %s\n", deal.Stage)
	if deal.IsFollowOn && deal.OriginalDealId != nil {
		fmt.Printf("Follow-on:  of deal %d\n", *deal.OriginalDealId)
	}
	if len(deal.Milestones) > 0 {
		out, _ := json.Marshal(deal.Milestones)
		fmt.Printf("Milestones: %s\n", out)
	}
	common.PrintSeparator("-", common.WideWidth)
}

func printPayouts(payouts []models.Payout) {
	if len(payouts) == 0 {
		fmt.Println("No payouts")
		return
	}
	for i, p := range payouts {
		fmt.Printf("%s %s  member %-4d %-22s %12s %s  %s\n", common.BoxPrefix(i == len(payouts)-1),
			p.Id, p.UserId, p.PayoutType, p.Amount.StringFixed(2), p.Currency, p.Status)
	}
}

// parseMilestones reads "m1:term_sheet:trigger,m2:signing".
func parseMilestones(s string) ([]models.Milestone, error) {
	milestones := []models.Milestone{}
	if s == "" {
		return milestones, nil
	}
	for _, item := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("milestone %q must be id:name[:trigger]", item)
		}
		m := models.Milestone{Id: parts[0], Name: parts[1], Status: "pending"}
		if len(parts) == 3 {
			if parts[2] != "trigger" {
				return nil, fmt.Errorf("milestone %q: unknown flag %q", item, parts[2])
			}
			m.PayoutTrigger = true
		}
		milestones = append(milestones, m)
	}
	return milestones, nil
}

func mustResolve(ctx context.Context, services *common.Services, ref string) *models.User {
	if ref == "" {
		zap.L().Fatal("A member id or email is required")
	}
	user, err := common.ResolveUser(ctx, services.DbService, ref)
	if err != nil {
		zap.L().Fatal("Failed to resolve member", zap.String("member", ref), zap.Error(err))
	}
	return user
}
