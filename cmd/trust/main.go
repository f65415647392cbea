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
	"strconv"

	"relationship-custody-go/internal/auditlog"
	"relationship-custody-go/internal/common"
	"relationship-custody-go/internal/config"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/trust"

	"go.uber.org/zap"
)

const usage = `usage: trust <command> [flags]

commands:
  recalc      --member <id|email>
  event       --member <id|email> --kind deal_completion --related 42 [--related-type deal] [--delta 10]
  history     --member <id|email> [--limit 20]
  review      --reviewer <id|email> --member <id|email> --rating 1..5 [--deal id]
  compliance  --member <id|email> --type sanctions --status passed|failed|flagged|pending`

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
	case "recalc":
		runRecalc(ctx, services, args)
	case "event":
		runEvent(ctx, services, args)
	case "history":
		runHistory(ctx, services, args)
	case "review":
		runReview(ctx, services, args)
	case "compliance":
		runCompliance(ctx, services, args)
	default:
		fmt.Println(usage)
		os.Exit(2)
	}
}

func runRecalc(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("recalc", flag.ExitOnError)
	memberFlag := fs.String("member", "", "Member to rescore")
	_ = fs.Parse(args)

	user := mustResolve(ctx, services, *memberFlag)
	breakdown, tier, err := services.Trust.Rescore(ctx, user.Id)
	if err != nil {
		zap.L().Fatal("Failed to rescore member", zap.Int64("user_id", user.Id), zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("TRUST SCORE: %s", user.Name), common.DefaultWidth)
	fmt.Printf("Score:      %d\n", breakdown.Score)
	fmt.Printf("Badge:      %s\n", tier)
	fmt.Printf("Tier:       %.1f\n", breakdown.Tier)
	fmt.Printf("Deals:      %.1f\n", breakdown.Deals)
	fmt.Printf("Reviews:    %.1f\n", breakdown.Reviews)
	fmt.Printf("Compliance: %.1f\n", breakdown.Compliance)
	fmt.Printf("Tenure:     %.1f\n", breakdown.Tenure)
	common.PrintSeparator("=", common.DefaultWidth)
}

func runEvent(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("event", flag.ExitOnError)
	memberFlag := fs.String("member", "", "Member the event applies to")
	kindFlag := fs.String("kind", "", "Event kind")
	relatedFlag := fs.Int64("related", 0, "Related entity id")
	relatedTypeFlag := fs.String("related-type", "", "Related entity type")
	deltaFlag := fs.String("delta", "", "Signed delta (manual_adjustment only)")
	_ = fs.Parse(args)

	kind, err := trust.ParseEventKind(*kindFlag)
	if err != nil {
		zap.L().Fatal("Invalid --kind", zap.Error(err))
	}
	override, err := parseDelta(*deltaFlag)
	if err != nil {
		zap.L().Fatal("Invalid --delta", zap.Error(err))
	}

	user := mustResolve(ctx, services, *memberFlag)
	snapshot, err := services.Trust.ApplyEvent(ctx, user.Id, kind, *relatedFlag, *relatedTypeFlag, override)
	if err != nil {
		zap.L().Fatal("Failed to apply trust event", zap.Error(err))
	}
	if snapshot == nil {
		fmt.Printf("%s no change for %s (zero delta or already applied)\n", common.Check(true), user.Name)
		return
	}
	fmt.Printf("%s %s: %.0f -> %.0f (%s)\n", common.Check(true), user.Name,
		snapshot.PreviousScore, snapshot.NewScore, snapshot.Reason)
}

func runHistory(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	memberFlag := fs.String("member", "", "Member")
	limitFlag := fs.Int("limit", 20, "Number of snapshots")
	_ = fs.Parse(args)

	user := mustResolve(ctx, services, *memberFlag)
	snapshots, err := services.Trust.History(ctx, user.Id, *limitFlag)
	if err != nil {
		zap.L().Fatal("Failed to load trust history", zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("TRUST HISTORY: %s", user.Name), common.WideWidth)
	if len(snapshots) == 0 {
		fmt.Println("No snapshots")
	}
	for i, s := range snapshots {
		related := ""
		if s.RelatedEntityId != nil {
			related = fmt.Sprintf(" %s:%d", s.RelatedEntityType, *s.RelatedEntityId)
		}
		fmt.Printf("%s %s  %6.0f -> %-6.0f %-22s%s\n", common.BoxPrefix(i == len(snapshots)-1),
			s.CreatedAt.Format("2006-01-02 15:04:05"), s.PreviousScore, s.NewScore, s.Source, related)
	}
	common.PrintSeparator("=", common.WideWidth)
}

func runReview(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	reviewerFlag := fs.String("reviewer", "", "Member leaving the review")
	memberFlag := fs.String("member", "", "Member being reviewed")
	ratingFlag := fs.Int("rating", 0, "Rating from 1 to 5")
	dealFlag := fs.Int64("deal", 0, "Deal the review refers to (optional)")
	_ = fs.Parse(args)

	if *ratingFlag < 1 || *ratingFlag > 5 {
		zap.L().Fatal("--rating must be between 1 and 5", zap.Int("rating", *ratingFlag))
	}
	reviewer := mustResolve(ctx, services, *reviewerFlag)
	reviewee := mustResolve(ctx, services, *memberFlag)
	if reviewer.Id == reviewee.Id {
		zap.L().Fatal("Members cannot review themselves")
	}

	review := models.PeerReview{ReviewerId: reviewer.Id, RevieweeId: reviewee.Id, Rating: *ratingFlag}
	if *dealFlag > 0 {
		review.DealId = dealFlag
	}
	saved, err := services.DbService.AddPeerReview(ctx, review)
	if err != nil {
		zap.L().Fatal("Failed to add peer review", zap.Error(err))
	}
	audit(models.WithActor(ctx, reviewer.Id), services, "peer_review_added", "peer_review", saved.Id, saved)

	applyInput(ctx, services, reviewee, trust.EventPeerReview, saved.Id, "peer_review")
}

func runCompliance(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("compliance", flag.ExitOnError)
	memberFlag := fs.String("member", "", "Member screened")
	typeFlag := fs.String("type", "", "Check type, e.g. sanctions or pep")
	statusFlag := fs.String("status", "", "Outcome")
	_ = fs.Parse(args)

	if *typeFlag == "" {
		zap.L().Fatal("--type is required")
	}
	if !validComplianceStatus(*statusFlag) {
		zap.L().Fatal("Invalid --status", zap.String("status", *statusFlag))
	}
	user := mustResolve(ctx, services, *memberFlag)

	saved, err := services.DbService.AddComplianceCheck(ctx, models.ComplianceCheck{
		UserId:    user.Id,
		CheckType: *typeFlag,
		Status:    *statusFlag,
	})
	if err != nil {
		zap.L().Fatal("Failed to add compliance check", zap.Error(err))
	}
	audit(ctx, services, "compliance_check_added", "compliance_check", saved.Id, saved)

	applyInput(ctx, services, user, trust.EventComplianceCheck, saved.Id, "compliance_check")
}

// applyInput refreshes a member's score after a new review or compliance
// result, on whichever path the deployment runs.
func applyInput(ctx context.Context, services *common.Services, user *models.User, kind trust.EventKind, relatedId int64, relatedType string) {
	if services.Trust.Mode() == trust.ModeIncremental {
		snapshot, err := services.Trust.ApplyEvent(ctx, user.Id, kind, relatedId, relatedType, nil)
		if err != nil {
			zap.L().Fatal("Failed to apply trust event", zap.Error(err))
		}
		if snapshot != nil {
			fmt.Printf("%s %s: %.0f -> %.0f\n", common.Check(true), user.Name, snapshot.PreviousScore, snapshot.NewScore)
			return
		}
		fmt.Printf("%s recorded for %s, score unchanged\n", common.Check(true), user.Name)
		return
	}

	breakdown, tier, err := services.Trust.Rescore(ctx, user.Id)
	if err != nil {
		zap.L().Fatal("Failed to rescore member", zap.Error(err))
	}
	fmt.Printf("%s %s rescored: %d (%s)\n", common.Check(true), user.Name, breakdown.Score, tier)
}

func audit(ctx context.Context, services *common.Services, action, entityType string, id int64, state any) {
	if _, err := services.Audit.Record(ctx, auditlog.Entry{
		Action:     action,
		EntityType: entityType,
		EntityId:   &id,
		NewState:   state,
	}); err != nil {
		zap.L().Fatal("Failed to record audit entry", zap.Error(err))
	}
}

func parseDelta(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func validComplianceStatus(s string) bool {
	switch trust.ComplianceStatus(s) {
	case trust.CompliancePending, trust.CompliancePassed, trust.ComplianceFailed, trust.ComplianceFlagged:
		return true
	}
	return false
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
