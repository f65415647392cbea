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
	"time"

	"relationship-custody-go/internal/auditlog"
	"relationship-custody-go/internal/common"
	"relationship-custody-go/internal/config"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type seeder struct {
	services *common.Services
	members  map[string]*models.User
}

func (s *seeder) member(email string) *models.User {
	return s.members[email]
}

func (s *seeder) seedMembers(ctx context.Context, members []SeedMember) error {
	for _, m := range members {
		kyb := m.Kyb
		if kyb == "" {
			kyb = "pending"
		}
		user, err := s.services.DbService.CreateUser(ctx, store.CreateUserParams{
			Name:          m.Name,
			Email:         m.Email,
			KybStatus:     kyb,
			PayoutAddress: m.PayoutAddress,
			PayoutNetwork: m.PayoutNetwork,
		})
		if err != nil {
			return fmt.Errorf("failed to create member %s: %w", m.Email, err)
		}
		if _, err := s.services.Audit.Record(ctx, auditlog.Entry{
			Action:     "user_created",
			EntityType: "user",
			EntityId:   &user.Id,
			NewState:   map[string]string{"name": user.Name, "email": user.Email, "kybStatus": user.KybStatus},
		}); err != nil {
			return err
		}
		s.members[m.Email] = user
		zap.L().Info("Seeded member", zap.Int64("user_id", user.Id), zap.String("email", user.Email))
	}
	return nil
}

func (s *seeder) seedRelationships(ctx context.Context, relationships []SeedRelationship) error {
	for _, r := range relationships {
		owner := s.member(r.Owner)
		established := time.Now().UTC()
		if r.EstablishedAt != "" {
			t, err := time.Parse("2006-01-02", r.EstablishedAt)
			if err != nil {
				return fmt.Errorf("invalid establishedAt %q: %w", r.EstablishedAt, err)
			}
			established = t
		}
		rel, err := s.services.Custody.RegisterRelationship(models.WithActor(ctx, owner.Id), store.CustodyParams{
			OwnerId:          owner.Id,
			ContactId:        s.member(r.Contact).Id,
			RelationshipType: r.Type,
			EstablishedAt:    established,
			Notes:            r.Notes,
		})
		if err != nil {
			return fmt.Errorf("failed to register relationship %s -> %s: %w", r.Owner, r.Contact, err)
		}
		zap.L().Info("Seeded relationship",
			zap.Int64("relationship_id", rel.Id),
			zap.String("hash", common.ShortHash(rel.TimestampHash)))
	}
	return nil
}

func (s *seeder) seedTrustInputs(ctx context.Context, reviews []SeedReview, checks []SeedCompliance) error {
	for _, r := range reviews {
		if _, err := s.services.DbService.AddPeerReview(ctx, models.PeerReview{
			ReviewerId: s.member(r.Reviewer).Id,
			RevieweeId: s.member(r.Reviewee).Id,
			Rating:     r.Rating,
		}); err != nil {
			return fmt.Errorf("failed to add review: %w", err)
		}
	}
	for _, c := range checks {
		if _, err := s.services.DbService.AddComplianceCheck(ctx, models.ComplianceCheck{
			UserId:    s.member(c.Member).Id,
			CheckType: c.Type,
			Status:    c.Status,
		}); err != nil {
			return fmt.Errorf("failed to add compliance check: %w", err)
		}
	}
	return nil
}

func (s *seeder) seedDeal(ctx context.Context, d SeedDeal) error {
	value := decimal.Zero
	if d.Value != "" {
		v, err := decimal.NewFromString(d.Value)
		if err != nil {
			return fmt.Errorf("deal %q: invalid value: %w", d.Title, err)
		}
		value = v
	}

	milestones := make([]models.Milestone, 0, len(d.Milestones))
	for _, m := range d.Milestones {
		milestones = append(milestones, models.Milestone{Id: m.Id, Name: m.Name, Status: "pending", PayoutTrigger: m.Trigger})
	}

	originator := s.member(d.Originator)
	params := store.CreateDealParams{
		Title:        d.Title,
		OriginatorId: originator.Id,
		DealValue:    value,
		Currency:     d.Currency,
		Milestones:   milestones,
	}
	if d.Counterparty != "" {
		params.CounterpartyId = &s.member(d.Counterparty).Id
	}

	settlement := s.services.Settlement
	deal, err := settlement.CreateDeal(models.WithActor(ctx, originator.Id), params)
	if err != nil {
		return fmt.Errorf("failed to create deal %q: %w", d.Title, err)
	}

	for _, p := range d.Participants {
		add := store.AddParticipantParams{DealId: deal.Id, UserId: s.member(p.Member).Id, Role: p.Role}
		if p.Pct != "" {
			pct, err := decimal.NewFromString(p.Pct)
			if err != nil {
				return fmt.Errorf("deal %q: invalid pct for %s: %w", d.Title, p.Member, err)
			}
			add.AttributionPercentage = &pct
		}
		if _, err := settlement.AddParticipant(ctx, add); err != nil {
			return fmt.Errorf("deal %q: %w", d.Title, err)
		}
	}

	for _, milestoneId := range d.Complete {
		if _, err := settlement.CompleteMilestone(ctx, deal.Id, milestoneId); err != nil {
			return fmt.Errorf("deal %q: %w", d.Title, err)
		}
	}

	if d.Close {
		result, err := settlement.CloseDeal(ctx, deal.Id)
		if err != nil {
			return fmt.Errorf("deal %q: %w", d.Title, err)
		}
		zap.L().Info("Seeded closed deal",
			zap.Int64("deal_id", deal.Id),
			zap.String("fee_pool", result.TotalFees),
			zap.Int("payouts", len(result.Payouts)))
		return nil
	}
	zap.L().Info("Seeded open deal", zap.Int64("deal_id", deal.Id))
	return nil
}

func runSeed(ctx context.Context, services *common.Services, seedFile string) error {
	seed, err := LoadSeed(seedFile)
	if err != nil {
		return err
	}

	existing, err := services.DbService.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to read members: %w", err)
	}
	if len(existing) > 0 {
		zap.L().Info("Database already has members, skipping seed", zap.Int("members", len(existing)))
		return nil
	}

	s := &seeder{services: services, members: make(map[string]*models.User, len(seed.Members))}
	if err := s.seedMembers(ctx, seed.Members); err != nil {
		return err
	}
	if err := s.seedRelationships(ctx, seed.Relationships); err != nil {
		return err
	}
	if err := s.seedTrustInputs(ctx, seed.Reviews, seed.Compliance); err != nil {
		return err
	}
	for _, d := range seed.Deals {
		if err := s.seedDeal(ctx, d); err != nil {
			return err
		}
	}

	for _, user := range s.members {
		if _, _, err := services.Trust.Rescore(ctx, user.Id); err != nil {
			zap.L().Warn("Failed to score seeded member", zap.Int64("user_id", user.Id), zap.Error(err))
		}
	}

	zap.L().Info("Seed complete",
		zap.Int("members", len(seed.Members)),
		zap.Int("relationships", len(seed.Relationships)),
		zap.Int("deals", len(seed.Deals)))
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	seedFlag := flag.String("seed", "", "YAML file with demo members, relationships and deals (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Opening the database applies the schema.
	zap.L().Info("Setting up SQLite database", zap.String("path", cfg.Database.Path))
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *seedFlag != "" {
		if err := runSeed(ctx, services, *seedFlag); err != nil {
			zap.L().Fatal("Seeding failed", zap.Error(err))
		}
	}

	zap.L().Info("Initialization complete")
}
