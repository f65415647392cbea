package database

import (
	"context"
	"errors"
	"testing"

	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"github.com/shopspring/decimal"
)

func createTestDeal(t *testing.T, service *Service, originator *models.User, counterparty *models.User) *models.Deal {
	t.Helper()
	deal, err := service.CreateDeal(context.Background(), store.CreateDealParams{
		Title:          "Series A intro",
		OriginatorId:   originator.Id,
		CounterpartyId: &counterparty.Id,
		DealValue:      decimal.NewFromInt(500000),
		Milestones: []models.Milestone{
			{Id: "m1", Name: "term_sheet", Status: "pending", PayoutTrigger: true},
		},
	})
	if err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}
	return deal
}

func TestCreateDeal_RoundTrip(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")
	bob := createTestUser(t, service, "bob")

	deal := createTestDeal(t, service, alice, bob)

	stored, err := service.GetDealById(ctx, deal.Id)
	if err != nil {
		t.Fatalf("GetDealById failed: %v", err)
	}
	if !stored.DealValue.Equal(decimal.NewFromInt(500000)) {
		t.Errorf("Expected deal value 500000, got %s", stored.DealValue)
	}
	if stored.Currency != "USD" || stored.Stage != "lead" {
		t.Errorf("Unexpected defaults: currency %s stage %s", stored.Currency, stored.Stage)
	}
	if len(stored.Milestones) != 1 || !stored.Milestones[0].PayoutTrigger {
		t.Errorf("Unexpected milestones %+v", stored.Milestones)
	}
	if stored.ClosedAt != nil {
		t.Errorf("Expected open deal, got closed at %v", stored.ClosedAt)
	}

	_, err = service.GetDealById(ctx, 999)
	if !errors.Is(err, store.ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound, got %v", err)
	}
}

func TestAddParticipant_OptionalPercentage(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")
	bob := createTestUser(t, service, "bob")
	deal := createTestDeal(t, service, alice, bob)

	pct := decimal.NewFromInt(55)
	if _, err := service.AddParticipant(ctx, store.AddParticipantParams{
		DealId: deal.Id, UserId: alice.Id, Role: "originator", AttributionPercentage: &pct,
	}); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	if _, err := service.AddParticipant(ctx, store.AddParticipantParams{
		DealId: deal.Id, UserId: bob.Id, Role: "advisor",
	}); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}

	participants, err := service.GetDealParticipants(ctx, deal.Id)
	if err != nil {
		t.Fatalf("GetDealParticipants failed: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("Expected 2 participants, got %d", len(participants))
	}
	if participants[0].AttributionPercentage == nil || !participants[0].AttributionPercentage.Equal(pct) {
		t.Errorf("Expected originator percentage 55, got %v", participants[0].AttributionPercentage)
	}
	if participants[1].AttributionPercentage != nil {
		t.Errorf("Expected nil percentage, got %v", participants[1].AttributionPercentage)
	}

	// Same user and role twice is rejected
	if _, err := service.AddParticipant(ctx, store.AddParticipantParams{DealId: deal.Id, UserId: bob.Id, Role: "advisor"}); err == nil {
		t.Error("Expected unique constraint error, got nil")
	}
}

func TestUpdateDealStage_CompletionCountsParticipants(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")
	bob := createTestUser(t, service, "bob")
	deal := createTestDeal(t, service, alice, bob)

	for _, user := range []*models.User{alice, bob} {
		if _, err := service.AddParticipant(ctx, store.AddParticipantParams{DealId: deal.Id, UserId: user.Id, Role: "originator"}); err != nil {
			t.Fatalf("AddParticipant failed: %v", err)
		}
	}

	if err := service.UpdateDealStage(ctx, deal.Id, "completed"); err != nil {
		t.Fatalf("UpdateDealStage failed: %v", err)
	}

	stored, err := service.GetDealById(ctx, deal.Id)
	if err != nil {
		t.Fatalf("GetDealById failed: %v", err)
	}
	if stored.Stage != "completed" || stored.ClosedAt == nil {
		t.Errorf("Expected completed deal with closed_at, got %s %v", stored.Stage, stored.ClosedAt)
	}

	user, _ := service.GetUserById(ctx, bob.Id)
	if user.TotalDeals != 1 {
		t.Errorf("Expected 1 total deal, got %d", user.TotalDeals)
	}

	completed, err := service.ListCompletedDealsByOriginator(ctx, alice.Id)
	if err != nil {
		t.Fatalf("ListCompletedDealsByOriginator failed: %v", err)
	}
	if len(completed) != 1 || completed[0].Id != deal.Id {
		t.Errorf("Expected completed deal %d, got %+v", deal.Id, completed)
	}

	if err := service.UpdateDealStage(ctx, 999, "completed"); !errors.Is(err, store.ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound, got %v", err)
	}
}

func TestUpdateMilestones(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")
	bob := createTestUser(t, service, "bob")
	deal := createTestDeal(t, service, alice, bob)

	milestones := deal.Milestones
	milestones[0].Status = "completed"
	if err := service.UpdateMilestones(ctx, deal.Id, milestones); err != nil {
		t.Fatalf("UpdateMilestones failed: %v", err)
	}

	stored, _ := service.GetDealById(ctx, deal.Id)
	if stored.Milestones[0].Status != "completed" {
		t.Errorf("Expected completed milestone, got %s", stored.Milestones[0].Status)
	}
}
