package database

import (
	"context"
	"errors"
	"testing"

	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"
)

func plusFifty(prev float64) float64 { return prev + 50 }

func TestApplyScoreEvent_Idempotent(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")

	params := store.ScoreEventParams{
		UserId:            alice.Id,
		Source:            "deal_completion",
		RelatedEntityId:   11,
		RelatedEntityType: "deal",
		Reason:            "+50 deal_completion",
		Next:              plusFifty,
	}

	snapshot, err := service.ApplyScoreEvent(ctx, params)
	if err != nil {
		t.Fatalf("ApplyScoreEvent failed: %v", err)
	}
	if snapshot.PreviousScore != 0 || snapshot.NewScore != 50 {
		t.Errorf("Expected 0 -> 50, got %v -> %v", snapshot.PreviousScore, snapshot.NewScore)
	}
	if snapshot.RelatedEntityId == nil || *snapshot.RelatedEntityId != 11 {
		t.Errorf("Expected related entity 11, got %v", snapshot.RelatedEntityId)
	}

	_, err = service.ApplyScoreEvent(ctx, params)
	if !errors.Is(err, store.ErrDuplicateSnapshot) {
		t.Fatalf("Expected ErrDuplicateSnapshot, got %v", err)
	}

	user, err := service.GetUserById(ctx, alice.Id)
	if err != nil {
		t.Fatalf("GetUserById failed: %v", err)
	}
	if user.TrustScore != 50 {
		t.Errorf("Expected score 50 after duplicate, got %v", user.TrustScore)
	}

	// A different entity is a different event
	params.RelatedEntityId = 12
	if _, err := service.ApplyScoreEvent(ctx, params); err != nil {
		t.Fatalf("ApplyScoreEvent for new entity failed: %v", err)
	}
}

func TestApplyScoreEvent_UnknownUser(t *testing.T) {
	service := newTestService(t)

	_, err := service.ApplyScoreEvent(context.Background(), store.ScoreEventParams{
		UserId: 99, Source: "deal_completion", RelatedEntityId: 1, Next: plusFifty,
	})
	if !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestRecordRecalculation_NeverDeduplicated(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")

	for _, score := range []float64{40, 40, 72} {
		_, err := service.RecordRecalculation(ctx, store.RecalculationParams{
			UserId: alice.Id, NewScore: score, Reason: "trust_score_recalculation", Source: "manual_adjustment",
		})
		if err != nil {
			t.Fatalf("RecordRecalculation failed: %v", err)
		}
	}

	history, err := service.GetTrustHistory(ctx, alice.Id, 10)
	if err != nil {
		t.Fatalf("GetTrustHistory failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 snapshots, got %d", len(history))
	}
	if history[0].NewScore != 72 || history[0].PreviousScore != 40 {
		t.Errorf("Expected newest snapshot 40 -> 72, got %v -> %v", history[0].PreviousScore, history[0].NewScore)
	}
}

func TestGetTrustInputs(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")
	bob := createTestUser(t, service, "bob")

	for _, rating := range []int{5, 3} {
		if _, err := service.AddPeerReview(ctx, models.PeerReview{ReviewerId: bob.Id, RevieweeId: alice.Id, Rating: rating}); err != nil {
			t.Fatalf("AddPeerReview failed: %v", err)
		}
	}
	if _, err := service.AddComplianceCheck(ctx, models.ComplianceCheck{UserId: alice.Id, CheckType: "sanctions", Status: "passed"}); err != nil {
		t.Fatalf("AddComplianceCheck failed: %v", err)
	}
	if err := service.UpdateKybStatus(ctx, alice.Id, "approved"); err != nil {
		t.Fatalf("UpdateKybStatus failed: %v", err)
	}

	inputs, err := service.GetTrustInputs(ctx, alice.Id)
	if err != nil {
		t.Fatalf("GetTrustInputs failed: %v", err)
	}
	if len(inputs.PeerRatings) != 2 || inputs.PeerRatings[0] != 5 || inputs.PeerRatings[1] != 3 {
		t.Errorf("Unexpected peer ratings %v", inputs.PeerRatings)
	}
	if len(inputs.ComplianceStatuses) != 1 || inputs.ComplianceStatuses[0] != "passed" {
		t.Errorf("Unexpected compliance statuses %v", inputs.ComplianceStatuses)
	}
	if inputs.User.KybStatus != "approved" {
		t.Errorf("Expected KYB approved, got %s", inputs.User.KybStatus)
	}
}

func TestAddPeerReview_RejectsOutOfRangeRating(t *testing.T) {
	service := newTestService(t)
	alice := createTestUser(t, service, "alice")
	bob := createTestUser(t, service, "bob")

	_, err := service.AddPeerReview(context.Background(), models.PeerReview{ReviewerId: bob.Id, RevieweeId: alice.Id, Rating: 6})
	if err == nil {
		t.Fatal("Expected check constraint error, got nil")
	}
}

func TestSetVerificationTier(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")

	if err := service.SetVerificationTier(ctx, alice.Id, "enhanced"); err != nil {
		t.Fatalf("SetVerificationTier failed: %v", err)
	}
	user, err := service.GetUserById(ctx, alice.Id)
	if err != nil {
		t.Fatalf("GetUserById failed: %v", err)
	}
	if user.VerificationTier != "enhanced" || user.VerificationBadge != "enhanced" {
		t.Errorf("Expected enhanced tier and badge, got %s/%s", user.VerificationTier, user.VerificationBadge)
	}

	if err := service.SetVerificationTier(ctx, alice.Id, "none"); err != nil {
		t.Fatalf("SetVerificationTier failed: %v", err)
	}
	user, _ = service.GetUserById(ctx, alice.Id)
	if user.VerificationBadge != "" {
		t.Errorf("Expected empty badge for tier none, got %s", user.VerificationBadge)
	}

	if err := service.SetVerificationTier(ctx, 999, "basic"); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}
