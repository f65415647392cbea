package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"relationship-custody-go/internal/hashchain"
	"relationship-custody-go/internal/store"
)

func TestAppendCustody_LinksOwnerChain(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")
	bob := createTestUser(t, service, "bob")
	carol := createTestUser(t, service, "carol")

	first, err := service.AppendCustody(ctx, store.CustodyParams{OwnerId: alice.Id, ContactId: bob.Id})
	if err != nil {
		t.Fatalf("AppendCustody failed: %v", err)
	}
	if first.PrevHash != hashchain.GenesisDigest {
		t.Errorf("Expected genesis prev hash, got %s", first.PrevHash)
	}
	if !hashchain.Verify(first.TimestampHash, first.TimestampProof) {
		t.Errorf("Stored proof does not verify against stored hash")
	}

	second, err := service.AppendCustody(ctx, store.CustodyParams{OwnerId: alice.Id, ContactId: carol.Id})
	if err != nil {
		t.Fatalf("AppendCustody failed: %v", err)
	}
	if second.PrevHash != first.TimestampHash {
		t.Errorf("Expected prev hash %s, got %s", first.TimestampHash, second.PrevHash)
	}

	// Each owner has an independent chain
	other, err := service.AppendCustody(ctx, store.CustodyParams{OwnerId: bob.Id, ContactId: carol.Id})
	if err != nil {
		t.Fatalf("AppendCustody failed: %v", err)
	}
	if other.PrevHash != hashchain.GenesisDigest {
		t.Errorf("Expected new owner chain to start at genesis, got %s", other.PrevHash)
	}

	chain, err := service.GetOwnerRelationships(ctx, alice.Id)
	if err != nil {
		t.Fatalf("GetOwnerRelationships failed: %v", err)
	}
	if len(chain) != 2 || chain[0].Id != first.Id || chain[1].Id != second.Id {
		t.Fatalf("Unexpected owner chain: %+v", chain)
	}

	owners, err := service.GetCustodyOwners(ctx)
	if err != nil {
		t.Fatalf("GetCustodyOwners failed: %v", err)
	}
	if len(owners) != 2 {
		t.Errorf("Expected 2 custody owners, got %v", owners)
	}
}

func TestAppendCustody_StoresMillisecondTimestamp(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")
	bob := createTestUser(t, service, "bob")

	at := time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.UTC)
	r, err := service.AppendCustody(ctx, store.CustodyParams{OwnerId: alice.Id, ContactId: bob.Id, EstablishedAt: at})
	if err != nil {
		t.Fatalf("AppendCustody failed: %v", err)
	}

	stored, err := service.GetRelationshipByHash(ctx, r.TimestampHash)
	if err != nil {
		t.Fatalf("GetRelationshipByHash failed: %v", err)
	}
	if !stored.EstablishedAt.Equal(at.Truncate(time.Millisecond)) {
		t.Errorf("Expected established at %v, got %v", at.Truncate(time.Millisecond), stored.EstablishedAt)
	}

	link, err := hashchain.Append(stored.PrevHash, hashchain.CustodyEvent{
		OwnerId:       stored.OwnerId,
		ContactId:     stored.ContactId,
		EstablishedAt: stored.EstablishedAt,
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if link.PayloadDigest != stored.TimestampHash {
		t.Errorf("Recomputed digest %s does not match stored %s", link.PayloadDigest, stored.TimestampHash)
	}
}

func TestInsertCustody_RejectsFork(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")
	bob := createTestUser(t, service, "bob")
	carol := createTestUser(t, service, "carol")

	if _, err := service.AppendCustody(ctx, store.CustodyParams{OwnerId: alice.Id, ContactId: bob.Id}); err != nil {
		t.Fatalf("AppendCustody failed: %v", err)
	}

	// A writer that read the tail before the first append still sees genesis
	err := service.withTx(ctx, func(tx *sql.Tx) error {
		_, err := insertCustody(ctx, tx, store.CustodyParams{
			OwnerId:       alice.Id,
			ContactId:     carol.Id,
			EstablishedAt: now(),
		}, hashchain.GenesisDigest)
		return err
	})
	if !errors.Is(err, store.ErrChainFork) {
		t.Fatalf("Expected ErrChainFork, got %v", err)
	}
}

func TestAppendCustody_RejectsSelfRelationship(t *testing.T) {
	service := newTestService(t)
	alice := createTestUser(t, service, "alice")

	_, err := service.AppendCustody(context.Background(), store.CustodyParams{OwnerId: alice.Id, ContactId: alice.Id})
	if err == nil {
		t.Fatal("Expected error for self relationship, got nil")
	}
}

func TestGetRelationshipForAttribution_LatestWins(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, service, "alice")
	bob := createTestUser(t, service, "bob")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := service.AppendCustody(ctx, store.CustodyParams{OwnerId: alice.Id, ContactId: bob.Id, EstablishedAt: base}); err != nil {
		t.Fatalf("AppendCustody failed: %v", err)
	}
	latest, err := service.AppendCustody(ctx, store.CustodyParams{
		OwnerId:       alice.Id,
		ContactId:     bob.Id,
		EstablishedAt: base.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("AppendCustody failed: %v", err)
	}

	found, err := service.GetRelationshipForAttribution(ctx, alice.Id, bob.Id)
	if err != nil {
		t.Fatalf("GetRelationshipForAttribution failed: %v", err)
	}
	if found.Id != latest.Id {
		t.Errorf("Expected relationship %d, got %d", latest.Id, found.Id)
	}

	_, err = service.GetRelationshipForAttribution(ctx, bob.Id, alice.Id)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for reverse pair, got %v", err)
	}
}

func TestGetRelationshipByHash_NotFound(t *testing.T) {
	service := newTestService(t)

	_, err := service.GetRelationshipByHash(context.Background(), hashchain.GenesisDigest)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

