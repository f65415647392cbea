package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*SubledgerService, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	service := NewSubledgerService(db)

	// Use the actual schema initialization
	if err := service.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func credit(userId, asset string, amount decimal.Decimal, externalId string) ProcessTransactionParams {
	return ProcessTransactionParams{
		UserId:          userId,
		Asset:           asset,
		TransactionType: TxTypePayoutCredit,
		Amount:          amount,
		ExternalTxId:    externalId,
		Reference:       "deal_close_1",
		Counterparty:    "deal_1",
	}
}

func TestProcessTransaction_PayoutCredit(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	amount := decimal.RequireFromString("1200.50")

	result, err := service.ProcessTransaction(ctx, credit("1", "USD", amount, "payout-1"))
	if err != nil {
		t.Fatalf("ProcessTransaction failed: %v", err)
	}

	if result.UserId != "1" {
		t.Errorf("Expected userId 1, got %s", result.UserId)
	}
	if result.TransactionType != TxTypePayoutCredit {
		t.Errorf("Expected type %s, got %s", TxTypePayoutCredit, result.TransactionType)
	}
	if !result.Amount.Equal(amount) {
		t.Errorf("Expected amount %s, got %s", amount.String(), result.Amount.String())
	}
	if !result.BalanceAfter.Equal(amount) {
		t.Errorf("Expected balance %s, got %s", amount.String(), result.BalanceAfter.String())
	}
}

func TestProcessTransaction_Disbursement(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	_, err := service.ProcessTransaction(ctx, credit("1", "USD", decimal.NewFromInt(2000), "payout-1"))
	if err != nil {
		t.Fatalf("Initial credit failed: %v", err)
	}

	result, err := service.ProcessTransaction(ctx, ProcessTransactionParams{
		UserId:          "1",
		Asset:           "USD",
		TransactionType: TxTypeDisbursement,
		Amount:          decimal.NewFromInt(-500),
		ExternalTxId:    "withdrawal-1",
		Counterparty:    "prime_wallet",
	})
	if err != nil {
		t.Fatalf("ProcessTransaction disbursement failed: %v", err)
	}

	expectedBalance := decimal.NewFromInt(1500)
	if !result.BalanceAfter.Equal(expectedBalance) {
		t.Errorf("Expected balance %s, got %s", expectedBalance.String(), result.BalanceAfter.String())
	}
}

func TestProcessTransaction_DuplicateHandling(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	params := credit("1", "USD", decimal.NewFromInt(100), "duplicate-payout")

	if _, err := service.ProcessTransaction(ctx, params); err != nil {
		t.Fatalf("First ProcessTransaction failed: %v", err)
	}

	_, err := service.ProcessTransaction(ctx, params)
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Errorf("Expected duplicate transaction error, got: %v", err)
	}
}

func TestProcessTransaction_JournalEntriesBalance(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.ProcessTransaction(ctx, credit("1", "USD", decimal.NewFromInt(300), "payout-1")); err != nil {
		t.Fatalf("ProcessTransaction failed: %v", err)
	}

	var debits, credits float64
	err := service.db.QueryRow("SELECT SUM(debit_amount), SUM(credit_amount) FROM journal_entries").Scan(&debits, &credits)
	if err != nil {
		t.Fatalf("Failed to sum journal entries: %v", err)
	}
	if debits != 300 || credits != 300 {
		t.Errorf("Expected balanced journal of 300, got debits %v credits %v", debits, credits)
	}
}
