package store

import (
	"errors"
	"fmt"
	"testing"
)

// Compile-time checks that the interfaces are importable and usable.
func TestStoreInterfaceExists(t *testing.T) {
	var _ Store
	var _ TrustStore
	var _ CustodyStore
	_ = ScoreEventParams{}
	_ = CreatePayoutsParams{}
}

func TestSentinelErrorsWrap(t *testing.T) {
	sentinels := []error{
		ErrNotFound,
		ErrUserNotFound,
		ErrDealNotFound,
		ErrChainFork,
		ErrDuplicateSnapshot,
		ErrPayoutsExist,
		ErrConcurrentModification,
	}
	for _, s := range sentinels {
		wrapped := fmt.Errorf("context: %w", s)
		if !errors.Is(wrapped, s) {
			t.Errorf("expected wrapped error to match %v", s)
		}
	}
}
