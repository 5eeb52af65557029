package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fieldline/stocktrail/internal/ledger"
)

// newTestStore opens a fresh database in a temp dir and closes it when
// the test ends.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testKey is the position used by most capture tests.
var testKey = ledger.Key{ItemID: 100, LocationID: 5}

// mutationAt builds an application-origin mutation for testKey with the
// given available quantity and timestamp.
func mutationAt(available int64, at time.Time) ledger.Mutation {
	return ledger.Mutation{
		Key:       testKey,
		Attrs:     ledger.Attributes{Available: available, OnHand: available},
		Refs:      ledger.RefIDs{VariantID: 42, ProductID: 7, SKU: "SKU-100"},
		Origin:    ledger.OriginApplication,
		Timestamp: at,
	}
}

// baseTime is an arbitrary fixed instant; tests offset from it to
// control event ordering.
var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
