package syncer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/stocktrail/internal/ledger"
)

func TestReadSnapshot(t *testing.T) {
	input := `{"inventory_item_id": 100, "location_id": 5, "sku": "SKU-100", "variant_id": 42, "product_id": 7, "last_updated_at": "2025-06-01T12:00:00Z", "available": 20, "on_hand": 20}

{"inventory_item_id": "200", "location_id": "9", "sku": "SKU-200", "available": 7, "reserved": 2}
`

	records, err := ReadSnapshot(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2, "blank lines are skipped")

	assert.Equal(t, int64(100), int64(records[0].InventoryItemID))
	assert.Equal(t, int64(20), records[0].Available)
	assert.Equal(t, int64(0), records[0].Committed, "absent quantities default to 0")

	// String-typed ids parse too.
	assert.Equal(t, int64(200), int64(records[1].InventoryItemID))
	assert.Equal(t, int64(9), int64(records[1].LocationID))
}

func TestReadSnapshot_MalformedLine(t *testing.T) {
	input := `{"inventory_item_id": 100, "location_id": 5}
not json`

	_, err := ReadSnapshot(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadSnapshot_Empty(t *testing.T) {
	records, err := ReadSnapshot(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordMutation(t *testing.T) {
	rec := Record{
		InventoryItemID: 100,
		LocationID:      5,
		SKU:             "SKU-100",
		VariantID:       42,
		ProductID:       7,
		LastUpdatedAt:   "2025-06-01T12:00:00Z",
		Available:       20,
		OnHand:          20,
	}

	m := rec.Mutation()
	assert.Equal(t, ledger.Key{ItemID: 100, LocationID: 5}, m.Key)
	assert.Equal(t, ledger.OriginSync, m.Origin)
	assert.Equal(t, int64(20), m.Attrs.Available)
	assert.Equal(t, "SKU-100", m.Refs.SKU)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), m.Timestamp)
}

func TestWriteSnapshot_RoundTrip(t *testing.T) {
	e := ledger.Event{
		Key:        ledger.Key{ItemID: 100, LocationID: 5},
		Refs:       ledger.RefIDs{VariantID: 42, ProductID: 7, SKU: "SKU-100"},
		Attrs:      ledger.Attributes{Available: 20, OnHand: 20, Reserved: 3},
		ChangeType: ledger.ChangeInsert,
		RecordedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	var buf strings.Builder
	require.NoError(t, WriteSnapshot(&buf, []Record{FromEvent(e)}))

	records, err := ReadSnapshot(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Len(t, records, 1)

	m := records[0].Mutation()
	assert.Equal(t, e.Key, m.Key)
	assert.Equal(t, e.Attrs, m.Attrs)
	assert.Equal(t, e.Refs, m.Refs)
	assert.Equal(t, e.RecordedAt, m.Timestamp)
}

func TestRecordMutation_BadTimestampLeftZero(t *testing.T) {
	rec := Record{InventoryItemID: 100, LocationID: 5, LastUpdatedAt: "yesterday"}
	assert.True(t, rec.Mutation().Timestamp.IsZero())
}
