package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyValidate(t *testing.T) {
	assert.NoError(t, Key{ItemID: 100, LocationID: 5}.Validate())

	err := Key{ItemID: 0, LocationID: 5}.Validate()
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	err = Key{ItemID: 100, LocationID: -1}.Validate()
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestAttributesValidate_RejectsNegative(t *testing.T) {
	a := Attributes{Available: 10, Reserved: -2}

	err := a.Validate()

	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "reserved")
}

func TestMutationValidate(t *testing.T) {
	m := Mutation{
		Key:   Key{ItemID: 100, LocationID: 5},
		Attrs: Attributes{Available: 20},
	}
	assert.NoError(t, m.Validate())

	m.Attrs.Damaged = -1
	assert.Error(t, m.Validate())

	m = Mutation{Attrs: Attributes{Available: 20}}
	assert.Error(t, m.Validate())
}

func TestChangeTypeValid(t *testing.T) {
	for _, ct := range []ChangeType{ChangeInsert, ChangeUpdate, ChangeDelete, ChangeSync} {
		assert.True(t, ct.Valid(), string(ct))
	}
	assert.False(t, ChangeType("UPSERT").Valid())
	assert.False(t, ChangeType("").Valid())
}

func TestEventBefore_TimestampThenEventID(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a := Event{EventID: 1, RecordedAt: t0}
	b := Event{EventID: 2, RecordedAt: t0.Add(time.Second)}
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))

	// Same timestamp: event_id breaks the tie.
	c := Event{EventID: 2, RecordedAt: t0}
	assert.True(t, a.Before(c))
	assert.False(t, c.Before(a))
}

func TestNormalizeComment(t *testing.T) {
	assert.Equal(t, "restock", NormalizeComment("  restock \n"))

	// NFD input (e + combining acute) normalizes to the NFC composed form.
	assert.Equal(t, "caf\u00e9", NormalizeComment("cafe\u0301"))
}
