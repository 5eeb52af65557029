package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/stocktrail/internal/ledger"
)

func TestRecordUpsert_FirstCaptureIsInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.RecordUpsert(ctx, mutationAt(20, baseTime))
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, ledger.ChangeInsert, e.ChangeType)
	assert.Equal(t, int64(20), e.Movement, "INSERT movement is the full inserted quantity")
	assert.Equal(t, ledger.Deltas{}, e.Deltas, "first event is a zero baseline")
	assert.Equal(t, "SKU-100", e.Refs.SKU)
	assert.Positive(t, e.EventID)
}

func TestRecordUpsert_UpdateComputesDeltas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordUpsert(ctx, mutationAt(20, baseTime))
	require.NoError(t, err)

	e, err := s.RecordUpsert(ctx, mutationAt(15, baseTime.Add(time.Minute)))
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, ledger.ChangeUpdate, e.ChangeType)
	assert.Equal(t, int64(-5), e.Movement)
	assert.Equal(t, int64(-5), e.Deltas.Available)
	assert.Equal(t, int64(-5), e.Deltas.OnHand)
	assert.Equal(t, "(-5) 15", ledger.Annotate(e.Deltas.Available, e.Attrs.Available))
}

func TestRecordUpsert_NoOpProducesNoEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.RecordUpsert(ctx, mutationAt(20, baseTime))
	require.NoError(t, err)
	second, err := s.RecordUpsert(ctx, mutationAt(15, baseTime.Add(time.Minute)))
	require.NoError(t, err)
	_ = first

	// Same attributes again: no event appended.
	e, err := s.RecordUpsert(ctx, mutationAt(15, baseTime.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.Nil(t, e)

	// Latest still returns the second event.
	latest, err := s.Latest(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, second.EventID, latest.EventID)
}

func TestRecordUpsert_SyncOriginProducesSyncEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordUpsert(ctx, mutationAt(20, baseTime))
	require.NoError(t, err)

	m := mutationAt(25, baseTime.Add(time.Minute))
	m.Origin = ledger.OriginSync
	e, err := s.RecordUpsert(ctx, m)
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, ledger.ChangeSync, e.ChangeType)
	assert.Equal(t, int64(5), e.Movement, "SYNC movement uses the plain difference")
}

func TestRecordUpsert_SyncOriginFirstCaptureIsStillInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := mutationAt(20, baseTime)
	m.Origin = ledger.OriginSync
	e, err := s.RecordUpsert(ctx, m)
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, ledger.ChangeInsert, e.ChangeType)
	assert.Equal(t, int64(20), e.Movement)
}

func TestRecordUpsert_RejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := mutationAt(20, baseTime)
	m.Attrs.Reserved = -1
	_, err := s.RecordUpsert(ctx, m)
	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))

	m = mutationAt(20, baseTime)
	m.Key.ItemID = 0
	_, err = s.RecordUpsert(ctx, m)
	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))

	// Nothing was persisted.
	_, err = s.Latest(ctx, testKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordDelete_CapturesFinalState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordUpsert(ctx, mutationAt(20, baseTime))
	require.NoError(t, err)
	_, err = s.RecordUpsert(ctx, mutationAt(15, baseTime.Add(time.Minute)))
	require.NoError(t, err)

	e, err := s.RecordDelete(ctx, testKey, "discontinued", baseTime.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, ledger.ChangeDelete, e.ChangeType)
	assert.Equal(t, int64(15), e.Attrs.Available, "DELETE carries the pre-removal snapshot")
	assert.Equal(t, int64(-15), e.Movement, "DELETE movement is the full removed quantity")
	assert.Equal(t, int64(0), e.Deltas.Available, "snapshot equals previous event, so delta is 0")
	assert.Equal(t, "discontinued", e.Comment)
	assert.Equal(t, "(-15) 15", ledger.Annotate(e.Movement, e.Attrs.Available))

	// The live row is gone: a fresh upsert starts over with INSERT.
	again, err := s.RecordUpsert(ctx, mutationAt(3, baseTime.Add(3*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, ledger.ChangeInsert, again.ChangeType)
}

func TestRecordDelete_MissingPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordDelete(ctx, testKey, "", baseTime)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordUpsert_TimestampsNeverRunBackwards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	later, err := s.RecordUpsert(ctx, mutationAt(20, baseTime.Add(time.Hour)))
	require.NoError(t, err)

	// An earlier wall-clock timestamp is clamped to the last committed one.
	earlier, err := s.RecordUpsert(ctx, mutationAt(25, baseTime))
	require.NoError(t, err)

	assert.False(t, earlier.RecordedAt.Before(later.RecordedAt))
	assert.True(t, later.Before(*earlier), "event_id breaks the timestamp tie")
}

func TestRecordUpsert_NormalizesComment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := mutationAt(20, baseTime)
	m.Comment = "  restock\n"
	e, err := s.RecordUpsert(ctx, m)
	require.NoError(t, err)

	assert.Equal(t, "restock", e.Comment)

	stored, err := s.Latest(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "restock", stored.Comment)
}

func TestRecordUpsert_IndependentKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	other := ledger.Key{ItemID: 200, LocationID: 9}

	_, err := s.RecordUpsert(ctx, mutationAt(20, baseTime))
	require.NoError(t, err)

	m := ledger.Mutation{
		Key:       other,
		Attrs:     ledger.Attributes{Available: 7},
		Timestamp: baseTime.Add(time.Second),
	}
	e, err := s.RecordUpsert(ctx, m)
	require.NoError(t, err)

	assert.Equal(t, ledger.ChangeInsert, e.ChangeType, "each key has its own history")
	assert.Equal(t, ledger.Deltas{}, e.Deltas)
}

func TestRecordUpsert_ConcurrentSameKeyFollowsCommitOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Distinct values across all workers, so no capture is
				// suppressed as a no-op.
				m := ledger.Mutation{
					Key:   testKey,
					Attrs: ledger.Attributes{Available: int64(w*1000 + i + 1)},
				}
				if _, err := s.RecordUpsert(ctx, m); err != nil {
					errs[w] = err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	for w, err := range errs {
		require.NoError(t, err, "worker %d", w)
	}

	// recorded_at never decreases in event_id (commit) order, so the
	// previous-event lookup each capture ran against is the same
	// predecessor the final ledger order assigns it.
	rows, err := s.db.Query(`SELECT recorded_at FROM events ORDER BY event_id ASC`)
	require.NoError(t, err)
	defer rows.Close()

	var count int
	var last int64
	for rows.Next() {
		var ns int64
		require.NoError(t, rows.Scan(&ns))
		assert.GreaterOrEqual(t, ns, last, "event %d", count)
		last = ns
		count++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, workers*perWorker, count)

	// The stored deltas already match a from-scratch recompute.
	changed, err := s.Backfill(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
}
