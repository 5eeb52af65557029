package timeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/stocktrail/internal/ledger"
	"github.com/fieldline/stocktrail/internal/store"
)

var (
	feedKey  = ledger.Key{ItemID: 100, LocationID: 5}
	feedBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func newFeedService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

// seedFeed records a lifecycle for feedKey: insert, correction, sync
// adjustment, delete.
func seedFeed(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	mut := func(available int64, at time.Time) ledger.Mutation {
		return ledger.Mutation{
			Key:       feedKey,
			Attrs:     ledger.Attributes{Available: available, OnHand: available},
			Refs:      ledger.RefIDs{VariantID: 42, ProductID: 7, SKU: "SKU-100"},
			Timestamp: at,
		}
	}

	_, err := st.RecordUpsert(ctx, mut(20, feedBase))
	require.NoError(t, err)

	m := mut(15, feedBase.Add(time.Minute))
	m.Comment = "correction"
	_, err = st.RecordUpsert(ctx, m)
	require.NoError(t, err)

	m = mut(18, feedBase.Add(2*time.Minute))
	m.Origin = ledger.OriginSync
	_, err = st.RecordUpsert(ctx, m)
	require.NoError(t, err)

	_, err = st.RecordDelete(ctx, feedKey, "discontinued", feedBase.Add(3*time.Minute))
	require.NoError(t, err)
}

func TestRenderLine_Update(t *testing.T) {
	e := ledger.Event{
		Key:        feedKey,
		Attrs:      ledger.Attributes{Available: 15, OnHand: 15},
		Deltas:     ledger.Deltas{Available: -5, OnHand: -5},
		Movement:   -5,
		ChangeType: ledger.ChangeUpdate,
		RecordedAt: feedBase.Add(time.Minute),
		Comment:    "correction",
	}

	want := "2025-06-01T12:01:00Z UPDATE item=100 location=5 EXIT movement=-5 available=(-5) 15 on_hand=(-5) 15 -- correction"
	assert.Equal(t, want, RenderLine(e))
}

func TestRenderLine_InsertHasNoAnnotations(t *testing.T) {
	e := ledger.Event{
		Key:        feedKey,
		Attrs:      ledger.Attributes{Available: 20, OnHand: 20},
		Movement:   20,
		ChangeType: ledger.ChangeInsert,
		RecordedAt: feedBase,
	}

	want := "2025-06-01T12:00:00Z INSERT item=100 location=5 ENTRY movement=20 available=20 on_hand=20"
	assert.Equal(t, want, RenderLine(e))
}

func TestRenderLine_AllZeroStillShowsAvailable(t *testing.T) {
	e := ledger.Event{
		Key:        feedKey,
		ChangeType: ledger.ChangeUpdate,
		RecordedAt: feedBase,
	}

	want := "2025-06-01T12:00:00Z UPDATE item=100 location=5 NONE movement=0 available=0"
	assert.Equal(t, want, RenderLine(e))
}

func TestRenderFeed_Empty(t *testing.T) {
	assert.Equal(t, "", RenderFeed(nil))
}

func TestFeed_Golden(t *testing.T) {
	svc, st := newFeedService(t)
	seedFeed(t, st)

	events, err := svc.Feed(context.Background(), feedKey, feedBase.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 4)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "lifecycle_feed", []byte(RenderFeed(events)))
}

func TestFeed_WindowCutoff(t *testing.T) {
	svc, st := newFeedService(t)
	seedFeed(t, st)

	events, err := svc.Feed(context.Background(), feedKey, feedBase.Add(90*time.Second))
	require.NoError(t, err)
	require.Len(t, events, 2, "only the sync and the delete fall inside the window")
	assert.Equal(t, ledger.ChangeDelete, events[0].ChangeType)
	assert.Equal(t, ledger.ChangeSync, events[1].ChangeType)
}
