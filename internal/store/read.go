package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fieldline/stocktrail/internal/ledger"
)

// eventColumns is the canonical select list for event rows; scanEvent
// expects exactly this order.
const eventColumns = `event_id, item_id, location_id, variant_id, product_id, sku,
	available, committed, damaged, incoming,
	on_hand, quality_control, reserved, safety_stock,
	delta_available, delta_committed, delta_damaged, delta_incoming,
	delta_on_hand, delta_quality_control, delta_reserved, delta_safety_stock,
	movement, change_type, recorded_at, comment`

// Latest returns the most recent event for a key: the greatest
// (recorded_at, event_id). Returns ErrNotFound if the key has no
// events.
func (s *Store) Latest(ctx context.Context, key ledger.Key) (*ledger.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE item_id = ? AND location_id = ?
		ORDER BY recorded_at DESC, event_id DESC
		LIMIT 1
	`, key.ItemID, key.LocationID)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest (item=%d, location=%d): %w", key.ItemID, key.LocationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	return &e, nil
}

// AsOf returns the state of a key at time t: the greatest
// (recorded_at, event_id) among events with recorded_at <= t. Returns
// ErrNotFound if the key did not exist yet at that time.
func (s *Store) AsOf(ctx context.Context, key ledger.Key, t time.Time) (*ledger.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE item_id = ? AND location_id = ? AND recorded_at <= ?
		ORDER BY recorded_at DESC, event_id DESC
		LIMIT 1
	`, key.ItemID, key.LocationID, t.UTC().UnixNano())

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("as of %s (item=%d, location=%d): %w",
			t.UTC().Format(time.RFC3339), key.ItemID, key.LocationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("as of: %w", err)
	}
	return &e, nil
}

// LatestAll returns one event per distinct key, each the per-key
// maximum by (recorded_at, event_id), ordered by key.
// Returns an empty slice (not nil) when the ledger is empty.
func (s *Store) LatestAll(ctx context.Context) ([]ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY item_id, location_id
				ORDER BY recorded_at DESC, event_id DESC
			) AS rn
			FROM events
		)
		WHERE rn = 1
		ORDER BY item_id ASC, location_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("latest all: %w", err)
	}
	defer rows.Close()

	events := []ledger.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("latest all: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("latest all: iterate: %w", err)
	}
	return events, nil
}

// History returns a lazy iterator over a key's events within the
// trailing window, most recent first. Each event carries its persisted
// deltas and movement.
func (s *Store) History(key ledger.Key, since time.Duration) *HistoryIterator {
	return s.HistoryFrom(key, time.Now().UTC().Add(-since))
}

// HistoryFrom is History with an explicit window start, for callers
// that need a fixed cutoff rather than a trailing duration.
func (s *Store) HistoryFrom(key ledger.Key, cutoff time.Time) *HistoryIterator {
	it := &HistoryIterator{
		store:       s,
		key:         key,
		cutoffNanos: cutoff.UTC().UnixNano(),
		batchSize:   64,
	}
	it.Restart()
	return it
}

// HistoryIterator pages through a key's events most-recent-first in
// fixed-size batches keyed by a (recorded_at, event_id) cursor. The
// cursor makes iteration restartable: Restart rewinds to the newest
// event without re-reading anything already consumed elsewhere.
//
// Not safe for concurrent use.
type HistoryIterator struct {
	store       *Store
	key         ledger.Key
	cutoffNanos int64
	batchSize   int

	curNanos int64
	curID    int64
	batch    []ledger.Event
	pos      int
	done     bool
}

// Restart rewinds the iterator to the newest event in the window.
func (it *HistoryIterator) Restart() {
	it.curNanos = math.MaxInt64
	it.curID = math.MaxInt64
	it.batch = nil
	it.pos = 0
	it.done = false
}

// Next returns the next event or nil when the window is exhausted.
func (it *HistoryIterator) Next(ctx context.Context) (*ledger.Event, error) {
	if it.done {
		return nil, nil
	}

	if it.pos >= len(it.batch) {
		if err := it.fill(ctx); err != nil {
			return nil, err
		}
		if len(it.batch) == 0 {
			it.done = true
			return nil, nil
		}
	}

	e := it.batch[it.pos]
	it.pos++
	it.curNanos = e.RecordedAt.UnixNano()
	it.curID = e.EventID
	return &e, nil
}

// fill fetches the next batch strictly before the cursor.
func (it *HistoryIterator) fill(ctx context.Context) error {
	rows, err := it.store.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE item_id = ? AND location_id = ?
		  AND recorded_at >= ?
		  AND (recorded_at < ? OR (recorded_at = ? AND event_id < ?))
		ORDER BY recorded_at DESC, event_id DESC
		LIMIT ?
	`, it.key.ItemID, it.key.LocationID,
		it.cutoffNanos, it.curNanos, it.curNanos, it.curID, it.batchSize)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	it.batch = it.batch[:0]
	it.pos = 0
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		it.batch = append(it.batch, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("history: iterate: %w", err)
	}
	return nil
}

// Collect drains the iterator into a slice. Convenience for callers
// that want the whole window at once (feed rendering, tests).
func (it *HistoryIterator) Collect(ctx context.Context) ([]ledger.Event, error) {
	events := []ledger.Event{}
	for {
		e, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return events, nil
		}
		events = append(events, *e)
	}
}

// scanner abstracts *sql.Row and *sql.Rows for scanEvent.
type scanner interface {
	Scan(dest ...any) error
}

// scanEvent reads one event row in eventColumns order.
func scanEvent(sc scanner) (ledger.Event, error) {
	var e ledger.Event
	var changeType string
	var recordedNanos int64
	err := sc.Scan(
		&e.EventID, &e.Key.ItemID, &e.Key.LocationID,
		&e.Refs.VariantID, &e.Refs.ProductID, &e.Refs.SKU,
		&e.Attrs.Available, &e.Attrs.Committed, &e.Attrs.Damaged, &e.Attrs.Incoming,
		&e.Attrs.OnHand, &e.Attrs.QualityControl, &e.Attrs.Reserved, &e.Attrs.SafetyStock,
		&e.Deltas.Available, &e.Deltas.Committed, &e.Deltas.Damaged, &e.Deltas.Incoming,
		&e.Deltas.OnHand, &e.Deltas.QualityControl, &e.Deltas.Reserved, &e.Deltas.SafetyStock,
		&e.Movement, &changeType, &recordedNanos, &e.Comment,
	)
	if err != nil {
		return ledger.Event{}, err
	}
	e.ChangeType = ledger.ChangeType(changeType)
	e.RecordedAt = time.Unix(0, recordedNanos).UTC()
	return e, nil
}
