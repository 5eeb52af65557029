package store

import (
	"context"
	"fmt"

	"github.com/fieldline/stocktrail/internal/ledger"
)

// Backfill recomputes every delta and movement column from scratch,
// partitioned by key and ordered by (recorded_at, event_id) - the same
// rules the capture path applies incrementally, so re-derivation is
// idempotent and bit-identical to the original values.
//
// The whole pass runs in one transaction: it completes or leaves the
// ledger untouched. A half-applied recompute is never observable.
// Intended for introducing the delta columns over a pre-existing
// history or repairing suspected drift; there is no "not yet
// backfilled" sentinel - the pass always rewrites every row.
//
// One exception: a key whose earliest surviving event is not an INSERT
// had its history trimmed by an external retention policy. Capture
// computed that row's values against the then-live position, which no
// longer exists to recompute from, so its stored values are kept and
// the chain continues from its snapshot.
//
// Returns the number of rows whose stored values changed.
func (s *Store) Backfill(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("backfill: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Snapshot the ledger in recompute order. Rows are collected before
	// updating: SQLite dislikes writing a table while a cursor reads it
	// on the same connection.
	rows, err := tx.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		ORDER BY item_id ASC, location_id ASC, recorded_at ASC, event_id ASC
	`)
	if err != nil {
		return 0, fmt.Errorf("backfill: query: %w", err)
	}

	var events []ledger.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("backfill: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("backfill: iterate: %w", err)
	}
	rows.Close()

	var changed int64
	var prevKey ledger.Key
	var prevAttrs *ledger.Attributes

	for _, e := range events {
		if e.Key != prevKey {
			prevKey = e.Key
			prevAttrs = nil
			if e.ChangeType != ledger.ChangeInsert {
				// Trimmed history: the predecessor is gone, the stored
				// capture-time values stand.
				attrs := e.Attrs
				prevAttrs = &attrs
				continue
			}
		}

		deltas := ledger.Diff(e.Attrs, prevAttrs)
		movement := ledger.Movement(e.ChangeType, e.Attrs, prevAttrs)

		if deltas != e.Deltas || movement != e.Movement {
			_, err := tx.ExecContext(ctx, `
				UPDATE events SET
					delta_available = ?, delta_committed = ?, delta_damaged = ?, delta_incoming = ?,
					delta_on_hand = ?, delta_quality_control = ?, delta_reserved = ?, delta_safety_stock = ?,
					movement = ?
				WHERE event_id = ?
			`,
				deltas.Available, deltas.Committed, deltas.Damaged, deltas.Incoming,
				deltas.OnHand, deltas.QualityControl, deltas.Reserved, deltas.SafetyStock,
				movement, e.EventID,
			)
			if err != nil {
				return 0, fmt.Errorf("backfill: update event %d: %w", e.EventID, err)
			}
			changed++
		}

		attrs := e.Attrs
		prevAttrs = &attrs
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("backfill: commit: %w", err)
	}
	return changed, nil
}
