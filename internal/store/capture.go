package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldline/stocktrail/internal/ledger"
)

// RecordUpsert captures a create or modify of the live record in a
// single transaction: read the current position, decide the change
// type, write the position, and append the event with its deltas and
// movement already computed.
//
// Returns (nil, nil) for a no-op modification: when the position exists
// and none of the eight attributes changed, only synced_at is
// refreshed and no event is appended.
//
// Change type resolution:
//   - position absent:  INSERT (regardless of origin)
//   - position present: UPDATE, or SYNC when the mutation came from the
//     reconciliation path
func (s *Store) RecordUpsert(ctx context.Context, m ledger.Mutation) (*ledger.Event, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	comment := ledger.NormalizeComment(m.Comment)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("record upsert: begin tx: %w", busyConflict(err))
	}
	defer tx.Rollback() // No-op if committed

	// Stamp while holding the single write connection, so recorded_at
	// order always matches commit order and the previous-event lookup
	// below stays consistent with the final ledger order.
	ns := s.stampNanos(m.Timestamp)

	oldAttrs, exists, err := readPositionAttrs(ctx, tx, m.Key)
	if err != nil {
		return nil, fmt.Errorf("record upsert: %w", err)
	}

	if exists && oldAttrs.Equal(m.Attrs) {
		// No attribute changed: refresh bookkeeping only, no event.
		_, err := tx.ExecContext(ctx, `
			UPDATE positions
			SET variant_id = ?, product_id = ?, sku = ?, synced_at = ?
			WHERE item_id = ? AND location_id = ?
		`, m.Refs.VariantID, m.Refs.ProductID, m.Refs.SKU, ns, m.Key.ItemID, m.Key.LocationID)
		if err != nil {
			return nil, fmt.Errorf("record upsert: refresh position: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("record upsert: commit: %w", busyConflict(err))
		}
		return nil, nil
	}

	changeType := ledger.ChangeInsert
	if exists {
		changeType = ledger.ChangeUpdate
		if m.Origin == ledger.OriginSync {
			changeType = ledger.ChangeSync
		}
	}

	prev, err := previousAttrs(ctx, tx, m.Key)
	if err != nil {
		return nil, fmt.Errorf("record upsert: %w", err)
	}
	if prev == nil && exists {
		// Position predates the ledger (e.g. events trimmed by an
		// external retention policy): the live snapshot stands in for
		// the missing previous event.
		prev = &oldAttrs
	}

	event := ledger.Event{
		Key:        m.Key,
		Refs:       m.Refs,
		Attrs:      m.Attrs,
		Deltas:     ledger.Diff(m.Attrs, prev),
		Movement:   ledger.Movement(changeType, m.Attrs, prev),
		ChangeType: changeType,
		RecordedAt: time.Unix(0, ns).UTC(),
		Comment:    comment,
	}

	if err := writePosition(ctx, tx, m, ns); err != nil {
		return nil, fmt.Errorf("record upsert: %w", err)
	}

	event.EventID, err = insertEvent(ctx, tx, event)
	if err != nil {
		return nil, fmt.Errorf("record upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("record upsert: commit: %w", busyConflict(err))
	}

	return &event, nil
}

// RecordDelete captures removal of the live record: the position row is
// deleted and a DELETE event appended carrying the attribute values
// immediately before removal. Movement is the full removed available
// quantity, negated.
//
// Returns ErrNotFound (wrapped with the key) if no live position
// exists; nothing is persisted in that case.
func (s *Store) RecordDelete(ctx context.Context, key ledger.Key, comment string, at time.Time) (*ledger.Event, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("record delete: begin tx: %w", busyConflict(err))
	}
	defer tx.Rollback()

	// Stamped under the write transaction, as in RecordUpsert.
	ns := s.stampNanos(at)

	var refs ledger.RefIDs
	var attrs ledger.Attributes
	err = tx.QueryRowContext(ctx, `
		SELECT variant_id, product_id, sku,
		       available, committed, damaged, incoming,
		       on_hand, quality_control, reserved, safety_stock
		FROM positions
		WHERE item_id = ? AND location_id = ?
	`, key.ItemID, key.LocationID).Scan(
		&refs.VariantID, &refs.ProductID, &refs.SKU,
		&attrs.Available, &attrs.Committed, &attrs.Damaged, &attrs.Incoming,
		&attrs.OnHand, &attrs.QualityControl, &attrs.Reserved, &attrs.SafetyStock,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record delete (item=%d, location=%d): %w", key.ItemID, key.LocationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("record delete: read position: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM positions WHERE item_id = ? AND location_id = ?
	`, key.ItemID, key.LocationID); err != nil {
		return nil, fmt.Errorf("record delete: delete position: %w", err)
	}

	prev, err := previousAttrs(ctx, tx, key)
	if err != nil {
		return nil, fmt.Errorf("record delete: %w", err)
	}

	event := ledger.Event{
		Key:        key,
		Refs:       refs,
		Attrs:      attrs,
		Deltas:     ledger.Diff(attrs, prev),
		Movement:   ledger.Movement(ledger.ChangeDelete, attrs, prev),
		ChangeType: ledger.ChangeDelete,
		RecordedAt: time.Unix(0, ns).UTC(),
		Comment:    ledger.NormalizeComment(comment),
	}

	event.EventID, err = insertEvent(ctx, tx, event)
	if err != nil {
		return nil, fmt.Errorf("record delete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("record delete: commit: %w", busyConflict(err))
	}

	return &event, nil
}

// readPositionAttrs loads the current attribute snapshot for a key.
func readPositionAttrs(ctx context.Context, tx *sql.Tx, key ledger.Key) (ledger.Attributes, bool, error) {
	var attrs ledger.Attributes
	err := tx.QueryRowContext(ctx, `
		SELECT available, committed, damaged, incoming,
		       on_hand, quality_control, reserved, safety_stock
		FROM positions
		WHERE item_id = ? AND location_id = ?
	`, key.ItemID, key.LocationID).Scan(
		&attrs.Available, &attrs.Committed, &attrs.Damaged, &attrs.Incoming,
		&attrs.OnHand, &attrs.QualityControl, &attrs.Reserved, &attrs.SafetyStock,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Attributes{}, false, nil
	}
	if err != nil {
		return ledger.Attributes{}, false, fmt.Errorf("read position: %w", err)
	}
	return attrs, true, nil
}

// previousAttrs returns the attribute snapshot of the most recent event
// for the key, or nil if the key has no events yet. Runs inside the
// capture transaction so the lookup and the subsequent append are
// observed atomically.
func previousAttrs(ctx context.Context, tx *sql.Tx, key ledger.Key) (*ledger.Attributes, error) {
	var attrs ledger.Attributes
	err := tx.QueryRowContext(ctx, `
		SELECT available, committed, damaged, incoming,
		       on_hand, quality_control, reserved, safety_stock
		FROM events
		WHERE item_id = ? AND location_id = ?
		ORDER BY recorded_at DESC, event_id DESC
		LIMIT 1
	`, key.ItemID, key.LocationID).Scan(
		&attrs.Available, &attrs.Committed, &attrs.Damaged, &attrs.Incoming,
		&attrs.OnHand, &attrs.QualityControl, &attrs.Reserved, &attrs.SafetyStock,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("previous event: %w", err)
	}
	return &attrs, nil
}

// writePosition upserts the live row for a mutation.
func writePosition(ctx context.Context, tx *sql.Tx, m ledger.Mutation, ns int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO positions
		(item_id, location_id, variant_id, product_id, sku,
		 available, committed, damaged, incoming,
		 on_hand, quality_control, reserved, safety_stock,
		 last_updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, location_id) DO UPDATE SET
			variant_id = excluded.variant_id,
			product_id = excluded.product_id,
			sku = excluded.sku,
			available = excluded.available,
			committed = excluded.committed,
			damaged = excluded.damaged,
			incoming = excluded.incoming,
			on_hand = excluded.on_hand,
			quality_control = excluded.quality_control,
			reserved = excluded.reserved,
			safety_stock = excluded.safety_stock,
			last_updated_at = excluded.last_updated_at,
			synced_at = excluded.synced_at
	`,
		m.Key.ItemID, m.Key.LocationID, m.Refs.VariantID, m.Refs.ProductID, m.Refs.SKU,
		m.Attrs.Available, m.Attrs.Committed, m.Attrs.Damaged, m.Attrs.Incoming,
		m.Attrs.OnHand, m.Attrs.QualityControl, m.Attrs.Reserved, m.Attrs.SafetyStock,
		ns, ns,
	)
	if err != nil {
		return fmt.Errorf("write position: %w", err)
	}
	return nil
}

// insertEvent appends one immutable event row and returns its event_id.
func insertEvent(ctx context.Context, tx *sql.Tx, e ledger.Event) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(item_id, location_id, variant_id, product_id, sku,
		 available, committed, damaged, incoming,
		 on_hand, quality_control, reserved, safety_stock,
		 delta_available, delta_committed, delta_damaged, delta_incoming,
		 delta_on_hand, delta_quality_control, delta_reserved, delta_safety_stock,
		 movement, change_type, recorded_at, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Key.ItemID, e.Key.LocationID, e.Refs.VariantID, e.Refs.ProductID, e.Refs.SKU,
		e.Attrs.Available, e.Attrs.Committed, e.Attrs.Damaged, e.Attrs.Incoming,
		e.Attrs.OnHand, e.Attrs.QualityControl, e.Attrs.Reserved, e.Attrs.SafetyStock,
		e.Deltas.Available, e.Deltas.Committed, e.Deltas.Damaged, e.Deltas.Incoming,
		e.Deltas.OnHand, e.Deltas.QualityControl, e.Deltas.Reserved, e.Deltas.SafetyStock,
		e.Movement, string(e.ChangeType), e.RecordedAt.UnixNano(), e.Comment,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert event: last insert id: %w", err)
	}
	return id, nil
}
