package ledger

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Key identifies a tracked inventory position: one item at one location.
// Immutable once an event references it.
type Key struct {
	ItemID     int64 `json:"item_id"`
	LocationID int64 `json:"location_id"`
}

// RefIDs carries denormalized upstream identifiers copied from the live
// record at capture time. Informational only - never re-validated.
type RefIDs struct {
	VariantID int64  `json:"variant_id,omitempty"`
	ProductID int64  `json:"product_id,omitempty"`
	SKU       string `json:"sku,omitempty"`
}

// Attributes is the fixed set of eight quantity states tracked per
// position. All values are non-negative in a valid snapshot; Available
// is the primary attribute used for movement.
type Attributes struct {
	Available      int64 `json:"available"`
	Committed      int64 `json:"committed"`
	Damaged        int64 `json:"damaged"`
	Incoming       int64 `json:"incoming"`
	OnHand         int64 `json:"on_hand"`
	QualityControl int64 `json:"quality_control"`
	Reserved       int64 `json:"reserved"`
	SafetyStock    int64 `json:"safety_stock"`
}

// AttributeNames lists the eight quantity names in canonical column
// order. Feed rendering and backfill iterate in this order so output is
// deterministic.
var AttributeNames = [8]string{
	"available", "committed", "damaged", "incoming",
	"on_hand", "quality_control", "reserved", "safety_stock",
}

// Values returns the attribute quantities in AttributeNames order.
func (a Attributes) Values() [8]int64 {
	return [8]int64{
		a.Available, a.Committed, a.Damaged, a.Incoming,
		a.OnHand, a.QualityControl, a.Reserved, a.SafetyStock,
	}
}

// Equal reports whether two snapshots agree on all eight quantities.
// A modification where Equal is true is a no-op and produces no event.
func (a Attributes) Equal(b Attributes) bool {
	return a == b
}

// ChangeType is the capture trigger reason recorded on every event.
type ChangeType string

const (
	// ChangeInsert marks the first capture of a position.
	ChangeInsert ChangeType = "INSERT"
	// ChangeUpdate marks an application-path modification.
	ChangeUpdate ChangeType = "UPDATE"
	// ChangeDelete marks removal of the live record.
	ChangeDelete ChangeType = "DELETE"
	// ChangeSync marks a modification captured by the reconciliation path.
	ChangeSync ChangeType = "SYNC"
)

// Valid reports whether c is one of the four capture reasons.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeInsert, ChangeUpdate, ChangeDelete, ChangeSync:
		return true
	}
	return false
}

// Origin identifies which write path produced a mutation. The capture
// layer turns sync-origin modifications into SYNC events.
type Origin string

const (
	// OriginApplication is the normal live-record write path.
	OriginApplication Origin = "application"
	// OriginSync is the periodic reconciliation path.
	OriginSync Origin = "sync"
)

// Mutation is the inbound live-record change notification consumed by
// the capture path. Timestamp defaults to capture time when zero.
type Mutation struct {
	Key       Key
	Attrs     Attributes
	Refs      RefIDs
	Comment   string
	Origin    Origin
	Timestamp time.Time
}

// Event is one immutable captured snapshot. Once appended it is never
// mutated or deleted; deltas and movement are persisted with it.
type Event struct {
	EventID    int64      `json:"event_id"`
	Key        Key        `json:"key"`
	Refs       RefIDs     `json:"refs"`
	Attrs      Attributes `json:"attrs"`
	Deltas     Deltas     `json:"deltas"`
	Movement   int64      `json:"movement"`
	ChangeType ChangeType `json:"change_type"`
	RecordedAt time.Time  `json:"recorded_at"`
	Comment    string     `json:"comment,omitempty"`
}

// Before reports whether e precedes other in the per-key total order
// (recorded_at, event_id).
func (e Event) Before(other Event) bool {
	if !e.RecordedAt.Equal(other.RecordedAt) {
		return e.RecordedAt.Before(other.RecordedAt)
	}
	return e.EventID < other.EventID
}

// NormalizeComment trims surrounding whitespace and normalizes the
// free-text annotation to NFC so stored comments compare bytewise.
func NormalizeComment(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
