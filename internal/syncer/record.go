package syncer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fieldline/stocktrail/internal/ledger"
)

// flexInt64 decodes an integer that upstream serializes either as a
// JSON number or as a quoted string (legacy resource ids come back as
// strings).
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse id %q: %w", s, err)
	}
	*f = flexInt64(v)
	return nil
}

// Record is one flattened snapshot line: identity, references, and the
// eight quantity columns. Quantities absent from the line default to 0.
type Record struct {
	InventoryItemID flexInt64 `json:"inventory_item_id"`
	LocationID      flexInt64 `json:"location_id"`
	SKU             string    `json:"sku"`
	VariantID       flexInt64 `json:"variant_id"`
	ProductID       flexInt64 `json:"product_id"`
	LastUpdatedAt   string    `json:"last_updated_at"`

	Available      int64 `json:"available"`
	Committed      int64 `json:"committed"`
	Damaged        int64 `json:"damaged"`
	Incoming       int64 `json:"incoming"`
	OnHand         int64 `json:"on_hand"`
	QualityControl int64 `json:"quality_control"`
	Reserved       int64 `json:"reserved"`
	SafetyStock    int64 `json:"safety_stock"`
}

// Mutation converts the record into a sync-origin mutation. An absent
// or malformed last_updated_at leaves the timestamp zero; the capture
// path then stamps the current time.
func (r Record) Mutation() ledger.Mutation {
	var ts time.Time
	if r.LastUpdatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, r.LastUpdatedAt); err == nil {
			ts = parsed.UTC()
		}
	}
	return ledger.Mutation{
		Key: ledger.Key{
			ItemID:     int64(r.InventoryItemID),
			LocationID: int64(r.LocationID),
		},
		Refs: ledger.RefIDs{
			VariantID: int64(r.VariantID),
			ProductID: int64(r.ProductID),
			SKU:       r.SKU,
		},
		Attrs: ledger.Attributes{
			Available:      r.Available,
			Committed:      r.Committed,
			Damaged:        r.Damaged,
			Incoming:       r.Incoming,
			OnHand:         r.OnHand,
			QualityControl: r.QualityControl,
			Reserved:       r.Reserved,
			SafetyStock:    r.SafetyStock,
		},
		Origin:    ledger.OriginSync,
		Timestamp: ts,
	}
}

// FromEvent flattens an event back into the snapshot record shape.
// Used by the export path, so an export is readable by ReadSnapshot.
func FromEvent(e ledger.Event) Record {
	return Record{
		InventoryItemID: flexInt64(e.Key.ItemID),
		LocationID:      flexInt64(e.Key.LocationID),
		SKU:             e.Refs.SKU,
		VariantID:       flexInt64(e.Refs.VariantID),
		ProductID:       flexInt64(e.Refs.ProductID),
		LastUpdatedAt:   e.RecordedAt.UTC().Format(time.RFC3339),
		Available:       e.Attrs.Available,
		Committed:       e.Attrs.Committed,
		Damaged:         e.Attrs.Damaged,
		Incoming:        e.Attrs.Incoming,
		OnHand:          e.Attrs.OnHand,
		QualityControl:  e.Attrs.QualityControl,
		Reserved:        e.Attrs.Reserved,
		SafetyStock:     e.Attrs.SafetyStock,
	}
}

// WriteSnapshot writes records as line-delimited JSON.
func WriteSnapshot(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("snapshot line %d: %w", i+1, err)
		}
	}
	return nil
}

// maxLineBytes bounds a single snapshot line. Bulk exports keep lines
// small; 1 MiB leaves ample headroom.
const maxLineBytes = 1 << 20

// ReadSnapshot parses a line-delimited JSON snapshot. Blank lines are
// skipped; a malformed line fails the whole read with its line number.
func ReadSnapshot(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []Record
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("snapshot read: %w", err)
	}
	return records, nil
}
