package ledger

import (
	"fmt"
	"strconv"
)

// Deltas holds the per-attribute signed difference between an event and
// its immediate predecessor for the same key. Field order mirrors
// Attributes.
type Deltas struct {
	Available      int64 `json:"available"`
	Committed      int64 `json:"committed"`
	Damaged        int64 `json:"damaged"`
	Incoming       int64 `json:"incoming"`
	OnHand         int64 `json:"on_hand"`
	QualityControl int64 `json:"quality_control"`
	Reserved       int64 `json:"reserved"`
	SafetyStock    int64 `json:"safety_stock"`
}

// Values returns the deltas in AttributeNames order.
func (d Deltas) Values() [8]int64 {
	return [8]int64{
		d.Available, d.Committed, d.Damaged, d.Incoming,
		d.OnHand, d.QualityControl, d.Reserved, d.SafetyStock,
	}
}

// Diff computes cur - prev per attribute. prev == nil means cur is the
// first event for its key: the result is the zero baseline, never an
// unbounded jump from nothing.
func Diff(cur Attributes, prev *Attributes) Deltas {
	if prev == nil {
		return Deltas{}
	}
	return Deltas{
		Available:      cur.Available - prev.Available,
		Committed:      cur.Committed - prev.Committed,
		Damaged:        cur.Damaged - prev.Damaged,
		Incoming:       cur.Incoming - prev.Incoming,
		OnHand:         cur.OnHand - prev.OnHand,
		QualityControl: cur.QualityControl - prev.QualityControl,
		Reserved:       cur.Reserved - prev.Reserved,
		SafetyStock:    cur.SafetyStock - prev.SafetyStock,
	}
}

// Movement computes the change-type-aware net change in the primary
// "available" attribute.
//
// INSERT counts the entire inserted quantity as a net addition and
// DELETE the entire removed quantity as a net subtraction - for those
// two the generic zero-baseline delta would report 0 and lose the
// entry/exit volume. UPDATE and SYNC use the plain difference.
func Movement(ct ChangeType, cur Attributes, prev *Attributes) int64 {
	switch ct {
	case ChangeInsert:
		return cur.Available
	case ChangeDelete:
		return -cur.Available
	default:
		if prev == nil {
			return cur.Available
		}
		return cur.Available - prev.Available
	}
}

// Direction classifies a movement value.
type Direction string

const (
	// DirectionEntry means net stock entered the position.
	DirectionEntry Direction = "ENTRY"
	// DirectionExit means net stock left the position.
	DirectionExit Direction = "EXIT"
	// DirectionNone means no net change in available stock.
	DirectionNone Direction = "NONE"
)

// Classify maps a signed movement to its direction.
func Classify(movement int64) Direction {
	switch {
	case movement > 0:
		return DirectionEntry
	case movement < 0:
		return DirectionExit
	default:
		return DirectionNone
	}
}

// Annotate formats a delta/value pair for the change feed:
//
//	delta > 0: "(+5) 20"
//	delta < 0: "(-5) 15"   (the delta already carries its sign)
//	delta = 0: "20"
func Annotate(delta, value int64) string {
	switch {
	case delta > 0:
		return fmt.Sprintf("(+%d) %d", delta, value)
	case delta < 0:
		return fmt.Sprintf("(%d) %d", delta, value)
	default:
		return strconv.FormatInt(value, 10)
	}
}
