package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldline/stocktrail/internal/ledger"
)

// RenderLine formats one event as a single feed line:
//
//	2025-06-01T12:01:00Z UPDATE item=100 location=5 EXIT movement=-5 available=(-5) 15 on_hand=(-5) 15 -- correction
//
// Attributes appear in canonical order and only when they carry a
// value or a delta; a line for an all-zero snapshot still shows the
// available column so the reader sees the quantity went to zero.
func RenderLine(e ledger.Event) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s item=%d location=%d %s movement=%d",
		e.RecordedAt.UTC().Format(time.RFC3339),
		e.ChangeType,
		e.Key.ItemID, e.Key.LocationID,
		ledger.Classify(e.Movement),
		e.Movement,
	)

	values := e.Attrs.Values()
	deltas := e.Deltas.Values()
	shown := 0
	for i, name := range ledger.AttributeNames {
		if values[i] == 0 && deltas[i] == 0 {
			continue
		}
		fmt.Fprintf(&b, " %s=%s", name, ledger.Annotate(deltas[i], values[i]))
		shown++
	}
	if shown == 0 {
		fmt.Fprintf(&b, " available=%s", ledger.Annotate(0, 0))
	}

	if e.Comment != "" {
		fmt.Fprintf(&b, " -- %s", e.Comment)
	}
	return b.String()
}

// RenderFeed formats a slice of events one line each, in the order
// given, with a trailing newline. Returns "" for an empty feed.
func RenderFeed(events []ledger.Event) string {
	if len(events) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range events {
		b.WriteString(RenderLine(e))
		b.WriteByte('\n')
	}
	return b.String()
}
