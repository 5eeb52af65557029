// Package ledger defines the domain vocabulary for inventory change
// tracking: keys, attribute snapshots, immutable events, and the delta
// and movement arithmetic applied to them.
//
// The package is pure - no I/O, no storage. Persistence lives in
// internal/store, reconstruction in internal/timeline.
//
// # Core rules
//
// Delta: for an event E and the most recent earlier event P for the
// same key, delta(A) = E.A - P.A per attribute. The first event for a
// key is a zero baseline: every delta is 0 regardless of change type.
//
// Movement: a change-type-aware signed quantity for the primary
// "available" attribute. INSERT contributes the full inserted quantity,
// DELETE the full removed quantity, UPDATE and SYNC the plain
// difference. Movement exists so that entry/exit volume stays
// analyzable without conflating "first ever record" with "no change".
//
// Ordering: events for a key are totally ordered by
// (recorded_at, event_id); event_id breaks timestamp ties.
package ledger
