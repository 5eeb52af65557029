// Package timeline answers questions about recorded history: current
// state, state at a past instant, and a human-readable change feed.
//
// It is a read-only layer over the event ledger. All answers derive
// from persisted events; nothing here writes.
package timeline
