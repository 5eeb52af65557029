// Package store provides SQLite-backed durable storage for the
// inventory ledger.
//
// Three tables share one database:
//   - positions: the live mutable record, one row per (item, location)
//   - events: the append-only change ledger with persisted deltas
//   - jobs: the downstream processing queue
//
// # Critical patterns
//
// Capture atomicity: the previous-event lookup, the live-row write and
// the event append commit in a single transaction, so readers only ever
// observe fully-formed events with consistent delta and movement values.
//
// Ordering: events for a key are totally ordered by
// (recorded_at, event_id). recorded_at is unix nanoseconds UTC;
// event_id (AUTOINCREMENT) breaks ties. The store clamps capture
// timestamps so they never run backwards within a process.
//
// Queue claim: ClaimNext selects from the pending-only partial index
// and claims with a single conditional UPDATE (status must still be
// pending), so at most one caller wins a job regardless of concurrency.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - single writer connection: SQLite serializes writers anyway;
//     limiting the pool avoids SQLITE_BUSY churn
package store
