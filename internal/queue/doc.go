// Package queue defines the downstream processing queue domain: jobs,
// the four-state status machine, and a dispatcher that drives workers
// over a claim/complete/fail broker.
//
// Legal transitions:
//
//	pending → processing → completed
//	                     → failed → pending (explicit requeue)
//
// completed is terminal. Any other transition is rejected with
// InvalidTransitionError before storage is touched. Status is a closed
// type - the four constants are the only values the store will accept.
//
// Persistence and the atomic claim live in internal/store; this package
// holds the rules and the worker loop so they can be tested without a
// database.
package queue
