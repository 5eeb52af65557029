// Package syncer reconciles the ledger against upstream snapshots.
//
// A snapshot arrives as line-delimited JSON, one flattened record per
// item and location. Each record is applied through the capture path
// with sync origin, so a modification during reconciliation is recorded
// as SYNC rather than UPDATE and an unchanged record appends nothing.
package syncer
