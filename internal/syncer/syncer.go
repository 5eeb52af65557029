package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fieldline/stocktrail/internal/ledger"
	"github.com/fieldline/stocktrail/internal/store"
)

// Stats summarizes one applied batch.
type Stats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Events is the number of ledger events the batch produced.
func (s Stats) Events() int {
	return s.Inserted + s.Updated
}

// ExportPayload is the payload of the export job enqueued after a batch
// that produced events: the recorded-at window the export should cover.
type ExportPayload struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// ExportJobKind names the downstream export job.
const ExportJobKind = "export"

// Syncer applies snapshot batches to the ledger.
type Syncer struct {
	store  *store.Store
	logger *slog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the structured logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// New wraps a store for reconciliation.
func New(st *store.Store, opts ...Option) *Syncer {
	s := &Syncer{
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyBatch records every snapshot record with sync origin and
// tallies the outcomes. A record that fails validation or capture is
// counted and logged, and the batch continues; per-record errors never
// abort reconciliation.
//
// When the batch produced at least one event, an export job covering
// the batch's recorded-at window is enqueued.
func (s *Syncer) ApplyBatch(ctx context.Context, records []Record) (Stats, error) {
	var stats Stats
	var windowStart, windowEnd time.Time

	for _, rec := range records {
		event, err := s.store.RecordUpsert(ctx, rec.Mutation())
		if err != nil {
			stats.Failed++
			s.logger.Warn("snapshot record rejected",
				"item_id", int64(rec.InventoryItemID),
				"location_id", int64(rec.LocationID),
				"error", err,
			)
			continue
		}
		if event == nil {
			stats.Unchanged++
			continue
		}
		if event.ChangeType == ledger.ChangeInsert {
			stats.Inserted++
		} else {
			stats.Updated++
		}
		if windowStart.IsZero() || event.RecordedAt.Before(windowStart) {
			windowStart = event.RecordedAt
		}
		if event.RecordedAt.After(windowEnd) {
			windowEnd = event.RecordedAt
		}
	}

	s.logger.Info("batch applied",
		"records", len(records),
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"failed", stats.Failed,
	)

	if stats.Events() > 0 {
		if err := s.enqueueExport(ctx, windowStart, windowEnd); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// Apply reads a snapshot stream and applies it as one batch.
func (s *Syncer) Apply(ctx context.Context, r io.Reader) (Stats, error) {
	records, err := ReadSnapshot(r)
	if err != nil {
		return Stats{}, err
	}
	return s.ApplyBatch(ctx, records)
}

func (s *Syncer) enqueueExport(ctx context.Context, start, end time.Time) error {
	payload, err := json.Marshal(ExportPayload{WindowStart: start, WindowEnd: end})
	if err != nil {
		return fmt.Errorf("export payload: %w", err)
	}
	job, err := s.store.Enqueue(ctx, ExportJobKind, string(payload))
	if err != nil {
		return fmt.Errorf("enqueue export: %w", err)
	}
	s.logger.Info("export job enqueued",
		"job_id", job.ID,
		"window_start", start,
		"window_end", end,
	)
	return nil
}
