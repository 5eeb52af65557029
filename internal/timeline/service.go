package timeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fieldline/stocktrail/internal/ledger"
	"github.com/fieldline/stocktrail/internal/store"
)

// Service reconstructs state and renders change feeds from the ledger.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New wraps a store for reconstruction queries.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Latest returns the current state of a key: its most recent event.
func (s *Service) Latest(ctx context.Context, key ledger.Key) (*ledger.Event, error) {
	return s.store.Latest(ctx, key)
}

// AsOf returns the state of a key as it was at time t.
func (s *Service) AsOf(ctx context.Context, key ledger.Key, t time.Time) (*ledger.Event, error) {
	return s.store.AsOf(ctx, key, t)
}

// Overview returns the current state of every tracked key, ordered by
// key.
func (s *Service) Overview(ctx context.Context) ([]ledger.Event, error) {
	return s.store.LatestAll(ctx)
}

// History returns a most-recent-first iterator over a key's events in
// the trailing window.
func (s *Service) History(key ledger.Key, since time.Duration) *store.HistoryIterator {
	return s.store.History(key, since)
}

// Feed collects a key's events from the window starting at cutoff,
// most recent first.
func (s *Service) Feed(ctx context.Context, key ledger.Key, cutoff time.Time) ([]ledger.Event, error) {
	events, err := s.store.HistoryFrom(key, cutoff).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed (item=%d, location=%d): %w", key.ItemID, key.LocationID, err)
	}
	s.logger.Debug("feed collected",
		"item_id", key.ItemID,
		"location_id", key.LocationID,
		"events", len(events),
	)
	return events, nil
}
