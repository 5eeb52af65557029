package store

import (
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by reconstruction queries when no qualifying
// event (or live position, or job) exists. It is an explicit empty
// result, not a failure; callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write loses a race - another writer
// held the database past the busy timeout. The caller must retry its
// own operation from scratch rather than proceed on stale state.
var ErrConflict = errors.New("concurrent modification")

// busyConflict wraps SQLite busy/locked errors in ErrConflict so
// callers can match them with errors.Is and retry. Other errors pass
// through unchanged.
func busyConflict(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
