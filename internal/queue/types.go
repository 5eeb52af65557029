package queue

import (
	"errors"
	"fmt"
	"time"
)

// Status is the processing state of a job.
type Status string

const (
	// StatusPending means the job awaits a consumer.
	StatusPending Status = "pending"
	// StatusProcessing means exactly one consumer has claimed the job.
	StatusProcessing Status = "processing"
	// StatusCompleted is terminal success.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal failure; an explicit requeue may move the
	// job back to pending.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the four states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no forward transition exists from s other
// than the failed → pending requeue.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusPending
	default:
		// completed is terminal
		return false
	}
}

// Job is a unit of downstream work. Mutated only by the single claiming
// consumer once processing.
type Job struct {
	ID          string
	Kind        string
	Payload     string
	Status      Status
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// InvalidTransitionError reports an illegal status change attempt. The
// stored state is left unchanged.
type InvalidTransitionError struct {
	JobID string
	From  Status
	To    Status
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s (job=%s)", e.From, e.To, e.JobID)
}

// InvalidStateError reports an operation that requires the job to be in
// a specific state (e.g. completing a job that is not processing).
type InvalidStateError struct {
	JobID string
	Got   Status
	Want  Status
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("job %s is %s, want %s", e.JobID, e.Got, e.Want)
}

// IsInvalidTransition reports whether err is (or wraps) an
// InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

// IsInvalidState reports whether err is (or wraps) an InvalidStateError.
func IsInvalidState(err error) bool {
	var se *InvalidStateError
	return errors.As(err, &se)
}
