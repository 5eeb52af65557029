package ledger

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed capture input. Nothing is
// persisted when validation fails.
type ValidationError struct {
	// Field names the offending input field.
	Field string

	// Value is the rejected value, rendered for diagnostics.
	Value int64

	// Reason is a human-readable description.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%d): %s", e.Field, e.Value, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks that both key fields are set.
func (k Key) Validate() error {
	if k.ItemID <= 0 {
		return &ValidationError{Field: "item_id", Value: k.ItemID, Reason: "must be positive"}
	}
	if k.LocationID <= 0 {
		return &ValidationError{Field: "location_id", Value: k.LocationID, Reason: "must be positive"}
	}
	return nil
}

// Validate checks that every quantity is non-negative.
func (a Attributes) Validate() error {
	values := a.Values()
	for i, v := range values {
		if v < 0 {
			return &ValidationError{Field: AttributeNames[i], Value: v, Reason: "quantity must be non-negative"}
		}
	}
	return nil
}

// Validate checks a full mutation before the capture path touches
// storage.
func (m Mutation) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return err
	}
	return m.Attrs.Validate()
}
