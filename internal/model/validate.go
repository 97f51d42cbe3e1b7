package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) err() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// ValidateSession checks a Session for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the session is valid.
func ValidateSession(s *Session) error {
	var ve ValidationError

	if _, err := time.ParseInLocation(SessionIDLayout, s.ID, time.Local); err != nil || len(s.ID) != len(SessionIDLayout) {
		ve.add("session_id", "must be a %d-digit timestamp, got %q", len(SessionIDLayout), s.ID)
	}
	if s.OpenedAt <= 0 {
		ve.add("opened_at", "is required")
	}

	// ClosedAt consistency with Active.
	switch {
	case s.Active && s.ClosedAt != nil:
		ve.add("closed_at", "must be nil while the session is active")
	case !s.Active && s.ClosedAt == nil:
		ve.add("closed_at", "is required when the session is inactive")
	case s.ClosedAt != nil && *s.ClosedAt < s.OpenedAt:
		ve.add("closed_at", "must not precede opened_at")
	}

	return ve.err()
}

// ValidateDetection checks a Detection for constraint violations.
func ValidateDetection(d *Detection) error {
	var ve ValidationError

	if d.ID < 1 {
		ve.add("detection_id", "must be positive, got %d", d.ID)
	}
	if d.SessionID == "" {
		ve.add("session_id", "is required")
	}
	if math.IsNaN(float64(d.Confidence)) || d.Confidence < 0 || d.Confidence > 1 {
		ve.add("confidence", "must be between 0 and 1, got %v", d.Confidence)
	}
	if d.Width < 0 || d.Height < 0 {
		ve.add("size", "must not be negative, got %dx%d", d.Width, d.Height)
	}
	if d.UpdatedAt < d.CreatedAt {
		ve.add("updated_at", "must not precede created_at")
	}

	return ve.err()
}
