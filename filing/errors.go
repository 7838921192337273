/*
errors.go - Centralized error types for the filing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match sentinels with errors.Is and unpack structured errors
  with errors.As for details.

ERROR CATEGORIES:
  1. Lookup errors     - NotFound
  2. Validation errors - InvalidField, InvalidInput, InvalidPeriod
  3. Workflow errors   - DependencyNotMet, Locked, InvalidTransition, Forbidden
  4. Store errors      - DuplicateKey, Conflict

PROPAGATION:
  Guard failures are returned before any write. Notification and activity
  failures are logged where they happen and never reach the caller of a
  transition.

SEE ALSO:
  - workflow.go: Returns these errors
  - api/errors.go: Maps them to HTTP responses
*/
package filing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a client or record id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidField is returned for checklist items, liability fields or
	// kinds outside the recognized set. Nothing is written.
	ErrInvalidField = errors.New("invalid field")

	// ErrInvalidInput is returned for malformed arguments (empty reviewer,
	// empty filing reference, unknown review decision).
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidPeriod is returned when month is outside 1..12 or year is not positive.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrDependencyNotMet is returned when a liability return is opened
	// before the outward return for the same client and period is locked.
	ErrDependencyNotMet = errors.New("dependency not met")

	// ErrLocked is returned for any mutation of a locked record.
	ErrLocked = errors.New("record is locked")

	// ErrInvalidTransition is returned when the current status does not
	// allow the requested transition.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrForbidden is returned when the principal's role fails a guard.
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateKey is returned by stores when inserting a second row for
	// an existing (client, period[, kind]) key. The engine treats it as
	// "return the existing row", never as a failure.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrConflict is returned by stores when a record was written by someone
	// else since it was read (version mismatch).
	ErrConflict = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names what was missing.
type NotFoundError struct {
	What string // "client", "gstr1 record", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.What, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// FieldError reports an unrecognized field name.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidField }

// DependencyError provides details about an unmet cross-return dependency.
type DependencyError struct {
	ClientID      ClientID
	Period        Period
	OutwardStatus Status // StatusNotStarted when no outward return exists
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("outward return for client %s period %s must be locked first (status: %s)",
		e.ClientID, e.Period, e.OutwardStatus)
}

func (e *DependencyError) Unwrap() error { return ErrDependencyNotMet }

// TransitionError reports an action attempted from a status that does not allow it.
// Attempts on locked records unwrap to ErrLocked.
type TransitionError struct {
	Kind   ReturnKind
	Record RecordID
	From   Status
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s record %s in status %s", e.Action, e.Kind, e.Record, e.From)
}

func (e *TransitionError) Unwrap() error {
	if e.From == StatusLocked {
		return ErrLocked
	}
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
