package services

import (
	"errors"
	"fmt"

	"github.com/diewo77/helpdesk-billing/internal/validation"
)

// ValidationError reports malformed or out-of-range input. Violations maps
// field name to a short machine-readable reason.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", map[string]string(e.Violations))
}

func newValidationError(v validation.Violations) error {
	return &ValidationError{Violations: v}
}

// StateConflictError reports an operation not permitted in the invoice's
// current status (editing a sent invoice, voiding one with payments, ...).
type StateConflictError struct {
	Reason string
}

func (e *StateConflictError) Error() string { return e.Reason }

// NotFoundError covers missing rows and rows not under the expected parent
// (a payment id belonging to a different invoice is a 404, not a 403).
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// ReferentialIntegrityError blocks deletes of rows still referenced elsewhere.
// Checked explicitly at the service boundary, not left to the database.
type ReferentialIntegrityError struct {
	Reason string
}

func (e *ReferentialIntegrityError) Error() string { return e.Reason }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsStateConflict(err error) bool {
	var se *StateConflictError
	return errors.As(err, &se)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

func IsReferentialIntegrity(err error) bool {
	var re *ReferentialIntegrityError
	return errors.As(err, &re)
}
