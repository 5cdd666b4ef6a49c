package storage

import (
	"errors"
	"fmt"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/csvtable"
)

var (
	// ErrDuplicateUsername is returned by Register when the username is taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrInvalidCredentials is returned by Authenticate for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrNotFound is returned when no record matches the key.
	ErrNotFound = errors.New("not found")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrWeakPassword is returned by Register when the password fails the policy.
	ErrWeakPassword = auth.ErrPasswordPolicy
	// ErrCorruptRecord is returned when a table on disk is malformed.
	ErrCorruptRecord = csvtable.ErrCorruptRecord
)

// ValidationError reports a rejected field value.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

// Unwrap exposes both ErrValidation and the underlying cause.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}
