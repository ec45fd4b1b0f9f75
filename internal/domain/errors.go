package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports caller input that fails a contract bound (bad
// pagination limit, oversized batch). Maps to a 400-equivalent.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AuthError reports a missing or unverifiable caller identity. Maps to a
// 401-equivalent.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return e.Msg }

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// TransientStoreError wraps a store failure that is safe to retry (timeout,
// throttling, busy database). The stream layer withholds checkpoints for
// records that fail with one of these so they are redelivered.
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string { return "transient store error: " + e.Err.Error() }
func (e *TransientStoreError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientStoreError.
func IsTransient(err error) bool {
	var te *TransientStoreError
	return errors.As(err, &te)
}

// ErrMissingPostRef marks a comment/like change record whose embedded post
// location snapshot is absent. Retrying cannot fix data that was never
// written, so these records are logged and dropped, not redelivered.
var ErrMissingPostRef = errors.New("change record is missing the embedded post location")

// ErrMalformedRecord marks a change record whose payload does not match its
// entity-type tag. Dropped for the same reason as ErrMissingPostRef.
var ErrMalformedRecord = errors.New("change record payload does not match its entity type")

// IsPermanentRecordError reports whether err means the record can never be
// processed and must be skipped rather than redelivered.
func IsPermanentRecordError(err error) bool {
	return errors.Is(err, ErrMissingPostRef) || errors.Is(err, ErrMalformedRecord)
}
