package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrPlayerNotFound  = errors.New("player not found")
	ErrPlayerExists    = errors.New("player already exists")
	ErrEntryNotFound   = errors.New("placement not found")
	ErrValidation      = errors.New("validation failed")
	ErrUnknownTier     = errors.New("unknown tier code")
	ErrStorage         = errors.New("storage unavailable")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrBatchTooLarge   = errors.New("batch exceeds maximum size")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrInternalError   = errors.New("internal server error")
	ErrUnknownGamemode = errors.New("unknown gamemode")
)

// ValidationError reports a malformed ign, gamemode, tier or region.
// It is the caller's fault and is never retried.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for the given field
func NewValidationError(field, value, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// UnknownTierError is returned when a tier code is absent from the catalog.
// It unwraps to a ValidationError so batch callers treat it the same way.
type UnknownTierError struct {
	Code string
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("tier %q: unknown tier code", e.Code)
}

func (e *UnknownTierError) Is(target error) bool {
	return target == ErrUnknownTier
}

func (e *UnknownTierError) Unwrap() error {
	return &ValidationError{Field: "tier", Value: e.Code, Reason: "unknown tier code"}
}

// StorageError wraps a failure of the storage collaborator
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// NewStorageError wraps err unless it is nil or already a domain sentinel
// that callers are expected to match on.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrPlayerExists) || errors.Is(err, ErrEntryNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// InvalidInputError signals a programmer error such as a negative point total
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrEntryNotFound)
}

// IsValidationError checks if an error was caused by bad caller input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}
