package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDossierNotFound = errors.New("dossier not found")
	ErrPartyNotFound   = errors.New("party not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUploadFailed    = errors.New("upload failed")
	ErrPersistence     = errors.New("persistence failure")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTemporary       = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ValidationError is a user-correctable failure. The operation that returned
// it left local state untouched.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// UploadError pins a failed upload to its position in the batch. Items before
// Index were stored.
type UploadError struct {
	Index    int
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q (item %d): %v", e.Filename, e.Index, e.Err)
}

func (e *UploadError) Unwrap() []error {
	return []error{ErrUploadFailed, e.Err}
}
