package services

import (
	"errors"
	"fmt"
)

// ValidationError marks request-level failures the API maps to 400s.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func NewValidationError(err error) *ValidationError {
	return &ValidationError{Err: err}
}

// IsValidationError reports whether err is a request validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}
