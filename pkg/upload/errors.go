package upload

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Validation failure kinds. Each ValidationError unwraps to exactly one of
// these, so callers can branch with errors.Is.
var (
	ErrTypeNotAllowed     = errors.New("file type not allowed")
	ErrExtensionMismatch  = errors.New("file extension does not match type")
	ErrFileTooLarge       = errors.New("file too large")
	ErrFileTooSmall       = errors.New("file too small")
	ErrSignatureMismatch  = errors.New("file content does not match type")
	ErrDimensionsExceeded = errors.New("image dimensions exceeded")
	ErrUnreadableImage    = errors.New("invalid image file")
)

// ValidationError is returned for every rejected upload. Message is safe to
// show to the uploader as is.
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func reject(kind error, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
