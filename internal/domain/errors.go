package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by the registry, executor, storage and API layers.
var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNotFound          = errors.New("task not found")
	ErrGone              = errors.New("task evicted")
	ErrNotReady          = errors.New("artifact not ready")
	ErrSynthesisFailure  = errors.New("synthesis failure")
	ErrStorageFailure    = errors.New("storage failure")
	ErrOverloaded        = errors.New("task queue is full")
	ErrTimeout           = errors.New("synthesis timed out")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrExtraction        = errors.New("text extraction failed")
)

// InvalidParameter formats a validation error that matches ErrInvalidParameter.
func InvalidParameter(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}
