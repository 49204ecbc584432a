package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument signals a caller-supplied value that fails validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound signals a missing routine.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a concurrent modification detected by a conditional write.
	ErrConflict = errors.New("conflict")
	// ErrStore signals a vector store failure.
	ErrStore = errors.New("store error")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// InvalidArgument builds an ErrInvalidArgument with a field-specific message.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// StoreError wraps an underlying vector store failure with the repository operation name.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStore.Error(), e.Op, e.Err)
}

// Is reports ErrStore so callers can classify without a type assertion.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err as a StoreError for op.
func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// EmbeddingError wraps an embedding generation failure.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s: %v", ErrEmbeddingProviderError.Error(), e.Err)
}

// Is reports ErrEmbeddingProviderError.
func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbeddingProviderError }

func (e *EmbeddingError) Unwrap() error { return e.Err }

// NewEmbeddingError wraps err as an EmbeddingError.
func NewEmbeddingError(err error) error {
	return &EmbeddingError{Err: err}
}
