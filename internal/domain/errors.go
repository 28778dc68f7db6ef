package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput reports a caller-supplied value that cannot be processed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmptyInput is the InvalidInput case for empty text or an empty batch.
	ErrEmptyInput = fmt.Errorf("%w: empty input", ErrInvalidInput)
	// ErrShapeMismatch reports parallel sequences of unequal length.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrDimensionMismatch reports a vector whose length disagrees with its collection.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrCollectionNotFound reports a write to a collection that was never created.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrUnsupportedLanguage reports a translation target outside the configured list.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrUpstreamFailure matches every UpstreamError.
	ErrUpstreamFailure = errors.New("upstream failure")
)

// UpstreamError is returned when the embedding or generation backend fails.
// The caller owns retry policy; nothing in the core retries.
type UpstreamError struct {
	Port string // "embedding" or "generation"
	Op   string
	Err  error
}

func (e *UpstreamError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s upstream failure: %v", e.Port, e.Err)
	}
	return fmt.Sprintf("%s upstream failure during %s: %v", e.Port, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpstreamFailure) hold for any UpstreamError.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamFailure }

// Upstream wraps err as an UpstreamError for the given port. Errors that are
// already upstream failures, and caller input errors, pass through unchanged.
func Upstream(port, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstreamFailure) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return &UpstreamError{Port: port, Op: op, Err: err}
}
