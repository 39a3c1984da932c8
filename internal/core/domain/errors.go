package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidStrategy = errors.New("invalid search strategy")
	ErrEmbedding       = errors.New("embedding failure")
	ErrBackend         = errors.New("search backend failure")
	ErrMalformedResult = errors.New("malformed search result")
	ErrGeneration      = errors.New("generation failure")
	ErrCache           = errors.New("response cache failure")
	ErrSessionNotFound = errors.New("session not found")
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

// GenerationFailure is the category a generation service error falls into.
type GenerationFailure string

const (
	GenerationRateLimited    GenerationFailure = "rate_limited"
	GenerationUnauthorized   GenerationFailure = "unauthorized"
	GenerationBadRequest     GenerationFailure = "malformed_request"
	GenerationUnavailable    GenerationFailure = "service_unavailable"
	GenerationTimeout        GenerationFailure = "timeout"
	GenerationUnknownFailure GenerationFailure = "unknown"
)

// GenerationError is returned by generation service adapters. It always
// matches ErrGeneration.
type GenerationError struct {
	Category GenerationFailure
	Err      error
}

func (e *GenerationError) Error() string {
	if e == nil {
		return "generation error"
	}
	if e.Err == nil {
		return fmt.Sprintf("generation %s", e.Category)
	}
	return fmt.Sprintf("generation %s: %v", e.Category, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGeneration}
	}
	return []error{ErrGeneration, e.Err}
}

func NewGenerationError(category GenerationFailure, err error) error {
	return &GenerationError{Category: category, Err: err}
}

// GenerationFailureOf extracts the failure category. Errors that did not come
// from a generation adapter are reported as unknown.
func GenerationFailureOf(err error) GenerationFailure {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		if genErr.Category == "" {
			return GenerationUnknownFailure
		}
		return genErr.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return GenerationTimeout
	}
	return GenerationUnknownFailure
}

// IsRateLimited reports whether err is a retryable rate-limit rejection.
func IsRateLimited(err error) bool {
	return err != nil && GenerationFailureOf(err) == GenerationRateLimited
}
