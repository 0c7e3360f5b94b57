package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTemporary          = errors.New("temporary failure")
	ErrBackendUnavailable = errors.New("backend unavailable")
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

// GenerationErrorClass is the coarse classification of a text generation failure.
type GenerationErrorClass string

const (
	GenerationAuth      GenerationErrorClass = "auth"
	GenerationTimeout   GenerationErrorClass = "timeout"
	GenerationRateLimit GenerationErrorClass = "rate_limit"
	GenerationOther     GenerationErrorClass = "other"
)

// GenerationError is returned by text generator adapters so callers can decide
// between retrying and falling back without knowing the provider.
type GenerationError struct {
	Class GenerationErrorClass
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "generation " + string(e.Class)
	}
	return fmt.Sprintf("generation %s: %v", e.Class, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func NewGenerationError(class GenerationErrorClass, err error) error {
	return &GenerationError{Class: class, Err: err}
}

// ClassifyGenerationError returns the class carried by err, or "other" for
// unclassified failures.
func ClassifyGenerationError(err error) GenerationErrorClass {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Class
	}
	if errors.Is(err, ErrUnauthorized) {
		return GenerationAuth
	}
	return GenerationOther
}
