package memory

import (
	"errors"
	"fmt"
)

// Error taxonomy. Only ErrValidation and ErrConfiguration are ever returned
// to callers of the orchestrator; the others are absorbed into degraded results.
var (
	// ErrValidation marks malformed input such as an empty owner ID or empty text.
	ErrValidation = errors.New("memory: validation failed")

	// ErrNotFound marks a missing session or record.
	ErrNotFound = errors.New("memory: not found")

	// ErrTransientDependency marks a failure of an embedder, summarizer,
	// entity extractor, or persistent store.
	ErrTransientDependency = errors.New("memory: dependency unavailable")

	// ErrConfiguration marks invalid settings detected at startup.
	ErrConfiguration = errors.New("memory: invalid configuration")
)

// Transient wraps err as a transient dependency failure of the named operation.
// Returns nil when err is nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientDependency) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransientDependency, err)
}

// IsTransient reports whether err is a transient dependency failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientDependency)
}

// RequireID returns a validation error when id is empty.
func RequireID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	return nil
}
