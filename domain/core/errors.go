package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound              = errors.New("resource not found")
	ErrSessionNotFound       = fmt.Errorf("%w: pivot session", ErrNotFound)
	ErrConfigurationNotFound = fmt.Errorf("%w: pivot configuration", ErrNotFound)
	ErrDataSourceNotFound    = fmt.Errorf("%w: data source", ErrNotFound)

	// Validation errors
	ErrInvalidConfiguration = errors.New("invalid pivot configuration")
	ErrInvalidMutation      = errors.New("invalid pivot mutation")
	ErrInvalidMode          = errors.New("invalid percentage mode")

	// Result errors
	ErrNoResult = errors.New("no computed result for configuration")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfiguration, field, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrInvalidMutation) ||
		errors.Is(err, ErrInvalidMode)
}
