package models

import (
	"errors"
	"fmt"
)

// Error kinds shared by the pipeline. Wrap with %w and test with errors.Is.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNotFound             = errors.New("not found")
	ErrDependencyFailure    = errors.New("dependency failure")
)

// DependencyError marks err as a failure of an external capability.
func DependencyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDependencyFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDependencyFailure, err)
}
