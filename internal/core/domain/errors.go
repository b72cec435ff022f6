package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest        = errors.New("invalid retrieval request")
	ErrDependencyTimeout     = errors.New("dependency timeout")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrBothSourcesFailed     = errors.New("all retrieval sources failed")
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
