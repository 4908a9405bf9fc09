package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount is returned for non-positive or unparsable monetary input.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrTargetNotFound is returned when a savings target cannot be located.
	ErrTargetNotFound = errors.New("savings target not found")
	// ErrAccessDenied is returned when the caller does not own the savings target.
	ErrAccessDenied = errors.New("access denied")
	// ErrStorage marks failures of the underlying persistence layer.
	ErrStorage = errors.New("storage unavailable")
)

// StorageError wraps a driver error so that errors.Is(err, ErrStorage) holds.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStorage, err))
}
