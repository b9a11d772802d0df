package storage

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks failures of the underlying database. The calling
// operation is aborted and nothing partial is returned.
var ErrUnavailable = errors.New("storage unavailable")

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
