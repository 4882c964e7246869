package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrEmptyKey   = errors.New("storage key must not be empty")
	ErrInvalidKey = errors.New("storage key contains invalid path segment")
)

// KeyError records the operation and key behind a storage failure.
// It unwraps to the sentinel, so errors.Is(err, ErrNotFound) still holds.
type KeyError struct {
	Op  string
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

func notFound(op, key string) error {
	return &KeyError{Op: op, Key: key, Err: ErrNotFound}
}
