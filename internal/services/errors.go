package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means the request carries no caller identity.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrUnauthorized covers both a missing entity and one owned by someone
	// else, so callers cannot probe for ids they do not own.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidParent matches ErrUnauthorized under errors.Is.
	ErrInvalidParent = fmt.Errorf("parent task not found or not authorized: %w", ErrUnauthorized)
)
