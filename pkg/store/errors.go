package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when creating a duplicate entity.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidArgument is returned when a command carries a value the store
	// cannot accept.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict is returned when a claim collides with an existing claim.
	ErrConflict = errors.New("conflict")

	// ErrPreconditionFailed is returned when a command's state precondition
	// does not hold, e.g. a reorder whose id set mismatches the scope.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrUnauthorized is returned when the caller is not allowed to touch the
	// addressed scope.
	ErrUnauthorized = errors.New("unauthorized")
)

func notFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
