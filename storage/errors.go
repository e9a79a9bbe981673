package storage

import (
	"errors"
)

var (
	// ErrSchemaViolation is returned when a row does not match the table layout.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrUniqueConstraint is returned when an insert or update would duplicate
	// a primary key.
	ErrUniqueConstraint = errors.New("unique constraint violation")

	// ErrSnapshotActive is returned by ActivateStream when the table is
	// already in snapshot mode.
	ErrSnapshotActive = errors.New("snapshot already active")

	// ErrNotSnapshotting is returned by StreamMore when no snapshot is active.
	ErrNotSnapshotting = errors.New("no snapshot active")

	// ErrPredicateCompile is returned by ActivateStream when a predicate
	// string fails to compile; the table is left unchanged.
	ErrPredicateCompile = errors.New("predicate compilation failed")
)
