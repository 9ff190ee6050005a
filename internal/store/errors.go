package store

import "errors"

var (
	// ErrNotFound is returned when no cached result matches the key
	ErrNotFound = errors.New("record not found")

	// ErrDatabaseClosed is returned when attempting to use a closed store
	ErrDatabaseClosed = errors.New("database is closed")
)
