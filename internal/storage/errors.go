package storage

import "errors"

// Storage errors shared by the memory, PostgreSQL and ClickHouse stores.
var (
	// ErrNotFound is returned when an action or observation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an action_id, or a (sale_address, observed_at)
	// pair, is already stored.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when a record fails validation or an action
	// is finished twice.
	ErrInvalidInput = errors.New("invalid input")
)
