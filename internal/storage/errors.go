package storage

import "errors"

// Errors shared by the memory, Postgres and ClickHouse stores.
var (
	// ErrNotFound is returned when a run, order or calendar row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a batch repeats a stored key, for
	// example a run_id that was already persisted. Run outputs are written once.
	ErrDuplicateKey = errors.New("duplicate key: run outputs are written once")

	// ErrInvalidInput is returned for rows or queries that fail validation,
	// such as an empty run_id or a malformed date range.
	ErrInvalidInput = errors.New("invalid input")
)
