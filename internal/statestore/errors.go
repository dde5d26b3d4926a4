package statestore

import "errors"

var (
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrLocked reports that another process holds the state lock.
	ErrLocked = errors.New("workflow state is locked by another vidsub process")
	// ErrInvalidKey rejects empty keys and keys that are not safe file names.
	ErrInvalidKey = errors.New("invalid state key")
)
