package store

import "errors"

var (
	// ErrStorageUnavailable indicates the storage engine could not be opened
	// or upgraded. Every operation fails with it until a later call manages
	// to open the engine.
	ErrStorageUnavailable = errors.New("storage engine unavailable")

	// ErrOperationFailed indicates a single request against an otherwise
	// healthy engine was rejected. The operation is not retried.
	ErrOperationFailed = errors.New("storage operation failed")
)
