package cache

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable is the sentinel matched by every StorageError.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrInvalidNamespace rejects a namespace that cannot hold an entry.
var ErrInvalidNamespace = errors.New("invalid cache namespace")

// StorageError reports a failure of the underlying durable storage.
type StorageError struct {
	// Op is the cache operation that failed ("get", "put", "sync", ...).
	Op string

	// Namespace is the affected namespace, if any.
	Namespace string

	// Err is the underlying storage or decode error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Namespace != "" {
		return fmt.Sprintf("STORAGE_UNAVAILABLE: cache %s %q: %v", e.Op, e.Namespace, e.Err)
	}
	return fmt.Sprintf("STORAGE_UNAVAILABLE: cache %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is matches ErrStorageUnavailable.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// IsStorageUnavailable reports whether err is (or wraps) a StorageError.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
