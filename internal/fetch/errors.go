package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrNetworkUnavailable means the device is offline. Retryable.
	ErrNetworkUnavailable = errors.New("NETWORK_UNAVAILABLE: device is offline")

	// ErrTimeout means a request exceeded its timeout. Retryable.
	ErrTimeout = errors.New("TIMEOUT: request timed out")

	// ErrNoCachedData means the device is offline and the namespace has never
	// been cached. It matches ErrNetworkUnavailable.
	ErrNoCachedData = fmt.Errorf("no cached data: %w", ErrNetworkUnavailable)

	// ErrNotRegistered means Refresh was called for a namespace without a
	// registered fetcher.
	ErrNotRegistered = errors.New("no fetcher registered for namespace")
)

// IsRetryable reports whether err is a connectivity failure worth retrying
// later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrTimeout)
}
