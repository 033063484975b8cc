// Package queue implements the Mutation Queue: a durable, FIFO list of
// pending write operations replayed against the backend once connectivity
// returns.
//
// # Invariants
//
//   - Actions replay in enqueue order.
//   - An action leaves the queue only when its handler succeeds or when it
//     fails terminally (unregistered kind, undecodable payload, a Permanent
//     handler error, or retryCount reaching maxRetries). Terminal failures
//     are reported to the failure sink, never dropped silently.
//   - retryCount and lastError are persisted after every attempt, so retries
//     survive restarts.
//   - At most one Drain runs at a time. A concurrent call returns immediately
//     with Result.Skipped set.
//   - After a drain that kept retryable failures, exactly one deferred
//     re-drain is scheduled after a fixed delay, and only while online.
//   - With an online check installed, nothing is attempted offline, so an
//     offline period never spends an action's retries.
//
// # Handlers
//
// Kind is a closed set. Handlers has one method per kind, so a missing
// replay handler is a compile error rather than a replay-time surprise. The
// only runtime "not registered" case is a persisted kind this build does not
// know (written by a newer or older release); it is dropped as terminal.
//
// Every handler must be idempotent: replaying an action whose server-side
// effect already happened (crash after success, before local removal) must
// succeed. BackendHandlers does this by treating ErrAlreadyExists on inserts
// and ErrNotFound on deletes as success.
package queue
