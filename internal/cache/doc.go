// Package cache implements the Cache Store: typed, namespaced payloads with
// per-namespace sync timestamps and staleness evaluation.
//
// A namespace ("restaurants", "bookings:upcoming", "schedule:<id>") holds one
// atomic payload. Each Put writes the whole entry with a single KV Set, then
// records the namespace's sync time in a shared sync map. Staleness is
// evaluated against the sync map, so Invalidate can force revalidation while
// the payload stays available for offline reads.
//
// Storage failures surface as *StorageError (errors.Is ErrStorageUnavailable),
// never as a cache miss.
package cache
