// Package store provides the durable key/value storage the offline core is
// built on.
//
// The contract is deliberately small (get, set, remove, multi-remove, prefix
// scan) and assumes no transactions. The Cache Store and Mutation Queue are
// the only callers; everything else goes through their public contracts so
// the atomicity and FIFO invariants cannot be bypassed.
//
// # Implementations
//
//   - Store: SQLite (github.com/mattn/go-sqlite3) with a single kv table.
//   - Memory: in-process map with fault injection, for tests.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Every single-key write is one statement, so a reader never observes a
// half-written value.
package store
