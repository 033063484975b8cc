// Package engine is the process-wide composition root of the sync engine.
//
// New constructs the Cache Store, Mutation Queue, Subscription Multiplexer,
// connectivity Monitor and fetch Coordinator once per process, and wires
// them together:
//
//   - offline to online transitions drain the queue and revalidate every
//     registered namespace; going offline cancels the pending queue retry
//     and the queue attempts nothing until the next transition
//   - relevant realtime events invalidate the watched namespaces and, when
//     online, refetch them in the background
//   - Submit executes a mutation immediately when online and falls back to
//     the durable queue otherwise
//
// Close tears everything down. Components are never constructed from
// anywhere else, so there is exactly one queue and one multiplexer per
// process.
package engine
