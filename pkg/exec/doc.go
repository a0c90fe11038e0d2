// Package exec materializes task graphs.
//
// The core library only describes computations; this package is the
// scheduler collaborator that actually runs them. A [Pool] walks a
// [task.Graph] in dependency order and computes each node, either on a
// single goroutine or on a bounded worker pool. Because every node is a
// pure function of its inputs, the pool needs no locks around block data,
// may abandon in-flight nodes on context cancellation, and may recompute
// any node at any time without corrupting state.
//
// # Block caching
//
// When a [cache.Cache] is configured, nodes that carry a fingerprint are
// looked up before computing and stored after. Fingerprints identify the
// node's inputs and configuration, so a hit is always safe to reuse,
// including across processes and runs.
//
// # Memory
//
// Intermediate results are released as soon as the last dependent has
// consumed them; only requested targets survive a run.
package exec
