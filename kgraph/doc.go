// Package kgraph stores the node arena and dependency edges of a reactive graph.
//
// # Overview
//
// A Graph owns three things, all keyed by NodeID:
//
//   - the nodes themselves (opaque to this package),
//   - the current value of every node,
//   - the child adjacency, i.e. which nodes must be revisited when a node changes.
//
// Two implementations satisfy the Graph interface:
//
//   - Mutable: plain maps and slices. Edits are cheap, Snapshot copies.
//   - Persistent: structurally shared hash array mapped tries. Edits allocate a
//     path, Snapshot is a pointer capture.
//
// The persistent variant exists for time travel, where a snapshot is taken after
// every externally visible frame and must stay untouched by later edits.
//
// # Validation
//
// Edges are expected to form a DAG. AddChild can reject edges that would close a
// cycle (see WithCycleCheck); DetectCycles validates a whole graph after the fact.
// Validation errors wrap sentinel errors (ErrCycleDetected, ErrNodeNotFound, ...)
// that can be checked with errors.Is().
//
// # Thread Safety
//
// Graphs are NOT safe for concurrent use. The owning timeline serializes access.
// Snapshots are immutable and safe to read concurrently.
package kgraph
