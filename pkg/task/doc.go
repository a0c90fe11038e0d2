// Package task provides the directed acyclic graph of block-compute tasks
// that backs every lazy chunked-array computation.
//
// # Overview
//
// Speckle never computes anything eagerly. Deriving an array from another
// array appends task nodes to a shared graph; each node describes how to
// compute one block from the blocks it depends on. Nothing executes until
// a scheduler walks the graph and materializes the requested nodes.
//
// # Basic Usage
//
// Create a graph with [New], add tasks with [Graph.AddTask], and query the
// structure with [Graph.Parents], [Graph.Children] and [Graph.TopoSort]:
//
//	g := task.New()
//	g.AddTask("src-0", task.KindSource, nil, loadBlock)
//	g.AddTask("randomize-0", task.KindMap, []string{"src-0"}, computeBlock)
//
// Dependency order is significant: a node's compute function receives the
// results of its dependencies in exactly the order they were declared.
//
// # Node Kinds
//
// Every node carries an explicit [Kind] tag identifying the operation that
// created it (source, map, overlap, rechunk, assemble). Monitoring and
// rendering use the tag directly instead of parsing node id strings.
//
// # Validation
//
// [Graph.Validate] checks that every declared dependency exists and that
// the graph is acyclic, using depth-first search with white/gray/black
// coloring. Schedulers call it once before executing anything, so that
// structural errors surface before any block computes.
//
// # Concurrency
//
// Graph construction is not safe for concurrent use. Once built, a graph
// is read-only and may be walked by any number of goroutines; schedulers
// rely on this.
package task
