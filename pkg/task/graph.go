package task

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/specklesim/speckle/pkg/errors"
)

// Kind identifies the operation that created a task node. It is an explicit
// tagged variant carried alongside results, used for monitoring and for
// rendering the graph; nothing infers the operation from id strings.
type Kind int

const (
	// KindSource produces a block from data owned by the caller.
	KindSource Kind = iota
	// KindMap computes one output block from one input block per input array.
	KindMap
	// KindOverlap computes one output block from a halo-padded neighborhood.
	KindOverlap
	// KindRechunk reassembles blocks into a different chunk layout.
	KindRechunk
	// KindAssemble concatenates all blocks of an array into a single block.
	KindAssemble
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindMap:
		return "map"
	case KindOverlap:
		return "overlap"
	case KindRechunk:
		return "rechunk"
	case KindAssemble:
		return "assemble"
	}
	return "unknown"
}

// Value is the payload passed between task nodes. Schedulers treat values
// as opaque; the grid package stores *grid.Block payloads.
type Value any

// Func computes a node's value from the values of its dependencies, given
// in declared dependency order. A Func must be pure: same inputs, same
// output, no side effects. Schedulers rely on this to recompute abandoned
// or retried nodes safely.
type Func func(ctx context.Context, inputs []Value) (Value, error)

// Node is a single block-compute task.
//
// The zero value is not usable; nodes are created via [Graph.AddTask].
type Node struct {
	ID   string // Unique identifier within the graph
	Kind Kind   // Operation that created the node

	// Deps lists the ids of the nodes whose values feed Compute, in the
	// order Compute expects them. Order is part of the node's contract.
	Deps []string

	// Compute derives the node's value. Nil only for externally satisfied
	// nodes, which schedulers must reject.
	Compute Func

	// Fingerprint, when non-empty, is a stable content hash of the node's
	// inputs and configuration. Schedulers may use it as a cache key for
	// cross-run block reuse. An empty fingerprint disables caching for
	// the node.
	Fingerprint string
}

// Graph is a directed acyclic graph of block-compute tasks.
//
// The zero value is not usable - use New to create a valid Graph instance.
// Graph is not safe for concurrent mutation; once built it is read-only.
type Graph struct {
	nodes    map[string]*Node
	order    []string            // insertion order, for deterministic walks
	children map[string][]string // nodeID -> dependent IDs
}

// New creates an empty task graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
	}
}

// AddTask adds a node computing fn from the given dependencies.
// Returns an error if the id is empty or already present. Dependencies do
// not need to exist yet; Validate checks them once the graph is complete.
func (g *Graph) AddTask(id string, kind Kind, deps []string, fn Func) error {
	if id == "" {
		return errors.New(errors.ErrCodeGraphInvalid, "node id must not be empty")
	}
	if _, exists := g.nodes[id]; exists {
		return errors.New(errors.ErrCodeGraphInvalid, "duplicate node id %q", id)
	}
	g.nodes[id] = &Node{
		ID:      id,
		Kind:    kind,
		Deps:    slices.Clone(deps),
		Compute: fn,
	}
	g.order = append(g.order, id)
	for _, dep := range deps {
		g.children[dep] = append(g.children[dep], id)
	}
	return nil
}

// Node returns the node with the given id and true, or nil and false.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Parents returns the ordered dependency ids of the node.
// The returned slice must not be modified.
func (g *Graph) Parents(id string) []string {
	if n, ok := g.nodes[id]; ok {
		return n.Deps
	}
	return nil
}

// Children returns the ids of nodes that depend on this node.
// The returned slice must not be modified.
func (g *Graph) Children(id string) []string { return g.children[id] }

// DepFingerprints returns the fingerprints of the node's dependencies in
// declared order. The second return is false when the node is unknown or
// any dependency carries no fingerprint; callers must then leave the node
// unfingerprinted, since its input content is not attributable.
func (g *Graph) DepFingerprints(id string) ([]string, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	fps := make([]string, len(n.Deps))
	for i, dep := range n.Deps {
		d, ok := g.nodes[dep]
		if !ok || d.Fingerprint == "" {
			return nil, false
		}
		fps[i] = d.Fingerprint
	}
	return fps, true
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// Sources returns the ids of nodes with no dependencies, in insertion order.
func (g *Graph) Sources() []string {
	var ids []string
	for _, id := range g.order {
		if len(g.nodes[id].Deps) == 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Sinks returns the ids of nodes nothing depends on, in insertion order.
func (g *Graph) Sinks() []string {
	var ids []string
	for _, id := range g.order {
		if len(g.children[id]) == 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Merge copies every node of src into g. Layer names are globally unique,
// so a node id already present can only be the same logical node arriving
// through a second derived graph (shared ancestry); such nodes are kept
// as-is rather than copied again.
func (g *Graph) Merge(src *Graph) error {
	if src == nil || src == g {
		return nil
	}
	for _, id := range src.order {
		n := src.nodes[id]
		if _, exists := g.nodes[id]; exists {
			continue
		}
		clone := *n
		clone.Deps = slices.Clone(n.Deps)
		g.nodes[id] = &clone
		g.order = append(g.order, id)
		for _, dep := range clone.Deps {
			g.children[dep] = append(g.children[dep], id)
		}
	}
	return nil
}

// Validate checks graph integrity and returns nil if valid.
// It verifies two constraints:
//
//  1. Every declared dependency refers to an existing node
//  2. The graph is acyclic (no directed cycles exist)
//
// Cycle detection runs in O(N+E) time using depth-first search with
// white/gray/black coloring.
func (g *Graph) Validate() error {
	for _, id := range g.order {
		for _, dep := range g.nodes[id].Deps {
			if _, ok := g.nodes[dep]; !ok {
				return errors.New(errors.ErrCodeUnknownNode, "node %q depends on unknown node %q", id, dep)
			}
		}
	}
	return g.detectCycles()
}

func (g *Graph) detectCycles() error {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.nodes))
	var hasCycle bool

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = gray
		for _, child := range g.children[id] {
			switch color[child] {
			case white:
				dfs(child)
			case gray:
				hasCycle = true
				return
			}
		}
		color[id] = black
	}

	for _, id := range g.order {
		if color[id] == white {
			dfs(id)
			if hasCycle {
				return errors.New(errors.ErrCodeGraphCycle, "graph contains a cycle")
			}
		}
	}
	return nil
}

// TopoSort returns the ids of all ancestors of targets (targets included)
// in an order where every node appears after its dependencies. When
// targets is nil, the whole graph is sorted. The order is deterministic
// for a given graph and target list.
func (g *Graph) TopoSort(targets []string) ([]string, error) {
	if targets == nil {
		targets = g.order
	}

	needed := make(map[string]bool)
	var mark func(id string) error
	mark = func(id string) error {
		if needed[id] {
			return nil
		}
		n, ok := g.nodes[id]
		if !ok {
			return errors.New(errors.ErrCodeUnknownNode, "unknown target node %q", id)
		}
		needed[id] = true
		for _, dep := range n.Deps {
			if err := mark(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range targets {
		if err := mark(id); err != nil {
			return nil, err
		}
	}

	// Kahn's algorithm restricted to the needed subgraph. Ready nodes are
	// visited in insertion order, which keeps the result deterministic.
	indegree := make(map[string]int, len(needed))
	for id := range needed {
		for _, dep := range g.nodes[id].Deps {
			if needed[dep] {
				indegree[id]++
			}
		}
	}

	var ready []string
	for _, id := range g.order {
		if needed[id] && indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	sorted := make([]string, 0, len(needed))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		sorted = append(sorted, id)
		for _, child := range g.children[id] {
			if !needed[child] {
				continue
			}
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	if len(sorted) != len(needed) {
		return nil, errors.New(errors.ErrCodeGraphCycle, "graph contains a cycle")
	}
	return sorted, nil
}

var layerCounter atomic.Uint64

// NextLayerName returns a process-unique layer name with the given prefix,
// e.g. "randomize-17". Array constructors use it so that nodes of distinct
// arrays never collide when graphs are merged.
func NextLayerName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, layerCounter.Add(1))
}
