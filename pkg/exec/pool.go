package exec

import (
	"context"
	"encoding"
	"sync"
	"time"

	"github.com/specklesim/speckle/pkg/cache"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/observability"
	"github.com/specklesim/speckle/pkg/task"
)

// Options configures a scheduler pool.
type Options struct {
	// Workers is the number of concurrent block computations.
	// Values below 1 mean sequential execution.
	Workers int

	// Cache, when set, enables cross-run reuse of fingerprinted nodes.
	Cache cache.Cache

	// Keyer derives cache keys from node fingerprints.
	// Defaults to cache.NewDefaultKeyer().
	Keyer cache.Keyer

	// TTL is the lifetime of cached block results (0 means no expiry).
	TTL time.Duration

	// Decode rebuilds a task value from cached bytes. Required when
	// Cache is set; grid.DecodeBlock is the standard choice.
	Decode func([]byte) (task.Value, error)
}

// Pool is a scheduler that materializes task graphs with bounded
// parallelism. The zero value is not usable; use New or Sequential.
type Pool struct {
	opts Options
}

// New creates a pool with the given options.
func New(opts Options) (*Pool, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Cache != nil && opts.Decode == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "block cache configured without a decode hook")
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	return &Pool{opts: opts}, nil
}

// Sequential returns a single-worker pool without caching. It is the
// scheduler of choice for tests and for bit-reproducibility checks, since
// it executes nodes in deterministic topological order.
func Sequential() *Pool {
	p, _ := New(Options{Workers: 1})
	return p
}

// Run materializes the targets and every node they depend on, returning
// the computed values of the targets. Intermediate values are dropped as
// soon as their last dependent has consumed them.
//
// Any node error aborts the run. Contract violations and configuration
// errors are returned as-is so callers can distinguish programming errors
// from transient ones; the pool itself never retries.
func (p *Pool) Run(ctx context.Context, g *task.Graph, targets []string) (map[string]task.Value, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	sorted, err := g.TopoSort(targets)
	if err != nil {
		return nil, err
	}

	hooks := observability.Scheduler()
	start := time.Now()
	hooks.OnRunStart(ctx, len(sorted), p.opts.Workers)

	results, err := p.run(ctx, g, sorted, targets)

	hooks.OnRunComplete(ctx, len(sorted), time.Since(start), err)
	return results, err
}

type runState struct {
	mu        sync.Mutex
	values    map[string]task.Value
	refs      map[string]int // dependents not yet satisfied
	waiting   map[string]int // unsatisfied dependencies
	needed    map[string]bool
	isTarget  map[string]bool
	remaining int
	firstErr  error
}

func (p *Pool) run(ctx context.Context, g *task.Graph, sorted, targets []string) (map[string]task.Value, error) {
	st := &runState{
		values:    make(map[string]task.Value, len(sorted)),
		refs:      make(map[string]int, len(sorted)),
		waiting:   make(map[string]int, len(sorted)),
		needed:    make(map[string]bool, len(sorted)),
		isTarget:  make(map[string]bool, len(targets)),
		remaining: len(sorted),
	}
	for _, id := range sorted {
		st.needed[id] = true
	}
	for _, id := range targets {
		st.isTarget[id] = true
	}
	for _, id := range sorted {
		st.waiting[id] = len(g.Parents(id))
		for _, child := range g.Children(id) {
			if st.needed[child] {
				st.refs[id]++
			}
		}
	}

	ready := make(chan string, len(sorted))
	done := make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, id := range sorted {
		if st.waiting[id] == 0 {
			ready <- id
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < p.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-done:
					return
				case id := <-ready:
					p.step(runCtx, g, st, id, ready, done, cancel)
				}
			}
		}()
	}
	wg.Wait()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.firstErr != nil {
		return nil, st.firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]task.Value, len(targets))
	for _, id := range targets {
		out[id] = st.values[id]
	}
	return out, nil
}

// step computes one node and schedules any children that become ready.
func (p *Pool) step(ctx context.Context, g *task.Graph, st *runState, id string, ready chan string, done chan struct{}, cancel context.CancelFunc) {
	n, _ := g.Node(id)

	st.mu.Lock()
	inputs := make([]task.Value, len(n.Deps))
	for i, dep := range n.Deps {
		inputs[i] = st.values[dep]
	}
	st.mu.Unlock()

	value, err := p.computeNode(ctx, n, inputs)

	st.mu.Lock()
	defer st.mu.Unlock()
	if err != nil {
		if st.firstErr == nil {
			st.firstErr = err
		}
		cancel()
		return
	}
	st.values[id] = value

	// Release inputs this node no longer pins.
	for _, dep := range n.Deps {
		st.refs[dep]--
		if st.refs[dep] == 0 && !st.isTarget[dep] {
			delete(st.values, dep)
		}
	}

	for _, child := range g.Children(id) {
		if !st.needed[child] {
			continue
		}
		st.waiting[child]--
		if st.waiting[child] == 0 {
			ready <- child
		}
	}

	st.remaining--
	if st.remaining == 0 {
		close(done)
	}
}

// computeNode evaluates one node, consulting the block cache when the
// node is fingerprinted.
func (p *Pool) computeNode(ctx context.Context, n *task.Node, inputs []task.Value) (task.Value, error) {
	if n.Compute == nil {
		return nil, errors.New(errors.ErrCodeGraphInvalid, "node %q has no compute function", n.ID)
	}

	hooks := observability.Scheduler()
	kind := n.Kind.String()
	start := time.Now()
	hooks.OnNodeStart(ctx, n.ID, kind)

	value, hit, err := p.lookup(ctx, n)
	if err == nil && !hit {
		value, err = n.Compute(ctx, inputs)
		if err == nil {
			p.store(ctx, n, value)
		}
	}

	hooks.OnNodeComplete(ctx, n.ID, kind, time.Since(start), err)
	return value, err
}

func (p *Pool) lookup(ctx context.Context, n *task.Node) (task.Value, bool, error) {
	if p.opts.Cache == nil || n.Fingerprint == "" {
		return nil, false, nil
	}
	key := p.opts.Keyer.BlockKey(n.Fingerprint)
	data, hit, err := p.opts.Cache.Get(ctx, key)
	if err != nil || !hit {
		// A cache failure is not a computation failure; fall through
		// to computing the block.
		observability.Cache().OnCacheMiss(ctx, "block")
		return nil, false, nil
	}
	observability.Cache().OnCacheHit(ctx, "block")
	value, err := p.opts.Decode(data)
	if err != nil {
		return nil, false, nil
	}
	return value, true, nil
}

func (p *Pool) store(ctx context.Context, n *task.Node, value task.Value) {
	if p.opts.Cache == nil || n.Fingerprint == "" {
		return
	}
	m, ok := value.(encoding.BinaryMarshaler)
	if !ok {
		return
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return
	}
	key := p.opts.Keyer.BlockKey(n.Fingerprint)
	if err := p.opts.Cache.Set(ctx, key, data, p.opts.TTL); err == nil {
		observability.Cache().OnCacheSet(ctx, "block", len(data))
	}
}
