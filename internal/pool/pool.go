// Package pool shares a small number of expensive worker processes among
// many concurrent consumers (e.g. parallel test sessions). Workers are
// matched by WorkerIdentity, handed out with reference counting, and
// launched lazily only when demand exceeds supply.
package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lightseekorg/smg/internal/errdefs"
	"github.com/lightseekorg/smg/internal/metrics"
	"github.com/lightseekorg/smg/internal/supervisor"
	"github.com/lightseekorg/smg/pkg/types"
)

// evictBudget bounds graceful shutdown per evicted worker before the
// pool escalates to SIGKILL.
const evictBudget = 10 * time.Second

// LaunchFunc starts one worker for the given identity and blocks until it
// is healthy. The pool calls it outside its registry lock since process
// start is slow.
type LaunchFunc func(ctx context.Context, id types.WorkerIdentity) (*supervisor.Handle, error)

// launchKey scopes the serialize-shortfall-and-launch critical section:
// two concurrent callers requesting the same (model, mode, type) must not
// both decide to launch a duplicate.
type launchKey struct {
	modelID string
	mode    types.ConnectionMode
	typ     types.WorkerType
}

// Pool is a concurrency-safe registry mapping WorkerIdentity to a running
// worker handle.
type Pool struct {
	launch LaunchFunc
	log    zerolog.Logger

	mu      sync.Mutex
	workers map[types.WorkerIdentity]*supervisor.Handle
	keyMu   map[launchKey]*sync.Mutex
	hooks   []func()
	closed  bool
}

// New returns an empty pool that launches workers via launch.
func New(launch LaunchFunc, log zerolog.Logger) *Pool {
	return &Pool{
		launch:  launch,
		log:     log,
		workers: make(map[types.WorkerIdentity]*supervisor.Handle),
		keyMu:   make(map[launchKey]*sync.Mutex),
	}
}

// lockKey serializes acquire-then-launch per (model, mode, type). Returns
// the unlock func.
func (p *Pool) lockKey(k launchKey) func() {
	p.mu.Lock()
	m, ok := p.keyMu[k]
	if !ok {
		m = &sync.Mutex{}
		p.keyMu[k] = m
	}
	p.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// acquireByModelAndType snapshots and acquires all handles for a model and
// worker type across both connection modes, sorted by index for
// deterministic reuse order. The acquire happens in the same registry
// critical section as the snapshot: a handle returned here can never be
// reaped by a concurrent EvictIdle between being seen and being held.
func (p *Pool) acquireByModelAndType(modelID string, typ types.WorkerType) []*supervisor.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*supervisor.Handle
	for id, h := range p.workers {
		if id.ModelID == modelID && id.Type == typ {
			h.Acquire()
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity.Index < out[j].Identity.Index })
	return out
}

// register inserts a launched handle into the registry.
func (p *Pool) register(h *supervisor.Handle) {
	p.mu.Lock()
	p.workers[h.Identity] = h
	p.mu.Unlock()
	metrics.PoolWorkers.WithLabelValues(string(h.Identity.Type)).Inc()
}

// Acquire finds or lazily launches exactly one regular worker for the
// model and connection mode, incrementing its reference count.
func (p *Pool) Acquire(ctx context.Context, modelID string, mode types.ConnectionMode) (*supervisor.Handle, error) {
	hs, err := p.AcquireMany(ctx, modelID, mode, types.WorkerRegular, 1)
	if err != nil {
		return nil, err
	}
	return hs[0], nil
}

// AcquireMany returns count workers of the given type and mode, acquiring
// each. Existing matching workers are reused in index order; handles of
// the same model and type but the wrong connection mode are released;
// exactly the shortfall is launched, with indices continuing from the
// existing matching set.
//
// If launching the shortfall fails, every handle acquired by this call is
// released before the error propagates, so no reference counts leak.
func (p *Pool) AcquireMany(ctx context.Context, modelID string, mode types.ConnectionMode, typ types.WorkerType, count int) ([]*supervisor.Handle, error) {
	if count < 1 {
		return nil, errdefs.ErrResourceExhausted("requested %d workers for %s", count, modelID)
	}
	unlock := p.lockKey(launchKey{modelID: modelID, mode: mode, typ: typ})
	defer unlock()

	all := p.acquireByModelAndType(modelID, typ)
	var matching []*supervisor.Handle
	for _, h := range all {
		if h.Identity.Mode == mode {
			matching = append(matching, h)
		} else {
			// Wrong wire protocol for this request; let it go back to
			// being evictable.
			h.Release()
		}
	}

	if len(matching) >= count {
		for _, h := range matching[count:] {
			h.Release()
		}
		metrics.PoolAcquiresTotal.WithLabelValues("hit").Inc()
		return matching[:count], nil
	}

	missing := count - len(matching)
	p.log.Info().
		Str("model", modelID).
		Str("type", string(typ)).
		Int("have", len(matching)).
		Int("want", count).
		Msg("launching additional pool workers")

	launched := make([]*supervisor.Handle, 0, missing)
	for i := 0; i < missing; i++ {
		id := types.WorkerIdentity{
			ModelID: modelID,
			Mode:    mode,
			Type:    typ,
			Index:   len(matching) + i,
		}
		h, err := p.launch(ctx, id)
		if err != nil {
			// Roll back this call's acquisitions before propagating.
			for _, h2 := range matching {
				h2.Release()
			}
			for _, h2 := range launched {
				h2.Release()
			}
			metrics.PoolAcquiresTotal.WithLabelValues("error").Inc()
			return nil, errdefs.ErrResourceExhausted(
				"needed %d more %s/%s workers for %s: %v", missing, mode, typ, modelID, err)
		}
		// Hold the reference before the handle becomes visible to EvictIdle.
		h.Acquire()
		p.register(h)
		launched = append(launched, h)
	}
	metrics.PoolAcquiresTotal.WithLabelValues("launch").Inc()
	return append(matching, launched...), nil
}

// WorkersByType returns all workers of a model and type across connection
// modes, acquiring each returned handle. Callers filter by mode and
// release what they do not keep.
func (p *Pool) WorkersByType(modelID string, typ types.WorkerType) []*supervisor.Handle {
	return p.acquireByModelAndType(modelID, typ)
}

// Release decrements a handle's reference count. The process keeps
// running: eviction is a separate decision made by the pool owner via
// EvictIdle, which is what lets many consumers share one worker without
// each tearing it down.
func (p *Pool) Release(h *supervisor.Handle) {
	h.Release()
}

// EvictIdle terminates and removes every worker whose reference count is
// zero, returning how many were evicted. Termination escalates per worker
// (SIGTERM to the group, then SIGKILL) outside the registry lock.
func (p *Pool) EvictIdle() int {
	p.mu.Lock()
	var idle []*supervisor.Handle
	for id, h := range p.workers {
		if h.Refs() == 0 {
			idle = append(idle, h)
			delete(p.workers, id)
		}
	}
	p.mu.Unlock()

	for _, h := range idle {
		p.log.Info().Str("worker", h.Identity.String()).Int("pid", h.PID()).Msg("evicting idle worker")
		h.Terminate(evictBudget)
		metrics.PoolWorkers.WithLabelValues(string(h.Identity.Type)).Dec()
	}
	return len(idle)
}

// OnShutdown registers a hook run exactly once at pool shutdown, before
// workers are torn down. Sessions use this to release their cached
// handles at the end of the whole run rather than per consumer.
func (p *Pool) OnShutdown(hook func()) {
	p.mu.Lock()
	p.hooks = append(p.hooks, hook)
	p.mu.Unlock()
}

// Shutdown runs the registered lifecycle hooks and then terminates every
// remaining worker, idle or not. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	hooks := append([]func(){}, p.hooks...)
	p.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	p.mu.Lock()
	var all []*supervisor.Handle
	for id, h := range p.workers {
		all = append(all, h)
		delete(p.workers, id)
	}
	p.mu.Unlock()

	for _, h := range all {
		h.Terminate(evictBudget)
		metrics.PoolWorkers.WithLabelValues(string(h.Identity.Type)).Dec()
	}
}

// Size returns the number of registered workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}
