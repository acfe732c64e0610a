// Package supervisor owns started worker processes: it tracks their
// handles, waits for the fleet to become healthy, and tears it down with
// graceful-then-forced escalation across whole process groups.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lightseekorg/smg/internal/errdefs"
)

const (
	// How often each worker is re-probed while waiting for health.
	pollInterval = 2 * time.Second
	// Total budget for graceful shutdown of the whole fleet. Backends
	// may need time to flush GPU state on SIGTERM but must not be able
	// to hang the shutdown path indefinitely.
	shutdownBudget = 30 * time.Second
)

// ProbeFunc checks one worker for liveness. It must not block past its own
// probe timeout and must never return an error: unreachable is simply
// unhealthy.
type ProbeFunc func(ctx context.Context, h *Handle) bool

// Supervisor owns the set of started worker processes for one session.
type Supervisor struct {
	log    zerolog.Logger
	budget time.Duration

	mu      sync.Mutex
	handles []*Handle
	down    bool
}

// New returns an empty supervisor.
func New(log zerolog.Logger) *Supervisor {
	return &Supervisor{log: log, budget: shutdownBudget}
}

// Add registers a started worker with the supervisor.
func (s *Supervisor) Add(h *Handle) {
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
}

// Handles returns a snapshot of the registered workers in launch order.
func (s *Supervisor) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Handle(nil), s.handles...)
}

// AwaitHealthy blocks until every worker passes probe, a worker process
// exits, a per-worker startup deadline elapses, or ctx is canceled.
//
// Workers are checked sequentially in launch order: each worker's wait
// loop runs to completion before the next begins, so the first unhealthy
// worker is reported deterministically without speculative probing of its
// siblings. Each worker's deadline is wall clock, computed once at loop
// entry, so retried probes cannot stretch the effective timeout.
func (s *Supervisor) AwaitHealthy(ctx context.Context, probe ProbeFunc, startupTimeout time.Duration) error {
	for _, h := range s.Handles() {
		deadline := time.Now().Add(startupTimeout)
		for {
			// An exited process is reported immediately instead of
			// waiting out the full timeout.
			if code, exited := h.Exited(); exited {
				return errdefs.ErrWorkerExited(h.Port, code)
			}
			if probe(ctx, h) {
				h.MarkHealthy()
				s.log.Info().Str("url", h.URL).Int("pid", h.PID()).Msg("worker healthy")
				break
			}
			if time.Now().After(deadline) {
				return errdefs.ErrHealthTimeout(h.Port, startupTimeout)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}
	return nil
}

// Shutdown tears down every worker process group: SIGTERM to all groups
// first, then each process is waited against the shared 30s budget, and
// stragglers get SIGKILL to their group. Safe to call from both the normal
// teardown path and a signal handler; re-entry is a no-op.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return
	}
	s.down = true
	handles := append([]*Handle(nil), s.handles...)
	s.mu.Unlock()

	if len(handles) == 0 {
		return
	}
	s.log.Info().Int("workers", len(handles)).Msg("shutting down workers")

	for _, h := range handles {
		h.TerminateGroup()
	}

	deadline := time.Now().Add(s.budget)
	for _, h := range handles {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if h.WaitExit(remaining) {
			continue
		}
		s.log.Warn().Int("pid", h.PID()).Int("port", h.Port).Msg("worker did not exit in time, killing process group")
		h.KillGroup()
		h.WaitExit(2 * time.Second)
	}
	s.log.Info().Msg("all workers terminated")
}

// ShuttingDown reports whether teardown has started.
func (s *Supervisor) ShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}
