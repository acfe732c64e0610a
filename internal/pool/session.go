package pool

import (
	"context"
	"errors"
	"sync"

	"github.com/lightseekorg/smg/internal/supervisor"
	"github.com/lightseekorg/smg/pkg/types"
)

var errClosed = errors.New("pool session closed")

// Session caches acquisitions for one consumer so repeated requests for
// the same workers do not touch the pool's launch path, and releases them
// all in one Close. A session registers itself with the pool, so even a
// consumer that forgets Close is cleaned up at pool shutdown.
type Session struct {
	pool *Pool

	mu     sync.Mutex
	held   []*supervisor.Handle
	cache  map[launchKey][]*supervisor.Handle
	closed bool
}

// NewSession creates a session bound to the pool's shutdown lifecycle.
func (p *Pool) NewSession() *Session {
	s := &Session{
		pool:  p,
		cache: make(map[launchKey][]*supervisor.Handle),
	}
	p.OnShutdown(s.Close)
	return s
}

// Acquire returns one regular worker for the model and mode, reusing the
// session's prior acquisition when present.
func (s *Session) Acquire(ctx context.Context, modelID string, mode types.ConnectionMode) (*supervisor.Handle, error) {
	hs, err := s.AcquireMany(ctx, modelID, mode, types.WorkerRegular, 1)
	if err != nil {
		return nil, err
	}
	return hs[0], nil
}

// AcquireMany returns count workers, going to the pool only on a cache
// miss or when the cached set is too small.
func (s *Session) AcquireMany(ctx context.Context, modelID string, mode types.ConnectionMode, typ types.WorkerType, count int) ([]*supervisor.Handle, error) {
	k := launchKey{modelID: modelID, mode: mode, typ: typ}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errClosed
	}
	if cached := s.cache[k]; len(cached) >= count {
		s.mu.Unlock()
		return cached[:count], nil
	}
	s.mu.Unlock()

	hs, err := s.pool.AcquireMany(ctx, modelID, mode, typ, count)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		for _, h := range hs {
			s.pool.Release(h)
		}
		return nil, errClosed
	}
	s.held = append(s.held, hs...)
	s.cache[k] = hs
	s.mu.Unlock()
	return hs, nil
}

// Close releases everything the session holds. Safe to call more than
// once; only the first call releases.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	held := s.held
	s.held = nil
	s.cache = nil
	s.mu.Unlock()

	for _, h := range held {
		s.pool.Release(h)
	}
}
