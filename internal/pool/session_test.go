package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/lightseekorg/smg/pkg/types"
)

func TestSessionCachesAcquisitions(t *testing.T) {
	rl := &recordingLauncher{t: t}
	p := newTestPool(t, rl)
	s := p.NewSession()

	a, err := s.Acquire(context.Background(), "m", types.ModeGRPC)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := s.Acquire(context.Background(), "m", types.ModeGRPC)
	if err != nil {
		t.Fatalf("acquire again: %v", err)
	}
	if a != b {
		t.Fatalf("cached acquisition not reused")
	}
	if a.Refs() != 1 {
		t.Fatalf("refs = %d, want 1 (cache hit must not re-acquire)", a.Refs())
	}

	s.Close()
	if a.Refs() != 0 {
		t.Errorf("refs = %d after close, want 0", a.Refs())
	}

	if _, err := s.Acquire(context.Background(), "m", types.ModeGRPC); !errors.Is(err, errClosed) {
		t.Errorf("acquire on closed session: err = %v, want errClosed", err)
	}
}

func TestPoolShutdownClosesSessions(t *testing.T) {
	rl := &recordingLauncher{t: t}
	p := newTestPool(t, rl)
	s := p.NewSession()

	h, err := s.Acquire(context.Background(), "m", types.ModeHTTP)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if h.Refs() != 1 {
		t.Fatalf("refs = %d, want 1", h.Refs())
	}

	p.Shutdown()
	if h.Refs() != 0 {
		t.Errorf("refs = %d after pool shutdown, want 0", h.Refs())
	}
}
