package serve

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lightseekorg/smg/pkg/types"
)

// routerHealthServer stands in for the router's /health endpoint on a
// real port.
func routerHealthServer(t *testing.T) (host string, port int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	addr := srv.Listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestProcessRouterStopsOnCancel(t *testing.T) {
	host, port := routerHealthServer(t)
	// The router flags buildArgs appends land in the shell's positional
	// params, where they are ignored.
	r := NewProcessRouter([]string{"sh", "-c", "sleep 60"}, host, port, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx, types.RouterConfig{Timeout: 10 * time.Second})
	}()

	// Let Run clear the health wait before canceling.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run err = %v, want context.Canceled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("router process not stopped after cancel")
	}
}
