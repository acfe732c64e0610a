// Package health probes worker liveness over HTTP or gRPC.
//
// Both probes return a plain bool and never surface transport errors:
// probing an unready worker is the expected steady state during startup,
// so failures are logged at debug level only and callers can poll in a
// tight loop.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Checker probes workers for liveness.
type Checker struct {
	// Client timeout stays 0: every request carries a context deadline.
	client *http.Client
	log    zerolog.Logger
}

// New returns a Checker logging probe failures to log at debug level.
func New(log zerolog.Logger) *Checker {
	return &Checker{client: &http.Client{Timeout: 0}, log: log}
}

// HTTP reports whether GET <baseURL>/health answers exactly 200 within
// timeout.
func (c *Checker) HTTP(ctx context.Context, baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		c.log.Debug().Str("url", baseURL).Err(err).Msg("http health request build failed")
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug().Str("url", baseURL).Err(err).Msg("http health check failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// GRPC reports whether the standard health-check RPC at target
// ("host:port") answers SERVING for the empty service name within timeout.
//
// Some backends expose a gRPC server without the health service; when the
// RPC comes back UNIMPLEMENTED the probe falls back to waiting for the
// channel to reach Ready within the same deadline and treats that as
// healthy. Any other RPC error is unhealthy.
func (c *Checker) GRPC(ctx context.Context, target string, timeout time.Duration) bool {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		c.log.Debug().Str("target", target).Err(err).Msg("grpc client create failed")
		return false
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if err == nil {
		return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}
	if status.Code(err) == codes.Unimplemented {
		return c.waitReady(ctx, conn, target)
	}
	c.log.Debug().Str("target", target).Err(err).Msg("grpc health check failed")
	return false
}

// waitReady blocks until the channel reports Ready or ctx expires.
func (c *Checker) waitReady(ctx context.Context, conn *grpc.ClientConn, target string) bool {
	conn.Connect()
	for {
		s := conn.GetState()
		if s == connectivity.Ready {
			return true
		}
		if !conn.WaitForStateChange(ctx, s) {
			c.log.Debug().Str("target", target).Msg("grpc channel not ready before deadline")
			return false
		}
	}
}
