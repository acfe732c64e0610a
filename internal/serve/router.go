package serve

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lightseekorg/smg/internal/errdefs"
	"github.com/lightseekorg/smg/internal/health"
	"github.com/lightseekorg/smg/internal/supervisor"
	"github.com/lightseekorg/smg/pkg/types"
)

// ProcessRouter runs the gateway router as a subprocess. It is launched as
// a process-group leader like the workers, probed over HTTP until healthy,
// and stopped with the same graceful-then-forced escalation.
type ProcessRouter struct {
	// Command is the router executable plus fixed leading args.
	Command []string
	Host    string
	Port    int

	checker *health.Checker
	log     zerolog.Logger
}

// NewProcessRouter returns a router collaborator that spawns command and
// serves on host:port.
func NewProcessRouter(command []string, host string, port int, log zerolog.Logger) *ProcessRouter {
	return &ProcessRouter{
		Command: command,
		Host:    host,
		Port:    port,
		checker: health.New(log),
		log:     log,
	}
}

// buildArgs appends the router flags derived from cfg.
func (r *ProcessRouter) buildArgs(cfg types.RouterConfig) []string {
	args := append([]string(nil), r.Command...)
	args = append(args, "--host", r.Host, "--port", strconv.Itoa(r.Port))
	if cfg.Policy != "" {
		args = append(args, "--policy", cfg.Policy)
	}
	for _, u := range cfg.WorkerURLs {
		args = append(args, "--worker-urls", u)
	}
	for _, u := range cfg.PrefillURLs {
		args = append(args, "--prefill", u)
	}
	for _, u := range cfg.DecodeURLs {
		args = append(args, "--decode", u)
	}
	return args
}

// Run starts the router, waits for it to become healthy, and then blocks
// until the process exits or ctx is canceled. On cancellation the router's
// process group is terminated with escalation.
func (r *ProcessRouter) Run(ctx context.Context, cfg types.RouterConfig) error {
	argv := r.buildArgs(cfg)
	r.log.Info().Strs("command", argv).Msg("launching router")

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return errdefs.ErrLaunchFailure(r.Port, err)
	}
	h := supervisor.NewHandle(cmd, types.WorkerIdentity{}, "", r.Port, fmt.Sprintf("http://%s:%d", r.Host, r.Port))

	wait := cfg.Timeout
	if wait <= 0 {
		wait = 60 * time.Second
	}
	if err := r.awaitHealthy(ctx, h, wait); err != nil {
		h.Terminate(10 * time.Second)
		return err
	}
	r.log.Info().Str("url", h.URL).Int("pid", h.PID()).Msg("router healthy")

	// Block for the router's lifetime.
	for {
		if code, exited := h.Exited(); exited {
			if code != 0 {
				return errdefs.ErrWorkerExited(r.Port, code)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			r.log.Info().Msg("stopping router")
			h.Terminate(10 * time.Second)
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (r *ProcessRouter) awaitHealthy(ctx context.Context, h *supervisor.Handle, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		if code, exited := h.Exited(); exited {
			return errdefs.ErrWorkerExited(r.Port, code)
		}
		if r.checker.HTTP(ctx, h.URL, probeTimeout) {
			h.MarkHealthy()
			return nil
		}
		if time.Now().After(deadline) {
			return errdefs.ErrHealthTimeout(r.Port, wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
