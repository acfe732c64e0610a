// Package launcher turns a declarative worker spec into a running backend
// process: it builds the backend-specific command line, computes the GPU
// environment for each data-parallel rank, and starts the process as a
// process-group leader so the whole subtree can later be signaled
// atomically.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lightseekorg/smg/internal/errdefs"
	"github.com/lightseekorg/smg/internal/health"
	"github.com/lightseekorg/smg/internal/supervisor"
	"github.com/lightseekorg/smg/pkg/types"
)

// Launcher is the per-backend contract. Everything else about launching a
// worker (GPU env, URL shape, health dispatch, process start) is common
// and lives in this package's free functions.
type Launcher interface {
	Backend() types.Backend
	// BuildCommand produces the full argv for one worker, injecting
	// model, host, port and protocol flags under the backend's native
	// flag names. Caller-supplied backendArgs are merged in with
	// launcher-managed flags filtered out.
	BuildCommand(spec types.WorkerSpec, backendArgs []string, host string, port int) ([]string, error)
	// TPSize resolves the tensor-parallel size used for GPU assignment.
	TPSize(spec types.WorkerSpec) (int, error)
}

// ForBackend returns the launcher for a backend variant.
func ForBackend(b types.Backend, log zerolog.Logger) (Launcher, error) {
	switch b {
	case types.BackendSglang:
		return sglangLauncher{}, nil
	case types.BackendVllm:
		return vllmLauncher{}, nil
	case types.BackendTrtllm:
		return trtllmLauncher{log: log}, nil
	}
	return nil, fmt.Errorf("no launcher for backend %q", b)
}

// WorkerURL is the address the router uses to reach a worker.
func WorkerURL(spec types.WorkerSpec, host string, port int) string {
	if spec.Mode == types.ModeGRPC {
		return fmt.Sprintf("grpc://%s:%d", host, port)
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// HealthCheck probes a worker with the prober matching its connection
// mode.
func HealthCheck(ctx context.Context, c *health.Checker, spec types.WorkerSpec, host string, port int, timeout time.Duration) bool {
	if spec.Mode == types.ModeGRPC {
		return c.GRPC(ctx, fmt.Sprintf("%s:%d", host, port), timeout)
	}
	return c.HTTP(ctx, fmt.Sprintf("http://%s:%d", host, port), timeout)
}

// GPUEnv copies base and overlays the GPU visibility and unbuffered-output
// variables for one data-parallel rank. Rank r with tensor-parallel size
// tp sees the contiguous GPU range [r*tp, r*tp+tp). The caller's map is
// never mutated.
func GPUEnv(l Launcher, spec types.WorkerSpec, dpRank int, base map[string]string) (map[string]string, error) {
	tp, err := l.TPSize(spec)
	if err != nil {
		return nil, err
	}
	if tp < 1 {
		tp = 1
	}
	env := make(map[string]string, len(base)+2)
	for k, v := range base {
		env[k] = v
	}
	ids := make([]string, 0, tp)
	for g := dpRank * tp; g < (dpRank+1)*tp; g++ {
		ids = append(ids, strconv.Itoa(g))
	}
	env["CUDA_VISIBLE_DEVICES"] = strings.Join(ids, ",")
	env["PYTHONUNBUFFERED"] = "1"
	return env, nil
}

// filterBackendArgs drops passthrough args whose keys the launcher already
// manages, recognizing both "--key value" and "--key=value" forms, so a
// caller-supplied --port cannot conflict with the allocated one.
func filterBackendArgs(backendArgs, managed []string) []string {
	var filtered []string
	skipNext := false
	for _, arg := range backendArgs {
		if skipNext {
			skipNext = false
			continue
		}
		key, _, hasValue := strings.Cut(arg, "=")
		drop := false
		for _, m := range managed {
			if key == m {
				drop = true
				break
			}
		}
		if drop {
			if !hasValue {
				skipNext = true // value is the next token
			}
			continue
		}
		filtered = append(filtered, arg)
	}
	return filtered
}

// Launch starts one worker process for the given identity. The process is
// made a process-group leader and inherits stdout/stderr so backend logs
// stay observable. A failed start is a LaunchFailure.
func Launch(l Launcher, spec types.WorkerSpec, backendArgs []string, id types.WorkerIdentity, host string, port int, env map[string]string, log zerolog.Logger) (*supervisor.Handle, error) {
	argv, err := l.BuildCommand(spec, backendArgs, host, port)
	if err != nil {
		return nil, err
	}
	log.Info().Str("command", strings.Join(argv, " ")).Msg("launching worker")

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = envSlice(env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, errdefs.ErrLaunchFailure(port, err)
	}
	h := supervisor.NewHandle(cmd, id, spec.ModelPath, port, WorkerURL(spec, host, port))
	log.Info().
		Str("backend", string(spec.Backend)).
		Str("host", host).
		Int("port", port).
		Int("pid", h.PID()).
		Str("gpus", env["CUDA_VISIBLE_DEVICES"]).
		Msg("launched worker")
	return h, nil
}

// envSlice flattens an environment map into the KEY=VALUE form exec.Cmd
// wants, sorted for deterministic command lines in logs and tests.
func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
