// Package serve composes the port allocator, worker launcher, health
// checker and process supervisor into a single launch → verify → run →
// teardown lifecycle for one serving session.
package serve

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lightseekorg/smg/internal/health"
	"github.com/lightseekorg/smg/internal/launcher"
	"github.com/lightseekorg/smg/internal/metrics"
	"github.com/lightseekorg/smg/internal/ports"
	"github.com/lightseekorg/smg/internal/supervisor"
	"github.com/lightseekorg/smg/pkg/types"
)

// How long a single health probe may take.
const probeTimeout = 5 * time.Second

// Router is the external collaborator that receives the worker URLs once
// the fleet is healthy. The orchestrator blocks in Run for the router's
// lifetime and has no further visibility into its behavior.
type Router interface {
	Run(ctx context.Context, cfg types.RouterConfig) error
}

// Orchestrator drives one serving session. It exclusively owns the worker
// processes it launches; on any fatal error during launch or health wait,
// already-started workers are torn down before the error propagates.
type Orchestrator struct {
	spec        types.WorkerSpec
	backendArgs []string
	policy      string
	routerWait  time.Duration

	launcher launcher.Launcher
	checker  *health.Checker
	sup      *supervisor.Supervisor
	router   Router
	log      zerolog.Logger

	// Seams for tests; defaults wired in New.
	findPorts func(basePort, count int) ([]int, error)
	start     func(id types.WorkerIdentity, dpRank, port int) (*supervisor.Handle, error)
	probeFn   supervisor.ProbeFunc
	exit      func(int)

	mu       sync.Mutex
	state    string
	launched map[int]time.Time // port → launch time, for the startup histogram

	done chan struct{} // closed when Run has unwound past all teardown
}

// New builds an orchestrator for one worker spec. backendArgs are
// passthrough flags for the workers' command lines; policy and routerWait
// parameterize the router hand-off.
func New(spec types.WorkerSpec, backendArgs []string, policy string, routerWait time.Duration, router Router, log zerolog.Logger) (*Orchestrator, error) {
	l, err := launcher.ForBackend(spec.Backend, log)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		spec:        spec,
		backendArgs: backendArgs,
		policy:      policy,
		routerWait:  routerWait,
		launcher:    l,
		checker:     health.New(log),
		sup:         supervisor.New(log),
		router:      router,
		log:         log,
		exit:        os.Exit,
		state:       "idle",
		launched:    map[int]time.Time{},
		done:        make(chan struct{}),
	}
	o.findPorts = ports.Find
	o.start = o.startWorker
	o.probeFn = o.probe
	return o, nil
}

// Run executes the full lifecycle: launch workers, wait for health, hand
// the fleet to the router, and tear everything down when the router
// returns, an error occurs, or a termination signal arrives.
func (o *Orchestrator) Run(ctx context.Context) error {
	// First deferred, so it runs after the teardown defers below: once
	// done is closed, the router subprocess is already stopped.
	defer close(o.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	uninstall := supervisor.InstallSignals(&supervisor.SignalContext{
		Sup:    o.sup,
		Cancel: cancel,
		Wait:   o.waitTeardown,
		Exit:   o.exit,
		Log:    o.log,
	})
	defer uninstall()
	// Shutdown is idempotent; this covers every exit path, including the
	// ones that already shut down via the signal handler.
	defer o.sup.Shutdown()

	o.setState("launching")
	if err := o.launchWorkers(); err != nil {
		o.setState("shutting_down")
		return err
	}

	o.setState("awaiting_health")
	if err := o.sup.AwaitHealthy(ctx, o.probeFn, o.spec.StartupTimeout); err != nil {
		o.setState("shutting_down")
		return err
	}

	o.setState("ready")
	cfg := o.routerConfig()
	o.log.Info().Strs("workers", cfg.WorkerURLs).Str("policy", cfg.Policy).Msg("fleet healthy, starting router")
	err := o.router.Run(ctx, cfg)
	o.setState("shutting_down")
	return err
}

// teardownWait bounds how long the signal path waits for Run to unwind
// before exiting anyway. It must exceed the router's stop escalation.
const teardownWait = 15 * time.Second

// waitTeardown blocks until Run has returned. The router runs in its own
// process group and is invisible to the supervisor, so the signal handler
// cannot exit before Run's unwind has stopped it; the cancel preceding
// this call is what unblocks the router's run loop.
func (o *Orchestrator) waitTeardown() {
	select {
	case <-o.done:
	case <-time.After(teardownWait):
		o.log.Warn().Msg("teardown did not finish in time, exiting anyway")
	}
}

// launchWorkers allocates ports and starts one process per data-parallel
// rank. A single failed start aborts the whole session: no partial fleets.
func (o *Orchestrator) launchWorkers() error {
	ranks := o.spec.DataParallelSize
	if ranks < 1 {
		ranks = 1
	}
	allocated, err := o.findPorts(o.spec.BasePort, ranks)
	if err != nil {
		return err
	}
	for rank, port := range allocated {
		id := types.WorkerIdentity{
			ModelID: o.spec.ModelID,
			Mode:    o.spec.Mode,
			Type:    types.WorkerRegular,
			Index:   rank,
		}
		h, err := o.start(id, rank, port)
		if err != nil {
			metrics.WorkerLaunchesTotal.WithLabelValues(string(o.spec.Backend), "error").Inc()
			return err
		}
		metrics.WorkerLaunchesTotal.WithLabelValues(string(o.spec.Backend), "ok").Inc()
		o.mu.Lock()
		o.launched[port] = time.Now()
		o.mu.Unlock()
		o.sup.Add(h)
	}
	return nil
}

// startWorker is the default start seam: GPU env for the rank, then a real
// process launch.
func (o *Orchestrator) startWorker(id types.WorkerIdentity, dpRank, port int) (*supervisor.Handle, error) {
	env, err := launcher.GPUEnv(o.launcher, o.spec, dpRank, envMap(os.Environ()))
	if err != nil {
		return nil, err
	}
	return launcher.Launch(o.launcher, o.spec, o.backendArgs, id, o.spec.Host, port, env, o.log)
}

// probe adapts the launcher's mode-dispatched health check to the
// supervisor's probe contract and feeds the probe/startup metrics.
func (o *Orchestrator) probe(ctx context.Context, h *supervisor.Handle) bool {
	ok := launcher.HealthCheck(ctx, o.checker, o.spec, o.spec.Host, h.Port, probeTimeout)
	outcome := "unhealthy"
	if ok {
		outcome = "healthy"
	}
	metrics.HealthProbesTotal.WithLabelValues(string(o.spec.Mode), outcome).Inc()
	if ok && h.State() == supervisor.StateLaunching {
		o.mu.Lock()
		started, tracked := o.launched[h.Port]
		o.mu.Unlock()
		if tracked {
			metrics.StartupDuration.Observe(time.Since(started).Seconds())
		}
	}
	return ok
}

// routerConfig lists worker URLs in launch order, one per rank.
func (o *Orchestrator) routerConfig() types.RouterConfig {
	handles := o.sup.Handles()
	urls := make([]string, 0, len(handles))
	for _, h := range handles {
		urls = append(urls, h.URL)
	}
	return types.RouterConfig{
		Policy:     o.policy,
		Timeout:    o.routerWait,
		WorkerURLs: urls,
	}
}

func (o *Orchestrator) setState(s string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Ready reports whether the session reached the ready state.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == "ready"
}

// Snapshot projects the session for the status API.
func (o *Orchestrator) Snapshot() types.FleetStatus {
	o.mu.Lock()
	state := o.state
	o.mu.Unlock()
	handles := o.sup.Handles()
	workers := make([]types.WorkerStatus, 0, len(handles))
	for _, h := range handles {
		workers = append(workers, h.Status())
	}
	return types.FleetStatus{
		Backend: o.spec.Backend,
		ModelID: o.spec.ModelID,
		State:   state,
		Workers: workers,
	}
}

// envMap converts KEY=VALUE pairs into a map for GPUEnv.
func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m[k] = v
	}
	return m
}
