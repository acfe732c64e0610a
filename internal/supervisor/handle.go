package supervisor

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/lightseekorg/smg/pkg/types"
)

// State is the lifecycle state of one worker process. A handle moves
// launching → healthy → terminated and never regresses.
type State string

const (
	StateLaunching  State = "launching"
	StateHealthy    State = "healthy"
	StateTerminated State = "terminated"
)

// kill delivers a signal to a process group. Swapped out in tests.
var kill = syscall.Kill

// Handle owns one worker process: its pid (which doubles as the process
// group id, workers are started as group leaders), bound port, worker URL
// and reference count. Exactly one component (supervisor or pool) owns a
// Handle at a time; consumers hold non-owning references via the pool's
// acquire/release.
type Handle struct {
	Identity  types.WorkerIdentity
	ModelPath string
	Port      int
	URL       string

	cmd *exec.Cmd
	pid int

	done     chan struct{} // closed by the exit watcher
	exitCode int           // valid once done is closed

	mu    sync.Mutex
	refs  int
	state State
}

// NewHandle wraps a started command and begins watching for its exit.
func NewHandle(cmd *exec.Cmd, id types.WorkerIdentity, modelPath string, port int, url string) *Handle {
	h := &Handle{
		Identity:  id,
		ModelPath: modelPath,
		Port:      port,
		URL:       url,
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		done:      make(chan struct{}),
		state:     StateLaunching,
	}
	go h.watch()
	return h
}

// watch reaps the process and records its exit code.
func (h *Handle) watch() {
	err := h.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		if ee, ok := err.(*exec.ExitError); ok {
			code = ee.ExitCode()
		}
	}
	h.mu.Lock()
	h.exitCode = code
	h.state = StateTerminated
	h.mu.Unlock()
	close(h.done)
}

// PID returns the worker's process id (= process group id).
func (h *Handle) PID() int { return h.pid }

// Exited reports, without blocking, whether the process has exited and
// with which code.
func (h *Handle) Exited() (code int, exited bool) {
	select {
	case <-h.done:
		return h.exitCode, true
	default:
		return 0, false
	}
}

// WaitExit blocks up to d for the process to exit.
func (h *Handle) WaitExit(d time.Duration) bool {
	select {
	case <-h.done:
		return true
	case <-time.After(d):
		return false
	}
}

// MarkHealthy records the launching → healthy transition. A terminated
// handle stays terminated.
func (h *Handle) MarkHealthy() {
	h.mu.Lock()
	if h.state == StateLaunching {
		h.state = StateHealthy
	}
	h.mu.Unlock()
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Acquire increments the reference count and returns the new value.
func (h *Handle) Acquire() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs++
	return h.refs
}

// Release decrements the reference count, to a floor of zero, and returns
// the new value.
func (h *Handle) Release() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs > 0 {
		h.refs--
	}
	return h.refs
}

// Refs returns the current reference count.
func (h *Handle) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}

// TerminateGroup sends SIGTERM to the worker's process group. Errors
// (including ESRCH for an already-dead group) are ignored; the wait/kill
// phase handles stragglers.
func (h *Handle) TerminateGroup() {
	_ = kill(-h.pid, syscall.SIGTERM)
}

// KillGroup sends SIGKILL to the worker's process group.
func (h *Handle) KillGroup() {
	_ = kill(-h.pid, syscall.SIGKILL)
}

// Terminate runs the two-phase stop for a single worker: SIGTERM to the
// group, wait up to budget, SIGKILL to the group if it is still alive.
// Used by the pool's reaper; the supervisor sequences whole fleets itself.
func (h *Handle) Terminate(budget time.Duration) {
	h.TerminateGroup()
	if !h.WaitExit(budget) {
		h.KillGroup()
		h.WaitExit(2 * time.Second)
	}
}

// Status returns a read-only projection for the status API.
func (h *Handle) Status() types.WorkerStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return types.WorkerStatus{
		Identity: h.Identity,
		URL:      h.URL,
		Port:     h.Port,
		PID:      h.pid,
		State:    string(h.state),
		Refs:     h.refs,
	}
}
