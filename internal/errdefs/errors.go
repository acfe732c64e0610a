// Package errdefs holds the typed errors shared across the orchestration
// components. Each kind carries an Err* constructor and an Is* predicate so
// callers can branch without string matching.
package errdefs

import (
	"errors"
	"fmt"
	"time"
)

// launchFailureError signals a worker process that could not be started.
type launchFailureError struct {
	port int
	err  error
}

func (e launchFailureError) Error() string {
	return fmt.Sprintf("failed to launch worker on port %d: %v", e.port, e.err)
}

func (e launchFailureError) Unwrap() error { return e.err }

// ErrLaunchFailure constructs a launch failure for the given worker port.
func ErrLaunchFailure(port int, err error) error { return launchFailureError{port: port, err: err} }

// IsLaunchFailure reports whether err indicates a failed process start.
func IsLaunchFailure(err error) bool {
	var e launchFailureError
	return errors.As(err, &e)
}

// workerExitedError signals a worker process that died unexpectedly.
type workerExitedError struct {
	port int
	code int
}

func (e workerExitedError) Error() string {
	return fmt.Sprintf("worker on port %d exited with code %d", e.port, e.code)
}

// ErrWorkerExited constructs an error for a worker that died before or
// after becoming healthy.
func ErrWorkerExited(port, code int) error { return workerExitedError{port: port, code: code} }

// IsWorkerExited reports whether err indicates a dead worker process.
func IsWorkerExited(err error) bool {
	var e workerExitedError
	return errors.As(err, &e)
}

// ExitCode returns the worker's exit code when err is a WorkerExited error.
func ExitCode(err error) (int, bool) {
	var e workerExitedError
	if errors.As(err, &e) {
		return e.code, true
	}
	return 0, false
}

// healthTimeoutError signals a worker that never became healthy in time.
type healthTimeoutError struct {
	port    int
	timeout string
}

func (e healthTimeoutError) Error() string {
	return fmt.Sprintf("worker on port %d not healthy within %s", e.port, e.timeout)
}

// ErrHealthTimeout constructs a health deadline error.
func ErrHealthTimeout(port int, timeout time.Duration) error {
	return healthTimeoutError{port: port, timeout: timeout.String()}
}

// IsHealthTimeout reports whether err indicates an elapsed health deadline.
func IsHealthTimeout(err error) bool {
	var e healthTimeoutError
	return errors.As(err, &e)
}

// resourceExhaustedError signals that no port or worker capacity is left.
// Fatal to the requesting call only, not to the whole process.
type resourceExhaustedError struct{ msg string }

func (e resourceExhaustedError) Error() string { return e.msg }

// ErrResourceExhausted constructs a capacity error.
func ErrResourceExhausted(format string, args ...any) error {
	return resourceExhaustedError{msg: fmt.Sprintf(format, args...)}
}

// IsResourceExhausted reports whether err indicates exhausted ports or
// pool capacity.
func IsResourceExhausted(err error) bool {
	var e resourceExhaustedError
	return errors.As(err, &e)
}

// configError signals invalid or unreadable backend configuration. Fails
// fast rather than silently defaulting.
type configError struct {
	msg string
	err error
}

func (e configError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e configError) Unwrap() error { return e.err }

// ErrConfig constructs a configuration error, optionally wrapping a cause.
func ErrConfig(msg string, err error) error { return configError{msg: msg, err: err} }

// IsConfig reports whether err indicates invalid backend configuration.
func IsConfig(err error) bool {
	var e configError
	return errors.As(err, &e)
}

