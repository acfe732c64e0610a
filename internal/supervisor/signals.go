package supervisor

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// SignalContext carries everything a termination signal needs to shut the
// session down: the supervisor holding the handles (and the shutdown
// guard), a cancel func aborting any in-flight health wait, and the exit
// func. No package-level mutable state is involved, so multiple sessions
// in one process (e.g. tests) do not interfere.
type SignalContext struct {
	Sup    *Supervisor
	Cancel func() // aborts AwaitHealthy; may be nil
	// Wait blocks until collaborators outside the supervisor's process
	// groups (the router subprocess) have been torn down by the canceled
	// session. Exiting without waiting would orphan them. May be nil.
	Wait func()
	Exit func(int) // defaults to os.Exit
	Log  zerolog.Logger
}

// InstallSignals registers handlers for SIGINT and SIGTERM that cancel the
// health wait, run the supervisor's (idempotent) shutdown, wait for any
// collaborator teardown, and exit with the conventional 128+signal code.
// The returned func uninstalls the handlers.
func InstallSignals(sc *SignalContext) func() {
	if sc.Exit == nil {
		sc.Exit = os.Exit
	}
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range ch {
			sc.handle(sig)
		}
	}()
	return func() {
		signal.Stop(ch)
		close(ch)
	}
}

func (sc *SignalContext) handle(sig os.Signal) {
	// A second signal arriving mid-teardown must not re-run cleanup.
	if sc.Sup.ShuttingDown() {
		return
	}
	sc.Log.Info().Str("signal", sig.String()).Msg("received signal, shutting down workers")
	if sc.Cancel != nil {
		sc.Cancel()
	}
	sc.Sup.Shutdown()
	if sc.Wait != nil {
		sc.Wait()
	}
	code := 128
	if s, ok := sig.(syscall.Signal); ok {
		code += int(s)
	}
	sc.Exit(code)
}
