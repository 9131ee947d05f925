package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// installInterruptHandler implements a two-stage SIGINT policy: the
// first Ctrl-C is advisory (printed, ignored) while agent children are
// still registered in e.Children, because they run in their own
// detached process group (agent.ClaudeDriver's Setpgid) and are not
// killed by this process exiting. A second SIGINT, or any SIGTERM,
// exits immediately, abandoning whatever is still running. Returned
// stop func must be deferred by the caller.
func installInterruptHandler(e *env) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		interrupted := false
		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGTERM {
					os.Exit(1)
				}
				if interrupted || e.Children.Len() == 0 {
					os.Exit(1)
				}
				interrupted = true
				fmt.Fprintf(os.Stderr, "\ninterrupt: %d agent process(es) still running; press Ctrl-C again to exit and abandon them\n", e.Children.Len())
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
