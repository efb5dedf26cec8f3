//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"switchtray/internal/lifecycle"
)

// watchSessionEvents maps SIGINT/SIGTERM onto the session-ending path. There
// is no cancelable shutdown notification to veto on these hosts.
func watchSessionEvents(coord *lifecycle.Coordinator) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for range sigCh {
			coord.SessionEnding(nil)
		}
	}()

	return func() {
		signal.Stop(sigCh)
	}
}
