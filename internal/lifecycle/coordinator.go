package lifecycle

import (
	"context"
	"log"
	"time"
)

const DefaultShutdownTimeout = 2 * time.Second

// Veto lets the coordinator hold a cancelable host shutdown back while the
// final switch-off runs, then release it. On Windows this maps to
// ShutdownBlockReasonCreate/Destroy; other hosts pass nil.
type Veto interface {
	Block(reason string)
	Release()
}

// PowerController is the slice of the power agent the coordinator needs.
type PowerController interface {
	// BeginShutdown flips the one-way shutdown flag; true only on the first
	// call process-wide.
	BeginShutdown() bool
	ForceOff(ctx context.Context) error
}

// SwitchReason identifies a host session-switch notification.
type SwitchReason int

const (
	SwitchUnknown SwitchReason = iota
	SwitchConsoleDisconnect
	SwitchLogoff
	SwitchLock
)

// Coordinator turns host session-ending, session-switch and explicit exit
// events into exactly one bounded forced switch-off. The first trigger wins;
// everything after it is a no-op.
type Coordinator struct {
	timeout time.Duration
	ctrl    PowerController

	// revoke unsubscribes the host-event watcher; called exactly once, on
	// the winning trigger.
	revoke func()
	// exit tears the app down after the forced off (or its deadline).
	exit func()
}

func New(ctrl PowerController, timeout time.Duration, revoke, exit func()) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &Coordinator{
		timeout: timeout,
		ctrl:    ctrl,
		revoke:  revoke,
		exit:    exit,
	}
}

// SessionEnding handles a host shutdown/logoff notification. When the host
// allows vetoing, v holds the shutdown back until the forced off finishes or
// times out; v may be nil when the notification cannot be delayed.
func (c *Coordinator) SessionEnding(v Veto) {
	c.shutdown(v, "session ending")
}

// SessionSwitch handles console/session switch notifications. Only a switch
// that ends the interactive session triggers shutdown.
func (c *Coordinator) SessionSwitch(reason SwitchReason) {
	switch reason {
	case SwitchLogoff, SwitchConsoleDisconnect:
		c.shutdown(nil, "session switch")
	default:
	}
}

// Exit handles the user's explicit quit action.
func (c *Coordinator) Exit() {
	c.shutdown(nil, "user exit")
}

func (c *Coordinator) shutdown(v Veto, trigger string) {
	if !c.ctrl.BeginShutdown() {
		log.Printf("[lifecycle] Ignoring %s: shutdown already in progress", trigger)
		return
	}
	log.Printf("[lifecycle] Shutting down (%s), forcing switch off within %v", trigger, c.timeout)

	if c.revoke != nil {
		c.revoke()
	}
	if v != nil {
		v.Block("Turning the switch off")
		defer v.Release()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	// The switch-off runs concurrently; we wait for it or the deadline,
	// whichever comes first. Host shutdown must never hang on the network.
	done := make(chan error, 1)
	go func() {
		done <- c.ctrl.ForceOff(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Printf("[lifecycle] Forced off failed: %v", err)
		} else {
			log.Printf("[lifecycle] Forced off completed")
		}
	case <-ctx.Done():
		log.Printf("[lifecycle] Forced off still pending at deadline, proceeding with shutdown")
	}

	if c.exit != nil {
		c.exit()
	}
}
