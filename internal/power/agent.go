package power

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"switchtray/internal/device"
)

// Notifier receives presentation-facing updates. Implementations must be
// safe to call from any goroutine; the app layer marshals onto the UI.
type Notifier interface {
	// PowerChanged reports a confirmed power state, never an optimistic one.
	PowerChanged(on bool)
	ConnectionLost()
	ConnectionRestored(on bool)
	StatusMessage(msg string)
}

type noopNotifier struct{}

func (noopNotifier) PowerChanged(bool)       {}
func (noopNotifier) ConnectionLost()         {}
func (noopNotifier) ConnectionRestored(bool) {}
func (noopNotifier) StatusMessage(string)    {}

// ErrShuttingDown is returned for commands issued after shutdown began.
var ErrShuttingDown = errors.New("shutting down")

type Config struct {
	// RetryAttempts is the per-command attempt ceiling before the failure is
	// surfaced and reconnection moves to the background.
	RetryAttempts int
	Backoff       Backoff
	// ConnectTimeout bounds each connect attempt made by the background loop.
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.Backoff.Base <= 0 {
		c.Backoff.Base = DefaultRetryDelay
	}
	if c.Backoff.Max <= 0 {
		c.Backoff.Max = DefaultMaxRetryDelay
	}
	if c.Backoff.FastAttempts <= 0 {
		// The in-command ceiling consumes the fast window; attempts after it
		// wait the full cap.
		c.Backoff.FastAttempts = c.RetryAttempts
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// Agent is the serialized command surface over one supervised device
// connection. At most one device-affecting operation runs at a time; callers
// queue behind the command mutex in FIFO order.
type Agent struct {
	cfg      Config
	sup      *Supervisor
	st       *state
	notifier Notifier

	cmdMu sync.Mutex

	desiredMu    sync.Mutex
	desired      bool
	desiredKnown bool
}

func NewAgent(link device.Link, addr, username, password string, cfg Config, n Notifier) *Agent {
	if n == nil {
		n = noopNotifier{}
	}
	st := newState()
	return &Agent{
		cfg:      cfg.withDefaults(),
		sup:      NewSupervisor(link, addr, username, password, st),
		st:       st,
		notifier: n,
	}
}

func (a *Agent) Status() Status {
	return a.st.Status()
}

// Desired returns the last confirmed power state. known is false until the
// first successful connect or command.
func (a *Agent) Desired() (on, known bool) {
	a.desiredMu.Lock()
	defer a.desiredMu.Unlock()
	return a.desired, a.desiredKnown
}

// Device returns the connected device's model and nickname, or empty strings
// while disconnected.
func (a *Agent) Device() (model, nickname string) {
	if s := a.sup.Session(); s != nil {
		return s.Model, s.Nickname
	}
	return "", ""
}

// TurnOn requests the switch on. The desired state is updated only after the
// device confirms.
func (a *Agent) TurnOn(ctx context.Context) error {
	return a.setPower(ctx, true)
}

func (a *Agent) TurnOff(ctx context.Context) error {
	return a.setPower(ctx, false)
}

func (a *Agent) setPower(ctx context.Context, on bool) error {
	if a.st.ShuttingDown() {
		return ErrShuttingDown
	}
	err := a.exec(ctx, func(ctx context.Context, creds device.Credentials) error {
		return a.sup.link.SetPower(ctx, creds, on)
	})
	if err != nil {
		log.Printf("[power] Set power on=%v failed: %v", on, err)
		return err
	}
	a.setDesired(on)
	return nil
}

// Refresh queries the device's actual power state and re-syncs the confirmed
// state to it.
func (a *Agent) Refresh(ctx context.Context) (bool, error) {
	if a.st.ShuttingDown() {
		return false, ErrShuttingDown
	}
	var on bool
	err := a.exec(ctx, func(ctx context.Context, creds device.Credentials) error {
		info, err := a.sup.link.GetInfo(ctx, creds)
		if err != nil {
			return err
		}
		on = info.IsOn
		return nil
	})
	if err != nil {
		return false, err
	}
	a.setDesired(on)
	return on, nil
}

// ForceOff is the shutdown path's final switch-off. It runs after the
// shutdown flag is set, so it makes exactly one serialized attempt and never
// retries; the caller bounds it with a deadline context.
func (a *Agent) ForceOff(ctx context.Context) error {
	a.cmdMu.Lock()
	defer a.cmdMu.Unlock()

	sess := a.sup.Session()
	if sess == nil {
		return fmt.Errorf("force off: no session")
	}
	if err := a.sup.link.SetPower(ctx, sess.Credentials, false); err != nil {
		return fmt.Errorf("force off: %w", err)
	}
	a.setDesired(false)
	log.Printf("[power] Forced off before shutdown")
	return nil
}

// exec runs op under the command mutex with the reconnect-on-failure policy:
// one attempt, then sleep/reconnect/retry on transient failures up to the
// attempt ceiling, with the wait ramping per attempt. After the ceiling the
// failure is surfaced, the session is dropped and reconnection continues
// detached in the background, its attempt counter carrying on from the
// attempts the command already spent.
func (a *Agent) exec(ctx context.Context, op func(context.Context, device.Credentials) error) error {
	a.cmdMu.Lock()
	defer a.cmdMu.Unlock()

	var err error
	for attempt := 1; ; attempt++ {
		var sess *Session
		sess, err = a.ensureSession(ctx)
		if err == nil {
			if err = op(ctx, sess.Credentials); err == nil {
				return nil
			}
		}

		if !IsTransient(err) {
			// Auth and protocol failures are surfaced as-is; the session is
			// still assumed good, retrying would not change the answer.
			return err
		}
		if attempt >= a.cfg.RetryAttempts || a.st.ShuttingDown() {
			break
		}
		if !a.wait(ctx, a.cfg.Backoff.Delay(attempt)) {
			break
		}
		a.sup.Drop()
	}

	a.sup.Drop()
	a.notifier.ConnectionLost()
	a.ensureConnectedFrom(a.cfg.RetryAttempts + 1)
	return err
}

func (a *Agent) ensureSession(ctx context.Context) (*Session, error) {
	if sess := a.sup.Session(); sess != nil {
		return sess, nil
	}
	sess, err := a.sup.Connect(ctx)
	if err != nil {
		return nil, err
	}
	a.seedFromSession(sess)
	return sess, nil
}

// wait sleeps for d but returns early (false) the moment shutdown begins or
// the caller's context dies.
func (a *Agent) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-a.st.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// EnsureConnected starts the background reconnect loop unless one is already
// running, the connection is healthy, or shutdown began. Safe to call from
// the health check, the command path and startup concurrently.
func (a *Agent) EnsureConnected() {
	a.ensureConnectedFrom(1)
}

// ensureConnectedFrom starts the loop with its attempt counter seeded at
// startAttempt, so backoff picks up where a failed command's in-line retries
// left off instead of ramping from scratch.
func (a *Agent) ensureConnectedFrom(startAttempt int) {
	if a.st.ShuttingDown() || a.st.Status() == StatusConnected {
		return
	}
	if !a.st.tryBeginReconnect() {
		return
	}
	go a.reconnectLoop(startAttempt)
}

// reconnectLoop retries forever with linear backoff until connected or
// shutdown. The attempt counter only grows until success, so once past the
// fast window every wait is the full cap. Failures that are not
// network-shaped still keep the loop going (the agent never gives up on its
// own) but get reported once.
func (a *Agent) reconnectLoop(startAttempt int) {
	defer a.st.endReconnect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-a.st.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	reportedFatal := false
	for attempt := startAttempt; ; attempt++ {
		if a.st.ShuttingDown() {
			return
		}

		connectCtx, connectCancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
		sess, err := a.sup.Connect(connectCtx)
		connectCancel()
		if err == nil {
			a.seedFromSession(sess)
			a.notifier.ConnectionRestored(sess.IsOn)
			log.Printf("[power] Reconnected on attempt %d", attempt)
			return
		}

		if !IsTransient(err) && !reportedFatal {
			reportedFatal = true
			a.notifier.StatusMessage(fmt.Sprintf("Device error: %v", err))
		}

		delay := a.cfg.Backoff.Delay(attempt)
		log.Printf("[power] Connect attempt %d failed (%v), retrying in %v", attempt, err, delay)
		if !a.wait(ctx, delay) {
			return
		}
	}
}

func (a *Agent) seedFromSession(sess *Session) {
	a.setDesired(sess.IsOn)
}

func (a *Agent) setDesired(on bool) {
	a.desiredMu.Lock()
	changed := !a.desiredKnown || a.desired != on
	a.desired = on
	a.desiredKnown = true
	a.desiredMu.Unlock()
	if changed {
		a.notifier.PowerChanged(on)
	}
}

// BeginShutdown flips the one-way shutdown flag; it returns true only for
// the first caller. After it, only ForceOff is honored.
func (a *Agent) BeginShutdown() bool {
	return a.st.BeginShutdown()
}

func (a *Agent) Close() error {
	return a.sup.Close()
}
