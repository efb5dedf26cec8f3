package power

import "sync/atomic"

type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// state holds the flags shared between the command path, the background
// reconnect loop and the shutdown path. Everything here is one of three
// things: the connectivity status, the one-way shutdown flag, and the
// reconnect-in-progress marker that keeps overlapping triggers from spawning
// duplicate loops.
type state struct {
	status       atomic.Int32
	shutdown     atomic.Bool
	reconnecting atomic.Bool
	done         chan struct{}
}

func newState() *state {
	return &state{done: make(chan struct{})}
}

func (s *state) Status() Status {
	return Status(s.status.Load())
}

func (s *state) setStatus(v Status) {
	s.status.Store(int32(v))
}

// BeginShutdown flips the one-way shutdown flag. It returns true exactly
// once per process lifetime; the done channel closes at the same moment so
// every backoff wait unblocks immediately.
func (s *state) BeginShutdown() bool {
	if !s.shutdown.CompareAndSwap(false, true) {
		return false
	}
	close(s.done)
	return true
}

func (s *state) ShuttingDown() bool {
	return s.shutdown.Load()
}

// Done is closed when shutdown begins.
func (s *state) Done() <-chan struct{} {
	return s.done
}

func (s *state) tryBeginReconnect() bool {
	return s.reconnecting.CompareAndSwap(false, true)
}

func (s *state) endReconnect() {
	s.reconnecting.Store(false)
}
