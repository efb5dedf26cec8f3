package power

import (
	"context"
	"fmt"
	"log"
	"sync"

	"switchtray/internal/device"
)

// Session is the live authenticated connection to the device. It is replaced
// wholesale on every successful connect and never partially mutated.
type Session struct {
	Credentials device.Credentials
	Model       string
	Nickname    string
	// IsOn is the power state observed at connect time, used to seed the
	// desired state before any command has run.
	IsOn bool
}

// Supervisor owns the device link and the one live Session. All connection
// setup runs under a single mutex so the startup loop, the command path's
// reconnect and the background loop can never authenticate concurrently.
type Supervisor struct {
	link     device.Link
	addr     string
	username string
	password string

	st *state

	mu      sync.Mutex
	session *Session
}

func NewSupervisor(link device.Link, addr, username, password string, st *state) *Supervisor {
	return &Supervisor{
		link:     link,
		addr:     addr,
		username: username,
		password: password,
		st:       st,
	}
}

// Connect authenticates and seeds a fresh Session from the device's reported
// info and power state. The previous session, if any, is discarded.
func (sv *Supervisor) Connect(ctx context.Context) (*Session, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if sv.st.ShuttingDown() {
		return nil, fmt.Errorf("connect aborted: shutting down")
	}

	sv.st.setStatus(StatusConnecting)

	creds, err := sv.link.Authenticate(ctx, sv.addr, sv.username, sv.password)
	if err != nil {
		sv.session = nil
		sv.st.setStatus(StatusDisconnected)
		return nil, fmt.Errorf("authenticate %s: %w", sv.addr, err)
	}

	info, err := sv.link.GetInfo(ctx, creds)
	if err != nil {
		sv.session = nil
		sv.st.setStatus(StatusDisconnected)
		return nil, fmt.Errorf("device info %s: %w", sv.addr, err)
	}

	sv.session = &Session{
		Credentials: creds,
		Model:       info.Model,
		Nickname:    info.Nickname,
		IsOn:        info.IsOn,
	}
	sv.st.setStatus(StatusConnected)

	log.Printf("[power] Connected to %q (%s) at %s, on=%v", info.Nickname, info.Model, sv.addr, info.IsOn)
	return sv.session, nil
}

// Session returns the current session, or nil when disconnected.
func (sv *Supervisor) Session() *Session {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.session
}

// Drop discards the session and marks the connection lost.
func (sv *Supervisor) Drop() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.session = nil
	sv.st.setStatus(StatusDisconnected)
}

func (sv *Supervisor) Close() error {
	sv.Drop()
	return sv.link.Close()
}
