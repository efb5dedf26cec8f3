package device

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.yhsif.com/lifxlan"
	"go.yhsif.com/lifxlan/light"
)

const lifxPort = "56700"

// LIFXLink drives a LIFX bulb or switch over its LAN UDP protocol. No
// credential exchange exists; credentials are accepted but unused.
type LIFXLink struct {
	mu    sync.RWMutex
	creds Credentials
	dev   light.Device
}

func NewLIFXLink() *LIFXLink {
	return &LIFXLink{}
}

func (l *LIFXLink) Authenticate(ctx context.Context, addr, username, password string) (Credentials, error) {
	hostPort := addr
	if !strings.Contains(addr, ":") {
		hostPort = net.JoinHostPort(addr, lifxPort)
	}

	raw := lifxlan.NewDevice(hostPort, lifxlan.ServiceUDP, lifxlan.AllDevices)
	ld, err := light.Wrap(ctx, raw, false)
	if err != nil {
		return Credentials{}, fmt.Errorf("lifx wrap %s: %w", hostPort, err)
	}

	conn, err := ld.Dial()
	if err != nil {
		return Credentials{}, err
	}
	defer conn.Close()

	// Label and hardware version are best-effort; the power query is the
	// actual reachability check.
	labelCtx, labelCancel := context.WithTimeout(ctx, 2*time.Second)
	_ = ld.GetLabel(labelCtx, conn)
	labelCancel()
	versionCtx, versionCancel := context.WithTimeout(ctx, 2*time.Second)
	_ = ld.GetHardwareVersion(versionCtx, conn)
	versionCancel()

	if _, err := ld.GetPower(ctx, conn); err != nil {
		return Credentials{}, err
	}

	creds := Credentials{ID: uuid.New().String()}
	l.mu.Lock()
	l.creds = creds
	l.dev = ld
	l.mu.Unlock()

	log.Printf("[lifx] Connected to %s", hostPort)
	return creds, nil
}

func (l *LIFXLink) GetInfo(ctx context.Context, creds Credentials) (Info, error) {
	ld, err := l.session(creds)
	if err != nil {
		return Info{}, err
	}

	conn, err := ld.Dial()
	if err != nil {
		return Info{}, err
	}
	defer conn.Close()

	power, err := ld.GetPower(ctx, conn)
	if err != nil {
		return Info{}, err
	}

	info := Info{IsOn: power.On()}
	if name := ld.Label().String(); name != lifxlan.EmptyLabel {
		info.Nickname = name
	}
	if product := ld.HardwareVersion().Parse(); product != nil {
		info.Model = product.ProductName
	}
	return info, nil
}

func (l *LIFXLink) SetPower(ctx context.Context, creds Credentials, on bool) error {
	ld, err := l.session(creds)
	if err != nil {
		return err
	}

	conn, err := ld.Dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	power := lifxlan.PowerOff
	if on {
		power = lifxlan.PowerOn
	}
	return ld.SetLightPower(ctx, conn, power, 200*time.Millisecond, false)
}

func (l *LIFXLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creds = Credentials{}
	l.dev = nil
	return nil
}

func (l *LIFXLink) session(creds Credentials) (light.Device, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.dev == nil || creds.ID != l.creds.ID {
		return nil, ErrNotAuthenticated
	}
	return l.dev, nil
}
