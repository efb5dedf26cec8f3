package device

import (
	"context"
	"errors"
	"fmt"
)

type Driver string

const (
	DriverKasa   Driver = "kasa"
	DriverElgato Driver = "elgato"
	DriverHue    Driver = "hue"
	DriverLIFX   Driver = "lifx"
)

// Credentials is the opaque session handle returned by Authenticate and
// required by every subsequent call. ID changes on every authentication so a
// stale handle from a replaced session is rejected instead of silently reused.
type Credentials struct {
	ID    string
	Token string
}

// Info is the device snapshot taken right after authentication.
type Info struct {
	Model    string
	Nickname string
	IsOn     bool
}

// Link is a single smart switch reachable over the local network.
// Network failures pass through unwrapped so callers can classify them;
// non-network failures are reported as ErrAuth or ErrProtocol.
type Link interface {
	Authenticate(ctx context.Context, addr, username, password string) (Credentials, error)
	GetInfo(ctx context.Context, creds Credentials) (Info, error)
	SetPower(ctx context.Context, creds Credentials, on bool) error
	Close() error
}

var (
	ErrAuth             = errors.New("device rejected credentials")
	ErrProtocol         = errors.New("unexpected device response")
	ErrNotAuthenticated = errors.New("no authenticated session")
)

// New returns the Link implementation for the configured driver.
func New(driver Driver) (Link, error) {
	switch driver {
	case DriverKasa:
		return NewKasaLink(), nil
	case DriverElgato:
		return NewElgatoLink(), nil
	case DriverHue:
		return NewHueLink(), nil
	case DriverLIFX:
		return NewLIFXLink(), nil
	default:
		return nil, fmt.Errorf("unknown device driver %q", driver)
	}
}
