package power

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"switchtray/internal/device"
)

func TestIsTransientNetworkErrors(t *testing.T) {
	cases := []error{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.ETIMEDOUT,
		context.Canceled,
		context.DeadlineExceeded,
		io.EOF,
		io.ErrUnexpectedEOF,
		net.ErrClosed,
		&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route to host")},
	}
	for _, err := range cases {
		assert.True(t, IsTransient(err), "%v", err)
	}
}

func TestIsTransientRecursesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("set power: %w",
		fmt.Errorf("round trip: %w",
			fmt.Errorf("dial 10.0.0.5:9999: %w", syscall.ECONNREFUSED)))
	assert.True(t, IsTransient(err))
}

func TestIsTransientJoinedErrors(t *testing.T) {
	err := errors.Join(
		errors.New("device busy"),
		fmt.Errorf("read: %w", syscall.ECONNRESET),
	)
	assert.True(t, IsTransient(err))
}

func TestIsTransientFatalErrors(t *testing.T) {
	cases := []error{
		nil,
		errors.New("malformed reply"),
		device.ErrAuth,
		device.ErrProtocol,
		fmt.Errorf("authenticate: %w", device.ErrAuth),
	}
	for _, err := range cases {
		assert.False(t, IsTransient(err), "%v", err)
	}
}

func TestIsTransientBoundedDepth(t *testing.T) {
	err := error(syscall.ECONNREFUSED)
	for i := 0; i < maxCauseDepth*2; i++ {
		err = &opaqueWrap{err}
	}
	// The transient leaf sits deeper than the walk goes; classification must
	// terminate and fall back to fatal rather than loop.
	assert.False(t, IsTransient(err))
}

// opaqueWrap hides its cause from errors.Is/As, exposing it only via Unwrap.
type opaqueWrap struct{ cause error }

func (o *opaqueWrap) Error() string { return "wrapped" }
func (o *opaqueWrap) Unwrap() error { return o.cause }
