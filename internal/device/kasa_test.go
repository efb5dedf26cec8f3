package device

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlug is a minimal TCP server speaking the framed Kasa protocol. Each
// handler maps a decoded request substring to a canned reply.
type fakePlug struct {
	ln      net.Listener
	replies map[string]string
}

func newFakePlug(t *testing.T, replies map[string]string) *fakePlug {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	p := &fakePlug{ln: ln, replies: replies}
	go p.serve()
	return p
}

func (p *fakePlug) addr() string { return p.ln.Addr().String() }

func (p *fakePlug) serve() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		go p.handle(conn)
	}
}

func (p *fakePlug) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return
	}
	body := make([]byte, binary.BigEndian.Uint32(header[:]))
	if _, err := io.ReadFull(conn, body); err != nil {
		return
	}
	req := string(kasaUnscramble(body))

	for sub, reply := range p.replies {
		if strings.Contains(req, sub) {
			payload := kasaScramble([]byte(reply))
			frame := make([]byte, 4+len(payload))
			binary.BigEndian.PutUint32(frame, uint32(len(payload)))
			copy(frame[4:], payload)
			conn.Write(frame)
			return
		}
	}
}

const sysinfoOn = `{"system":{"get_sysinfo":{"alias":"Desk Lamp","model":"HS110(EU)","relay_state":1,"err_code":0}}}`

func TestKasaAuthenticateAndGetInfo(t *testing.T) {
	plug := newFakePlug(t, map[string]string{"get_sysinfo": sysinfoOn})

	k := NewKasaLink()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	creds, err := k.Authenticate(ctx, plug.addr(), "admin", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, creds.ID)

	info, err := k.GetInfo(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, "HS110(EU)", info.Model)
	assert.Equal(t, "Desk Lamp", info.Nickname)
	assert.True(t, info.IsOn)
}

func TestKasaSetPower(t *testing.T) {
	plug := newFakePlug(t, map[string]string{
		"get_sysinfo":     sysinfoOn,
		"set_relay_state": `{"system":{"set_relay_state":{"err_code":0}}}`,
	})

	k := NewKasaLink()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	creds, err := k.Authenticate(ctx, plug.addr(), "admin", "secret")
	require.NoError(t, err)
	require.NoError(t, k.SetPower(ctx, creds, false))
}

func TestKasaDeviceErrCodeIsProtocolError(t *testing.T) {
	plug := newFakePlug(t, map[string]string{
		"get_sysinfo":     sysinfoOn,
		"set_relay_state": `{"system":{"set_relay_state":{"err_code":-3}}}`,
	})

	k := NewKasaLink()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	creds, err := k.Authenticate(ctx, plug.addr(), "admin", "secret")
	require.NoError(t, err)

	err = k.SetPower(ctx, creds, true)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestKasaStaleCredentialsRejected(t *testing.T) {
	plug := newFakePlug(t, map[string]string{"get_sysinfo": sysinfoOn})

	k := NewKasaLink()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	old, err := k.Authenticate(ctx, plug.addr(), "admin", "secret")
	require.NoError(t, err)
	_, err = k.Authenticate(ctx, plug.addr(), "admin", "secret")
	require.NoError(t, err)

	_, err = k.GetInfo(ctx, old)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	err = k.SetPower(ctx, Credentials{ID: "never-issued"}, true)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestKasaUnreachablePlug(t *testing.T) {
	k := NewKasaLink()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// Reserved TEST-NET address, nothing listens there.
	_, err := k.Authenticate(ctx, "192.0.2.1:9999", "admin", "secret")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProtocol))
}

func TestKasaScrambleRoundTrip(t *testing.T) {
	msg := []byte(`{"system":{"get_sysinfo":{}}}`)
	assert.Equal(t, msg, kasaUnscramble(kasaScramble(msg)))
	// Known first byte: 171 ^ '{' (0x7b) = 0xd0.
	assert.Equal(t, byte(0xd0), kasaScramble(msg)[0])
}
