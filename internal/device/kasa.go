package device

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const kasaPort = "9999"

// KasaLink speaks the TP-Link Kasa local protocol: JSON commands over TCP
// port 9999, obfuscated with an XOR autokey and framed with a 4-byte
// big-endian length prefix. Each command opens a fresh connection; the plugs
// drop idle sockets quickly, so holding one open buys nothing.
type KasaLink struct {
	mu    sync.RWMutex
	creds Credentials
	addr  string
}

func NewKasaLink() *KasaLink {
	return &KasaLink{}
}

func (k *KasaLink) Authenticate(ctx context.Context, addr, username, password string) (Credentials, error) {
	hostPort := addr
	if !strings.Contains(addr, ":") {
		hostPort = net.JoinHostPort(addr, kasaPort)
	}

	// The local protocol has no credential exchange; reaching the plug and
	// getting a well-formed sysinfo reply is the whole handshake.
	if _, err := kasaRoundTrip(ctx, hostPort, `{"system":{"get_sysinfo":{}}}`); err != nil {
		return Credentials{}, err
	}

	creds := Credentials{ID: uuid.New().String()}
	k.mu.Lock()
	k.creds = creds
	k.addr = hostPort
	k.mu.Unlock()

	log.Printf("[kasa] Authenticated to %s", hostPort)
	return creds, nil
}

func (k *KasaLink) GetInfo(ctx context.Context, creds Credentials) (Info, error) {
	addr, err := k.session(creds)
	if err != nil {
		return Info{}, err
	}

	raw, err := kasaRoundTrip(ctx, addr, `{"system":{"get_sysinfo":{}}}`)
	if err != nil {
		return Info{}, err
	}

	var reply struct {
		System struct {
			Sysinfo struct {
				Alias      string `json:"alias"`
				Model      string `json:"model"`
				RelayState int    `json:"relay_state"`
				ErrCode    int    `json:"err_code"`
			} `json:"get_sysinfo"`
		} `json:"system"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	si := reply.System.Sysinfo
	if si.ErrCode != 0 {
		return Info{}, fmt.Errorf("%w: err_code %d", ErrProtocol, si.ErrCode)
	}

	return Info{
		Model:    si.Model,
		Nickname: si.Alias,
		IsOn:     si.RelayState == 1,
	}, nil
}

func (k *KasaLink) SetPower(ctx context.Context, creds Credentials, on bool) error {
	addr, err := k.session(creds)
	if err != nil {
		return err
	}

	state := 0
	if on {
		state = 1
	}
	raw, err := kasaRoundTrip(ctx, addr, fmt.Sprintf(`{"system":{"set_relay_state":{"state":%d}}}`, state))
	if err != nil {
		return err
	}

	var reply struct {
		System struct {
			SetRelayState struct {
				ErrCode int `json:"err_code"`
			} `json:"set_relay_state"`
		} `json:"system"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if code := reply.System.SetRelayState.ErrCode; code != 0 {
		return fmt.Errorf("%w: err_code %d", ErrProtocol, code)
	}

	log.Printf("[kasa] Relay set to %v on %s", on, addr)
	return nil
}

func (k *KasaLink) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.creds = Credentials{}
	k.addr = ""
	return nil
}

func (k *KasaLink) session(creds Credentials) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.creds.ID == "" || creds.ID != k.creds.ID {
		return "", ErrNotAuthenticated
	}
	return k.addr, nil
}

func kasaRoundTrip(ctx context.Context, addr, cmd string) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	payload := kasaScramble([]byte(cmd))
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	if _, err := conn.Write(frame); err != nil {
		return nil, err
	}

	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n == 0 || n > 1<<20 {
		return nil, fmt.Errorf("%w: reply length %d", ErrProtocol, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, err
	}
	return kasaUnscramble(body), nil
}

// kasaScramble applies the Kasa XOR autokey: each output byte is the input
// XORed with the previous output byte, seeded with 171.
func kasaScramble(in []byte) []byte {
	out := make([]byte, len(in))
	key := byte(171)
	for i, b := range in {
		key ^= b
		out[i] = key
	}
	return out
}

func kasaUnscramble(in []byte) []byte {
	out := make([]byte, len(in))
	key := byte(171)
	for i, b := range in {
		out[i] = key ^ b
		key = b
	}
	return out
}
