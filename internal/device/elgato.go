package device

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mdlayher/keylight"
)

// ElgatoLink drives an Elgato Key Light over its local HTTP API on port 9123.
// The API is unauthenticated; credentials are accepted but unused.
type ElgatoLink struct {
	mu     sync.RWMutex
	creds  Credentials
	client *keylight.Client
}

func NewElgatoLink() *ElgatoLink {
	return &ElgatoLink{}
}

func (e *ElgatoLink) Authenticate(ctx context.Context, addr, username, password string) (Credentials, error) {
	fullAddr := addr
	if !strings.HasPrefix(addr, "http") {
		fullAddr = fmt.Sprintf("http://%s:9123", addr)
	}

	client, err := keylight.NewClient(fullAddr, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("elgato client for %s: %w", fullAddr, err)
	}
	if _, err := client.AccessoryInfo(ctx); err != nil {
		return Credentials{}, err
	}

	creds := Credentials{ID: uuid.New().String()}
	e.mu.Lock()
	e.creds = creds
	e.client = client
	e.mu.Unlock()

	log.Printf("[elgato] Connected to %s", fullAddr)
	return creds, nil
}

func (e *ElgatoLink) GetInfo(ctx context.Context, creds Credentials) (Info, error) {
	client, err := e.session(creds)
	if err != nil {
		return Info{}, err
	}

	accessory, err := client.AccessoryInfo(ctx)
	if err != nil {
		return Info{}, err
	}
	lights, err := client.Lights(ctx)
	if err != nil {
		return Info{}, err
	}
	if len(lights) == 0 {
		return Info{}, fmt.Errorf("%w: no lights reported", ErrProtocol)
	}

	return Info{
		Model:    accessory.ProductName,
		Nickname: accessory.DisplayName,
		IsOn:     lights[0].On,
	}, nil
}

func (e *ElgatoLink) SetPower(ctx context.Context, creds Credentials, on bool) error {
	client, err := e.session(creds)
	if err != nil {
		return err
	}

	lights, err := client.Lights(ctx)
	if err != nil {
		return err
	}
	if len(lights) == 0 {
		return fmt.Errorf("%w: no lights reported", ErrProtocol)
	}

	lights[0].On = on
	return client.SetLights(ctx, lights)
}

func (e *ElgatoLink) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.creds = Credentials{}
	e.client = nil
	return nil
}

func (e *ElgatoLink) session(creds Credentials) (*keylight.Client, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.client == nil || creds.ID != e.creds.ID {
		return nil, ErrNotAuthenticated
	}
	return e.client, nil
}
