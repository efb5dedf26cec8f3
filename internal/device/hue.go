package device

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	openhue "github.com/openhue/openhue-go"
)

// HueLink drives a single light or smart plug behind a Hue bridge. The
// username is the hue-application-key issued when the bridge was paired; the
// controlled device is the first light resource the bridge reports.
type HueLink struct {
	mu      sync.RWMutex
	creds   Credentials
	client  *openhue.ClientWithResponses
	lightID string
}

func NewHueLink() *HueLink {
	return &HueLink{}
}

func (h *HueLink) Authenticate(ctx context.Context, addr, username, password string) (Credentials, error) {
	// Bridges serve HTTPS with a self-signed certificate.
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	client, err := openhue.NewClientWithResponses(
		fmt.Sprintf("https://%s", addr),
		openhue.WithHTTPClient(httpClient),
		openhue.WithRequestEditorFn(func(ctx context.Context, req *http.Request) error {
			req.Header.Set("hue-application-key", username)
			return nil
		}),
	)
	if err != nil {
		return Credentials{}, fmt.Errorf("hue client for %s: %w", addr, err)
	}

	resp, err := client.GetLightsWithResponse(ctx)
	if err != nil {
		return Credentials{}, err
	}
	if resp.HTTPResponse != nil {
		switch resp.HTTPResponse.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return Credentials{}, fmt.Errorf("%w: bridge returned HTTP %d", ErrAuth, resp.HTTPResponse.StatusCode)
		}
	}
	if resp.JSON200 == nil || resp.JSON200.Data == nil || len(*resp.JSON200.Data) == 0 {
		return Credentials{}, fmt.Errorf("%w: bridge reported no lights", ErrProtocol)
	}

	first := (*resp.JSON200.Data)[0]
	if first.Id == nil {
		return Credentials{}, fmt.Errorf("%w: light without id", ErrProtocol)
	}

	creds := Credentials{ID: uuid.New().String(), Token: username}
	h.mu.Lock()
	h.creds = creds
	h.client = client
	h.lightID = *first.Id
	h.mu.Unlock()

	log.Printf("[hue] Connected to bridge %s, controlling light %s", addr, *first.Id)
	return creds, nil
}

func (h *HueLink) GetInfo(ctx context.Context, creds Credentials) (Info, error) {
	client, lightID, err := h.session(creds)
	if err != nil {
		return Info{}, err
	}

	resp, err := client.GetLightWithResponse(ctx, lightID)
	if err != nil {
		return Info{}, err
	}
	if resp.JSON200 == nil || resp.JSON200.Data == nil || len(*resp.JSON200.Data) == 0 {
		return Info{}, fmt.Errorf("%w: no data for light %s", ErrProtocol, lightID)
	}

	l := (*resp.JSON200.Data)[0]
	info := Info{Model: "Hue"}
	if l.Metadata != nil && l.Metadata.Name != nil {
		info.Nickname = *l.Metadata.Name
	}
	if l.On != nil && l.On.On != nil {
		info.IsOn = *l.On.On
	}
	return info, nil
}

func (h *HueLink) SetPower(ctx context.Context, creds Credentials, on bool) error {
	client, lightID, err := h.session(creds)
	if err != nil {
		return err
	}

	body := openhue.UpdateLightJSONRequestBody{
		On: &openhue.On{On: &on},
	}
	resp, err := client.UpdateLightWithResponse(ctx, lightID, body)
	if err != nil {
		return err
	}
	if resp.HTTPResponse != nil && resp.HTTPResponse.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: bridge returned HTTP %d", ErrProtocol, resp.HTTPResponse.StatusCode)
	}
	return nil
}

func (h *HueLink) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.creds = Credentials{}
	h.client = nil
	h.lightID = ""
	return nil
}

func (h *HueLink) session(creds Credentials) (*openhue.ClientWithResponses, string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.client == nil || creds.ID != h.creds.ID {
		return nil, "", ErrNotAuthenticated
	}
	return h.client, h.lightID, nil
}
