package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"motoride/internal/domain/geo"
	"motoride/internal/domain/user"
	"motoride/internal/ports"
)

// Client is the HTTP side of the session RPC surface, used by services that
// run in a different process than the hub.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a session gateway client against the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

var _ ports.SessionPusher = (*Client)(nil)

type rpcEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Delivered int    `json:"delivered,omitempty"`
}

// SendToUser pushes one event through the hub. A disconnected user surfaces
// as an error with success=false in the envelope.
func (c *Client) SendToUser(ctx context.Context, userID string, role user.Role, event string, payload any) error {
	env, err := c.post(ctx, "/internal/sessions/send", map[string]any{
		"user_id": userID,
		"role":    role.String(),
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("session push rejected: %s", env.Error)
	}
	return nil
}

// BroadcastToNearbyDrivers fans an event out to drivers near center.
func (c *Client) BroadcastToNearbyDrivers(ctx context.Context, center geo.Point, radiusKm float64, event string, payload any) (int, error) {
	env, err := c.post(ctx, "/internal/sessions/broadcast-nearby", map[string]any{
		"latitude":  center.Lat,
		"longitude": center.Lng,
		"radius_km": radiusKm,
		"event":     event,
		"payload":   payload,
	})
	if err != nil {
		return 0, err
	}
	if !env.Success {
		return 0, fmt.Errorf("session broadcast rejected: %s", env.Error)
	}
	return env.Delivered, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*rpcEnvelope, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	var env rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode session gateway response: %w", err)
	}
	return &env, nil
}
