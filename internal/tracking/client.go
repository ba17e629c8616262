package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"motoride/internal/general/logger"
	"motoride/internal/ports"
)

// Client talks to the external trip tracking service over HTTP. Every call
// carries a hard deadline so a slow tracking service can never stall a
// booking decision.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *logger.Logger
}

// NewClient builds a tracking client against the given base URL.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		logger:  log,
	}
}

var _ ports.TrackingClient = (*Client)(nil)

type activeTripResponse struct {
	DriverID  string `json:"driver_id"`
	HasActive bool   `json:"has_active_trip"`
}

// HasActiveTrip asks whether the driver is currently on a trip. The context
// deadline is capped at the configured timeout regardless of the caller's.
func (c *Client) HasActiveTrip(ctx context.Context, driverID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/internal/drivers/%s/active-trip", c.baseURL, url.PathEscape(driverID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("tracking request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		// unknown driver means no trip
		return false, nil
	default:
		return false, fmt.Errorf("tracking returned status %d", resp.StatusCode)
	}

	var body activeTripResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode tracking response: %w", err)
	}
	return body.HasActive, nil
}
