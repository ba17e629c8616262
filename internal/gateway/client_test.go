package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"motoride/internal/domain/geo"
	"motoride/internal/domain/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendToUser(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/internal/sessions/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	err := client.SendToUser(context.Background(), "drv-1", user.RoleDriver, "new_booking_offer", map[string]string{"booking_id": "bk-1"})
	require.NoError(t, err)

	assert.Equal(t, "drv-1", got["user_id"])
	assert.Equal(t, "DRIVER", got["role"])
	assert.Equal(t, "new_booking_offer", got["event"])
}

func TestClientSendToUserRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "user not connected"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	err := client.SendToUser(context.Background(), "drv-1", user.RoleDriver, "ping", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not connected")
}

func TestClientBroadcastToNearbyDrivers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/internal/sessions/broadcast-nearby", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "delivered": 3})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	n, err := client.BroadcastToNearbyDrivers(context.Background(), geo.Point{Lat: -6.2, Lng: 106.8}, 1, "booking_taken", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestClientUnreachableGateway(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
	err := client.SendToUser(context.Background(), "drv-1", user.RoleDriver, "ping", nil)
	assert.Error(t, err)
}
