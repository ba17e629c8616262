package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"motoride/internal/domain/geo"
	"motoride/internal/domain/user"
	"motoride/internal/general/jwt"

	"github.com/gorilla/websocket"
)

// ConnectCustomer handles WebSocket connections from customers with
// first-frame JWT auth.
func (g *Gateway) ConnectCustomer(w http.ResponseWriter, r *http.Request) {
	g.serveConn(w, r, user.RoleCustomer)
}

// ConnectDriver handles WebSocket connections from drivers with first-frame
// JWT auth. Drivers additionally stream location frames that feed the
// nearby-broadcast index.
func (g *Gateway) ConnectDriver(w http.ResponseWriter, r *http.Request) {
	g.serveConn(w, r, user.RoleDriver)
}

func (g *Gateway) serveConn(w http.ResponseWriter, r *http.Request, role user.Role) {
	// 1) Upgrade HTTP -> WS
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	// Teardown order (LIFO on return):
	defer conn.Close()              // 3) close the socket last
	defer g.writeLocks.Delete(conn) // 2) forget per-connection mutex (idempotent)

	// 2) Auth deadline: first frame must arrive quickly
	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		g.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		g.sendAuthError(conn, "internal server error")
		return
	}

	// 3) First frame carries the auth message
	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			g.logger.Error(r.Context(), "ws_auth_timeout", "Client disconnected before authentication", err, nil)
		} else {
			g.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		}
		g.sendAuthError(conn, "authentication timeout: please send auth message within 5 seconds")
		return
	}
	if msgType != websocket.TextMessage {
		g.logger.Error(r.Context(), "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		g.sendAuthError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(firstFrame, g.jwtMgr, role)
	if err != nil {
		g.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		g.sendAuthError(conn, "authentication failed: invalid token")
		return
	}

	// 4) Path param must match the subject in claims
	if pathID := r.PathValue("user_id"); pathID != "" && pathID != res.Claims.Subject {
		g.logger.Error(r.Context(), "ws_auth_failed", "User ID mismatch", nil, map[string]any{
			"path_user_id":  pathID,
			"token_subject": res.Claims.Subject,
		})
		g.sendAuthError(conn, "user ID mismatch")
		return
	}
	userID := res.Claims.Subject

	// 5) Acknowledge auth before any pushes
	if err := g.sendAuthSuccess(conn, userID, role); err != nil {
		g.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	g.logger.Info(r.Context(), "ws_connected", "WebSocket session connected",
		map[string]any{"user_id": userID, "role": role.String()})

	// 6) Reset read deadline after auth
	_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	})

	// 7) Ping loop using the per-connection writer lock
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			mu := g.lockOf(conn)
			mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(ctrlTimeout))
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
			mu.Unlock()
			if err != nil {
				// Close socket to unblock reader; goroutine exits.
				_ = conn.Close()
				g.logger.Error(r.Context(), "ws_ping_failed", "Failed to send ping", err,
					map[string]any{"user_id": userID})
				return
			}
		}
	}()

	// 8) Register this connection for outbound pushes; unregister on exit
	sess := g.register(userID, role, conn)
	defer g.unregister(userID, conn)

	// 9) Read loop
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.logger.Error(r.Context(), "ws_unexpected_close", "Connection closed unexpectedly", err,
					map[string]any{"user_id": userID})
				g.writeClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				g.logger.Info(r.Context(), "ws_connection_closed", "Connection closed normally",
					map[string]any{"user_id": userID})
				g.writeClose(conn, websocket.CloseNormalClosure, "bye")
			}
			break
		}

		// Minimal envelope
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = g.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"bad json"}`))
			continue
		}

		switch msg.Type {
		case "location_update":
			if role != user.RoleDriver {
				_ = g.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"location updates are driver-only"}`))
				continue
			}
			g.handleLocationUpdate(sess, conn, msg.Data)

		case "ping":
			_ = g.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"pong"}`))

		default:
			_ = g.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"unknown message type"}`))
		}
	}
}

// locationFrame is what driver clients send as location_update data.
type locationFrame struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (g *Gateway) handleLocationUpdate(sess *session, conn *websocket.Conn, data json.RawMessage) {
	var frame locationFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		_ = g.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"bad location payload"}`))
		return
	}

	p := geo.Point{Lat: frame.Latitude, Lng: frame.Longitude}
	if err := p.Validate(); err != nil {
		_ = g.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"coordinates out of range"}`))
		return
	}

	sess.updateGeo(p, time.Now().UTC())
}

// sendAuthError sends authentication error message to client
func (g *Gateway) sendAuthError(conn *websocket.Conn, message string) error {
	msgBytes, err := json.Marshal(map[string]any{
		"type":    "auth_error",
		"error":   message,
		"success": false,
	})
	if err != nil {
		return err
	}
	return g.writeMessage(conn, websocket.TextMessage, msgBytes)
}

// sendAuthSuccess sends authentication success message to client
func (g *Gateway) sendAuthSuccess(conn *websocket.Conn, userID string, role user.Role) error {
	msgBytes, err := json.Marshal(map[string]any{
		"type":      "auth_success",
		"message":   "Authentication successful",
		"success":   true,
		"user_id":   userID,
		"role":      role.String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return g.writeMessage(conn, websocket.TextMessage, msgBytes)
}
