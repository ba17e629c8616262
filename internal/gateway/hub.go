package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"motoride/internal/domain/geo"
	"motoride/internal/domain/user"
	"motoride/internal/general/jwt"
	"motoride/internal/general/logger"
	"motoride/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	readIdleTimeout  = 60 * time.Second
	pingInterval     = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// session holds every live connection of one user. A user may connect from
// several devices; pushes go to all of them.
type session struct {
	userID string
	role   user.Role

	mu      sync.RWMutex
	conns   map[*websocket.Conn]struct{}
	lastGeo *geo.Point // drivers only; nil until first location frame
	geoAt   time.Time
}

func (s *session) addConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

// removeConn drops one connection and reports whether the session is empty.
func (s *session) removeConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
	return len(s.conns) == 0
}

func (s *session) snapshotConns() []*websocket.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *session) updateGeo(p geo.Point, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastGeo = &p
	s.geoAt = at
}

func (s *session) knownGeo() (geo.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastGeo == nil {
		return geo.Point{}, false
	}
	return *s.lastGeo, true
}

// Gateway is the WebSocket session hub. It authenticates connections with a
// first-frame JWT, tracks one session per user, and pushes server events.
type Gateway struct {
	logger *logger.Logger
	jwtMgr *jwt.Manager

	mu       sync.RWMutex
	sessions map[string]*session // userID -> session

	writeLocks sync.Map // *websocket.Conn -> *sync.Mutex
}

// NewGateway creates the session hub.
func NewGateway(log *logger.Logger, jwtMgr *jwt.Manager) *Gateway {
	return &Gateway{
		logger:   log,
		jwtMgr:   jwtMgr,
		sessions: make(map[string]*session),
	}
}

var _ ports.SessionPusher = (*Gateway)(nil)

// register attaches a connection to the user's session, creating it on first
// connect.
func (g *Gateway) register(userID string, role user.Role, conn *websocket.Conn) *session {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[userID]
	if !ok {
		s = &session{
			userID: userID,
			role:   role,
			conns:  make(map[*websocket.Conn]struct{}),
		}
		g.sessions[userID] = s
	}
	s.addConn(conn)
	return s
}

// unregister detaches a connection; the session itself is removed once its
// last connection is gone.
func (g *Gateway) unregister(userID string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[userID]
	if !ok {
		return
	}
	if s.removeConn(conn) {
		delete(g.sessions, userID)
	}
}

func (g *Gateway) sessionOf(userID string) (*session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[userID]
	return s, ok
}

// IsConnected reports whether the user has at least one live connection.
func (g *Gateway) IsConnected(userID string) bool {
	_, ok := g.sessionOf(userID)
	return ok
}

// SendToUser pushes one event to every connection of the user. It fails only
// when the user has no session at all; a partial delivery still counts.
func (g *Gateway) SendToUser(ctx context.Context, userID string, role user.Role, event string, payload any) error {
	s, ok := g.sessionOf(userID)
	if !ok || s.role != role {
		return fmt.Errorf("user %s not connected", userID)
	}

	frame, err := json.Marshal(map[string]any{
		"type":      event,
		"data":      payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	delivered := 0
	for _, conn := range s.snapshotConns() {
		if err := g.writeMessage(conn, websocket.TextMessage, frame); err != nil {
			g.logger.Error(ctx, "ws_push_failed", "Failed to push event to connection", err,
				map[string]any{"user_id": userID, "event": event})
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("user %s: no connection accepted the push", userID)
	}
	return nil
}

// BroadcastToNearbyDrivers pushes an event to every connected driver whose
// last reported location is within radiusKm of center. Drivers with no known
// location are skipped.
func (g *Gateway) BroadcastToNearbyDrivers(ctx context.Context, center geo.Point, radiusKm float64, event string, payload any) (int, error) {
	frame, err := json.Marshal(map[string]any{
		"type":      event,
		"data":      payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return 0, err
	}

	g.mu.RLock()
	targets := make([]*session, 0, len(g.sessions))
	for _, s := range g.sessions {
		if s.role == user.RoleDriver {
			targets = append(targets, s)
		}
	}
	g.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		loc, known := s.knownGeo()
		if !known || !geo.WithinRadius(center, loc, radiusKm) {
			continue
		}
		for _, conn := range s.snapshotConns() {
			if err := g.writeMessage(conn, websocket.TextMessage, frame); err != nil {
				g.logger.Error(ctx, "ws_broadcast_failed", "Failed to push broadcast to driver", err,
					map[string]any{"driver_id": s.userID, "event": event})
				continue
			}
			delivered++
		}
	}
	return delivered, nil
}

// Stats describes the current hub population.
type Stats struct {
	Customers   int `json:"customers"`
	Drivers     int `json:"drivers"`
	Connections int `json:"connections"`
}

// ConnectionStats counts sessions per role and total open connections.
func (g *Gateway) ConnectionStats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var st Stats
	for _, s := range g.sessions {
		s.mu.RLock()
		n := len(s.conns)
		s.mu.RUnlock()
		st.Connections += n
		switch s.role {
		case user.RoleDriver:
			st.Drivers++
		case user.RoleCustomer:
			st.Customers++
		}
	}
	return st
}

// writeMessage serializes writes per connection; gorilla conns allow one
// concurrent writer only.
func (g *Gateway) writeMessage(conn *websocket.Conn, mt int, payload []byte) error {
	mu := g.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(mt, payload)
}

func (g *Gateway) writeClose(conn *websocket.Conn, code int, reason string) {
	mu := g.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
	g.writeLocks.Delete(conn)
}

// lockOf returns the mutex for a specific connection
func (g *Gateway) lockOf(conn *websocket.Conn) *sync.Mutex {
	if v, ok := g.writeLocks.Load(conn); ok {
		if mu, ok := v.(*sync.Mutex); ok && mu != nil {
			return mu
		}
	}
	mu := &sync.Mutex{}
	actual, _ := g.writeLocks.LoadOrStore(conn, mu)
	return actual.(*sync.Mutex)
}
