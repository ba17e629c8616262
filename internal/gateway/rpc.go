package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"motoride/internal/domain/geo"
	"motoride/internal/domain/user"
	"motoride/internal/general/logger"
)

// Internal RPC surface. Sibling services call these over the private network;
// every response carries a success flag so callers never parse status codes.

type sendToUserRequest struct {
	UserID  string          `json:"user_id"`
	Role    string          `json:"role"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type bulkSendRequest struct {
	Messages []sendToUserRequest `json:"messages"`
}

type bulkSendResult struct {
	UserID  string `json:"user_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type broadcastRequest struct {
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	RadiusKM  float64         `json:"radius_km"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}

// RPCHandler exposes the hub to sibling services.
type RPCHandler struct {
	hub    *Gateway
	logger *logger.Logger
}

// NewRPCHandler wires the internal RPC endpoints around the hub.
func NewRPCHandler(hub *Gateway, log *logger.Logger) *RPCHandler {
	return &RPCHandler{hub: hub, logger: log}
}

// RegisterRoutes mounts the RPC and WS endpoints on the provided mux.
func (h *RPCHandler) RegisterRoutes(mux *http.ServeMux) {
	// WebSocket endpoints authenticate with a first-frame token themselves
	mux.HandleFunc("GET /ws/customer/{user_id}", h.hub.ConnectCustomer)
	mux.HandleFunc("GET /ws/driver/{user_id}", h.hub.ConnectDriver)

	mux.HandleFunc("POST /internal/sessions/send", h.handleSendToUser)
	mux.HandleFunc("POST /internal/sessions/send-bulk", h.handleSendBulk)
	mux.HandleFunc("POST /internal/sessions/broadcast-nearby", h.handleBroadcastNearby)
	mux.HandleFunc("GET /internal/sessions/stats", h.handleStats)
}

// POST /internal/sessions/send
func (h *RPCHandler) handleSendToUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req sendToUserRequest
	if err := decodeStrict(w, r, &req); err != nil {
		h.writeEnvelope(ctx, w, http.StatusBadRequest, map[string]any{
			"success": false, "error": err.Error(),
		})
		return
	}

	role, err := user.ParseRole(req.Role)
	if err != nil {
		h.writeEnvelope(ctx, w, http.StatusBadRequest, map[string]any{
			"success": false, "error": "role must be CUSTOMER or DRIVER",
		})
		return
	}

	if err := h.hub.SendToUser(ctx, req.UserID, role, req.Event, req.Payload); err != nil {
		// Not connected is an expected outcome, not a 5xx.
		h.writeEnvelope(ctx, w, http.StatusOK, map[string]any{
			"success": false, "error": err.Error(),
		})
		return
	}

	h.writeEnvelope(ctx, w, http.StatusOK, map[string]any{"success": true})
}

// POST /internal/sessions/send-bulk
func (h *RPCHandler) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req bulkSendRequest
	if err := decodeStrict(w, r, &req); err != nil {
		h.writeEnvelope(ctx, w, http.StatusBadRequest, map[string]any{
			"success": false, "error": err.Error(),
		})
		return
	}

	results := make([]bulkSendResult, 0, len(req.Messages))
	delivered := 0
	for _, m := range req.Messages {
		role, err := user.ParseRole(m.Role)
		if err == nil {
			err = h.hub.SendToUser(ctx, m.UserID, role, m.Event, m.Payload)
		}
		res := bulkSendResult{UserID: m.UserID, Success: err == nil}
		if err != nil {
			res.Error = err.Error()
		} else {
			delivered++
		}
		results = append(results, res)
	}

	h.writeEnvelope(ctx, w, http.StatusOK, map[string]any{
		"success":   true,
		"delivered": delivered,
		"results":   results,
	})
}

// POST /internal/sessions/broadcast-nearby
func (h *RPCHandler) handleBroadcastNearby(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req broadcastRequest
	if err := decodeStrict(w, r, &req); err != nil {
		h.writeEnvelope(ctx, w, http.StatusBadRequest, map[string]any{
			"success": false, "error": err.Error(),
		})
		return
	}

	center := geo.Point{Lat: req.Latitude, Lng: req.Longitude}
	if err := center.Validate(); err != nil {
		h.writeEnvelope(ctx, w, http.StatusBadRequest, map[string]any{
			"success": false, "error": err.Error(),
		})
		return
	}
	if req.RadiusKM <= 0 {
		h.writeEnvelope(ctx, w, http.StatusBadRequest, map[string]any{
			"success": false, "error": "radius_km must be positive",
		})
		return
	}

	delivered, err := h.hub.BroadcastToNearbyDrivers(ctx, center, req.RadiusKM, req.Event, req.Payload)
	if err != nil {
		h.writeEnvelope(ctx, w, http.StatusInternalServerError, map[string]any{
			"success": false, "error": err.Error(),
		})
		return
	}

	h.writeEnvelope(ctx, w, http.StatusOK, map[string]any{
		"success":   true,
		"delivered": delivered,
	})
}

// GET /internal/sessions/stats
func (h *RPCHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	st := h.hub.ConnectionStats()
	h.writeEnvelope(r.Context(), w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   st,
	})
}

func (h *RPCHandler) writeEnvelope(ctx context.Context, w http.ResponseWriter, status int, body any) {
	buf, err := json.Marshal(body)
	if err != nil {
		h.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
		http.Error(w, `{"success":false,"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// decodeStrict enforces JSON content type, bounds the body, and rejects
// unknown fields.
func decodeStrict(w http.ResponseWriter, r *http.Request, dst any) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return errors.New("Content-Type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return errors.New("request body too large")
		}
		return errors.New("invalid JSON: " + err.Error())
	}
	return nil
}
