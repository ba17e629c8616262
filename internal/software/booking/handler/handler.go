package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/user"
	"motoride/internal/general/jwt"
	"motoride/internal/general/logger"
	"motoride/internal/ports"
)

// BookingHTTPHandler adapts HTTP requests to the BookingService.
type BookingHTTPHandler struct {
	svc    ports.BookingService
	logger *logger.Logger
	auth   *jwt.Manager
}

// NewBookingHTTPHandler wires an HTTP handler around the BookingService.
func NewBookingHTTPHandler(svc ports.BookingService, log *logger.Logger, auth *jwt.Manager) *BookingHTTPHandler {
	return &BookingHTTPHandler{svc: svc, logger: log, auth: auth}
}

// RegisterRoutes mounts booking endpoints on the provided mux.
func (handler *BookingHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /bookings",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer)(handler.handleCreateBooking),
	)
	mux.HandleFunc("GET /bookings",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleDriver)(handler.handleListBookings),
	)
	mux.HandleFunc("GET /bookings/{booking_id}",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleDriver)(handler.handleGetBooking),
	)
	mux.HandleFunc("PUT /bookings/{booking_id}/accept",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleAcceptBooking),
	)
	mux.HandleFunc("PUT /bookings/{booking_id}/reject",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleRejectBooking),
	)
	mux.HandleFunc("PUT /bookings/{booking_id}/cancel",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleDriver)(handler.handleCancelBooking),
	)
	mux.HandleFunc("PUT /bookings/{booking_id}/status",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleDriver)(handler.handleUpdateStatus),
	)
	mux.HandleFunc("DELETE /bookings/{booking_id}",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer)(handler.handleDeleteBooking),
	)

	// Internal surface for sibling services; no end-user tokens here.
	mux.HandleFunc("POST /internal/drivers/availability", handler.handleDriversAvailability)
	mux.HandleFunc("GET /internal/drivers/{driver_id}/active-booking", handler.handleHasActiveBooking)

	mux.HandleFunc("GET /bookings/health", handler.handleHealth)
	mux.HandleFunc("POST /tokens", handler.handleCreateToken)
}

// ----- general helpers -----

// TokenRequest asks for a signed test token.
type TokenRequest struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

// TokenResponse represents the response for token generation
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

func (handler *BookingHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	tokenString, claims, err := handler.auth.IssueUserToken(req.UserID, req.Role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "Failed to generate token", err)
		return
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": req.Role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
		Role:      req.Role,
	})
}

func (handler *BookingHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "booking-service",
	})
}

func (handler *BookingHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *BookingHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusUnsupportedMediaType {
		action = "unsupported_media_type"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// serviceError maps a service-layer error onto the right status code.
func (handler *BookingHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status >= 500 {
		msg = "internal error"
	}
	handler.httpError(ctx, w, status, msg, err)
}

// requireSubject resolves the authenticated user id or writes a 401.
func (handler *BookingHTTPHandler) requireSubject(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	claims := jwt.RequireClaims(r)
	if claims == nil || strings.TrimSpace(claims.Subject) == "" {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return "", false
	}
	return strings.TrimSpace(claims.Subject), true
}

// decodeStrict enforces JSON content type, bounds the body, and rejects
// unknown fields.
func (handler *BookingHTTPHandler) decodeStrict(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return false
	}
	return true
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *BookingHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
