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
	"motoride/internal/general/logger"
	"motoride/internal/ports"
)

// MatchingHTTPHandler exposes the matching engine's internal RPC surface.
// Every response carries a success flag; sibling services never parse status
// codes.
type MatchingHTTPHandler struct {
	svc    ports.MatchingService
	logger *logger.Logger
}

// NewMatchingHTTPHandler wires an HTTP handler around the MatchingService.
func NewMatchingHTTPHandler(svc ports.MatchingService, log *logger.Logger) *MatchingHTTPHandler {
	return &MatchingHTTPHandler{svc: svc, logger: log}
}

// RegisterRoutes mounts matching endpoints on the provided mux.
func (handler *MatchingHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /internal/matching/find-drivers", handler.handleFindDrivers)
	mux.HandleFunc("POST /internal/matching/bookings/{booking_id}/rematch", handler.handleReMatch)
	mux.HandleFunc("POST /internal/matching/bookings/{booking_id}/match", handler.handleMatchDriver)
	mux.HandleFunc("POST /internal/matching/bookings/{booking_id}/rejected-drivers", handler.handleAddRejected)
	mux.HandleFunc("GET /internal/matching/drivers/{driver_id}/availability", handler.handleCheckAvailability)
	mux.HandleFunc("GET /matching/health", handler.handleHealth)
}

func (handler *MatchingHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.envelope(r.Context(), w, http.StatusOK, map[string]any{
		"success": true,
		"service": "matching-service",
	})
}

// ----- Handler: POST /internal/matching/find-drivers -----

func (handler *MatchingHTTPHandler) handleFindDrivers(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req ports.FindDriversRequest
	if err := handler.decodeStrict(w, r, &req); err != nil {
		handler.failure(ctx, w, http.StatusBadRequest, err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	candidates, err := handler.svc.FindDrivers(ctxWithTimeout, req)
	if err != nil {
		handler.failure(ctxWithTimeout, w, apperr.HTTPStatus(err), err)
		return
	}

	handler.envelope(ctxWithTimeout, w, http.StatusOK, map[string]any{
		"success": true,
		"drivers": candidates,
		"count":   len(candidates),
	})
}

// ----- Handler: POST /internal/matching/bookings/{booking_id}/rematch -----

func (handler *MatchingHTTPHandler) handleReMatch(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.failure(ctx, w, http.StatusBadRequest, errors.New("booking_id is required"))
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	var req ports.FindDriversRequest
	if err := handler.decodeStrict(w, r, &req); err != nil {
		handler.failure(ctx, w, http.StatusBadRequest, err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	candidates, err := handler.svc.FindDriversForReMatch(ctxWithTimeout, bookingID, req)
	if err != nil {
		handler.failure(ctxWithTimeout, w, apperr.HTTPStatus(err), err)
		return
	}

	handler.envelope(ctxWithTimeout, w, http.StatusOK, map[string]any{
		"success": true,
		"drivers": candidates,
		"count":   len(candidates),
	})
}

// --- Request DTO (HTTP boundary) ---

type matchDriverRequest struct {
	DriverID string `json:"driver_id"`
}

// ----- Handler: POST /internal/matching/bookings/{booking_id}/match -----

func (handler *MatchingHTTPHandler) handleMatchDriver(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.failure(ctx, w, http.StatusBadRequest, errors.New("booking_id is required"))
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	var req matchDriverRequest
	if err := handler.decodeStrict(w, r, &req); err != nil {
		handler.failure(ctx, w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.DriverID) == "" {
		handler.failure(ctx, w, http.StatusBadRequest, errors.New("driver_id is required"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cand, err := handler.svc.MatchDriverToBooking(ctxWithTimeout, bookingID, req.DriverID)
	if err != nil {
		handler.failure(ctxWithTimeout, w, apperr.HTTPStatus(err), err)
		return
	}

	handler.envelope(ctxWithTimeout, w, http.StatusOK, map[string]any{
		"success": true,
		"driver":  cand,
	})
}

type addRejectedRequest struct {
	DriverID string `json:"driver_id"`
}

// ----- Handler: POST /internal/matching/bookings/{booking_id}/rejected-drivers -----

func (handler *MatchingHTTPHandler) handleAddRejected(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.failure(ctx, w, http.StatusBadRequest, errors.New("booking_id is required"))
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	var req addRejectedRequest
	if err := handler.decodeStrict(w, r, &req); err != nil {
		handler.failure(ctx, w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.DriverID) == "" {
		handler.failure(ctx, w, http.StatusBadRequest, errors.New("driver_id is required"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := handler.svc.AddBookingRejectedDriver(ctxWithTimeout, bookingID, req.DriverID); err != nil {
		handler.failure(ctxWithTimeout, w, apperr.HTTPStatus(err), err)
		return
	}

	handler.envelope(ctxWithTimeout, w, http.StatusOK, map[string]any{"success": true})
}

// ----- Handler: GET /internal/matching/drivers/{driver_id}/availability -----

func (handler *MatchingHTTPHandler) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	driverID := strings.TrimSpace(r.PathValue("driver_id"))
	if driverID == "" {
		handler.failure(ctx, w, http.StatusBadRequest, errors.New("driver_id is required"))
		return
	}
	customerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.CheckDriverAvailability(ctxWithTimeout, driverID, customerID)
	if err != nil {
		handler.failure(ctxWithTimeout, w, apperr.HTTPStatus(err), err)
		return
	}

	handler.envelope(ctxWithTimeout, w, http.StatusOK, map[string]any{
		"success":      true,
		"availability": res,
	})
}

// ----- helpers -----

func (handler *MatchingHTTPHandler) envelope(ctx context.Context, w http.ResponseWriter, status int, body any) {
	buf, err := json.Marshal(body)
	if err != nil {
		handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
		http.Error(w, `{"success":false,"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func (handler *MatchingHTTPHandler) failure(ctx context.Context, w http.ResponseWriter, status int, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	}
	handler.logger.Error(ctx, action, err.Error(), err, nil)

	msg := err.Error()
	if status >= 500 {
		msg = "internal error"
	}
	handler.envelope(ctx, w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func (handler *MatchingHTTPHandler) decodeStrict(w http.ResponseWriter, r *http.Request, dst any) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return errors.New("Content-Type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, 256<<10) // 256 KiB
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

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *MatchingHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		var b [12]byte
		_, _ = rand.Read(b[:])
		reqID = hex.EncodeToString(b[:])
	}
	return handler.logger.WithRequestID(ctx, reqID)
}
