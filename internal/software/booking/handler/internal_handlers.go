package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// --- Request DTO (HTTP boundary) ---

type driversAvailabilityRequest struct {
	DriverIDs []string `json:"driver_ids"`
}

// ----- Handler: POST /internal/drivers/availability -----

func (handler *BookingHTTPHandler) handleDriversAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req driversAvailabilityRequest
	if !handler.decodeStrict(ctx, w, r, 256<<10, &req) {
		return
	}
	if len(req.DriverIDs) == 0 {
		handler.httpError(ctx, w, http.StatusBadRequest, "driver_ids must not be empty", errors.New("empty driver_ids"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := handler.svc.CheckMultipleDriversAvailability(ctxWithTimeout, req.DriverIDs)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, map[string]any{
		"success": true,
		"drivers": rows,
	})
}

// ----- Handler: GET /internal/drivers/{driver_id}/active-booking -----

func (handler *BookingHTTPHandler) handleHasActiveBooking(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	driverID := strings.TrimSpace(r.PathValue("driver_id"))
	if driverID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "driver_id is required", errors.New("missing driver_id"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	busy := handler.svc.HasActiveBooking(ctxWithTimeout, driverID)

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, map[string]any{
		"success":            true,
		"driver_id":          driverID,
		"has_active_booking": busy,
	})
}
