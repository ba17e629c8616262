package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"motoride/internal/domain/booking"
)

// pathBookingID extracts and validates the booking_id path parameter.
func (handler *BookingHTTPHandler) pathBookingID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, context.Context, bool) {
	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", errors.New("missing booking_id"))
		return "", ctx, false
	}
	return bookingID, handler.logger.WithBookingID(ctx, bookingID), true
}

// ----- Handler: PUT /bookings/{booking_id}/accept -----

func (handler *BookingHTTPHandler) handleAcceptBooking(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID, ctx, ok := handler.pathBookingID(ctx, w, r)
	if !ok {
		return
	}
	sub, ok := handler.requireSubject(ctx, w, r)
	if !ok {
		return
	}

	// Covers the lock wait, the availability probes, and the row update.
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	b, err := handler.svc.AcceptBooking(ctxWithTimeout, bookingID, sub)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingView(b))
}

// ----- Handler: PUT /bookings/{booking_id}/reject -----

func (handler *BookingHTTPHandler) handleRejectBooking(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID, ctx, ok := handler.pathBookingID(ctx, w, r)
	if !ok {
		return
	}
	sub, ok := handler.requireSubject(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := handler.svc.RejectBooking(ctxWithTimeout, bookingID, sub); err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, map[string]any{
		"booking_id": bookingID,
		"rejected":   true,
	})
}

// ----- Handler: PUT /bookings/{booking_id}/cancel -----

func (handler *BookingHTTPHandler) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID, ctx, ok := handler.pathBookingID(ctx, w, r)
	if !ok {
		return
	}
	sub, ok := handler.requireSubject(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.CancelBooking(ctxWithTimeout, bookingID, sub)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingView(b))
}

// --- Request DTO (HTTP boundary) ---

type updateStatusRequest struct {
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ----- Handler: PUT /bookings/{booking_id}/status -----

func (handler *BookingHTTPHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID, ctx, ok := handler.pathBookingID(ctx, w, r)
	if !ok {
		return
	}
	sub, ok := handler.requireSubject(ctx, w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !handler.decodeStrict(ctx, w, r, 256<<10, &req) {
		return
	}

	next, err := booking.ParseStatus(req.Status)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "status must be one of: PENDING, ACCEPTED, ONGOING, COMPLETED, CANCELLED, REJECTED", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.UpdateBookingStatus(ctxWithTimeout, bookingID, sub, next, req.Timestamp)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingView(b))
}

// ----- Handler: DELETE /bookings/{booking_id} -----

func (handler *BookingHTTPHandler) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID, ctx, ok := handler.pathBookingID(ctx, w, r)
	if !ok {
		return
	}
	sub, ok := handler.requireSubject(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := handler.svc.DeleteBooking(ctxWithTimeout, bookingID, sub); err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusNoContent, nil)
}
