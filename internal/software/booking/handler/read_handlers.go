package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"motoride/internal/domain/booking"
)

// ----- Handler: GET /bookings/{booking_id} -----

func (handler *BookingHTTPHandler) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", errors.New("missing booking_id"))
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	sub, ok := handler.requireSubject(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.GetBookingDetails(ctxWithTimeout, bookingID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	// Participants only; everyone else learns nothing about the booking.
	if !b.InvolvesUser(sub) {
		handler.httpError(ctxWithTimeout, w, http.StatusNotFound, "booking not found", errors.New("requester not involved"))
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingView(b))
}

// ----- Handler: GET /bookings?status=&page=&limit= -----

func (handler *BookingHTTPHandler) handleListBookings(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	sub, ok := handler.requireSubject(ctx, w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	var statusFilter *booking.Status
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, err := booking.ParseStatus(raw)
		if err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "invalid status filter", err)
			return
		}
		statusFilter = &st
	}

	page := parsePositiveInt(q.Get("page"), 1)
	limit := parsePositiveInt(q.Get("limit"), 10)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.GetUserBookings(ctxWithTimeout, sub, statusFilter, page, limit)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, pageView(res))
}

func parsePositiveInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
