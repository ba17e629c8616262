package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"motoride/internal/domain/geo"
	"motoride/internal/ports"
)

// --- Request DTO (HTTP boundary) ---

type createBookingRequest struct {
	CustomerID           string  `json:"customer_id,omitempty"`
	PickupLatitude       float64 `json:"pickup_latitude"`
	PickupLongitude      float64 `json:"pickup_longitude"`
	DestinationLatitude  float64 `json:"destination_latitude"`
	DestinationLongitude float64 `json:"destination_longitude"`
}

// ----- Handler: POST /bookings -----

func (handler *BookingHTTPHandler) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	// generate a context with request ID
	ctx := handler.withReqID(r.Context(), r)

	var req createBookingRequest
	if !handler.decodeStrict(ctx, w, r, 1<<20, &req) {
		return
	}

	sub, ok := handler.requireSubject(ctx, w, r)
	if !ok {
		return
	}

	// fill or verify customer_id against the token subject
	if strings.TrimSpace(req.CustomerID) == "" {
		req.CustomerID = sub
	} else if req.CustomerID != sub {
		handler.httpError(ctx, w, http.StatusForbidden, "customer_id does not match token subject", nil)
		return
	}

	in := ports.CreateBookingInput{
		CustomerID:  req.CustomerID,
		Pickup:      geo.Point{Lat: req.PickupLatitude, Lng: req.PickupLongitude},
		Destination: geo.Point{Lat: req.DestinationLatitude, Lng: req.DestinationLongitude},
	}

	// bound service call
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	b, err := handler.svc.CreateBooking(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	ctxWithTimeout = handler.logger.WithBookingID(ctxWithTimeout, b.ID)

	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, bookingView(b))
}
