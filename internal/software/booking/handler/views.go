package handler

import (
	"time"

	"motoride/internal/domain/booking"
	"motoride/internal/ports"
)

// bookingResponse is the wire shape of a booking.
type bookingResponse struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customer_id"`
	DriverID    *string    `json:"driver_id,omitempty"`
	Status      string     `json:"status"`
	PickupLat   float64    `json:"pickup_latitude"`
	PickupLng   float64    `json:"pickup_longitude"`
	DestLat     float64    `json:"destination_latitude"`
	DestLng     float64    `json:"destination_longitude"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	CancelledBy *string    `json:"cancelled_by,omitempty"`
}

func bookingView(b *booking.Booking) bookingResponse {
	return bookingResponse{
		ID:          b.ID,
		CustomerID:  b.CustomerID,
		DriverID:    b.DriverID,
		Status:      b.Status.String(),
		PickupLat:   b.Pickup.Lat,
		PickupLng:   b.Pickup.Lng,
		DestLat:     b.Destination.Lat,
		DestLng:     b.Destination.Lng,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
		AcceptedAt:  b.AcceptedAt,
		StartedAt:   b.StartedAt,
		CompletedAt: b.CompletedAt,
		CancelledAt: b.CancelledAt,
		RejectedAt:  b.RejectedAt,
		CancelledBy: b.CancelledBy,
	}
}

// pageResponse is the wire shape of a booking history page.
type pageResponse struct {
	Bookings []bookingResponse `json:"bookings"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
	Pages    int               `json:"pages"`
}

func pageView(p *ports.BookingPage) pageResponse {
	out := pageResponse{
		Bookings: make([]bookingResponse, 0, len(p.Bookings)),
		Total:    p.Total,
		Page:     p.Page,
		Limit:    p.Limit,
		Pages:    p.Pages,
	}
	for _, b := range p.Bookings {
		out.Bookings = append(out.Bookings, bookingView(b))
	}
	return out
}
