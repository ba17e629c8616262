package contracts

import (
	"time"

	"motoride/internal/domain/geo"
)

// Envelope carries cross-service tracing metadata on every message.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer,omitempty"`
	SentAt        time.Time `json:"sent_at,omitempty"`
}

// BookingCreated announces a new pending booking.
type BookingCreated struct {
	BookingID    string    `json:"booking_id"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name,omitempty"`
	Pickup       geo.Point `json:"pickup"`
	Destination  geo.Point `json:"destination"`
	CreatedAt    time.Time `json:"created_at"`
	Envelope
}

// DriverSearchRequested asks the matching engine to produce candidates.
type DriverSearchRequested struct {
	BookingID   string    `json:"booking_id"`
	CustomerID  string    `json:"customer_id"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	RadiusKM    float64   `json:"radius_km"`
	Destination geo.Point `json:"destination"`
	Envelope
}

// BookingAccepted goes to the winning customer side.
type BookingAccepted struct {
	BookingID            string   `json:"booking_id"`
	CustomerID           string   `json:"customer_id"`
	DriverID             string   `json:"driver_id"`
	DriverName           string   `json:"driver_name,omitempty"`
	DriverLat            *float64 `json:"driver_lat,omitempty"`
	DriverLng            *float64 `json:"driver_lng,omitempty"`
	EstimatedArrivalTime string   `json:"estimated_arrival_time,omitempty"`
	VehicleInfo          string   `json:"vehicle_info,omitempty"`
	Envelope
}

// BookingTaken tells losing drivers the booking is gone.
type BookingTaken struct {
	BookingID  string    `json:"booking_id"`
	DriverID   string    `json:"driver_id"`
	CustomerID string    `json:"customer_id"`
	Timestamp  time.Time `json:"timestamp"`
	Envelope
}

// BookingRejected records a single driver's rejection.
type BookingRejected struct {
	BookingID string `json:"booking_id"`
	DriverID  string `json:"driver_id"`
	Reason    string `json:"reason,omitempty"`
	Envelope
}

// BookingCancelled announces a cancellation and who asked for it.
type BookingCancelled struct {
	BookingID   string `json:"booking_id"`
	CustomerID  string `json:"customer_id"`
	DriverID    string `json:"driver_id,omitempty"`
	CancelledBy string `json:"cancelled_by"` // customer | driver | system
	Reason      string `json:"reason,omitempty"`
	Envelope
}

// BookingCompleted closes the loop after the trip subsystem finishes.
type BookingCompleted struct {
	BookingID   string         `json:"booking_id"`
	CustomerID  string         `json:"customer_id"`
	DriverID    string         `json:"driver_id,omitempty"`
	TripDetails map[string]any `json:"trip_details,omitempty"`
	Envelope
}

// TripEvent is the minimal union the coordinator and dispatcher consume from
// the trip subsystem.
type TripEvent struct {
	TripID     string    `json:"trip_id"`
	BookingID  string    `json:"booking_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	DriverID   string    `json:"driver_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Envelope
}

// PaymentEvent is consumed by the notification dispatcher only.
type PaymentEvent struct {
	PaymentID  string  `json:"payment_id"`
	BookingID  string  `json:"booking_id,omitempty"`
	CustomerID string  `json:"customer_id"`
	DriverID   string  `json:"driver_id,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	Status     string  `json:"status,omitempty"`
	Envelope
}

// CancelRequested is the internal smart-cancel request published by the
// matching engine when a search produces no candidates.
type CancelRequested struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
	Envelope
}

// NewBookingOffer is pushed to candidate drivers through the gateway.
type NewBookingOffer struct {
	BookingID   string    `json:"booking_id"`
	CustomerID  string    `json:"customer_id"`
	Pickup      geo.Point `json:"pickup"`
	Destination geo.Point `json:"destination"`
	DistanceKM  float64   `json:"distance_km"`
	Envelope
}
