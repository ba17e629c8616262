package ports

import (
	"context"
	"time"

	"motoride/internal/domain/booking"
	"motoride/internal/domain/geo"
	"motoride/internal/domain/user"
)

// ----- Infrastructure ports -----

// EventPublisher publishes a raw payload to an exchange with a routing key.
// Implemented by the RabbitMQ publisher; faked in tests.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// CoordinationStore is the KVS surface shared by the coordinator and the
// matching engine: locks, candidate sets, shadows, timers, derived caches.
type CoordinationStore interface {
	// Booking-scoped keys. All of them are purged on terminal transitions.
	WriteBookingShadow(ctx context.Context, b *booking.Booking, ttl time.Duration) error
	ArmBookingTimeout(ctx context.Context, bookingID string, ttl time.Duration) error
	TimeoutArmed(ctx context.Context, bookingID string) (bool, error)
	PurgeBooking(ctx context.Context, bookingID string) error

	// Accept lock. Acquire is set-if-absent with expiry; false means another
	// driver holds it.
	AcquireAcceptLock(ctx context.Context, bookingID, driverID string, ttl time.Duration) (bool, error)
	ReleaseAcceptLock(ctx context.Context, bookingID string) error

	// Candidate sets.
	SetEligibleDrivers(ctx context.Context, bookingID string, driverIDs []string, ttl time.Duration) error
	IsEligibleDriver(ctx context.Context, bookingID, driverID string) (bool, error)
	EligibleDrivers(ctx context.Context, bookingID string) ([]string, error)
	AddRejectedDriver(ctx context.Context, bookingID, driverID string, ttl time.Duration) error
	RejectedDrivers(ctx context.Context, bookingID string) ([]string, error)

	// Customer-scoped derived caches.
	CacheBlockedDrivers(ctx context.Context, customerID string, driverIDs []string, ttl time.Duration) error
	CachedBlockedDrivers(ctx context.Context, customerID string) ([]string, bool, error)
	CachePreferences(ctx context.Context, customerID string, payload []byte, ttl time.Duration) error
	CachedPreferences(ctx context.Context, customerID string) ([]byte, bool, error)
	CacheLastSearch(ctx context.Context, customerID string, payload []byte, ttl time.Duration) error
}

// TrackingClient asks the external tracking service whether a driver has an
// active trip. Calls carry a hard deadline; errors are the caller's to
// interpret (the accept path treats them as "no trip").
type TrackingClient interface {
	HasActiveTrip(ctx context.Context, driverID string) (bool, error)
}

// SessionPusher is the slice of the session gateway the notification
// dispatcher needs.
type SessionPusher interface {
	SendToUser(ctx context.Context, userID string, role user.Role, event string, payload any) error
	BroadcastToNearbyDrivers(ctx context.Context, center geo.Point, radiusKm float64, event string, payload any) (delivered int, err error)
}

// ----- DTOs for the Booking Coordinator -----

// CreateBookingInput is the validated input required to create a booking.
type CreateBookingInput struct {
	CustomerID  string
	Pickup      geo.Point
	Destination geo.Point
}

// BookingPage is a page of bookings plus pagination math.
type BookingPage struct {
	Bookings []*booking.Booking `json:"bookings"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	Limit    int                `json:"limit"`
	Pages    int                `json:"pages"`
}

// DriverAvailability is one row of checkMultipleDriversAvailability.
type DriverAvailability struct {
	DriverID      string           `json:"driver_id"`
	IsAvailable   bool             `json:"is_available"`
	ActiveBooking *booking.Booking `json:"active_booking,omitempty"`
}

// SmartCancelReason enumerates system-initiated cancellation causes.
type SmartCancelReason string

const (
	ReasonNoDriversFound     SmartCancelReason = "no_drivers_found"
	ReasonAllDriversRejected SmartCancelReason = "all_drivers_rejected"
	ReasonTimeout            SmartCancelReason = "timeout"
	ReasonSystem             SmartCancelReason = "system"
)

// BookingService exposes the boundary of the booking coordinator.
type BookingService interface {
	CreateBooking(ctx context.Context, in CreateBookingInput) (*booking.Booking, error)
	GetBookingDetails(ctx context.Context, bookingID string) (*booking.Booking, error)
	GetUserBookings(ctx context.Context, userID string, status *booking.Status, page, limit int) (*BookingPage, error)
	UpdateBookingStatus(ctx context.Context, bookingID, actorID string, next booking.Status, at *time.Time) (*booking.Booking, error)
	AcceptBooking(ctx context.Context, bookingID, driverID string) (*booking.Booking, error)
	RejectBooking(ctx context.Context, bookingID, driverID string) error
	CancelBooking(ctx context.Context, bookingID, actorID string) (*booking.Booking, error)
	DeleteBooking(ctx context.Context, bookingID, actorID string) error
	CompleteBookingFromTrip(ctx context.Context, bookingID string, completedAt time.Time) (*booking.Booking, error)
	CheckMultipleDriversAvailability(ctx context.Context, driverIDs []string) ([]DriverAvailability, error)
	HasActiveBooking(ctx context.Context, driverID string) bool
	SmartCancelBooking(ctx context.Context, bookingID string, reason SmartCancelReason) (*booking.Booking, error)
	RunBackgroundWorkers(ctx context.Context)
}

// ----- DTOs for the Matching Engine -----

// FindDriversRequest mirrors the findDrivers RPC payload.
type FindDriversRequest struct {
	CustomerID       string   `json:"customer_id,omitempty"`
	VehicleType      string   `json:"vehicle_type,omitempty"` // defaults to MOTORCYCLE
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	RadiusKM         float64  `json:"radius_km,omitempty"`
	ExcludeDrivers   []string `json:"exclude_drivers,omitempty"`
	PreferredDrivers []string `json:"preferred_drivers,omitempty"`
	BookingID        string   `json:"booking_id,omitempty"`
}

// DriverCandidate is one ranked entry of a findDrivers result.
type DriverCandidate struct {
	DriverID          string  `json:"driver_id"`
	Name              string  `json:"name"`
	VehicleType       string  `json:"vehicle_type"`
	VehiclePlate      string  `json:"vehicle_plate,omitempty"`
	Rating            float64 `json:"rating"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	DistanceKM        float64 `json:"distance_km"`
	IsPreferred       bool    `json:"is_preferred"`
	PreviousTripCount int     `json:"previous_trip_count"`
}

// AvailabilityStatus classifies checkDriverAvailability outcomes.
type AvailabilityStatus string

const (
	AvailabilityAvailable AvailabilityStatus = "available"
	AvailabilityOffline   AvailabilityStatus = "offline"
	AvailabilityBusy      AvailabilityStatus = "busy"
	AvailabilityBlocked   AvailabilityStatus = "blocked"
	AvailabilityError     AvailabilityStatus = "error"
)

// DriverAvailabilityResult is the checkDriverAvailability response.
type DriverAvailabilityResult struct {
	IsAvailable bool               `json:"is_available"`
	Status      AvailabilityStatus `json:"status"`
	Reason      string             `json:"reason,omitempty"`
}

// MatchingService exposes the boundary of the matching engine.
type MatchingService interface {
	FindDrivers(ctx context.Context, req FindDriversRequest) ([]DriverCandidate, error)
	FindDriversForReMatch(ctx context.Context, bookingID string, req FindDriversRequest) ([]DriverCandidate, error)
	MatchDriverToBooking(ctx context.Context, bookingID, driverID string) (*DriverCandidate, error)
	AddBookingRejectedDriver(ctx context.Context, bookingID, driverID string) error
	CheckDriverAvailability(ctx context.Context, driverID, customerID string) (*DriverAvailabilityResult, error)
	RunBackgroundConsumers(ctx context.Context)
}
