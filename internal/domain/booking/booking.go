package booking

import (
	"errors"
	"strings"
	"time"

	"motoride/internal/domain/geo"
)

// Booking is the domain entity corresponding to the `bookings` table.
// The coordinator is the single writer of its status.
type Booking struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Actors
	CustomerID string
	DriverID   *string // nil until accepted

	// Route
	Pickup      geo.Point
	Destination geo.Point

	// Core state
	Status Status

	// Lifecycle timestamps
	AcceptedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	RejectedAt  *time.Time

	// Set on cancellation: customer | driver | system.
	CancelledBy *string
}

var (
	ErrCustomerRequired        = errors.New("customer id is required")
	ErrDriverRequired          = errors.New("driver id is required")
	ErrAlreadyAssigned         = errors.New("driver already assigned")
	ErrInvalidStatusTransition = errors.New("invalid booking status transition")
)

// NewBooking creates a new booking in PENDING state.
func NewBooking(customerID string, pickup, destination geo.Point) (*Booking, error) {
	if customerID = strings.TrimSpace(customerID); customerID == "" {
		return nil, ErrCustomerRequired
	}
	if err := pickup.Validate(); err != nil {
		return nil, err
	}
	if err := destination.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Booking{
		CreatedAt:   now,
		UpdatedAt:   now,
		CustomerID:  customerID,
		Pickup:      pickup,
		Destination: destination,
		Status:      StatusPending,
	}, nil
}

// Accept assigns the driver and moves PENDING -> ACCEPTED.
func (b *Booking) Accept(driverID string, at time.Time) error {
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return ErrDriverRequired
	}
	if b.DriverID != nil && *b.DriverID != "" {
		return ErrAlreadyAssigned
	}
	if b.Status != StatusPending {
		return ErrInvalidStatusTransition
	}

	b.DriverID = &driverID
	b.AcceptedAt = &at
	b.setStatus(StatusAccepted, at)
	return nil
}

// ApplyTransition moves the booking to next and stamps the matching timeline
// field. It does not check actor permissions; callers validate via
// Status.AllowedFor first.
func (b *Booking) ApplyTransition(next Status, at time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return ErrInvalidStatusTransition
	}

	switch next {
	case StatusAccepted:
		b.AcceptedAt = &at
	case StatusOngoing:
		b.StartedAt = &at
	case StatusCompleted:
		b.CompletedAt = &at
	case StatusCancelled:
		b.CancelledAt = &at
	case StatusRejected:
		b.RejectedAt = &at
	}
	b.setStatus(next, at)
	return nil
}

// Cancel transitions to CANCELLED and records who asked for it.
func (b *Booking) Cancel(by Actor, at time.Time) error {
	if err := b.ApplyTransition(StatusCancelled, at); err != nil {
		return err
	}
	s := string(by)
	b.CancelledBy = &s
	return nil
}

// HasDriver reports whether a driver has ever been assigned.
func (b *Booking) HasDriver() bool {
	return b.DriverID != nil && *b.DriverID != ""
}

// Driver returns the assigned driver id or "".
func (b *Booking) Driver() string {
	if b.DriverID == nil {
		return ""
	}
	return *b.DriverID
}

// InvolvesUser reports whether the user is the booking's customer or driver.
func (b *Booking) InvolvesUser(userID string) bool {
	return b.CustomerID == userID || b.Driver() == userID
}

// ActorFor resolves which side of the booking a user is on.
func (b *Booking) ActorFor(userID string) (Actor, bool) {
	switch userID {
	case b.CustomerID:
		return ActorCustomer, true
	case b.Driver():
		if userID != "" {
			return ActorDriver, true
		}
	}
	return "", false
}

func (b *Booking) setStatus(next Status, at time.Time) {
	b.Status = next
	b.UpdatedAt = at
}

// TimestampColumn maps a status to the timeline column stamped on that
// transition. Used by the repository to keep SQL and entity in sync.
func TimestampColumn(status Status) string {
	switch status {
	case StatusAccepted:
		return "accepted_at"
	case StatusOngoing:
		return "started_at"
	case StatusCompleted:
		return "completed_at"
	case StatusCancelled:
		return "cancelled_at"
	case StatusRejected:
		return "rejected_at"
	default:
		return "updated_at"
	}
}
