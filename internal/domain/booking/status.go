package booking

import (
	"errors"
	"strings"
)

// Status is a booking status as stored in the `bookings` table.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusOngoing   Status = "ONGOING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

var ErrInvalidStatus = errors.New("invalid booking status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed booking status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusAccepted, StatusOngoing, StatusCompleted, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// Terminal indicates if the status is absorbing: no further mutation allowed.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled || status == StatusRejected
}

// Active indicates the booking still occupies its customer (and driver, once
// assigned).
func (status Status) Active() bool {
	return status == StatusPending || status == StatusAccepted || status == StatusOngoing
}

// CanTransitionTo specifies if the status can transition to the next status,
// independent of who asks.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusPending:
		return next == StatusAccepted || next == StatusRejected || next == StatusCancelled

	case StatusAccepted:
		return next == StatusOngoing || next == StatusCancelled

	case StatusOngoing:
		return next == StatusCompleted

	case StatusCompleted, StatusCancelled, StatusRejected:
		return false

	default:
		return false
	}
}

// Actor identifies who requests a transition.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorDriver   Actor = "driver"
	ActorSystem   Actor = "system"
)

// AllowedFor reports whether the given actor may drive the transition.
// The system actor is reserved for smart cancellation of pending bookings
// and for trip-originated progress (ONGOING, COMPLETED).
func (status Status) AllowedFor(actor Actor, next Status) bool {
	if !status.CanTransitionTo(next) {
		return false
	}

	switch actor {
	case ActorCustomer:
		return next == StatusCancelled

	case ActorDriver:
		switch status {
		case StatusPending:
			return next == StatusAccepted || next == StatusRejected
		case StatusAccepted:
			return next == StatusCancelled || next == StatusOngoing
		case StatusOngoing:
			return next == StatusCompleted
		}
		return false

	case ActorSystem:
		switch next {
		case StatusCancelled:
			return status == StatusPending
		case StatusOngoing, StatusCompleted:
			return true
		}
		return false

	default:
		return false
	}
}
