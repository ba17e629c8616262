package service

import (
	"context"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
	"motoride/internal/general/contracts"
)

// AcceptBooking runs the race-safe accept protocol. The KVS lock serializes
// contenders, but the conditional database update is the linearization point;
// even if two drivers slip past the lock, exactly one row update wins.
func (service *bookingService) AcceptBooking(ctx context.Context, bookingID, driverID string) (*booking.Booking, error) {
	ctx = service.logger.WithBookingID(ctx, bookingID)

	// 1) Serialize contenders on the short-lived accept lock.
	locked, err := service.coordination.AcquireAcceptLock(ctx, bookingID, driverID, service.cfg.AcceptLockTTL())
	if err != nil {
		return nil, apperr.Infra(err, "acquire accept lock")
	}
	if !locked {
		return nil, apperr.Conflict("another driver is accepting this booking")
	}
	// The lock is released on every exit path; its TTL bounds the damage if
	// the release itself fails.
	defer func() {
		if err := service.coordination.ReleaseAcceptLock(context.WithoutCancel(ctx), bookingID); err != nil {
			service.logger.Error(ctx, "accept_lock_release_failed", "Failed to release accept lock", err, nil)
		}
	}()

	// 2) Double-booking guard: a driver with any active work cannot accept.
	if service.HasActiveBooking(ctx, driverID) {
		return nil, apperr.Conflict("driver %s already has an active booking or trip", driverID)
	}

	// 3) Re-read under the lock; the state may have moved while we waited.
	var current *booking.Booking
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		b, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "load booking")
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", bookingID)
		}
		current = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if current.Status != booking.StatusPending {
		if current.DriverID != nil {
			return nil, apperr.Conflict("booking already accepted by another driver")
		}
		return nil, apperr.Conflict("booking is %s, no longer available", current.Status)
	}

	// 4) Eligibility gate, fail closed: only drivers the matching engine
	// produced may take the booking, and a KVS error denies rather than
	// letting an unvetted driver through.
	eligible, err := service.coordination.IsEligibleDriver(ctx, bookingID, driverID)
	if err != nil {
		return nil, apperr.Infra(err, "check driver eligibility")
	}
	if !eligible {
		return nil, apperr.Unauthorized("driver %s is not a candidate for this booking", driverID)
	}

	// 5) Conditional update: the single linearization point of the protocol.
	now := time.Now().UTC()
	var won bool
	var accepted *booking.Booking
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := service.bookings.AcceptPending(ctx, bookingID, driverID, now)
		if err != nil {
			return apperr.Infra(err, "accept booking")
		}
		won = ok
		if !ok {
			return nil
		}
		b, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "reload accepted booking")
		}
		accepted = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, apperr.Conflict("booking was just taken by another driver")
	}

	// 6) Announce the assignment. Losing drivers learn via booking.taken.
	pubErr := service.publishAccepted(ctx, accepted, driverID)

	// 7) The booking left PENDING: its coordination keys are garbage now.
	if err := service.coordination.PurgeBooking(ctx, bookingID); err != nil {
		service.logger.Error(ctx, "booking_kvs_purge_failed", "Failed to purge coordination keys after accept", err, nil)
	}

	// The assignment is durable either way, but downstream consumers depend
	// on these events; an unreachable broker surfaces to the caller.
	if pubErr != nil {
		return nil, apperr.Infra(pubErr, "publish accept events")
	}

	service.logger.Info(ctx, "booking_accepted", "Driver accepted booking", map[string]any{
		"driver_id": driverID,
	})
	return accepted, nil
}

// publishAccepted emits booking.accepted for the customer side and
// booking.taken for the losing candidates. Both events are load-bearing.
func (service *bookingService) publishAccepted(ctx context.Context, b *booking.Booking, driverID string) error {
	env := envelope()

	accepted := contracts.BookingAccepted{
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		DriverID:   driverID,
		Envelope:   env,
	}

	// Enrich with the driver profile when it is cheap to get.
	_ = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		d, err := service.drivers.GetByID(ctx, driverID)
		if err != nil || d == nil {
			return nil
		}
		accepted.DriverName = d.Name
		accepted.DriverLat = d.LastLat
		accepted.DriverLng = d.LastLng
		accepted.VehicleInfo = d.VehicleType.String() + " " + d.VehiclePlate
		return nil
	})

	if err := service.publishEvent(ctx, contracts.ExchangeBookingTopic, contracts.TopicBookingAccepted, accepted); err != nil {
		return err
	}

	taken := contracts.BookingTaken{
		BookingID:  b.ID,
		DriverID:   driverID,
		CustomerID: b.CustomerID,
		Timestamp:  time.Now().UTC(),
		Envelope:   env,
	}
	return service.publishEvent(ctx, contracts.ExchangeBookingTopic, contracts.TopicBookingTaken, taken)
}
