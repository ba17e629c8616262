package service

import (
	"context"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
	"motoride/internal/general/contracts"
	"motoride/internal/ports"
)

// rejectedSetTTL bounds how long a rejection keeps a driver excluded from
// re-matching the same booking.
const rejectedSetTTL = 2 * time.Hour

// RejectBooking records a driver's explicit rejection. When every produced
// candidate has rejected, the booking is auto-cancelled after a short grace
// period that lets a late re-match land first.
func (service *bookingService) RejectBooking(ctx context.Context, bookingID, driverID string) error {
	ctx = service.logger.WithBookingID(ctx, bookingID)

	var current *booking.Booking
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
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
		return err
	}
	if current.Status != booking.StatusPending {
		return apperr.Conflict("booking is %s, nothing to reject", current.Status)
	}

	if err := service.coordination.AddRejectedDriver(ctx, bookingID, driverID, rejectedSetTTL); err != nil {
		return apperr.Infra(err, "record rejection")
	}

	_ = service.publishEvent(ctx, contracts.ExchangeBookingTopic, contracts.TopicBookingRejected, contracts.BookingRejected{
		BookingID: bookingID,
		DriverID:  driverID,
		Envelope:  envelope(),
	})

	service.logger.Info(ctx, "booking_rejected", "Driver rejected booking", map[string]any{
		"driver_id": driverID,
	})

	// Grace window before the all-rejected check so a concurrent re-match can
	// refresh the candidate set. With auto-cancel disabled the booking waits
	// for the timeout reaper instead.
	if service.cfg.Booking.AutoCancelEnabled {
		go service.cancelIfAllRejected(context.WithoutCancel(ctx), bookingID)
	}

	return nil
}

// cancelIfAllRejected waits out the grace period, then cancels the booking if
// it is still PENDING and every eligible driver has rejected it.
func (service *bookingService) cancelIfAllRejected(ctx context.Context, bookingID string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(service.cfg.SmartCancelDelay()):
	}

	eligible, err := service.coordination.EligibleDrivers(ctx, bookingID)
	if err != nil || len(eligible) == 0 {
		return
	}
	rejected, err := service.coordination.RejectedDrivers(ctx, bookingID)
	if err != nil {
		return
	}

	rejectedSet := make(map[string]struct{}, len(rejected))
	for _, id := range rejected {
		rejectedSet[id] = struct{}{}
	}
	for _, id := range eligible {
		if _, ok := rejectedSet[id]; !ok {
			return // at least one candidate has not answered
		}
	}

	if _, err := service.SmartCancelBooking(ctx, bookingID, ports.ReasonAllDriversRejected); err != nil {
		service.logger.Error(ctx, "all_rejected_cancel_failed", "Failed to auto-cancel fully rejected booking", err,
			map[string]any{"booking_id": bookingID})
	}
}
