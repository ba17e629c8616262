package service

import (
	"context"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
	"motoride/internal/ports"
)

// SmartCancelBooking is the system-initiated cancellation used by the timeout
// reaper, the matching engine, and the all-rejected path. It is idempotent:
// a booking that is missing or no longer PENDING yields a nil row and no
// error, because concurrent cancel sources are expected.
func (service *bookingService) SmartCancelBooking(ctx context.Context, bookingID string, reason ports.SmartCancelReason) (*booking.Booking, error) {
	ctx = service.logger.WithBookingID(ctx, bookingID)
	now := time.Now().UTC()

	var cancelled *booking.Booking
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		b, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "load booking")
		}
		if b == nil || b.Status.Terminal() {
			return nil
		}
		if !b.Status.AllowedFor(booking.ActorSystem, booking.StatusCancelled) {
			// ACCEPTED and beyond belong to the humans involved.
			return nil
		}

		if err := service.bookings.UpdateStatus(ctx, bookingID, booking.StatusCancelled, now, string(booking.ActorSystem)); err != nil {
			return apperr.Infra(err, "smart cancel booking")
		}

		b2, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "reload booking")
		}
		cancelled = b2
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cancelled == nil {
		// No-op: gone, already terminal, or a driver owns it now. Still purge
		// whatever keys might be lingering.
		_ = service.coordination.PurgeBooking(ctx, bookingID)
		return nil, nil
	}

	service.finishTerminal(ctx, cancelled, string(booking.ActorSystem), string(reason))

	service.logger.Info(ctx, "booking_smart_cancelled", "Booking cancelled by system", map[string]any{
		"reason": string(reason),
	})
	return cancelled, nil
}
