package service

import (
	"context"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
)

// startBookingFromTrip applies the trip subsystem's start signal:
// ACCEPTED -> ONGOING stamped with the trip's start time. Duplicate
// deliveries are quiet no-ops.
func (service *bookingService) startBookingFromTrip(ctx context.Context, bookingID string, startedAt time.Time) (*booking.Booking, error) {
	var started *booking.Booking
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		b, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "load booking")
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", bookingID)
		}
		if b.Status == booking.StatusOngoing {
			started = b
			return nil
		}
		if b.Status != booking.StatusAccepted {
			return apperr.BadTransition("cannot start a %s booking", b.Status)
		}

		if err := service.bookings.UpdateStatus(ctx, bookingID, booking.StatusOngoing, startedAt.UTC(), ""); err != nil {
			return apperr.Infra(err, "start booking")
		}

		b2, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "reload booking")
		}
		started = b2
		return nil
	})
	return started, err
}
