package service

import (
	"context"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
	"motoride/internal/general/contracts"
)

// CancelBooking cancels on behalf of a customer or driver. Only PENDING and
// ACCEPTED bookings can be cancelled; an ONGOING trip must complete.
func (service *bookingService) CancelBooking(ctx context.Context, bookingID, actorID string) (*booking.Booking, error) {
	ctx = service.logger.WithBookingID(ctx, bookingID)
	now := time.Now().UTC()

	var cancelled *booking.Booking
	var actor booking.Actor
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		b, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "load booking")
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", bookingID)
		}

		a, ok := b.ActorFor(actorID)
		if !ok {
			return apperr.Unauthorized("user %s is not part of booking %s", actorID, bookingID)
		}
		actor = a

		if !b.Status.AllowedFor(a, booking.StatusCancelled) {
			return apperr.BadTransition("cannot cancel a %s booking as %s", b.Status, a)
		}

		if err := service.bookings.UpdateStatus(ctx, bookingID, booking.StatusCancelled, now, string(a)); err != nil {
			return apperr.Infra(err, "cancel booking")
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

	service.finishTerminal(ctx, cancelled, string(actor), "")

	service.logger.Info(ctx, "booking_cancelled", "Booking cancelled", map[string]any{
		"cancelled_by": string(actor),
	})
	return cancelled, nil
}

// finishTerminal runs the best-effort epilogue of any cancellation: purge the
// coordination keys and announce the event. The database row is already
// terminal; failures here only delay observers.
func (service *bookingService) finishTerminal(ctx context.Context, b *booking.Booking, cancelledBy, reason string) {
	if err := service.coordination.PurgeBooking(ctx, b.ID); err != nil {
		service.logger.Error(ctx, "booking_kvs_purge_failed", "Failed to purge coordination keys", err, nil)
	}

	_ = service.publishEvent(ctx, contracts.ExchangeBookingTopic, contracts.TopicBookingCancelled, contracts.BookingCancelled{
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		DriverID:    b.Driver(),
		CancelledBy: cancelledBy,
		Reason:      reason,
		Envelope:    envelope(),
	})
}
