package service

import (
	"context"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
	"motoride/internal/general/contracts"
	"motoride/internal/ports"
)

// GetBookingDetails loads one booking by id.
func (service *bookingService) GetBookingDetails(ctx context.Context, bookingID string) (*booking.Booking, error) {
	var b *booking.Booking
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		found, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "load booking")
		}
		if found == nil {
			return apperr.NotFound("booking %s not found", bookingID)
		}
		b = found
		return nil
	})
	return b, err
}

// GetUserBookings pages the user's booking history, newest first. Pages is
// ceil(total/limit); zero rows means zero pages.
func (service *bookingService) GetUserBookings(ctx context.Context, userID string, status *booking.Status, page, limit int) (*ports.BookingPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	var rows []*booking.Booking
	var total int
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rows, total, err = service.bookings.ListForUser(ctx, userID, status, page, limit)
		if err != nil {
			return apperr.Infra(err, "list bookings")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pages := (total + limit - 1) / limit
	if rows == nil {
		rows = []*booking.Booking{}
	}
	return &ports.BookingPage{
		Bookings: rows,
		Total:    total,
		Page:     page,
		Limit:    limit,
		Pages:    pages,
	}, nil
}

// UpdateBookingStatus applies one lifecycle transition requested by a
// participant, enforcing the actor permission matrix.
func (service *bookingService) UpdateBookingStatus(ctx context.Context, bookingID, actorID string, next booking.Status, at *time.Time) (*booking.Booking, error) {
	ctx = service.logger.WithBookingID(ctx, bookingID)

	when := time.Now().UTC()
	if at != nil {
		when = at.UTC()
	}

	var updated *booking.Booking
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

		if !b.Status.AllowedFor(a, next) {
			return apperr.BadTransition("%s may not move a %s booking to %s", a, b.Status, next)
		}

		cancelledBy := ""
		if next == booking.StatusCancelled {
			cancelledBy = string(a)
		}
		if err := service.bookings.UpdateStatus(ctx, bookingID, next, when, cancelledBy); err != nil {
			return apperr.Infra(err, "update booking status")
		}

		b2, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "reload booking")
		}
		updated = b2
		return nil
	})
	if err != nil {
		return nil, err
	}

	service.announceTransition(ctx, updated, actor)
	return updated, nil
}

// announceTransition publishes the event matching a non-accept transition and
// purges coordination keys when the booking went terminal.
func (service *bookingService) announceTransition(ctx context.Context, b *booking.Booking, actor booking.Actor) {
	if b.Status.Terminal() {
		if err := service.coordination.PurgeBooking(ctx, b.ID); err != nil {
			service.logger.Error(ctx, "booking_kvs_purge_failed", "Failed to purge coordination keys", err, nil)
		}
	}

	switch b.Status {
	case booking.StatusCancelled:
		_ = service.publishEvent(ctx, contracts.ExchangeBookingTopic, contracts.TopicBookingCancelled, contracts.BookingCancelled{
			BookingID:   b.ID,
			CustomerID:  b.CustomerID,
			DriverID:    b.Driver(),
			CancelledBy: string(actor),
			Envelope:    envelope(),
		})
	case booking.StatusCompleted:
		_ = service.publishEvent(ctx, contracts.ExchangeBookingTopic, contracts.TopicBookingCompleted, contracts.BookingCompleted{
			BookingID:  b.ID,
			CustomerID: b.CustomerID,
			DriverID:   b.Driver(),
			Envelope:   envelope(),
		})
	}
}

// DeleteBooking removes a terminal booking from the customer's history. Only
// the owning customer may delete, and never a live booking.
func (service *bookingService) DeleteBooking(ctx context.Context, bookingID, actorID string) error {
	ctx = service.logger.WithBookingID(ctx, bookingID)

	return service.uow.WithinTx(ctx, func(ctx context.Context) error {
		b, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "load booking")
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", bookingID)
		}
		if b.CustomerID != actorID {
			return apperr.Unauthorized("only the booking's customer may delete it")
		}
		if !b.Status.Terminal() {
			return apperr.Conflict("cannot delete a %s booking", b.Status)
		}

		if err := service.bookings.Delete(ctx, bookingID); err != nil {
			return apperr.Infra(err, "delete booking")
		}
		return nil
	})
}

// CompleteBookingFromTrip applies the trip subsystem's completion signal:
// ONGOING -> COMPLETED stamped with the trip's end time.
func (service *bookingService) CompleteBookingFromTrip(ctx context.Context, bookingID string, completedAt time.Time) (*booking.Booking, error) {
	ctx = service.logger.WithBookingID(ctx, bookingID)

	var completed *booking.Booking
	var changed bool
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		b, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "load booking")
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", bookingID)
		}
		if b.Status == booking.StatusCompleted {
			completed = b // duplicate trip.ended delivery
			return nil
		}
		if b.Status != booking.StatusOngoing {
			return apperr.BadTransition("cannot complete a %s booking", b.Status)
		}

		if err := service.bookings.UpdateStatus(ctx, bookingID, booking.StatusCompleted, completedAt.UTC(), ""); err != nil {
			return apperr.Infra(err, "complete booking")
		}

		b2, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "reload booking")
		}
		completed = b2
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		service.announceTransition(ctx, completed, booking.ActorSystem)
	}
	return completed, nil
}
