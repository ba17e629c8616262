package service

import (
	"context"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
	"motoride/internal/general/contracts"
	"motoride/internal/ports"
)

// CreateBooking validates the request, rejects duplicate active bookings,
// persists the PENDING row, arms the coordination keys, and kicks off the
// driver search.
func (service *bookingService) CreateBooking(ctx context.Context, in ports.CreateBookingInput) (*booking.Booking, error) {
	b, err := booking.NewBooking(in.CustomerID, in.Pickup, in.Destination)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	var customerName string
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		// One active booking per customer.
		active, err := service.bookings.GetActiveForCustomer(ctx, in.CustomerID)
		if err != nil {
			return apperr.Infra(err, "check active booking")
		}
		if active != nil {
			return apperr.Conflict("customer already has an active booking %s", active.ID)
		}

		if err := service.bookings.CreateBooking(ctx, b); err != nil {
			return apperr.Infra(err, "create booking")
		}

		if u, err := service.users.GetByID(ctx, in.CustomerID); err == nil && u != nil {
			customerName = u.Name
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = service.logger.WithBookingID(ctx, b.ID)

	// The shadow and the timeout marker are load-bearing, so the write is
	// retried. On exhaustion the PENDING row stays: a missing timeout marker
	// reads as expired, so the reaper cancels it on its next sweep.
	kvsErr := retryKVS(ctx, 3, time.Second, func(ctx context.Context) error {
		if err := service.coordination.WriteBookingShadow(ctx, b, service.cfg.BookingTimeout()); err != nil {
			return err
		}
		return service.coordination.ArmBookingTimeout(ctx, b.ID, service.cfg.BookingTimeout())
	})
	if kvsErr != nil {
		service.logger.Error(ctx, "booking_kvs_init_failed", "Coordination keys unavailable, leaving booking to the reaper", kvsErr, nil)
		return nil, apperr.Infra(kvsErr, "coordination store unavailable")
	}

	env := envelope()
	created := contracts.BookingCreated{
		BookingID:    b.ID,
		CustomerID:   b.CustomerID,
		CustomerName: customerName,
		Pickup:       b.Pickup,
		Destination:  b.Destination,
		CreatedAt:    b.CreatedAt,
		Envelope:     env,
	}
	if err := service.publishEvent(ctx, contracts.ExchangeBookingTopic, contracts.TopicBookingCreated, created); err != nil {
		return nil, apperr.Infra(err, "publish booking.created")
	}

	search := contracts.DriverSearchRequested{
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		Lat:         b.Pickup.Lat,
		Lng:         b.Pickup.Lng,
		RadiusKM:    service.cfg.Matching.RadiusKM,
		Destination: b.Destination,
		Envelope:    env,
	}
	if err := service.publishEvent(ctx, contracts.ExchangeDriverTopic, contracts.TopicDriverSearchRequested, search); err != nil {
		// The booking stays PENDING; the timeout reaper bounds how long it can
		// sit without a search.
		return nil, apperr.Infra(err, "publish driver search request")
	}

	service.logger.Info(ctx, "booking_created", "Booking created and search requested", map[string]any{
		"customer_id": b.CustomerID,
	})
	return b, nil
}
