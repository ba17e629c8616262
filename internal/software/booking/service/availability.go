package service

import (
	"context"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
	"motoride/internal/ports"

	"golang.org/x/sync/errgroup"
)

// CheckMultipleDriversAvailability resolves availability for a batch of
// drivers in a single scan instead of one query per driver.
func (service *bookingService) CheckMultipleDriversAvailability(ctx context.Context, driverIDs []string) ([]ports.DriverAvailability, error) {
	if len(driverIDs) == 0 {
		return []ports.DriverAvailability{}, nil
	}

	var active map[string]*booking.Booking
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		active, err = service.bookings.ActiveByDrivers(ctx, driverIDs)
		if err != nil {
			return apperr.Infra(err, "scan active bookings")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]ports.DriverAvailability, 0, len(driverIDs))
	for _, id := range driverIDs {
		row := ports.DriverAvailability{DriverID: id, IsAvailable: true}
		if b, ok := active[id]; ok {
			row.IsAvailable = false
			row.ActiveBooking = b
		}
		out = append(out, row)
	}
	return out, nil
}

// HasActiveBooking reports whether the driver is busy in either the booking
// table or the trip subsystem. The two probes run concurrently and fail in
// opposite directions: an unreadable database counts as busy (never hand out
// a second booking on a guess), an unreachable tracking service counts as
// free (trips always settle back through our own consumers).
func (service *bookingService) HasActiveBooking(ctx context.Context, driverID string) bool {
	var dbBusy, tripBusy bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := service.uow.WithinTx(gctx, func(ctx context.Context) error {
			b, err := service.bookings.GetActiveForDriver(ctx, driverID)
			if err != nil {
				return err
			}
			dbBusy = b != nil
			return nil
		})
		if err != nil {
			service.logger.Error(gctx, "active_booking_check_failed", "Booking lookup failed, treating driver as busy", err,
				map[string]any{"driver_id": driverID})
			dbBusy = true
		}
		return nil
	})
	g.Go(func() error {
		busy, err := service.tracking.HasActiveTrip(gctx, driverID)
		if err != nil {
			service.logger.Error(gctx, "active_trip_check_failed", "Tracking probe failed, assuming no trip", err,
				map[string]any{"driver_id": driverID})
			return nil
		}
		tripBusy = busy
		return nil
	})
	_ = g.Wait()

	return dbBusy || tripBusy
}
