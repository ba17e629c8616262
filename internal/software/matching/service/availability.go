package service

import (
	"context"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
	"motoride/internal/domain/driver"
	"motoride/internal/ports"
)

// CheckDriverAvailability classifies one driver for one customer: offline,
// busy, blocked for this customer, or available.
func (service *matchingService) CheckDriverAvailability(ctx context.Context, driverID, customerID string) (*ports.DriverAvailabilityResult, error) {
	var profile *driver.Driver
	var activeBooking *booking.Booking
	var blocked map[string]struct{}

	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		d, err := service.drivers.GetByID(ctx, driverID)
		if err != nil {
			return apperr.Infra(err, "load driver")
		}
		if d == nil {
			return apperr.NotFound("driver %s not found", driverID)
		}
		profile = d

		active, err := service.bookings.ActiveByDrivers(ctx, []string{driverID})
		if err != nil {
			return apperr.Infra(err, "scan active bookings")
		}
		activeBooking = active[driverID]

		if customerID != "" {
			blocked, err = service.blockedDrivers(ctx, customerID, []string{driverID})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case !profile.Online:
		return &ports.DriverAvailabilityResult{
			Status: ports.AvailabilityOffline,
			Reason: "driver is offline",
		}, nil
	case activeBooking != nil:
		return &ports.DriverAvailabilityResult{
			Status: ports.AvailabilityBusy,
			Reason: "driver has booking " + activeBooking.ID,
		}, nil
	default:
		if _, isBlocked := blocked[driverID]; isBlocked {
			return &ports.DriverAvailabilityResult{
				Status: ports.AvailabilityBlocked,
				Reason: "driver is blocked for this customer",
			}, nil
		}
		return &ports.DriverAvailabilityResult{
			IsAvailable: true,
			Status:      ports.AvailabilityAvailable,
		}, nil
	}
}
