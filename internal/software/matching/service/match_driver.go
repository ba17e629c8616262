package service

import (
	"context"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
	"motoride/internal/domain/driver"
	"motoride/internal/domain/geo"
	"motoride/internal/domain/user"
	"motoride/internal/general/contracts"
	"motoride/internal/ports"
)

// MatchDriverToBooking offers one pending booking to one specific driver,
// bypassing the ranked search. The driver passes the same availability screen
// as every candidate and is appended to the eligible set so the accept
// protocol lets them through.
func (service *matchingService) MatchDriverToBooking(ctx context.Context, bookingID, driverID string) (*ports.DriverCandidate, error) {
	var b *booking.Booking
	var d *driver.Driver
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		loaded, err := service.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return apperr.Infra(err, "load booking")
		}
		if loaded == nil {
			return apperr.NotFound("booking %s not found", bookingID)
		}
		if loaded.Status != booking.StatusPending {
			return apperr.Conflict("booking %s is %s, only pending bookings can be matched", bookingID, loaded.Status)
		}
		b = loaded

		prof, err := service.drivers.GetByID(ctx, driverID)
		if err != nil {
			return apperr.Infra(err, "load driver")
		}
		if prof == nil {
			return apperr.NotFound("driver %s not found", driverID)
		}
		d = prof
		return nil
	})
	if err != nil {
		return nil, err
	}

	avail, err := service.CheckDriverAvailability(ctx, driverID, b.CustomerID)
	if err != nil {
		return nil, err
	}
	if !avail.IsAvailable {
		return nil, apperr.Conflict("driver %s is not available: %s", driverID, avail.Reason)
	}
	if !d.HasKnownLocation() {
		return nil, apperr.Conflict("driver %s has no known location", driverID)
	}

	lat, lng := d.Location()
	loc := geo.Point{Lat: lat, Lng: lng}
	cand := ports.DriverCandidate{
		DriverID:     d.ID,
		Name:         d.Name,
		VehicleType:  d.VehicleType.String(),
		VehiclePlate: d.VehiclePlate,
		Rating:       d.Rating,
		Latitude:     loc.Lat,
		Longitude:    loc.Lng,
		DistanceKM:   geo.RoundKM(geo.DistanceKM(b.Pickup, loc)),
		IsPreferred:  true,
	}

	// Append rather than replace so candidates from a prior search keep their
	// accept eligibility.
	eligible, err := service.coordination.EligibleDrivers(ctx, bookingID)
	if err != nil {
		return nil, apperr.Infra(err, "read eligible drivers")
	}
	present := false
	for _, id := range eligible {
		if id == driverID {
			present = true
			break
		}
	}
	if !present {
		eligible = append(eligible, driverID)
	}
	if err := service.coordination.SetEligibleDrivers(ctx, bookingID, eligible, service.cfg.BookingTimeout()); err != nil {
		return nil, apperr.Infra(err, "arm eligible drivers")
	}

	offer := contracts.NewBookingOffer{
		BookingID:   bookingID,
		CustomerID:  b.CustomerID,
		Pickup:      b.Pickup,
		Destination: b.Destination,
		DistanceKM:  cand.DistanceKM,
		Envelope: contracts.Envelope{
			Producer: "matching-service",
			SentAt:   time.Now().UTC(),
		},
	}
	if err := service.sessions.SendToUser(ctx, driverID, user.RoleDriver, "new_booking_offer", offer); err != nil {
		service.logger.Debug(ctx, "offer_push_skipped", "Matched driver not reachable over WebSocket",
			map[string]any{"driver_id": driverID})
	}

	service.logger.Info(ctx, "driver_matched", "Matched driver directly to booking", map[string]any{
		"booking_id": bookingID,
		"driver_id":  driverID,
	})
	return &cand, nil
}
