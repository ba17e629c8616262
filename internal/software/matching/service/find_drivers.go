package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
	"motoride/internal/domain/driver"
	"motoride/internal/domain/geo"
	"motoride/internal/ports"
)

const (
	lastSearchTTL = 10 * time.Minute
	rejectedTTL   = 2 * time.Hour
)

// FindDrivers runs the candidate pipeline: exclusions, online scan, busy
// filter, radius filter, preference partition, then ranking. The result is
// ordered best-first and memoized as the customer's last search.
func (service *matchingService) FindDrivers(ctx context.Context, req ports.FindDriversRequest) ([]ports.DriverCandidate, error) {
	center := geo.Point{Lat: req.Latitude, Lng: req.Longitude}
	if err := center.Validate(); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	vehicle := driver.VehicleMotorcycle
	if req.VehicleType != "" {
		vt, err := driver.ParseVehicleType(req.VehicleType)
		if err != nil {
			return nil, apperr.Validation("unknown vehicle type %q", req.VehicleType)
		}
		vehicle = vt
	}

	radius := req.RadiusKM
	if radius <= 0 {
		radius = service.cfg.Matching.RadiusKM
	}

	// 1) Exclusions: explicit + booking rejections + customer's blocked set.
	exclude := make(map[string]struct{}, len(req.ExcludeDrivers))
	for _, id := range req.ExcludeDrivers {
		exclude[id] = struct{}{}
	}
	if req.BookingID != "" {
		rejected, err := service.coordination.RejectedDrivers(ctx, req.BookingID)
		if err != nil {
			service.logger.Error(ctx, "rejected_set_read_failed", "Failed to read rejected drivers, continuing without", err,
				map[string]any{"booking_id": req.BookingID})
		}
		for _, id := range rejected {
			exclude[id] = struct{}{}
		}
	}

	// 2) Online scan plus the busy and blocked filters, all inside one tx.
	var online []driver.Driver
	var active map[string]*booking.Booking
	var blocked map[string]struct{}
	var priorTrips map[string]int
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		excludeList := make([]string, 0, len(exclude))
		for id := range exclude {
			excludeList = append(excludeList, id)
		}

		var err error
		online, err = service.drivers.FindOnline(ctx, vehicle, excludeList)
		if err != nil {
			return apperr.Infra(err, "scan online drivers")
		}
		if len(online) == 0 {
			return nil
		}

		ids := make([]string, 0, len(online))
		for _, d := range online {
			ids = append(ids, d.ID)
		}
		active, err = service.bookings.ActiveByDrivers(ctx, ids)
		if err != nil {
			return apperr.Infra(err, "scan active bookings")
		}

		if req.CustomerID != "" {
			blocked, err = service.blockedDrivers(ctx, req.CustomerID, ids)
			if err != nil {
				return err
			}
			since := time.Now().UTC().AddDate(0, 0, -service.cfg.Matching.HistoryWindowDays)
			priorTrips, err = service.bookings.CompletedTripCounts(ctx, req.CustomerID, since, service.cfg.Matching.HistoryLimit)
			if err != nil {
				return apperr.Infra(err, "load trip history")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	explicitPreferred := make(map[string]struct{}, len(req.PreferredDrivers))
	for _, id := range req.PreferredDrivers {
		explicitPreferred[id] = struct{}{}
	}

	// Quality gates are a per-customer preference; anonymous searches skip
	// them entirely.
	var gates customerPreferences
	if req.CustomerID != "" {
		gates = service.customerGates(ctx, req.CustomerID)
	}

	// 3) Build candidates: radius, then per-driver preference rules.
	candidates := make([]ports.DriverCandidate, 0, len(online))
	for _, d := range online {
		if _, busy := active[d.ID]; busy {
			continue
		}
		if _, isBlocked := blocked[d.ID]; isBlocked {
			continue
		}
		if !d.HasKnownLocation() {
			continue
		}
		lat, lng := d.Location()
		loc := geo.Point{Lat: lat, Lng: lng}

		dist := geo.DistanceKM(center, loc)
		if dist > radius {
			continue
		}

		trips := priorTrips[d.ID]
		_, explicit := explicitPreferred[d.ID]
		preferred := explicit || trips >= service.cfg.Matching.PreferredTripThreshold

		// Preferred drivers ride on trust; everyone else passes the
		// customer's quality gates.
		if !preferred && req.CustomerID != "" {
			if !gates.allowsVehicle(d.VehicleType.String()) {
				continue
			}
			if d.Rating < gates.MinRating {
				continue
			}
			if dist > gates.MaxDistanceKM {
				continue
			}
		}

		candidates = append(candidates, ports.DriverCandidate{
			DriverID:          d.ID,
			Name:              d.Name,
			VehicleType:       d.VehicleType.String(),
			VehiclePlate:      d.VehiclePlate,
			Rating:            d.Rating,
			Latitude:          loc.Lat,
			Longitude:         loc.Lng,
			DistanceKM:        geo.RoundKM(dist),
			IsPreferred:       preferred,
			PreviousTripCount: trips,
		})
	}

	// 4) Rank. An explicit preferred list partitions the result, requested
	// drivers first, closest first inside each partition. Otherwise shared
	// history decides, then rating, then proximity.
	if len(req.PreferredDrivers) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			_, aRequested := explicitPreferred[a.DriverID]
			_, bRequested := explicitPreferred[b.DriverID]
			if aRequested != bRequested {
				return aRequested
			}
			return a.DistanceKM < b.DistanceKM
		})
	} else {
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if a.PreviousTripCount != b.PreviousTripCount {
				return a.PreviousTripCount > b.PreviousTripCount
			}
			if a.Rating != b.Rating {
				return a.Rating > b.Rating
			}
			return a.DistanceKM < b.DistanceKM
		})
	}

	if req.CustomerID != "" {
		if payload, err := json.Marshal(candidates); err == nil {
			if err := service.coordination.CacheLastSearch(ctx, req.CustomerID, payload, lastSearchTTL); err != nil {
				service.logger.Error(ctx, "last_search_cache_failed", "Failed to memoize search result", err, nil)
			}
		}
	}

	service.logger.Info(ctx, "drivers_matched", "Produced driver candidates", map[string]any{
		"customer_id": req.CustomerID,
		"booking_id":  req.BookingID,
		"candidates":  len(candidates),
		"radius_km":   radius,
	})
	return candidates, nil
}

// FindDriversForReMatch reruns the pipeline for a booking that lost its
// candidates and refreshes the eligible set so late accepts stay gated.
func (service *matchingService) FindDriversForReMatch(ctx context.Context, bookingID string, req ports.FindDriversRequest) ([]ports.DriverCandidate, error) {
	req.BookingID = bookingID

	candidates, err := service.FindDrivers(ctx, req)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.DriverID)
	}
	if err := service.coordination.SetEligibleDrivers(ctx, bookingID, ids, service.cfg.BookingTimeout()); err != nil {
		return nil, apperr.Infra(err, "refresh eligible drivers")
	}
	return candidates, nil
}

// AddBookingRejectedDriver records a rejection so re-matching skips the
// driver.
func (service *matchingService) AddBookingRejectedDriver(ctx context.Context, bookingID, driverID string) error {
	if err := service.coordination.AddRejectedDriver(ctx, bookingID, driverID, rejectedTTL); err != nil {
		return apperr.Infra(err, "record rejected driver")
	}
	return nil
}
