package service

import (
	"context"
	"encoding/json"
	"time"

	"motoride/internal/domain/geo"
	"motoride/internal/domain/user"
	"motoride/internal/general/contracts"
	"motoride/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RunBackgroundConsumers starts the driver-search intake. It stops when ctx
// is cancelled and reconnects in between.
func (service *matchingService) RunBackgroundConsumers(ctx context.Context) {
	go func() {
		for {
			err := service.rabbitmq.Consume(ctx, contracts.QueueDriverSearch, "matching-driver-search", 10,
				func(ctx context.Context, d amqp.Delivery) error {
					return service.handleSearchRequest(ctx, d.Body)
				})
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				service.logger.Error(ctx, "search_consumer_failed", "Driver search consumer stopped, retrying", err, nil)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()
}

// handleSearchRequest runs one search: produce candidates, arm the eligible
// set, and offer the booking to every candidate. Zero candidates escalates to
// a smart-cancel request.
func (service *matchingService) handleSearchRequest(ctx context.Context, body []byte) error {
	var req contracts.DriverSearchRequested
	if err := json.Unmarshal(body, &req); err != nil {
		service.logger.Error(ctx, "search_request_parse_failed", "Failed to parse driver search request", err, nil)
		return err
	}
	ctx = service.logger.WithBookingID(ctx, req.BookingID)

	candidates, err := service.FindDrivers(ctx, ports.FindDriversRequest{
		CustomerID: req.CustomerID,
		Latitude:   req.Lat,
		Longitude:  req.Lng,
		RadiusKM:   req.RadiusKM,
		BookingID:  req.BookingID,
	})
	if err != nil {
		service.logger.Error(ctx, "driver_search_failed", "Search pipeline failed", err, nil)
		return err
	}

	if len(candidates) == 0 {
		service.logger.Info(ctx, "no_drivers_found", "No candidates for booking, requesting cancellation", nil)
		return service.requestCancel(ctx, req.BookingID, string(ports.ReasonNoDriversFound))
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.DriverID)
	}
	if err := service.coordination.SetEligibleDrivers(ctx, req.BookingID, ids, service.cfg.BookingTimeout()); err != nil {
		service.logger.Error(ctx, "eligible_set_write_failed", "Failed to arm eligible driver set", err, nil)
		return err
	}

	service.offerToCandidates(ctx, req, candidates)
	return nil
}

// offerToCandidates pushes the booking offer to each candidate's session.
// Disconnected drivers are skipped; they were vetted, not promised.
func (service *matchingService) offerToCandidates(ctx context.Context, req contracts.DriverSearchRequested, candidates []ports.DriverCandidate) {
	delivered := 0
	for _, c := range candidates {
		offer := contracts.NewBookingOffer{
			BookingID:   req.BookingID,
			CustomerID:  req.CustomerID,
			Pickup:      geo.Point{Lat: req.Lat, Lng: req.Lng},
			Destination: req.Destination,
			DistanceKM:  c.DistanceKM,
			Envelope: contracts.Envelope{
				CorrelationID: req.CorrelationID,
				Producer:      "matching-service",
				SentAt:        time.Now().UTC(),
			},
		}
		if err := service.sessions.SendToUser(ctx, c.DriverID, user.RoleDriver, "new_booking_offer", offer); err != nil {
			service.logger.Debug(ctx, "offer_push_skipped", "Candidate not reachable over WebSocket",
				map[string]any{"driver_id": c.DriverID})
			continue
		}
		delivered++
	}

	service.logger.Info(ctx, "offers_pushed", "Pushed booking offers to candidates", map[string]any{
		"candidates": len(candidates),
		"delivered":  delivered,
	})
}

// requestCancel asks the coordinator to smart-cancel the booking.
func (service *matchingService) requestCancel(ctx context.Context, bookingID, reason string) error {
	body, err := json.Marshal(contracts.CancelRequested{
		BookingID: bookingID,
		Reason:    reason,
		Envelope: contracts.Envelope{
			Producer: "matching-service",
			SentAt:   time.Now().UTC(),
		},
	})
	if err != nil {
		return err
	}
	if err := service.pub.Publish(contracts.ExchangeBookingTopic, contracts.TopicCancelRequested, body); err != nil {
		service.logger.Error(ctx, "cancel_request_publish_failed", "Failed to publish cancel request", err, nil)
		return err
	}
	return nil
}
