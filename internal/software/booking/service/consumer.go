package service

import (
	"context"
	"encoding/json"
	"time"

	"motoride/internal/general/contracts"
	"motoride/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// runTripBridgeConsumer applies trip subsystem progress to the booking row:
// trip.started moves ACCEPTED -> ONGOING, trip.ended moves ONGOING ->
// COMPLETED. The consumer reconnects until ctx is cancelled.
func (service *bookingService) runTripBridgeConsumer(ctx context.Context) {
	for {
		err := service.rabbitmq.Consume(ctx, contracts.QueueBookingTripBridge, "booking-trip-bridge", 10,
			func(ctx context.Context, d amqp.Delivery) error {
				return service.handleTripEvent(ctx, d.RoutingKey, d.Body)
			})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			service.logger.Error(ctx, "trip_bridge_consumer_failed", "Trip bridge consumer stopped, retrying", err, nil)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (service *bookingService) handleTripEvent(ctx context.Context, routingKey string, body []byte) error {
	var evt contracts.TripEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		service.logger.Error(ctx, "trip_event_parse_failed", "Failed to parse trip event", err,
			map[string]any{"routing_key": routingKey})
		return err
	}
	if evt.BookingID == "" {
		return nil // not booking-scoped, nothing to bridge
	}
	ctx = service.logger.WithBookingID(ctx, evt.BookingID)

	when := evt.OccurredAt
	if when.IsZero() {
		when = time.Now().UTC()
	}

	switch routingKey {
	case contracts.TopicTripStarted:
		if _, err := service.startBookingFromTrip(ctx, evt.BookingID, when); err != nil {
			service.logger.Error(ctx, "trip_start_bridge_failed", "Failed to apply trip start", err, nil)
			return err
		}
	case contracts.TopicTripEnded:
		if _, err := service.CompleteBookingFromTrip(ctx, evt.BookingID, when); err != nil {
			service.logger.Error(ctx, "trip_end_bridge_failed", "Failed to apply trip end", err, nil)
			return err
		}
	default:
		// trip.updated and friends carry no booking state change
	}
	return nil
}

// runCancelRequestConsumer serves smart-cancel requests from the matching
// engine (for example when a search produced zero candidates).
func (service *bookingService) runCancelRequestConsumer(ctx context.Context) {
	for {
		err := service.rabbitmq.Consume(ctx, contracts.QueueMatchCancelRequest, "booking-cancel-requests", 10,
			func(ctx context.Context, d amqp.Delivery) error {
				var req contracts.CancelRequested
				if err := json.Unmarshal(d.Body, &req); err != nil {
					service.logger.Error(ctx, "cancel_request_parse_failed", "Failed to parse cancel request", err, nil)
					return err
				}

				reason := ports.SmartCancelReason(req.Reason)
				switch reason {
				case ports.ReasonNoDriversFound, ports.ReasonAllDriversRejected, ports.ReasonTimeout:
				default:
					reason = ports.ReasonSystem
				}

				_, err := service.SmartCancelBooking(ctx, req.BookingID, reason)
				return err
			})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			service.logger.Error(ctx, "cancel_consumer_failed", "Cancel request consumer stopped, retrying", err, nil)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
