package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"motoride/internal/domain/user"
	"motoride/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// runConsumers starts one consumer per intake queue; each reconnects until
// ctx is cancelled.
func (service *notifyService) runConsumers(ctx context.Context) {
	go service.consumeLoop(ctx, contracts.QueueBookingEvents, "notify-booking-events", service.handleBookingEvent)
	go service.consumeLoop(ctx, contracts.QueueTripEvents, "notify-trip-events", service.handleTripEvent)
	go service.consumeLoop(ctx, contracts.QueuePaymentEvents, "notify-payment-events", service.handlePaymentEvent)
}

func (service *notifyService) consumeLoop(ctx context.Context, queue, tag string, handle func(context.Context, string, []byte) error) {
	for {
		err := service.rabbitmq.Consume(ctx, queue, tag, 10,
			func(ctx context.Context, d amqp.Delivery) error {
				return handle(ctx, d.RoutingKey, d.Body)
			})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			service.logger.Error(ctx, "notify_consumer_failed", "Consumer stopped, retrying", err,
				map[string]any{"queue": queue})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// handleBookingEvent fans a booking lifecycle event out to the users it
// concerns.
func (service *notifyService) handleBookingEvent(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case contracts.TopicBookingCreated:
		var evt contracts.BookingCreated
		if err := json.Unmarshal(body, &evt); err != nil {
			return err
		}
		ctx = service.logger.WithBookingID(ctx, evt.BookingID)
		service.deliver(ctx, evt.CustomerID, user.RoleCustomer, routingKey,
			"Your booking was created. Looking for a driver nearby.", evt.BookingID)

	case contracts.TopicBookingAccepted:
		var evt contracts.BookingAccepted
		if err := json.Unmarshal(body, &evt); err != nil {
			return err
		}
		ctx = service.logger.WithBookingID(ctx, evt.BookingID)
		content := "A driver accepted your booking."
		if evt.DriverName != "" {
			content = fmt.Sprintf("%s accepted your booking.", evt.DriverName)
		}
		service.deliver(ctx, evt.CustomerID, user.RoleCustomer, routingKey, content, evt.BookingID)
		service.deliver(ctx, evt.DriverID, user.RoleDriver, routingKey,
			"You accepted the booking. Head to the pickup point.", evt.BookingID)

	case contracts.TopicBookingTaken:
		// The winner already got booking.accepted; losers learn from the
		// gateway broadcast. Nothing durable to record per user here.

	case contracts.TopicBookingRejected:
		// A single driver's rejection is internal coordination state, not a
		// customer-visible moment.

	case contracts.TopicBookingCancelled:
		var evt contracts.BookingCancelled
		if err := json.Unmarshal(body, &evt); err != nil {
			return err
		}
		ctx = service.logger.WithBookingID(ctx, evt.BookingID)
		content := "Your booking was cancelled."
		if evt.CancelledBy == "system" {
			content = "Your booking was cancelled automatically"
			if evt.Reason != "" {
				content += ": " + humanReason(evt.Reason)
			}
			content += "."
		}
		service.deliver(ctx, evt.CustomerID, user.RoleCustomer, routingKey, content, evt.BookingID)
		if evt.DriverID != "" {
			service.deliver(ctx, evt.DriverID, user.RoleDriver, routingKey,
				"The booking you were assigned to was cancelled.", evt.BookingID)
		}

	case contracts.TopicBookingCompleted:
		var evt contracts.BookingCompleted
		if err := json.Unmarshal(body, &evt); err != nil {
			return err
		}
		ctx = service.logger.WithBookingID(ctx, evt.BookingID)
		service.deliver(ctx, evt.CustomerID, user.RoleCustomer, routingKey,
			"Your trip is complete. Thanks for riding with us.", evt.BookingID)
		service.deliver(ctx, evt.DriverID, user.RoleDriver, routingKey,
			"Trip completed.", evt.BookingID)

	default:
		service.logger.Debug(ctx, "booking_event_ignored", "No notification rule for routing key",
			map[string]any{"routing_key": routingKey})
	}
	return nil
}

// handleTripEvent notifies both sides about trip progress.
func (service *notifyService) handleTripEvent(ctx context.Context, routingKey string, body []byte) error {
	var evt contracts.TripEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return err
	}
	if evt.BookingID != "" {
		ctx = service.logger.WithBookingID(ctx, evt.BookingID)
	}

	switch routingKey {
	case contracts.TopicTripStarted:
		service.deliver(ctx, evt.CustomerID, user.RoleCustomer, routingKey,
			"Your trip has started.", evt.BookingID)
	case contracts.TopicTripEnded:
		service.deliver(ctx, evt.CustomerID, user.RoleCustomer, routingKey,
			"Your trip has ended.", evt.BookingID)
	default:
		// trip.updated is position noise for the notification feed
	}
	return nil
}

// handlePaymentEvent notifies the payer about settled or failed payments.
func (service *notifyService) handlePaymentEvent(ctx context.Context, routingKey string, body []byte) error {
	var evt contracts.PaymentEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return err
	}

	content := fmt.Sprintf("Payment update: %s.", evt.Status)
	if evt.Amount > 0 {
		content = fmt.Sprintf("Payment of %.2f is %s.", evt.Amount, evt.Status)
	}
	service.deliver(ctx, evt.CustomerID, user.RoleCustomer, routingKey, content, evt.BookingID)
	if evt.DriverID != "" {
		service.deliver(ctx, evt.DriverID, user.RoleDriver, routingKey,
			"A payout update is available.", evt.BookingID)
	}
	return nil
}

func humanReason(reason string) string {
	switch reason {
	case "no_drivers_found":
		return "no drivers were found nearby"
	case "all_drivers_rejected":
		return "no driver took the booking"
	case "timeout":
		return "no driver accepted in time"
	default:
		return reason
	}
}
