package rabbitmq

import (
	"fmt"

	"motoride/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

func declareTopology(ch *amqp.Channel) error {
	// 1. Exchanges
	exchanges := []struct {
		name string
		kind string
	}{
		{contracts.ExchangeBookingTopic, "topic"},
		{contracts.ExchangeDriverTopic, "topic"},
		{contracts.ExchangeTripTopic, "topic"},
	}

	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	// 2. Queues
	queues := []string{
		contracts.QueueDriverSearch,
		contracts.QueueBookingEvents,
		contracts.QueueTripEvents,
		contracts.QueuePaymentEvents,
		contracts.QueueBookingTripBridge,
		contracts.QueueMatchCancelRequest,
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	// 3. Bindings
	bindings := []struct {
		queue      string
		exchange   string
		routingKey string
	}{
		{contracts.QueueDriverSearch, contracts.ExchangeDriverTopic, contracts.TopicDriverSearchRequested},
		{contracts.QueueBookingEvents, contracts.ExchangeBookingTopic, contracts.RouteBookingPrefix + "*"},
		{contracts.QueueTripEvents, contracts.ExchangeTripTopic, contracts.RouteTripPrefix + "*"},
		{contracts.QueuePaymentEvents, contracts.ExchangeTripTopic, contracts.RoutePaymentPrefix + "*"},
		{contracts.QueueBookingTripBridge, contracts.ExchangeTripTopic, contracts.RouteTripPrefix + "*"},
		{contracts.QueueMatchCancelRequest, contracts.ExchangeBookingTopic, contracts.TopicCancelRequested},
	}

	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
