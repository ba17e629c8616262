package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"motoride/internal/general/contracts"
)

const producerName = "booking-service"

// generateCorrelationID creates a simple correlation ID for tracing requests.
func generateCorrelationID() string {
	var b [3]byte // 6 hex chars
	_, _ = rand.Read(b[:])
	ts := time.Now().UTC().Format("20060102T150405")
	return "bk_" + ts + "_" + hex.EncodeToString(b[:])
}

// envelope stamps producer metadata on an outgoing event.
func envelope() contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: generateCorrelationID(),
		Producer:      producerName,
		SentAt:        time.Now().UTC(),
	}
}

// publishEvent marshals and publishes one event, logging the outcome.
func (service *bookingService) publishEvent(ctx context.Context, exchange, routingKey string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := service.pub.Publish(exchange, routingKey, body); err != nil {
		service.logger.Error(ctx, "event_publish_failed", "Failed to publish event", err, map[string]any{
			"exchange":    exchange,
			"routing_key": routingKey,
		})
		return err
	}

	service.logger.Info(ctx, "event_published", "Published event to RabbitMQ", map[string]any{
		"exchange":    exchange,
		"routing_key": routingKey,
	})
	return nil
}

// retryKVS runs fn up to attempts times with doubling backoff starting at
// base. Used on the create path where the coordination keys are load-bearing.
func retryKVS(ctx context.Context, attempts int, base time.Duration, fn func(context.Context) error) error {
	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
