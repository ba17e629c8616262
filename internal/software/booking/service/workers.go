package service

import (
	"context"
	"time"

	"motoride/internal/ports"
)

// RunBackgroundWorkers starts the timeout reaper and the message consumers.
// All of them stop when ctx is cancelled.
func (service *bookingService) RunBackgroundWorkers(ctx context.Context) {
	go service.runTimeoutReaper(ctx)
	go service.runTripBridgeConsumer(ctx)
	go service.runCancelRequestConsumer(ctx)
}

// runTimeoutReaper sweeps PENDING bookings on a fixed cadence. A booking
// whose timeout marker has expired out of the KVS is past its wait budget
// and gets system-cancelled.
func (service *bookingService) runTimeoutReaper(ctx context.Context) {
	if !service.cfg.Booking.AutoCancelEnabled {
		service.logger.Info(ctx, "reaper_disabled", "Timeout reaper disabled by config", nil)
		return
	}

	ticker := time.NewTicker(service.cfg.ReaperInterval())
	defer ticker.Stop()

	service.logger.Info(ctx, "reaper_started", "Timeout reaper started", map[string]any{
		"interval": service.cfg.ReaperInterval().String(),
	})

	for {
		select {
		case <-ctx.Done():
			service.logger.Info(ctx, "reaper_stopped", "Timeout reaper stopped", nil)
			return
		case <-ticker.C:
			service.reapExpiredBookings(ctx)
		}
	}
}

func (service *bookingService) reapExpiredBookings(ctx context.Context) {
	var pending []string
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		pending, err = service.bookings.ListPendingIDs(ctx)
		return err
	})
	if err != nil {
		service.logger.Error(ctx, "reaper_scan_failed", "Failed to enumerate pending bookings", err, nil)
		return
	}

	for _, id := range pending {
		armed, err := service.coordination.TimeoutArmed(ctx, id)
		if err != nil {
			service.logger.Error(ctx, "reaper_probe_failed", "Failed to probe timeout marker", err,
				map[string]any{"booking_id": id})
			continue
		}
		if armed {
			continue // still inside its wait budget
		}

		if _, err := service.SmartCancelBooking(ctx, id, ports.ReasonTimeout); err != nil {
			service.logger.Error(ctx, "reaper_cancel_failed", "Failed to cancel expired booking", err,
				map[string]any{"booking_id": id})
		}
	}
}
