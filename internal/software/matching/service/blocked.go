package service

import (
	"context"
	"time"

	"motoride/internal/apperr"
)

const blockedCacheTTL = time.Hour

// blockedDrivers resolves the customer's blocked set for the given candidate
// drivers. A driver is blocked when the customer cancelled on them at least
// the configured number of times inside the rolling window. The derivation is
// memoized; an empty result is still a cache hit.
func (service *matchingService) blockedDrivers(ctx context.Context, customerID string, candidateIDs []string) (map[string]struct{}, error) {
	cached, found, err := service.coordination.CachedBlockedDrivers(ctx, customerID)
	if err != nil {
		service.logger.Error(ctx, "blocked_cache_read_failed", "Failed to read blocked cache, deriving fresh", err,
			map[string]any{"customer_id": customerID})
	} else if found {
		out := make(map[string]struct{}, len(cached))
		for _, id := range cached {
			out[id] = struct{}{}
		}
		return out, nil
	}

	since := time.Now().UTC().AddDate(0, 0, -service.cfg.Matching.BlockedWindowDays)
	threshold := service.cfg.Matching.BlockedCancellationThreshold

	blocked := make(map[string]struct{})
	list := make([]string, 0)
	for _, id := range candidateIDs {
		n, err := service.bookings.CountCancellationsBy(ctx, customerID, id, since)
		if err != nil {
			return nil, apperr.Infra(err, "count cancellations")
		}
		if n >= threshold {
			blocked[id] = struct{}{}
			list = append(list, id)
		}
	}

	if err := service.coordination.CacheBlockedDrivers(ctx, customerID, list, blockedCacheTTL); err != nil {
		service.logger.Error(ctx, "blocked_cache_write_failed", "Failed to memoize blocked set", err,
			map[string]any{"customer_id": customerID})
	}
	return blocked, nil
}
