package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// preferencesTTL bounds how long a customer's matching preferences stay
// cached before the defaults are re-seeded.
const preferencesTTL = time.Hour

// customerPreferences are the per-customer quality gates applied to
// non-preferred candidates. An empty vehicle list allows every type.
type customerPreferences struct {
	VehicleTypes  []string `json:"vehicle_types,omitempty"`
	MinRating     float64  `json:"min_rating"`
	MaxDistanceKM float64  `json:"max_distance_km"`
}

func (p customerPreferences) allowsVehicle(vehicleType string) bool {
	if len(p.VehicleTypes) == 0 {
		return true
	}
	for _, allowed := range p.VehicleTypes {
		if strings.EqualFold(allowed, vehicleType) {
			return true
		}
	}
	return false
}

// customerGates returns the customer's cached preferences, falling back to
// the configured defaults. A cache miss seeds the blob so later searches and
// sibling services read the same gates.
func (service *matchingService) customerGates(ctx context.Context, customerID string) customerPreferences {
	defaults := customerPreferences{
		MinRating:     service.cfg.Matching.MinRating,
		MaxDistanceKM: service.cfg.Matching.MaxDistanceKM,
	}

	raw, found, err := service.coordination.CachedPreferences(ctx, customerID)
	if err != nil {
		service.logger.Error(ctx, "preferences_read_failed", "Failed to read customer preferences, using defaults", err,
			map[string]any{"customer_id": customerID})
		return defaults
	}
	if found {
		prefs := defaults
		if err := json.Unmarshal(raw, &prefs); err != nil {
			service.logger.Error(ctx, "preferences_decode_failed", "Corrupt preferences blob, using defaults", err,
				map[string]any{"customer_id": customerID})
			return defaults
		}
		return prefs
	}

	if payload, err := json.Marshal(defaults); err == nil {
		if err := service.coordination.CachePreferences(ctx, customerID, payload, preferencesTTL); err != nil {
			service.logger.Error(ctx, "preferences_cache_failed", "Failed to seed customer preferences", err,
				map[string]any{"customer_id": customerID})
		}
	}
	return defaults
}
