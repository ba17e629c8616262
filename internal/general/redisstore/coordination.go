package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"motoride/internal/domain/booking"
	"motoride/internal/ports"

	"github.com/redis/go-redis/v9"
)

// Key layout. Everything scoped to a booking is purged on any terminal
// transition; customer caches expire on their own TTLs.
const (
	keyBookingShadow   = "booking:%s"                   // hash
	keyBookingTimeout  = "booking:%s:timeout"           // value with TTL
	keyEligibleDrivers = "booking:%s:eligible-drivers"  // set
	keyRejectedDrivers = "booking:%s:rejected-drivers"  // set
	keyAcceptLock      = "lock:booking:%s:accept"       // value with short TTL
	keyBlockedDrivers  = "customer:%s:blocked-drivers"  // set
	keyPreferences     = "customer:%s:preferences"      // serialized blob
	keyLastSearch      = "customer:%s:last-search"      // serialized blob
)

// Store implements ports.CoordinationStore on Redis.
type Store struct {
	client *redis.Client
}

// NewStore wraps a connected Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

var _ ports.CoordinationStore = (*Store)(nil)

// WriteBookingShadow stores a fast-read copy of the booking as a hash. The
// shadow is never authoritative; divergence resolves in the database's favor.
func (s *Store) WriteBookingShadow(ctx context.Context, b *booking.Booking, ttl time.Duration) error {
	key := fmt.Sprintf(keyBookingShadow, b.ID)

	fields := map[string]any{
		"id":          b.ID,
		"customer_id": b.CustomerID,
		"status":      b.Status.String(),
		"pickup_lat":  strconv.FormatFloat(b.Pickup.Lat, 'f', -1, 64),
		"pickup_lng":  strconv.FormatFloat(b.Pickup.Lng, 'f', -1, 64),
		"dest_lat":    strconv.FormatFloat(b.Destination.Lat, 'f', -1, 64),
		"dest_lng":    strconv.FormatFloat(b.Destination.Lng, 'f', -1, 64),
		"created_at":  b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.DriverID != nil {
		fields["driver_id"] = *b.DriverID
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// ArmBookingTimeout writes the timeout marker. Its disappearance (TTL expiry)
// is what the reaper interprets as "pending too long".
func (s *Store) ArmBookingTimeout(ctx context.Context, bookingID string, ttl time.Duration) error {
	return s.client.Set(ctx, fmt.Sprintf(keyBookingTimeout, bookingID), "1", ttl).Err()
}

// TimeoutArmed reports whether the timeout marker still exists.
func (s *Store) TimeoutArmed(ctx context.Context, bookingID string) (bool, error) {
	n, err := s.client.Exists(ctx, fmt.Sprintf(keyBookingTimeout, bookingID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeBooking deletes every booking-scoped key in one round trip.
func (s *Store) PurgeBooking(ctx context.Context, bookingID string) error {
	return s.client.Del(ctx,
		fmt.Sprintf(keyBookingShadow, bookingID),
		fmt.Sprintf(keyBookingTimeout, bookingID),
		fmt.Sprintf(keyEligibleDrivers, bookingID),
		fmt.Sprintf(keyRejectedDrivers, bookingID),
	).Err()
}

// AcquireAcceptLock is SET NX with expiry. False means another driver is in
// the accept critical section right now.
func (s *Store) AcquireAcceptLock(ctx context.Context, bookingID, driverID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, fmt.Sprintf(keyAcceptLock, bookingID), driverID, ttl).Result()
}

// ReleaseAcceptLock drops the lock. The TTL bounds the damage if this fails.
func (s *Store) ReleaseAcceptLock(ctx context.Context, bookingID string) error {
	return s.client.Del(ctx, fmt.Sprintf(keyAcceptLock, bookingID)).Err()
}

// SetEligibleDrivers replaces the candidate set for a booking.
func (s *Store) SetEligibleDrivers(ctx context.Context, bookingID string, driverIDs []string, ttl time.Duration) error {
	key := fmt.Sprintf(keyEligibleDrivers, bookingID)

	members := make([]any, 0, len(driverIDs))
	for _, id := range driverIDs {
		members = append(members, id)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// IsEligibleDriver gates the accept path: only produced candidates may take
// the booking.
func (s *Store) IsEligibleDriver(ctx context.Context, bookingID, driverID string) (bool, error) {
	return s.client.SIsMember(ctx, fmt.Sprintf(keyEligibleDrivers, bookingID), driverID).Result()
}

// EligibleDrivers lists the current candidate set.
func (s *Store) EligibleDrivers(ctx context.Context, bookingID string) ([]string, error) {
	return s.client.SMembers(ctx, fmt.Sprintf(keyEligibleDrivers, bookingID)).Result()
}

// AddRejectedDriver records an explicit rejection; the TTL is applied on the
// first insert only.
func (s *Store) AddRejectedDriver(ctx context.Context, bookingID, driverID string, ttl time.Duration) error {
	key := fmt.Sprintf(keyRejectedDrivers, bookingID)

	added, err := s.client.SAdd(ctx, key, driverID).Result()
	if err != nil {
		return err
	}
	if added > 0 {
		// only arm the expiry when the set was just created or grew
		if dur, err := s.client.TTL(ctx, key).Result(); err == nil && dur < 0 {
			return s.client.Expire(ctx, key, ttl).Err()
		}
	}
	return nil
}

// RejectedDrivers lists drivers who explicitly rejected the booking.
func (s *Store) RejectedDrivers(ctx context.Context, bookingID string) ([]string, error) {
	return s.client.SMembers(ctx, fmt.Sprintf(keyRejectedDrivers, bookingID)).Result()
}

// CacheBlockedDrivers memoizes the derived blocked set for a customer.
func (s *Store) CacheBlockedDrivers(ctx context.Context, customerID string, driverIDs []string, ttl time.Duration) error {
	key := fmt.Sprintf(keyBlockedDrivers, customerID)

	members := make([]any, 0, len(driverIDs)+1)
	// sentinel member so an empty derivation is still a cache hit
	members = append(members, "__none__")
	for _, id := range driverIDs {
		members = append(members, id)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// CachedBlockedDrivers returns the memoized blocked set and whether the cache
// was populated at all.
func (s *Store) CachedBlockedDrivers(ctx context.Context, customerID string) ([]string, bool, error) {
	members, err := s.client.SMembers(ctx, fmt.Sprintf(keyBlockedDrivers, customerID)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(members) == 0 {
		return nil, false, nil
	}

	out := make([]string, 0, len(members))
	for _, m := range members {
		if m == "__none__" {
			continue
		}
		out = append(out, m)
	}
	return out, true, nil
}

// CachePreferences stores the customer's serialized matching preferences.
func (s *Store) CachePreferences(ctx context.Context, customerID string, payload []byte, ttl time.Duration) error {
	return s.client.Set(ctx, fmt.Sprintf(keyPreferences, customerID), payload, ttl).Err()
}

// CachedPreferences returns the preferences blob and whether it exists.
func (s *Store) CachedPreferences(ctx context.Context, customerID string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, fmt.Sprintf(keyPreferences, customerID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// CacheLastSearch stores the serialized last findDrivers result.
func (s *Store) CacheLastSearch(ctx context.Context, customerID string, payload []byte, ttl time.Duration) error {
	return s.client.Set(ctx, fmt.Sprintf(keyLastSearch, customerID), payload, ttl).Err()
}
