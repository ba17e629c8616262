package redisstore

import (
	"context"
	"testing"
	"time"

	"motoride/internal/domain/booking"
	"motoride/internal/domain/geo"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewStore(client)
}

func TestBookingShadow(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	drv := "drv-1"
	b := &booking.Booking{
		ID:          "bk-1",
		CustomerID:  "cust-1",
		DriverID:    &drv,
		Pickup:      geo.Point{Lat: -6.2, Lng: 106.8},
		Destination: geo.Point{Lat: -6.3, Lng: 106.7},
		Status:      booking.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.WriteBookingShadow(ctx, b, 3*time.Minute))

	assert.Equal(t, "bk-1", mr.HGet("booking:bk-1", "id"))
	assert.Equal(t, "PENDING", mr.HGet("booking:bk-1", "status"))
	assert.Equal(t, "drv-1", mr.HGet("booking:bk-1", "driver_id"))

	mr.FastForward(4 * time.Minute)
	assert.False(t, mr.Exists("booking:bk-1"))
}

func TestTimeoutMarker(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.ArmBookingTimeout(ctx, "bk-1", time.Minute))

	armed, err := store.TimeoutArmed(ctx, "bk-1")
	require.NoError(t, err)
	assert.True(t, armed)

	// expiry is the timeout signal the reaper acts on
	mr.FastForward(2 * time.Minute)
	armed, err = store.TimeoutArmed(ctx, "bk-1")
	require.NoError(t, err)
	assert.False(t, armed)
}

func TestAcceptLock(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	ok, err := store.AcquireAcceptLock(ctx, "bk-1", "drv-1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// second contender loses while the lock is held
	ok, err = store.AcquireAcceptLock(ctx, "bk-1", "drv-2", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ReleaseAcceptLock(ctx, "bk-1"))
	ok, err = store.AcquireAcceptLock(ctx, "bk-1", "drv-2", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// the TTL bounds a lost lock even when release never happens
	mr.FastForward(11 * time.Second)
	ok, err = store.AcquireAcceptLock(ctx, "bk-1", "drv-3", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEligibleDrivers(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetEligibleDrivers(ctx, "bk-1", []string{"drv-1", "drv-2"}, time.Minute))

	ok, err := store.IsEligibleDriver(ctx, "bk-1", "drv-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsEligibleDriver(ctx, "bk-1", "drv-9")
	require.NoError(t, err)
	assert.False(t, ok)

	// replacing the set drops stale members
	require.NoError(t, store.SetEligibleDrivers(ctx, "bk-1", []string{"drv-3"}, time.Minute))
	members, err := store.EligibleDrivers(ctx, "bk-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"drv-3"}, members)

	// an empty replacement clears the key entirely
	require.NoError(t, store.SetEligibleDrivers(ctx, "bk-1", nil, time.Minute))
	members, err = store.EligibleDrivers(ctx, "bk-1")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRejectedDrivers(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddRejectedDriver(ctx, "bk-1", "drv-1", time.Hour))
	require.NoError(t, store.AddRejectedDriver(ctx, "bk-1", "drv-2", time.Hour))
	require.NoError(t, store.AddRejectedDriver(ctx, "bk-1", "drv-1", time.Hour)) // duplicate

	members, err := store.RejectedDrivers(ctx, "bk-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"drv-1", "drv-2"}, members)
}

func TestPurgeBooking(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	b := &booking.Booking{
		ID:         "bk-1",
		CustomerID: "cust-1",
		Status:     booking.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.WriteBookingShadow(ctx, b, time.Minute))
	require.NoError(t, store.ArmBookingTimeout(ctx, "bk-1", time.Minute))
	require.NoError(t, store.SetEligibleDrivers(ctx, "bk-1", []string{"drv-1"}, time.Minute))
	require.NoError(t, store.AddRejectedDriver(ctx, "bk-1", "drv-2", time.Minute))

	require.NoError(t, store.PurgeBooking(ctx, "bk-1"))

	assert.False(t, mr.Exists("booking:bk-1"))
	assert.False(t, mr.Exists("booking:bk-1:timeout"))
	assert.False(t, mr.Exists("booking:bk-1:eligible-drivers"))
	assert.False(t, mr.Exists("booking:bk-1:rejected-drivers"))
}

func TestBlockedDriversCache(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	// cold cache
	_, found, err := store.CachedBlockedDrivers(ctx, "cust-1")
	require.NoError(t, err)
	assert.False(t, found)

	// an empty derivation is still a hit thanks to the sentinel member
	require.NoError(t, store.CacheBlockedDrivers(ctx, "cust-1", nil, time.Hour))
	ids, found, err := store.CachedBlockedDrivers(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, ids)

	require.NoError(t, store.CacheBlockedDrivers(ctx, "cust-1", []string{"drv-1", "drv-2"}, time.Hour))
	ids, found, err = store.CachedBlockedDrivers(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.ElementsMatch(t, []string{"drv-1", "drv-2"}, ids)
}

func TestPreferencesCache(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	// cold cache
	_, found, err := store.CachedPreferences(ctx, "cust-1")
	require.NoError(t, err)
	assert.False(t, found)

	blob := []byte(`{"min_rating":4.5,"max_distance_km":5}`)
	require.NoError(t, store.CachePreferences(ctx, "cust-1", blob, time.Hour))

	got, found, err := store.CachedPreferences(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, blob, got)

	mr.FastForward(2 * time.Hour)
	_, found, err = store.CachedPreferences(ctx, "cust-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheLastSearch(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CacheLastSearch(ctx, "cust-1", []byte(`[{"driver_id":"drv-1"}]`), 10*time.Minute))

	got, err := mr.Get("customer:cust-1:last-search")
	require.NoError(t, err)
	assert.Equal(t, `[{"driver_id":"drv-1"}]`, got)

	mr.FastForward(11 * time.Minute)
	assert.False(t, mr.Exists("customer:cust-1:last-search"))
}
