package service

import (
	"context"
	"sync"
	"time"

	"motoride/internal/domain/booking"
	"motoride/internal/domain/driver"
	"motoride/internal/domain/geo"
	"motoride/internal/domain/user"
	"motoride/internal/general/config"
	"motoride/internal/general/logger"
	"motoride/internal/ports"
)

// ----- fakes -----
//
// The stubs embed their port interface so only the methods the matching
// engine actually calls need implementations.

type fakeUOW struct{}

func (fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubBookingRepo struct {
	ports.BookingRepository

	mu            sync.Mutex
	rows          map[string]*booking.Booking // booking id -> row
	active        map[string]*booking.Booking // driver id -> active booking
	cancellations map[string]int              // "customer|driver" -> count
	tripCounts    map[string]int              // driver id -> completed trips
}

func newStubBookingRepo() *stubBookingRepo {
	return &stubBookingRepo{
		rows:          make(map[string]*booking.Booking),
		active:        make(map[string]*booking.Booking),
		cancellations: make(map[string]int),
		tripCounts:    make(map[string]int),
	}
}

func (r *stubBookingRepo) GetByID(_ context.Context, id string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *stubBookingRepo) ActiveByDrivers(_ context.Context, driverIDs []string) (map[string]*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*booking.Booking)
	for _, id := range driverIDs {
		if b, ok := r.active[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func (r *stubBookingRepo) CountCancellationsBy(_ context.Context, customerID, driverID string, _ time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancellations[customerID+"|"+driverID], nil
}

func (r *stubBookingRepo) CompletedTripCounts(_ context.Context, _ string, _ time.Time, _ int) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.tripCounts))
	for k, v := range r.tripCounts {
		out[k] = v
	}
	return out, nil
}

type stubDriverRepo struct {
	ports.DriverRepository

	mu          sync.Mutex
	drivers     []driver.Driver
	lastExclude []string
}

func (r *stubDriverRepo) GetByID(_ context.Context, driverID string) (*driver.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.drivers {
		if d.ID == driverID {
			cp := d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *stubDriverRepo) FindOnline(_ context.Context, vehicle driver.VehicleType, exclude []string) ([]driver.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastExclude = append([]string(nil), exclude...)

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	out := make([]driver.Driver, 0)
	for _, d := range r.drivers {
		if !d.Online || d.VehicleType != vehicle {
			continue
		}
		if _, excluded := skip[d.ID]; excluded {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type stubCoordination struct {
	ports.CoordinationStore

	mu         sync.Mutex
	eligible   map[string][]string
	rejected   map[string][]string
	blocked    map[string][]string
	prefs      map[string][]byte
	lastSearch map[string][]byte
}

func newStubCoordination() *stubCoordination {
	return &stubCoordination{
		eligible:   make(map[string][]string),
		rejected:   make(map[string][]string),
		blocked:    make(map[string][]string),
		prefs:      make(map[string][]byte),
		lastSearch: make(map[string][]byte),
	}
}

func (c *stubCoordination) SetEligibleDrivers(_ context.Context, bookingID string, driverIDs []string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eligible[bookingID] = append([]string(nil), driverIDs...)
	return nil
}

func (c *stubCoordination) EligibleDrivers(_ context.Context, bookingID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.eligible[bookingID]...), nil
}

func (c *stubCoordination) AddRejectedDriver(_ context.Context, bookingID, driverID string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected[bookingID] = append(c.rejected[bookingID], driverID)
	return nil
}

func (c *stubCoordination) RejectedDrivers(_ context.Context, bookingID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejected[bookingID], nil
}

func (c *stubCoordination) CacheBlockedDrivers(_ context.Context, customerID string, driverIDs []string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked[customerID] = append([]string(nil), driverIDs...)
	return nil
}

func (c *stubCoordination) CachedBlockedDrivers(_ context.Context, customerID string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.blocked[customerID]
	return ids, ok, nil
}

func (c *stubCoordination) CachePreferences(_ context.Context, customerID string, payload []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefs[customerID] = payload
	return nil
}

func (c *stubCoordination) CachedPreferences(_ context.Context, customerID string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.prefs[customerID]
	return raw, ok, nil
}

func (c *stubCoordination) CacheLastSearch(_ context.Context, customerID string, payload []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSearch[customerID] = payload
	return nil
}

type pushedEvent struct {
	UserID string
	Role   user.Role
	Event  string
}

type stubPusher struct {
	mu          sync.Mutex
	pushed      []pushedEvent
	unreachable map[string]struct{} // user ids that fail the push
}

func (p *stubPusher) SendToUser(_ context.Context, userID string, role user.Role, event string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, off := p.unreachable[userID]; off {
		return context.DeadlineExceeded
	}
	p.pushed = append(p.pushed, pushedEvent{UserID: userID, Role: role, Event: event})
	return nil
}

func (p *stubPusher) BroadcastToNearbyDrivers(context.Context, geo.Point, float64, string, any) (int, error) {
	return 0, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []struct {
		Exchange, RoutingKey string
		Body                 []byte
	}
}

func (p *recordingPublisher) Publish(exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, struct {
		Exchange, RoutingKey string
		Body                 []byte
	}{exchange, routingKey, body})
	return nil
}

// ----- setup -----

type matchEnv struct {
	svc     ports.MatchingService
	repo    *stubBookingRepo
	drivers *stubDriverRepo
	coord   *stubCoordination
	pusher  *stubPusher
	pub     *recordingPublisher
	cfg     *config.Config
}

func newMatchEnv() *matchEnv {
	cfg := &config.Config{}
	cfg.Booking.TimeoutMinutes = 3
	cfg.Matching.RadiusKM = 1
	cfg.Matching.MinRating = 3.0
	cfg.Matching.MaxDistanceKM = 5
	cfg.Matching.PreferredTripThreshold = 2
	cfg.Matching.BlockedCancellationThreshold = 3
	cfg.Matching.BlockedWindowDays = 30
	cfg.Matching.HistoryWindowDays = 90
	cfg.Matching.HistoryLimit = 50

	env := &matchEnv{
		repo:    newStubBookingRepo(),
		drivers: &stubDriverRepo{},
		coord:   newStubCoordination(),
		pusher:  &stubPusher{unreachable: make(map[string]struct{})},
		pub:     &recordingPublisher{},
		cfg:     cfg,
	}
	env.svc = NewMatchingService(
		logger.New("matching-service-test"),
		cfg,
		fakeUOW{},
		env.repo,
		env.drivers,
		env.coord,
		env.pub,
		nil,
		env.pusher,
	)
	return env
}

// onlineDriver builds an online motorcycle driver at the given coordinates.
func onlineDriver(id string, rating float64, lat, lng float64) driver.Driver {
	return driver.Driver{
		ID:           id,
		Name:         "Driver " + id,
		VehicleType:  driver.VehicleMotorcycle,
		VehiclePlate: "B 1234 " + id,
		Rating:       rating,
		Online:       true,
		LastLat:      &lat,
		LastLng:      &lng,
	}
}
