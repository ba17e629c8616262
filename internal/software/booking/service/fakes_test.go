package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"motoride/internal/domain/booking"
	"motoride/internal/domain/driver"
	"motoride/internal/domain/user"
	"motoride/internal/general/config"
	"motoride/internal/general/logger"
	"motoride/internal/ports"

	"github.com/google/uuid"
)

// ----- fakes -----

type fakeUOW struct{}

func (fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeBookingRepo struct {
	mu      sync.Mutex
	rows    map[string]*booking.Booking
	deleted []string

	cancellations map[string]int // "customer|driver" -> count
	tripCounts    map[string]int // driver -> completed trips

	failGetActiveForDriver bool
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{
		rows:          make(map[string]*booking.Booking),
		cancellations: make(map[string]int),
		tripCounts:    make(map[string]int),
	}
}

func (r *fakeBookingRepo) put(b *booking.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	cp := *b
	r.rows[b.ID] = &cp
}

func (r *fakeBookingRepo) CreateBooking(_ context.Context, b *booking.Booking) error {
	r.put(b)
	return nil
}

func (r *fakeBookingRepo) GetByID(_ context.Context, id string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBookingRepo) GetActiveForCustomer(_ context.Context, customerID string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.rows {
		if b.CustomerID == customerID && b.Status.Active() {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeBookingRepo) GetActiveForDriver(_ context.Context, driverID string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGetActiveForDriver {
		return nil, errors.New("db down")
	}
	for _, b := range r.rows {
		if b.Driver() == driverID && (b.Status == booking.StatusAccepted || b.Status == booking.StatusOngoing) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeBookingRepo) ListForUser(_ context.Context, userID string, status *booking.Status, page, limit int) ([]*booking.Booking, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*booking.Booking, 0)
	for _, b := range r.rows {
		if !b.InvolvesUser(userID) {
			continue
		}
		if status != nil && b.Status != *status {
			continue
		}
		cp := *b
		matched = append(matched, &cp)
	}

	total := len(matched)
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *fakeBookingRepo) AcceptPending(_ context.Context, bookingID, driverID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[bookingID]
	if !ok || b.Status != booking.StatusPending || b.DriverID != nil {
		return false, nil
	}
	d := driverID
	b.DriverID = &d
	b.AcceptedAt = &at
	b.Status = booking.StatusAccepted
	b.UpdatedAt = at
	return true, nil
}

func (r *fakeBookingRepo) UpdateStatus(_ context.Context, id string, next booking.Status, at time.Time, cancelledBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return errors.New("booking not found")
	}
	b.Status = next
	b.UpdatedAt = at
	switch next {
	case booking.StatusOngoing:
		b.StartedAt = &at
	case booking.StatusCompleted:
		b.CompletedAt = &at
	case booking.StatusCancelled:
		b.CancelledAt = &at
		if cancelledBy != "" {
			by := cancelledBy
			b.CancelledBy = &by
		}
	case booking.StatusRejected:
		b.RejectedAt = &at
	}
	return nil
}

func (r *fakeBookingRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeBookingRepo) ActiveByDrivers(_ context.Context, driverIDs []string) (map[string]*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*booking.Booking)
	for _, id := range driverIDs {
		for _, b := range r.rows {
			if b.Driver() == id && b.Status.Active() {
				cp := *b
				out[id] = &cp
			}
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) ListPendingIDs(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0)
	for id, b := range r.rows {
		if b.Status == booking.StatusPending {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) CountCancellationsBy(_ context.Context, customerID, driverID string, _ time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancellations[customerID+"|"+driverID], nil
}

func (r *fakeBookingRepo) CompletedTripCounts(_ context.Context, _ string, _ time.Time, _ int) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.tripCounts))
	for k, v := range r.tripCounts {
		out[k] = v
	}
	return out, nil
}

type fakeCoordination struct {
	mu         sync.Mutex
	locks      map[string]string
	eligible   map[string]map[string]struct{}
	rejected   map[string]map[string]struct{}
	timeouts   map[string]bool
	shadows    map[string]bool
	purged     []string
	blocked    map[string][]string
	prefs      map[string][]byte
	lastSearch map[string][]byte

	failShadow      bool
	failEligibility bool
}

func newFakeCoordination() *fakeCoordination {
	return &fakeCoordination{
		locks:      make(map[string]string),
		eligible:   make(map[string]map[string]struct{}),
		rejected:   make(map[string]map[string]struct{}),
		timeouts:   make(map[string]bool),
		shadows:    make(map[string]bool),
		blocked:    make(map[string][]string),
		prefs:      make(map[string][]byte),
		lastSearch: make(map[string][]byte),
	}
}

func (c *fakeCoordination) WriteBookingShadow(_ context.Context, b *booking.Booking, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failShadow {
		return errors.New("kvs down")
	}
	c.shadows[b.ID] = true
	return nil
}

func (c *fakeCoordination) ArmBookingTimeout(_ context.Context, bookingID string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeouts[bookingID] = true
	return nil
}

func (c *fakeCoordination) TimeoutArmed(_ context.Context, bookingID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeouts[bookingID], nil
}

func (c *fakeCoordination) PurgeBooking(_ context.Context, bookingID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shadows, bookingID)
	delete(c.timeouts, bookingID)
	delete(c.eligible, bookingID)
	delete(c.rejected, bookingID)
	c.purged = append(c.purged, bookingID)
	return nil
}

func (c *fakeCoordination) AcquireAcceptLock(_ context.Context, bookingID, driverID string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.locks[bookingID]; held {
		return false, nil
	}
	c.locks[bookingID] = driverID
	return true, nil
}

func (c *fakeCoordination) ReleaseAcceptLock(_ context.Context, bookingID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, bookingID)
	return nil
}

func (c *fakeCoordination) SetEligibleDrivers(_ context.Context, bookingID string, driverIDs []string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := make(map[string]struct{}, len(driverIDs))
	for _, id := range driverIDs {
		set[id] = struct{}{}
	}
	c.eligible[bookingID] = set
	return nil
}

func (c *fakeCoordination) IsEligibleDriver(_ context.Context, bookingID, driverID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failEligibility {
		return false, errors.New("kvs down")
	}
	_, ok := c.eligible[bookingID][driverID]
	return ok, nil
}

func (c *fakeCoordination) EligibleDrivers(_ context.Context, bookingID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.eligible[bookingID]))
	for id := range c.eligible[bookingID] {
		out = append(out, id)
	}
	return out, nil
}

func (c *fakeCoordination) AddRejectedDriver(_ context.Context, bookingID, driverID string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejected[bookingID] == nil {
		c.rejected[bookingID] = make(map[string]struct{})
	}
	c.rejected[bookingID][driverID] = struct{}{}
	return nil
}

func (c *fakeCoordination) RejectedDrivers(_ context.Context, bookingID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rejected[bookingID]))
	for id := range c.rejected[bookingID] {
		out = append(out, id)
	}
	return out, nil
}

func (c *fakeCoordination) CacheBlockedDrivers(_ context.Context, customerID string, driverIDs []string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked[customerID] = driverIDs
	return nil
}

func (c *fakeCoordination) CachedBlockedDrivers(_ context.Context, customerID string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.blocked[customerID]
	return ids, ok, nil
}

func (c *fakeCoordination) CachePreferences(_ context.Context, customerID string, payload []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefs[customerID] = payload
	return nil
}

func (c *fakeCoordination) CachedPreferences(_ context.Context, customerID string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.prefs[customerID]
	return raw, ok, nil
}

func (c *fakeCoordination) CacheLastSearch(_ context.Context, customerID string, payload []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSearch[customerID] = payload
	return nil
}

type fakeTracking struct {
	mu   sync.Mutex
	busy bool
	err  error
}

func (f *fakeTracking) HasActiveTrip(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy, f.err
}

type publishedEvent struct {
	Exchange   string
	RoutingKey string
	Body       []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	fail   bool
}

func (p *fakePublisher) Publish(exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, publishedEvent{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

func (p *fakePublisher) byKey(routingKey string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, 0)
	for _, e := range p.events {
		if e.RoutingKey == routingKey {
			out = append(out, e)
		}
	}
	return out
}

type fakeDriverRepo struct {
	mu      sync.Mutex
	drivers map[string]*driver.Driver
}

func newFakeDriverRepo() *fakeDriverRepo {
	return &fakeDriverRepo{drivers: make(map[string]*driver.Driver)}
}

func (r *fakeDriverRepo) GetByID(_ context.Context, driverID string) (*driver.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[driverID]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDriverRepo) FindOnline(_ context.Context, vehicle driver.VehicleType, exclude []string) ([]driver.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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
		out = append(out, *d)
	}
	return out, nil
}

type fakeUserRepo struct {
	users map[string]*user.User
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	if r.users == nil {
		return nil, nil
	}
	return r.users[id], nil
}

// ----- setup -----

type testEnv struct {
	svc      ports.BookingService
	repo     *fakeBookingRepo
	drivers  *fakeDriverRepo
	users    *fakeUserRepo
	coord    *fakeCoordination
	tracking *fakeTracking
	pub      *fakePublisher
	cfg      *config.Config
}

func newTestEnv() *testEnv {
	cfg := &config.Config{}
	cfg.Booking.TimeoutMinutes = 3
	cfg.Booking.AutoCancelEnabled = true
	cfg.Booking.AcceptLockSeconds = 10
	cfg.Booking.SmartCancelDelaySeconds = 0 // no grace period in tests
	cfg.Booking.ReaperIntervalSeconds = 1
	cfg.Booking.TrackingTimeoutSeconds = 1
	cfg.Matching.RadiusKM = 1
	cfg.Matching.MinRating = 3.0
	cfg.Matching.MaxDistanceKM = 5
	cfg.Matching.PreferredTripThreshold = 2
	cfg.Matching.BlockedCancellationThreshold = 3
	cfg.Matching.BlockedWindowDays = 30
	cfg.Matching.HistoryWindowDays = 90
	cfg.Matching.HistoryLimit = 50

	env := &testEnv{
		repo:     newFakeBookingRepo(),
		drivers:  newFakeDriverRepo(),
		users:    &fakeUserRepo{users: make(map[string]*user.User)},
		coord:    newFakeCoordination(),
		tracking: &fakeTracking{},
		pub:      &fakePublisher{},
		cfg:      cfg,
	}
	env.svc = NewBookingService(
		logger.New("booking-service-test"),
		cfg,
		fakeUOW{},
		env.repo,
		env.drivers,
		env.users,
		env.coord,
		env.tracking,
		env.pub,
		nil,
	)
	return env
}

// pendingBooking seeds one PENDING booking and returns it.
func (env *testEnv) pendingBooking(customerID string) *booking.Booking {
	b, err := booking.NewBooking(customerID, testPickup, testDest)
	if err != nil {
		panic(err)
	}
	env.repo.put(b)
	return b
}
