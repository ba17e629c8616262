package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"motoride/internal/apperr"
	"motoride/internal/domain/geo"
	"motoride/internal/domain/notification"
	"motoride/internal/domain/user"
	"motoride/internal/general/config"
	"motoride/internal/general/contracts"
	"motoride/internal/general/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----- fakes -----

type fakeUOW struct{}

func (fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeNotificationRepo struct {
	mu   sync.Mutex
	rows []*notification.Notification
}

func (r *fakeNotificationRepo) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	cp := *n
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *fakeNotificationRepo) ListForUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*notification.Notification, 0)
	for _, n := range r.rows {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		if len(out) == limit {
			break
		}
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.rows {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return errors.New("no such row")
}

func (r *fakeNotificationRepo) forUser(userID string) []*notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*notification.Notification, 0)
	for _, n := range r.rows {
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

type pushRecord struct {
	UserID string
	Role   user.Role
	Event  string
}

type fakePusher struct {
	mu          sync.Mutex
	pushed      []pushRecord
	unreachable bool
}

func (p *fakePusher) SendToUser(_ context.Context, userID string, role user.Role, event string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unreachable {
		return errors.New("no session")
	}
	p.pushed = append(p.pushed, pushRecord{UserID: userID, Role: role, Event: event})
	return nil
}

func (p *fakePusher) BroadcastToNearbyDrivers(context.Context, geo.Point, float64, string, any) (int, error) {
	return 0, nil
}

func newTestDispatcher() (*NotifyService, *fakeNotificationRepo, *fakePusher) {
	repo := &fakeNotificationRepo{}
	pusher := &fakePusher{}
	svc := NewNotifyService(logger.New("notify-service-test"), &config.Config{}, fakeUOW{}, repo, pusher, nil)
	return svc, repo, pusher
}

// ----- tests -----

func TestHandleBookingEventAccepted(t *testing.T) {
	svc, repo, pusher := newTestDispatcher()

	body, err := json.Marshal(contracts.BookingAccepted{
		BookingID:  "bk-1",
		CustomerID: "cust-1",
		DriverID:   "drv-1",
		DriverName: "Budi",
	})
	require.NoError(t, err)
	require.NoError(t, svc.inner.handleBookingEvent(context.Background(), contracts.TopicBookingAccepted, body))

	// both sides got a durable row
	custRows := repo.forUser("cust-1")
	require.Len(t, custRows, 1)
	assert.Contains(t, custRows[0].Content, "Budi")
	assert.Equal(t, "booking.accepted", custRows[0].Type)
	assert.Equal(t, "bk-1", custRows[0].RelatedID)
	require.Len(t, repo.forUser("drv-1"), 1)

	// and a live push each
	require.Len(t, pusher.pushed, 2)
	assert.Equal(t, "notification", pusher.pushed[0].Event)
}

func TestHandleBookingEventSystemCancel(t *testing.T) {
	svc, repo, _ := newTestDispatcher()

	body, err := json.Marshal(contracts.BookingCancelled{
		BookingID:   "bk-1",
		CustomerID:  "cust-1",
		CancelledBy: "system",
		Reason:      "timeout",
	})
	require.NoError(t, err)
	require.NoError(t, svc.inner.handleBookingEvent(context.Background(), contracts.TopicBookingCancelled, body))

	rows := repo.forUser("cust-1")
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].Content, "no driver accepted in time")

	// no driver was assigned, so nobody else is notified
	assert.Len(t, repo.rows, 1)
}

func TestHandleBookingEventQuietTopics(t *testing.T) {
	svc, repo, pusher := newTestDispatcher()

	body, err := json.Marshal(contracts.BookingTaken{BookingID: "bk-1", DriverID: "drv-1", CustomerID: "cust-1"})
	require.NoError(t, err)
	require.NoError(t, svc.inner.handleBookingEvent(context.Background(), contracts.TopicBookingTaken, body))

	body, err = json.Marshal(contracts.BookingRejected{BookingID: "bk-1", DriverID: "drv-1"})
	require.NoError(t, err)
	require.NoError(t, svc.inner.handleBookingEvent(context.Background(), contracts.TopicBookingRejected, body))

	assert.Empty(t, repo.rows)
	assert.Empty(t, pusher.pushed)
}

func TestDeliverStoresWhenPushFails(t *testing.T) {
	svc, repo, pusher := newTestDispatcher()
	pusher.unreachable = true

	body, err := json.Marshal(contracts.BookingCreated{BookingID: "bk-1", CustomerID: "cust-1"})
	require.NoError(t, err)
	require.NoError(t, svc.inner.handleBookingEvent(context.Background(), contracts.TopicBookingCreated, body))

	// the durable copy survives the missed push
	require.Len(t, repo.forUser("cust-1"), 1)
	assert.Empty(t, pusher.pushed)
}

func TestHandleTripEvent(t *testing.T) {
	svc, repo, _ := newTestDispatcher()

	body, err := json.Marshal(contracts.TripEvent{BookingID: "bk-1", CustomerID: "cust-1"})
	require.NoError(t, err)

	require.NoError(t, svc.inner.handleTripEvent(context.Background(), contracts.TopicTripStarted, body))
	require.NoError(t, svc.inner.handleTripEvent(context.Background(), contracts.TopicTripUpdated, body))
	require.NoError(t, svc.inner.handleTripEvent(context.Background(), contracts.TopicTripEnded, body))

	// started and ended notify; position updates are noise
	rows := repo.forUser("cust-1")
	require.Len(t, rows, 2)
}

func TestListNotifications(t *testing.T) {
	svc, repo, _ := newTestDispatcher()
	ctx := context.Background()

	for range 3 {
		n, err := notification.New("cust-1", "booking.created", "hello", "bk-1")
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, n))
	}
	require.NoError(t, repo.MarkRead(ctx, repo.rows[0].ID, "cust-1"))

	all, err := svc.ListNotifications(ctx, "cust-1", false, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	unread, err := svc.ListNotifications(ctx, "cust-1", true, 10)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	// out-of-range limit falls back to the default
	all, err = svc.ListNotifications(ctx, "cust-1", false, -5)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := svc.ListNotifications(ctx, "nobody", false, 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMarkNotificationRead(t *testing.T) {
	svc, repo, _ := newTestDispatcher()
	ctx := context.Background()

	n, err := notification.New("cust-1", "booking.created", "hello", "bk-1")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, n))

	require.NoError(t, svc.MarkNotificationRead(ctx, n.ID, "cust-1"))
	assert.True(t, repo.rows[0].IsRead)

	// another user's id never matches
	err = svc.MarkNotificationRead(ctx, n.ID, "cust-2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
