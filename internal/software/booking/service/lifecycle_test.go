package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/booking"
	"motoride/internal/general/contracts"
	"motoride/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ongoingBooking seeds a booking already accepted by drv and moved to ONGOING.
func (env *testEnv) ongoingBooking(t *testing.T, customerID, driverID string) *booking.Booking {
	t.Helper()
	ctx := context.Background()

	b := env.pendingBooking(customerID)
	ok, err := env.repo.AcceptPending(ctx, b.ID, driverID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, env.repo.UpdateStatus(ctx, b.ID, booking.StatusOngoing, time.Now().UTC(), ""))

	got, err := env.repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	return got
}

func TestCancelBookingByCustomer(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	b := env.pendingBooking("cust-1")

	cancelled, err := env.svc.CancelBooking(ctx, b.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, "customer", *cancelled.CancelledBy)

	assert.Contains(t, env.coord.purged, b.ID)
	assert.Len(t, env.pub.byKey(contracts.TopicBookingCancelled), 1)
}

func TestCancelBookingRejectsStrangers(t *testing.T) {
	env := newTestEnv()
	b := env.pendingBooking("cust-1")

	_, err := env.svc.CancelBooking(context.Background(), b.ID, "someone-else")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestCancelBookingOngoingIsImmutable(t *testing.T) {
	env := newTestEnv()
	b := env.ongoingBooking(t, "cust-1", "drv-1")

	_, err := env.svc.CancelBooking(context.Background(), b.ID, "cust-1")
	assert.ErrorIs(t, err, apperr.ErrBadTransition)
}

func TestSmartCancelBooking(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	b := env.pendingBooking("cust-1")

	cancelled, err := env.svc.SmartCancelBooking(ctx, b.ID, ports.ReasonTimeout)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, "system", *cancelled.CancelledBy)

	events := env.pub.byKey(contracts.TopicBookingCancelled)
	require.Len(t, events, 1)
	var payload contracts.BookingCancelled
	require.NoError(t, json.Unmarshal(events[0].Body, &payload))
	assert.Equal(t, "timeout", payload.Reason)
	assert.Equal(t, "system", payload.CancelledBy)
}

func TestSmartCancelBookingIsIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	b := env.pendingBooking("cust-1")

	_, err := env.svc.SmartCancelBooking(ctx, b.ID, ports.ReasonTimeout)
	require.NoError(t, err)

	// second cancel is a quiet no-op: nil row, no duplicate event
	again, err := env.svc.SmartCancelBooking(ctx, b.ID, ports.ReasonSystem)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Len(t, env.pub.byKey(contracts.TopicBookingCancelled), 1)
}

func TestSmartCancelBookingUnknownID(t *testing.T) {
	env := newTestEnv()

	got, err := env.svc.SmartCancelBooking(context.Background(), "no-such-booking", ports.ReasonTimeout)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSmartCancelBookingLeavesAcceptedAlone(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	b := env.pendingBooking("cust-1")
	ok, err := env.repo.AcceptPending(ctx, b.ID, "drv-1", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	got, err := env.svc.SmartCancelBooking(ctx, b.ID, ports.ReasonTimeout)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, env.pub.byKey(contracts.TopicBookingCancelled))

	// the row is untouched
	row, err := env.repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusAccepted, row.Status)
}

func TestRejectBooking(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	b := env.pendingBooking("cust-1")
	require.NoError(t, env.coord.SetEligibleDrivers(ctx, b.ID, []string{"drv-1", "drv-2"}, time.Minute))

	require.NoError(t, env.svc.RejectBooking(ctx, b.ID, "drv-1"))

	rejected, err := env.coord.RejectedDrivers(ctx, b.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"drv-1"}, rejected)
	assert.Len(t, env.pub.byKey(contracts.TopicBookingRejected), 1)

	// one candidate is still out there; the booking must stay PENDING
	time.Sleep(50 * time.Millisecond)
	got, err := env.repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, got.Status)
}

func TestRejectBookingAllRejectedCancels(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	b := env.pendingBooking("cust-1")
	require.NoError(t, env.coord.SetEligibleDrivers(ctx, b.ID, []string{"drv-1", "drv-2"}, time.Minute))

	require.NoError(t, env.svc.RejectBooking(ctx, b.ID, "drv-1"))
	require.NoError(t, env.svc.RejectBooking(ctx, b.ID, "drv-2"))

	require.Eventually(t, func() bool {
		got, err := env.repo.GetByID(ctx, b.ID)
		return err == nil && got != nil && got.Status == booking.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	events := env.pub.byKey(contracts.TopicBookingCancelled)
	require.NotEmpty(t, events)
	var payload contracts.BookingCancelled
	require.NoError(t, json.Unmarshal(events[0].Body, &payload))
	assert.Equal(t, "all_drivers_rejected", payload.Reason)
}

func TestRejectBookingAutoCancelDisabled(t *testing.T) {
	env := newTestEnv()
	env.cfg.Booking.AutoCancelEnabled = false
	ctx := context.Background()
	b := env.pendingBooking("cust-1")
	require.NoError(t, env.coord.SetEligibleDrivers(ctx, b.ID, []string{"drv-1"}, time.Minute))

	require.NoError(t, env.svc.RejectBooking(ctx, b.ID, "drv-1"))

	// every candidate rejected, but with auto-cancel off the booking waits
	// for the timeout reaper
	time.Sleep(50 * time.Millisecond)
	got, err := env.repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, got.Status)
	assert.Empty(t, env.pub.byKey(contracts.TopicBookingCancelled))
}

func TestRejectBookingNotPending(t *testing.T) {
	env := newTestEnv()
	b := env.ongoingBooking(t, "cust-1", "drv-1")

	err := env.svc.RejectBooking(context.Background(), b.ID, "drv-2")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUpdateBookingStatus(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	b := env.pendingBooking("cust-1")
	ok, err := env.repo.AcceptPending(ctx, b.ID, "drv-1", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	// the driver starts the ride
	updated, err := env.svc.UpdateBookingStatus(ctx, b.ID, "drv-1", booking.StatusOngoing, nil)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusOngoing, updated.Status)
	require.NotNil(t, updated.StartedAt)

	// and completes it with an explicit timestamp
	endedAt := time.Now().UTC().Add(20 * time.Minute)
	updated, err = env.svc.UpdateBookingStatus(ctx, b.ID, "drv-1", booking.StatusCompleted, &endedAt)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, endedAt, *updated.CompletedAt)

	assert.Len(t, env.pub.byKey(contracts.TopicBookingCompleted), 1)
	assert.Contains(t, env.coord.purged, b.ID)
}

func TestUpdateBookingStatusEnforcesActorMatrix(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	b := env.pendingBooking("cust-1")

	// a customer cannot accept their own booking
	_, err := env.svc.UpdateBookingStatus(ctx, b.ID, "cust-1", booking.StatusAccepted, nil)
	assert.ErrorIs(t, err, apperr.ErrBadTransition)

	// outsiders get nothing at all
	_, err = env.svc.UpdateBookingStatus(ctx, b.ID, "stranger", booking.StatusCancelled, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = env.svc.UpdateBookingStatus(ctx, "no-such-booking", "cust-1", booking.StatusCancelled, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteBooking(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	b := env.pendingBooking("cust-1")

	// live bookings are not deletable
	err := env.svc.DeleteBooking(ctx, b.ID, "cust-1")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, env.repo.UpdateStatus(ctx, b.ID, booking.StatusCancelled, time.Now().UTC(), "customer"))

	// only the owning customer may delete
	err = env.svc.DeleteBooking(ctx, b.ID, "drv-1")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, env.svc.DeleteBooking(ctx, b.ID, "cust-1"))
	got, err := env.repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCompleteBookingFromTrip(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	b := env.ongoingBooking(t, "cust-1", "drv-1")

	endedAt := time.Now().UTC()
	completed, err := env.svc.CompleteBookingFromTrip(ctx, b.ID, endedAt)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, completed.Status)
	assert.Len(t, env.pub.byKey(contracts.TopicBookingCompleted), 1)

	// duplicate trip.ended delivery: same result, no second event
	again, err := env.svc.CompleteBookingFromTrip(ctx, b.ID, endedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, again.Status)
	assert.Len(t, env.pub.byKey(contracts.TopicBookingCompleted), 1)
}

func TestCompleteBookingFromTripRequiresOngoing(t *testing.T) {
	env := newTestEnv()
	b := env.pendingBooking("cust-1")

	_, err := env.svc.CompleteBookingFromTrip(context.Background(), b.ID, time.Now().UTC())
	assert.ErrorIs(t, err, apperr.ErrBadTransition)
}

func TestGetUserBookingsPagination(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	for range 5 {
		b := env.pendingBooking("cust-1")
		require.NoError(t, env.repo.UpdateStatus(ctx, b.ID, booking.StatusCancelled, time.Now().UTC(), "customer"))
	}

	page, err := env.svc.GetUserBookings(ctx, "cust-1", nil, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages) // ceil(5/2)
	assert.Len(t, page.Bookings, 1)

	// out-of-range inputs fall back to defaults
	page, err = env.svc.GetUserBookings(ctx, "cust-1", nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 1, page.Pages)

	// status filter
	cancelled := booking.StatusCancelled
	page, err = env.svc.GetUserBookings(ctx, "cust-1", &cancelled, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)

	pending := booking.StatusPending
	page, err = env.svc.GetUserBookings(ctx, "cust-1", &pending, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Zero(t, page.Pages)
	assert.NotNil(t, page.Bookings)
}

func TestCheckMultipleDriversAvailability(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.ongoingBooking(t, "cust-1", "drv-busy")

	rows, err := env.svc.CheckMultipleDriversAvailability(ctx, []string{"drv-busy", "drv-free"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := make(map[string]ports.DriverAvailability, len(rows))
	for _, r := range rows {
		byID[r.DriverID] = r
	}
	assert.False(t, byID["drv-busy"].IsAvailable)
	require.NotNil(t, byID["drv-busy"].ActiveBooking)
	assert.True(t, byID["drv-free"].IsAvailable)
	assert.Nil(t, byID["drv-free"].ActiveBooking)
}

func TestReapExpiredBookings(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	fresh := env.pendingBooking("cust-1")
	require.NoError(t, env.coord.ArmBookingTimeout(ctx, fresh.ID, time.Minute))

	expired := env.pendingBooking("cust-2") // no timeout marker: past its budget

	env.svc.(*bookingService).reapExpiredBookings(ctx)

	got, err := env.repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, got.Status)

	got, err = env.repo.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, got.Status)

	events := env.pub.byKey(contracts.TopicBookingCancelled)
	require.Len(t, events, 1)
	var payload contracts.BookingCancelled
	require.NoError(t, json.Unmarshal(events[0].Body, &payload))
	assert.Equal(t, expired.ID, payload.BookingID)
	assert.Equal(t, "timeout", payload.Reason)
}
