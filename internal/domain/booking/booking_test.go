package booking

import (
	"testing"
	"time"

	"motoride/internal/domain/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pickup = geo.Point{Lat: -6.2, Lng: 106.8}
	dest   = geo.Point{Lat: -6.3, Lng: 106.7}
)

func TestNewBooking(t *testing.T) {
	b, err := NewBooking("cust-1", pickup, dest)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, "cust-1", b.CustomerID)
	assert.Nil(t, b.DriverID)
	assert.False(t, b.CreatedAt.IsZero())

	_, err = NewBooking("  ", pickup, dest)
	assert.ErrorIs(t, err, ErrCustomerRequired)

	_, err = NewBooking("cust-1", geo.Point{Lat: 95}, dest)
	assert.ErrorIs(t, err, geo.ErrLatitudeOutOfRange)
}

func TestAccept(t *testing.T) {
	b, err := NewBooking("cust-1", pickup, dest)
	require.NoError(t, err)

	at := time.Now().UTC()
	require.NoError(t, b.Accept("drv-1", at))
	assert.Equal(t, StatusAccepted, b.Status)
	assert.Equal(t, "drv-1", b.Driver())
	require.NotNil(t, b.AcceptedAt)
	assert.Equal(t, at, *b.AcceptedAt)

	// second accept must fail: a driver is already assigned
	assert.ErrorIs(t, b.Accept("drv-2", at), ErrAlreadyAssigned)
}

func TestAcceptRequiresPending(t *testing.T) {
	b, err := NewBooking("cust-1", pickup, dest)
	require.NoError(t, err)
	require.NoError(t, b.Cancel(ActorCustomer, time.Now().UTC()))

	assert.ErrorIs(t, b.Accept("drv-1", time.Now().UTC()), ErrInvalidStatusTransition)
}

func TestApplyTransitionStampsTimeline(t *testing.T) {
	b, err := NewBooking("cust-1", pickup, dest)
	require.NoError(t, err)

	t1 := time.Now().UTC()
	require.NoError(t, b.ApplyTransition(StatusAccepted, t1))
	require.NotNil(t, b.AcceptedAt)

	t2 := t1.Add(time.Minute)
	require.NoError(t, b.ApplyTransition(StatusOngoing, t2))
	require.NotNil(t, b.StartedAt)
	assert.Equal(t, t2, *b.StartedAt)

	t3 := t2.Add(10 * time.Minute)
	require.NoError(t, b.ApplyTransition(StatusCompleted, t3))
	require.NotNil(t, b.CompletedAt)
	assert.Equal(t, t3, b.UpdatedAt)

	// terminal is absorbing
	assert.ErrorIs(t, b.ApplyTransition(StatusCancelled, t3), ErrInvalidStatusTransition)
}

func TestCancelRecordsActor(t *testing.T) {
	b, err := NewBooking("cust-1", pickup, dest)
	require.NoError(t, err)

	require.NoError(t, b.Cancel(ActorSystem, time.Now().UTC()))
	require.NotNil(t, b.CancelledBy)
	assert.Equal(t, "system", *b.CancelledBy)
	require.NotNil(t, b.CancelledAt)
}

func TestActorFor(t *testing.T) {
	b, err := NewBooking("cust-1", pickup, dest)
	require.NoError(t, err)

	a, ok := b.ActorFor("cust-1")
	require.True(t, ok)
	assert.Equal(t, ActorCustomer, a)

	_, ok = b.ActorFor("drv-1")
	assert.False(t, ok)

	require.NoError(t, b.Accept("drv-1", time.Now().UTC()))
	a, ok = b.ActorFor("drv-1")
	require.True(t, ok)
	assert.Equal(t, ActorDriver, a)

	// an empty user id never resolves, even with no driver assigned
	b2, err := NewBooking("cust-2", pickup, dest)
	require.NoError(t, err)
	_, ok = b2.ActorFor("")
	assert.False(t, ok)
}

func TestInvolvesUser(t *testing.T) {
	b, err := NewBooking("cust-1", pickup, dest)
	require.NoError(t, err)
	require.NoError(t, b.Accept("drv-1", time.Now().UTC()))

	assert.True(t, b.InvolvesUser("cust-1"))
	assert.True(t, b.InvolvesUser("drv-1"))
	assert.False(t, b.InvolvesUser("stranger"))
}
