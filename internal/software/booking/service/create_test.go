package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"motoride/internal/apperr"
	"motoride/internal/domain/geo"
	"motoride/internal/domain/user"
	"motoride/internal/general/contracts"
	"motoride/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPickup = geo.Point{Lat: -6.2, Lng: 106.8}
	testDest   = geo.Point{Lat: -6.3, Lng: 106.7}
)

func TestCreateBooking(t *testing.T) {
	env := newTestEnv()
	env.users.users["cust-1"], _ = user.NewUser("cust-1", "Rina", user.RoleCustomer)
	ctx := context.Background()

	b, err := env.svc.CreateBooking(ctx, ports.CreateBookingInput{
		CustomerID:  "cust-1",
		Pickup:      testPickup,
		Destination: testDest,
	})
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)
	assert.Equal(t, "PENDING", b.Status.String())

	// coordination keys armed
	assert.True(t, env.coord.shadows[b.ID])
	assert.True(t, env.coord.timeouts[b.ID])

	// booking.created carries the customer name, and a search was requested
	created := env.pub.byKey(contracts.TopicBookingCreated)
	require.Len(t, created, 1)
	assert.Equal(t, contracts.ExchangeBookingTopic, created[0].Exchange)
	assert.Contains(t, string(created[0].Body), `"Rina"`)

	search := env.pub.byKey(contracts.TopicDriverSearchRequested)
	require.Len(t, search, 1)
	assert.Equal(t, contracts.ExchangeDriverTopic, search[0].Exchange)
}

func TestCreateBookingRejectsSecondActive(t *testing.T) {
	env := newTestEnv()
	env.pendingBooking("cust-1")

	_, err := env.svc.CreateBooking(context.Background(), ports.CreateBookingInput{
		CustomerID:  "cust-1",
		Pickup:      testPickup,
		Destination: testDest,
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateBookingValidatesInput(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.CreateBooking(context.Background(), ports.CreateBookingInput{
		CustomerID:  "",
		Pickup:      testPickup,
		Destination: testDest,
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.svc.CreateBooking(context.Background(), ports.CreateBookingInput{
		CustomerID:  "cust-1",
		Pickup:      geo.Point{Lat: 120},
		Destination: testDest,
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateBookingKeepsRowOnKVSFailure(t *testing.T) {
	env := newTestEnv()
	env.coord.failShadow = true

	_, err := env.svc.CreateBooking(context.Background(), ports.CreateBookingInput{
		CustomerID:  "cust-1",
		Pickup:      testPickup,
		Destination: testDest,
	})
	require.ErrorIs(t, err, apperr.ErrInfra)

	// the PENDING row survives; with no timeout marker the reaper cancels it
	// on its next sweep
	assert.Empty(t, env.repo.deleted)
	require.Len(t, env.repo.rows, 1)
	assert.Empty(t, env.pub.byKey(contracts.TopicBookingCreated))
}

func TestRetryKVS(t *testing.T) {
	calls := 0
	err := retryKVS(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryKVS(context.Background(), 2, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("persistent")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}
