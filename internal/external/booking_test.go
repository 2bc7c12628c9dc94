package external

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "cinepay/internal/errors"
	"cinepay/internal/models"
	"cinepay/internal/testutil"
)

func newBooking(t *testing.T) (*testutil.Backend, *BookingClient) {
	t.Helper()
	backend := testutil.NewBackend(t)
	backend.AddMovie(models.Movie{ID: "M1", Title: "Movie One", Duration: "2h", Price: models.MoneyFromFloat(12.5)}, "A1", "A2")
	return backend, NewBookingClient(BookingConfig{BaseURL: backend.URL() + "/", Timeout: 2 * time.Second})
}

func TestBookingClientFlow(t *testing.T) {
	backend, client := newBooking(t)
	ctx := context.Background()

	movies, err := client.ListMovies(ctx)
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, models.MoneyFromFloat(12.5), movies[0].Price)

	seats, err := client.ListSeats(ctx, "M1")
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.Equal(t, "A", seats[0].Row)
	assert.Equal(t, 1, seats[0].Number)
	assert.False(t, seats[0].Reserved)

	reservation, err := client.Reserve(ctx, models.ReserveRequest{MovieID: "M1", Seats: []string{"A1"}, Email: "john@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "R1", reservation.ID)

	seats, err = client.ListSeats(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, seats[0].Reserved)
	assert.Equal(t, "R1", seats[0].ReservedBy)

	paid, err := client.Pay(ctx, models.PayRequest{ReservationID: "R1", CardNumber: "4111111111111111", Expiry: "12/28", CVV: "123", CardName: "John Doe"})
	require.NoError(t, err)
	assert.True(t, paid.Success)

	err = client.UpdateReservationStatus(ctx, "R1", models.ReservationStatusUpdate{Status: models.ReservationPaid, TransactionID: "T1", ConfirmationCode: "CINE-X-Y"})
	require.NoError(t, err)

	got, err := client.GetReservation(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPaid, got.EffectiveStatus())
	assert.Equal(t, "CINE-X-Y", got.ConfirmationCode)
	assert.Equal(t, 1, backend.Calls("PATCH /reservation/:id"))
}

func TestBookingClientErrors(t *testing.T) {
	backend, client := newBooking(t)
	ctx := context.Background()
	backend.Take("M1", "A2", "other")

	_, err := client.Reserve(ctx, models.ReserveRequest{MovieID: "M1", Seats: []string{"A2"}, Email: "john@x.com"})
	var be *apperrors.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 400, be.Status)
	assert.Equal(t, "seat A2 is not available", be.Message)
	assert.False(t, apperrors.IsRetryable(err))

	_, err = client.GetReservation(ctx, "R404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 404, be.Status)

	backend.Server.Close()
	_, err = client.ListMovies(ctx)
	assert.True(t, apperrors.IsRetryable(err))
}
