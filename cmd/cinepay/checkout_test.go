package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinepay/internal/checkout"
	"cinepay/internal/config"
	"cinepay/internal/external"
	"cinepay/internal/models"
	"cinepay/internal/testutil"
)

func newSession(t *testing.T) (*checkout.Session, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend(t)
	backend.AddMovie(models.Movie{ID: "M1", Title: "Movie One", Price: models.MoneyFromFloat(10)}, "A1", "A2", "A3")
	client := external.NewBookingClient(external.BookingConfig{BaseURL: backend.URL(), Timeout: 5 * time.Second})
	coord := checkout.NewCoordinator(client, checkout.Options{
		Retry:      external.RetryPolicy{Attempts: 1},
		AppBaseURL: "http://cinepay.test",
	})
	return checkout.NewSession(coord), backend
}

func TestCoordinatorOptionsUseProcessorRetryPolicy(t *testing.T) {
	cfg := &config.Config{
		App:     config.AppConfig{BaseURL: "http://cinepay.test"},
		Rapikom: external.RapikomConfig{RetryAttempts: 4, Currency: "EUR"},
	}

	opts := coordinatorOptions(cfg, false)
	assert.Equal(t, external.NewRapikomClient(cfg.Rapikom).RetryPolicy(), opts.Retry)
	assert.Equal(t, 4, opts.Retry.Attempts)
	assert.Equal(t, "EUR", opts.Currency)
	assert.Equal(t, "http://cinepay.test", opts.AppBaseURL)
	assert.Nil(t, opts.Gateway)

	opts = coordinatorOptions(cfg, true)
	assert.IsType(t, &external.RapikomClient{}, opts.Gateway)
	assert.Equal(t, 4, opts.Retry.Attempts)
}

var testCard = external.Card{Number: "4111111111111111", Expiry: "12/28", CVV: "123", Name: "John Doe"}

func TestRunCheckoutListsMovies(t *testing.T) {
	session, _ := newSession(t)
	var out bytes.Buffer

	require.NoError(t, runCheckout(context.Background(), &out, session, checkoutOptions{}))
	assert.Contains(t, out.String(), "Movie One")
	assert.Contains(t, out.String(), "$10.00")
}

func TestRunCheckoutShowsSeatMap(t *testing.T) {
	session, backend := newSession(t)
	backend.Take("M1", "A2", "R-other")
	var out bytes.Buffer

	require.NoError(t, runCheckout(context.Background(), &out, session, checkoutOptions{MovieID: "M1"}))
	assert.Contains(t, out.String(), "A1     free")
	assert.Contains(t, out.String(), "A2     taken")
}

func TestRunCheckoutBuysTickets(t *testing.T) {
	session, backend := newSession(t)
	qrPath := filepath.Join(t.TempDir(), "ticket.png")
	var out bytes.Buffer

	err := runCheckout(context.Background(), &out, session, checkoutOptions{
		MovieID: "M1",
		Seats:   []string{"A1", " A2"},
		Email:   "john@x.com",
		Card:    testCard,
		QROut:   qrPath,
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Total: $20.00")
	assert.Contains(t, out.String(), "Reserved: R1")
	assert.Contains(t, out.String(), "Confirmed: reservation R1, seats A1, A2, paid $20.00")
	assert.NotContains(t, out.String(), "4111111111111111")

	png, err := os.ReadFile(qrPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	stored, ok := backend.Reservation("R1")
	require.True(t, ok)
	assert.True(t, stored.Paid)
}

func TestRunCheckoutStopsOnInvalidCard(t *testing.T) {
	session, backend := newSession(t)
	var out bytes.Buffer

	err := runCheckout(context.Background(), &out, session, checkoutOptions{
		MovieID: "M1",
		Seats:   []string{"A1"},
		Email:   "john@x.com",
		Card:    external.Card{Number: "4111", Expiry: "12/28", CVV: "123", Name: "John Doe"},
	})
	require.Error(t, err)
	assert.Equal(t, 0, backend.Calls("POST /pay"))
	assert.Equal(t, checkout.StepPayment, session.State().Step())
}
