package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "cinepay/internal/errors"
	"cinepay/internal/external"
	"cinepay/internal/models"
	"cinepay/internal/testutil"
)

var validCard = external.Card{
	Number: "4111111111111111",
	Expiry: "12/28",
	CVV:    "123",
	Name:   "John Doe",
}

const validEmail = "john@x.com"

func newFixture(t *testing.T, opts Options) (*testutil.Backend, *Coordinator) {
	t.Helper()
	backend := testutil.NewBackend(t)
	backend.AddMovie(models.Movie{ID: "M1", Title: "Movie One", Duration: "2h", Price: models.MoneyFromFloat(10)}, "A1", "A2", "A3")
	backend.AddMovie(models.Movie{ID: "M2", Title: "Movie Two", Duration: "1h 40min", Price: models.MoneyFromFloat(12.5)}, "B1", "B2")

	client := external.NewBookingClient(external.BookingConfig{BaseURL: backend.URL(), Timeout: 5 * time.Second})
	opts.Retry = external.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond}
	return backend, NewCoordinator(client, opts)
}

func toSeats(t *testing.T, c *Coordinator, movieID string) State {
	t.Helper()
	ctx := context.Background()
	s, err := c.Start(ctx)
	require.NoError(t, err)
	s, err = c.ChooseMovie(s, movieID)
	require.NoError(t, err)
	s, err = c.ProceedToSeats(ctx, s)
	require.NoError(t, err)
	return s
}

func toPayment(t *testing.T, c *Coordinator, seats ...string) State {
	t.Helper()
	s := toSeats(t, c, "M1")
	var err error
	for _, id := range seats {
		s, err = c.ToggleSeat(s, id)
		require.NoError(t, err)
	}
	s, err = c.Reserve(context.Background(), s, validEmail)
	require.NoError(t, err)
	require.Equal(t, StepPayment, s.Step())
	return s
}

func TestTotalFollowsSelection(t *testing.T) {
	_, c := newFixture(t, Options{})
	s := toSeats(t, c, "M1")
	assert.Equal(t, models.Money(0), s.Total())

	s, err := c.ToggleSeat(s, "A1")
	require.NoError(t, err)
	s, err = c.ToggleSeat(s, "A2")
	require.NoError(t, err)
	assert.Equal(t, "$20.00", s.Total().String())

	s, err = c.ToggleSeat(s, "A1")
	require.NoError(t, err)
	assert.Equal(t, "$10.00", s.Total().String())

	movie, ok := s.Movie()
	require.True(t, ok)
	assert.Equal(t, movie.Price.Times(len(s.SelectedSeats())), s.Total())
}

func TestTotalResetsOnMovieChange(t *testing.T) {
	_, c := newFixture(t, Options{})
	ctx := context.Background()
	s := toSeats(t, c, "M1")
	s, err := c.ToggleSeat(s, "A1")
	require.NoError(t, err)

	s, err = c.Back(ctx, s)
	require.NoError(t, err)
	s, err = c.ChooseMovie(s, "M2")
	require.NoError(t, err)
	assert.Empty(t, s.SelectedSeats())
	assert.Equal(t, models.Money(0), s.Total())

	s, err = c.ProceedToSeats(ctx, s)
	require.NoError(t, err)
	s, err = c.ToggleSeat(s, "B1")
	require.NoError(t, err)
	assert.Equal(t, "$12.50", s.Total().String())
}

func TestToggleSeatTwiceUnselects(t *testing.T) {
	_, c := newFixture(t, Options{})
	s := toSeats(t, c, "M1")

	once, err := c.ToggleSeat(s, "A1")
	require.NoError(t, err)
	twice, err := c.ToggleSeat(once, "A1")
	require.NoError(t, err)

	assert.Equal(t, []string{"A1"}, once.SelectedSeats())
	assert.Empty(t, twice.SelectedSeats())
	assert.Empty(t, s.SelectedSeats(), "input state must not change")
}

func TestToggleSeatRejectsTakenAndForeignSeats(t *testing.T) {
	backend, c := newFixture(t, Options{})
	backend.Take("M1", "A3", "someone-else")
	s := toSeats(t, c, "M1")

	_, err := c.ToggleSeat(s, "A3")
	assert.True(t, apperrors.IsValidation(err))

	_, err = c.ToggleSeat(s, "B1")
	assert.True(t, apperrors.IsValidation(err), "seat of another movie")
}

func TestReserveRequiresSeats(t *testing.T) {
	backend, c := newFixture(t, Options{})
	s := toSeats(t, c, "M1")

	next, err := c.Reserve(context.Background(), s, validEmail)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, StepSelectSeats, next.Step())
	assert.NotEmpty(t, next.Notice())
	assert.Equal(t, 0, backend.Calls("POST /reserve"))
}

func TestReserveRequiresValidEmail(t *testing.T) {
	backend, c := newFixture(t, Options{})
	s := toSeats(t, c, "M1")
	s, err := c.ToggleSeat(s, "A1")
	require.NoError(t, err)

	_, err = c.Reserve(context.Background(), s, "not-an-email")
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, 0, backend.Calls("POST /reserve"))
}

func TestReserveRejectedRefetchesSeats(t *testing.T) {
	backend, c := newFixture(t, Options{})
	s := toSeats(t, c, "M1")
	s, err := c.ToggleSeat(s, "A1")
	require.NoError(t, err)
	s, err = c.ToggleSeat(s, "A2")
	require.NoError(t, err)

	backend.Take("M1", "A2", "someone-else")

	next, err := c.Reserve(context.Background(), s, validEmail)
	require.Error(t, err)

	var be *apperrors.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 400, be.Status)
	assert.Equal(t, StepSelectSeats, next.Step())
	assert.Equal(t, []string{"A1"}, next.SelectedSeats())
	assert.False(t, next.Selectable("A2"))
	assert.Equal(t, "seat A2 is not available", next.Notice())
	assert.Equal(t, 2, backend.Calls("GET /movies/:id/seats"))
	_, held := next.Reservation()
	assert.False(t, held)
}

func TestValidateCard(t *testing.T) {
	assert.NoError(t, ValidateCard(validCard, validEmail))
	assert.NoError(t, ValidateCard(external.Card{Number: "4111 1111 1111 1111", Expiry: "12/28", CVV: "123", Name: "John Doe"}, validEmail))

	tests := []struct {
		name   string
		mutate func(*external.Card, *string)
		field  string
	}{
		{"short number", func(c *external.Card, _ *string) { c.Number = "411111111111" }, "card_number"},
		{"letters in number", func(c *external.Card, _ *string) { c.Number = "4111x11111111111" }, "card_number"},
		{"expiry without slash", func(c *external.Card, _ *string) { c.Expiry = "1228" }, "expiry"},
		{"short cvv", func(c *external.Card, _ *string) { c.CVV = "12" }, "cvv"},
		{"blank name", func(c *external.Card, _ *string) { c.Name = "  Jo  " }, "card_name"},
		{"bad email", func(_ *external.Card, e *string) { *e = "john@" }, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card, email := validCard, validEmail
			tt.mutate(&card, &email)

			err := ValidateCard(card, email)
			require.Error(t, err)

			var ves apperrors.ValidationErrors
			require.ErrorAs(t, err, &ves)
			assert.Equal(t, tt.field, ves.First().Field)
		})
	}
}

func TestPayValidationMakesNoCall(t *testing.T) {
	backend, c := newFixture(t, Options{})
	s := toPayment(t, c, "A1")

	card := validCard
	card.Expiry = "1228"
	next, err := c.Pay(context.Background(), s, card)

	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, StepPayment, next.Step())
	assert.Empty(t, next.Attempts())
	assert.Equal(t, 0, backend.Calls("POST /pay"))
}

func TestPayFailureStaysInPaymentAndRetries(t *testing.T) {
	backend, c := newFixture(t, Options{})
	s := toPayment(t, c, "A1")

	backend.FailNext("POST /pay", 402, "card declined")
	failed, err := c.Pay(context.Background(), s, validCard)
	require.Error(t, err)
	assert.Equal(t, StepPayment, failed.Step())
	assert.Equal(t, "card declined", failed.Notice())
	require.Len(t, failed.Attempts(), 1)
	assert.Equal(t, models.AttemptFailed, failed.Attempts()[0].Status)
	assert.Equal(t, "4111****1111", failed.Attempts()[0].MaskedCard)

	paid, err := c.Pay(context.Background(), failed, validCard)
	require.NoError(t, err)
	assert.Equal(t, StepConfirmed, paid.Step())
	require.Len(t, paid.Attempts(), 2)
	assert.Equal(t, models.AttemptFailed, paid.Attempts()[0].Status)
	assert.Equal(t, models.AttemptSucceeded, paid.Attempts()[1].Status)
	assert.Equal(t, 2, backend.Calls("POST /pay"))
}

func TestPayConfirmsWithCanonicalReservation(t *testing.T) {
	backend, c := newFixture(t, Options{AppBaseURL: "http://cinepay.test"})
	s := toPayment(t, c, "A1", "A2")

	s, err := c.Pay(context.Background(), s, validCard)
	require.NoError(t, err)
	assert.Equal(t, StepConfirmed, s.Step())

	conf, ok := s.Confirmation()
	require.True(t, ok)
	assert.Equal(t, "R1", conf.Reservation.ID)
	assert.True(t, conf.Reservation.Paid)
	assert.Equal(t, "$20.00", conf.Total.String())
	assert.NotEmpty(t, conf.QRBase64, "rendered locally when the backend sends none")
	assert.Equal(t, 1, backend.Calls("GET /reservation/:id"))

	_, err = c.Pay(context.Background(), s, validCard)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStep)
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []external.PaymentRequest
	err      error
}

func (g *fakeGateway) CreatePayment(_ context.Context, req external.PaymentRequest) (*external.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &external.Transaction{ID: fmt.Sprintf("T%d", len(g.requests)), Status: "pending", Amount: req.Amount}, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// checkingGateway also answers transaction lookups
type checkingGateway struct {
	fakeGateway
	status string
	err    error
	looked []string
}

func (g *checkingGateway) GetTransactionStatus(_ context.Context, id string) (*external.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.looked = append(g.looked, id)
	if g.err != nil {
		return nil, g.err
	}
	return &external.Transaction{ID: id, Status: g.status}, nil
}

func TestPayRetryReusesProcessorTransaction(t *testing.T) {
	gateway := &fakeGateway{}
	backend, c := newFixture(t, Options{Gateway: gateway})
	s := toPayment(t, c, "A1", "A2")
	backend.FailNext("POST /pay", 503, "backend busy")

	s, err := c.Pay(context.Background(), s, validCard)
	require.Error(t, err)
	require.Equal(t, StepPayment, s.Step())
	require.Equal(t, 1, gateway.calls())

	s, err = c.Pay(context.Background(), s, validCard)
	require.NoError(t, err)
	assert.Equal(t, StepConfirmed, s.Step())
	assert.Equal(t, 1, gateway.calls(), "retry must not create a second charge")
	assert.Equal(t, 2, backend.Calls("POST /pay"))

	attempts := s.Attempts()
	require.Len(t, attempts, 2)
	assert.Equal(t, "T1", attempts[0].TransactionID)
	assert.Equal(t, "T1", attempts[1].TransactionID)
}

func TestPayRetryKeepsTransactionWhenLookupFails(t *testing.T) {
	gateway := &checkingGateway{err: errors.New("processor unreachable")}
	backend, c := newFixture(t, Options{Gateway: gateway})
	s := toPayment(t, c, "A1")
	backend.FailNext("POST /pay", 503, "backend busy")

	s, err := c.Pay(context.Background(), s, validCard)
	require.Error(t, err)
	s, err = c.Pay(context.Background(), s, validCard)
	require.NoError(t, err)

	assert.Equal(t, 1, gateway.calls())
	assert.Equal(t, []string{"T1"}, gateway.looked)
}

func TestPayRetryChargesAgainAfterDeadTransaction(t *testing.T) {
	gateway := &checkingGateway{status: "failed"}
	backend, c := newFixture(t, Options{Gateway: gateway})
	s := toPayment(t, c, "A1")
	backend.FailNext("POST /pay", 503, "backend busy")

	s, err := c.Pay(context.Background(), s, validCard)
	require.Error(t, err)
	s, err = c.Pay(context.Background(), s, validCard)
	require.NoError(t, err)

	assert.Equal(t, 2, gateway.calls())
	assert.Equal(t, "T2", s.Attempts()[1].TransactionID)
}

func TestPayThroughGateway(t *testing.T) {
	gateway := &fakeGateway{}
	backend, c := newFixture(t, Options{Gateway: gateway})
	s := toPayment(t, c, "A1", "A2")

	s, err := c.Pay(context.Background(), s, validCard)
	require.NoError(t, err)

	require.Len(t, gateway.requests, 1)
	req := gateway.requests[0]
	assert.Equal(t, "R1", req.Reservation.ID)
	assert.Equal(t, models.MoneyFromFloat(20), req.Amount)
	assert.Equal(t, validEmail, req.Customer.Email)
	assert.Equal(t, "T1", s.Attempts()[0].TransactionID)
	assert.Equal(t, 1, backend.Calls("POST /pay"))
}

func TestGatewayErrorLeavesPayment(t *testing.T) {
	gateway := &fakeGateway{err: &apperrors.GatewayError{Status: 402, Message: "insufficient funds"}}
	backend, c := newFixture(t, Options{Gateway: gateway})
	s := toPayment(t, c, "A1")

	next, err := c.Pay(context.Background(), s, validCard)
	require.Error(t, err)
	assert.Equal(t, StepPayment, next.Step())
	assert.Equal(t, "insufficient funds", next.Notice())
	assert.Equal(t, 0, backend.Calls("POST /pay"))
}

func TestBackKeepsReservation(t *testing.T) {
	backend, c := newFixture(t, Options{})
	ctx := context.Background()
	s := toPayment(t, c, "A1", "A2")

	s, err := c.Back(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, StepSelectSeats, s.Step())
	assert.Equal(t, []string{"A1", "A2"}, s.SelectedSeats())
	assert.True(t, s.Selectable("A1"), "held by our own reservation")

	s, err = c.Reserve(ctx, s, validEmail)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, s.Step())
	assert.Equal(t, 1, backend.Calls("POST /reserve"))
}

func TestChangedSelectionReservesAgain(t *testing.T) {
	backend, c := newFixture(t, Options{})
	ctx := context.Background()
	s := toPayment(t, c, "A1")

	s, err := c.Back(ctx, s)
	require.NoError(t, err)
	s, err = c.ToggleSeat(s, "A3")
	require.NoError(t, err)
	s, err = c.Reserve(ctx, s, validEmail)
	require.NoError(t, err)

	r, ok := s.Reservation()
	require.True(t, ok)
	assert.Equal(t, "R2", r.ID)
	assert.ElementsMatch(t, []string{"A1", "A3"}, r.Seats)
	assert.Equal(t, 2, backend.Calls("POST /reserve"))
}

func TestStepPreconditions(t *testing.T) {
	_, c := newFixture(t, Options{})
	ctx := context.Background()
	s, err := c.Start(ctx)
	require.NoError(t, err)

	_, err = c.Pay(ctx, s, validCard)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStep)
	_, err = c.ToggleSeat(s, "A1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStep)
	_, err = c.Back(ctx, s)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStep)

	_, err = c.ProceedToSeats(ctx, s)
	assert.True(t, apperrors.IsValidation(err), "no movie selected")
}

func TestStartRetriesNetworkErrors(t *testing.T) {
	backend, c := newFixture(t, Options{})
	backend.Server.Close()

	_, err := c.Start(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestSessionRejectsConcurrentStep(t *testing.T) {
	_, c := newFixture(t, Options{})
	session := NewSession(c)
	_, err := session.Start(context.Background())
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := session.Do(func(s State) (State, error) {
			close(entered)
			<-release
			return s, nil
		})
		done <- err
	}()

	<-entered
	_, err = session.ChooseMovie("M1")
	assert.True(t, errors.Is(err, apperrors.ErrStepInFlight))
	assert.Equal(t, StepSelectMovie, session.State().Step())

	close(release)
	require.NoError(t, <-done)

	s, err := session.ChooseMovie("M1")
	require.NoError(t, err)
	movie, ok := s.Movie()
	require.True(t, ok)
	assert.Equal(t, "M1", movie.ID)
}
