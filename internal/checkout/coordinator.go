package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	apperrors "cinepay/internal/errors"
	"cinepay/internal/external"
	"cinepay/internal/logger"
	"cinepay/internal/models"
	"cinepay/internal/ticket"
)

// Backend is the booking backend as seen by the checkout flow
type Backend interface {
	ListMovies(ctx context.Context) ([]models.Movie, error)
	ListSeats(ctx context.Context, movieID string) ([]models.Seat, error)
	Reserve(ctx context.Context, req models.ReserveRequest) (*models.Reservation, error)
	Pay(ctx context.Context, req models.PayRequest) (*models.PayResponse, error)
	GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error)
}

// Gateway initiates the charge with the payment processor
type Gateway interface {
	CreatePayment(ctx context.Context, req external.PaymentRequest) (*external.Transaction, error)
}

// TransactionChecker is implemented by gateways that can look a charge up.
// Pay uses it to decide whether an earlier charge can still settle.
type TransactionChecker interface {
	GetTransactionStatus(ctx context.Context, transactionID string) (*external.Transaction, error)
}

// deadTransaction lists processor states after which a charge never settles
var deadTransaction = map[string]bool{
	"failed":    true,
	"cancelled": true,
	"canceled":  true,
	"refunded":  true,
}

type Options struct {
	// Gateway is optional; without it the backend /pay call settles the payment
	Gateway    Gateway
	Retry      external.RetryPolicy
	AppBaseURL string
	Currency   string
	Now        func() time.Time
}

// Coordinator drives the checkout steps against the booking backend. It
// holds no session state of its own and may be shared between sessions.
type Coordinator struct {
	backend    Backend
	gateway    Gateway
	retry      external.RetryPolicy
	appBaseURL string
	currency   string
	now        func() time.Time
}

func NewCoordinator(backend Backend, opts Options) *Coordinator {
	if opts.Retry.Attempts == 0 {
		opts.Retry = external.DefaultRetryPolicy(3)
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		backend:    backend,
		gateway:    opts.Gateway,
		retry:      opts.Retry,
		appBaseURL: opts.AppBaseURL,
		currency:   opts.Currency,
		now:        opts.Now,
	}
}

// Start loads the movie list and opens the flow at movie selection
func (c *Coordinator) Start(ctx context.Context) (State, error) {
	movies, err := c.fetchMovies(ctx)
	if err != nil {
		return State{}.withNotice(err), err
	}
	return State{step: StepSelectMovie, movies: movies}, nil
}

// ChooseMovie selects a movie. Picking a different movie drops the seat
// selection and any reservation held for the previous one.
func (c *Coordinator) ChooseMovie(s State, movieID string) (State, error) {
	if s.step != StepSelectMovie {
		return s, stepError("choose movie", s.step)
	}
	idx := slices.IndexFunc(s.movies, func(m models.Movie) bool { return m.ID == movieID })
	if idx < 0 {
		err := &apperrors.ValidationError{Field: "movie_id", Message: "unknown movie"}
		return s.withNotice(err), err
	}

	next := s.clone()
	movie := s.movies[idx]
	if s.movie == nil || s.movie.ID != movie.ID {
		next.selected = nil
		next.seats = nil
		next.reservation = nil
		next.reservedFor = nil
		next.attempts = nil
	}
	next.movie = &movie
	return next, nil
}

// ProceedToSeats moves to seat selection with a freshly fetched seat map
func (c *Coordinator) ProceedToSeats(ctx context.Context, s State) (State, error) {
	if s.step != StepSelectMovie {
		return s, stepError("proceed to seats", s.step)
	}
	if s.movie == nil {
		err := &apperrors.ValidationError{Field: "movie_id", Message: "select a movie first"}
		return s.withNotice(err), err
	}

	seats, err := c.fetchSeats(ctx, s.movie.ID)
	if err != nil {
		return s.withNotice(err), err
	}

	next := s.clone()
	next.step = StepSelectSeats
	next.seats = seats
	next.selected = keepSelectable(next, next.selected)
	return next, nil
}

// ToggleSeat adds the seat to the selection or removes it when already selected
func (c *Coordinator) ToggleSeat(s State, seatID string) (State, error) {
	if s.step != StepSelectSeats {
		return s, stepError("toggle seat", s.step)
	}

	next := s.clone()
	if i := slices.Index(next.selected, seatID); i >= 0 {
		next.selected = slices.Delete(next.selected, i, i+1)
		return next, nil
	}
	if !s.Selectable(seatID) {
		err := &apperrors.ValidationError{Field: "seats", Message: fmt.Sprintf("seat %s is not available", seatID)}
		return s.withNotice(err), err
	}
	next.selected = append(next.selected, seatID)
	return next, nil
}

// Reserve asks the backend to hold the selected seats and moves to payment.
// A rejected reservation keeps the flow at seat selection with the seat map
// re-fetched; seats taken in the meantime are dropped from the selection.
func (c *Coordinator) Reserve(ctx context.Context, s State, email string) (State, error) {
	if s.step != StepSelectSeats {
		return s, stepError("reserve", s.step)
	}
	if len(s.selected) == 0 {
		err := &apperrors.ValidationError{Field: "seats", Message: "select at least one seat"}
		return s.withNotice(err), err
	}
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return s.withNotice(err), err
	}

	if s.reservationMatches() && s.reservation.Email == email {
		next := s.clone()
		next.step = StepPayment
		next.email = email
		return next, nil
	}

	log := logger.WithContext(ctx)
	reservation, err := c.backend.Reserve(ctx, models.ReserveRequest{
		MovieID: s.movie.ID,
		Seats:   s.SelectedSeats(),
		Email:   email,
	})
	if err != nil {
		log.Warn("Reservation rejected", "movie_id", s.movie.ID, "seats", s.selected, "error", err)
		next := s.withNotice(err)
		next.email = email
		if seats, ferr := c.fetchSeats(ctx, s.movie.ID); ferr == nil {
			next.seats = seats
			next.selected = keepSelectable(next, next.selected)
		} else {
			log.Error("Failed to refresh seats after rejected reservation", "error", ferr)
		}
		return next, err
	}

	log.Info("Seats reserved", "reservation_id", reservation.ID, "movie_id", s.movie.ID, "seats", s.selected)

	next := s.clone()
	next.step = StepPayment
	next.email = email
	if reservation.Email == "" {
		reservation.Email = email
	}
	next.reservation = reservation
	next.reservedFor = next.SelectedSeats()
	next.attempts = nil
	return next, nil
}

// Pay validates the card locally and settles the reservation. Any failure
// leaves the flow at payment with a failed attempt recorded, so the
// customer can retry with a new attempt.
func (c *Coordinator) Pay(ctx context.Context, s State, card external.Card) (State, error) {
	if s.step != StepPayment || s.reservation == nil {
		return s, stepError("pay", s.step)
	}
	if err := ValidateCard(card, s.email); err != nil {
		return s.withNotice(err), err
	}

	log := logger.WithContext(ctx).With("reservation_id", s.reservation.ID)
	attempt := models.PaymentAttempt{
		ReservationID: s.reservation.ID,
		MaskedCard:    card.Masked(),
		Amount:        s.Total(),
		Currency:      c.currency,
		Status:        models.AttemptInitiated,
		CreatedAt:     c.now(),
	}

	fail := func(err error) (State, error) {
		attempt.Status = models.AttemptFailed
		attempt.Error = err.Error()
		next := s.withNotice(err)
		next.attempts = append(next.attempts, attempt)
		log.Warn("Payment failed", "card", card, "error", err)
		return next, err
	}

	if c.gateway != nil {
		// A charge created by an earlier attempt may still settle; creating
		// another one would confirm the reservation twice.
		attempt.TransactionID = c.liveTransaction(ctx, s, attempt.Amount)
		if attempt.TransactionID != "" {
			log.Info("Reusing processor transaction", "transaction_id", attempt.TransactionID)
		} else {
			tx, err := c.gateway.CreatePayment(ctx, external.PaymentRequest{
				Reservation: *s.reservation,
				Movie:       *s.movie,
				Card:        card,
				Customer:    external.Customer{Email: s.email, Name: strings.TrimSpace(card.Name)},
				Amount:      attempt.Amount,
				Currency:    c.currency,
			})
			if err != nil {
				return fail(err)
			}
			attempt.TransactionID = tx.ID
		}
	}

	payResp, err := c.backend.Pay(ctx, models.PayRequest{
		ReservationID: s.reservation.ID,
		CardNumber:    card.Digits(),
		Expiry:        card.Expiry,
		CVV:           card.CVV,
		CardName:      strings.TrimSpace(card.Name),
	})
	if err != nil {
		return fail(err)
	}
	attempt.Status = models.AttemptSucceeded

	canonical := *s.reservation
	if r, err := c.fetchReservation(ctx, s.reservation.ID); err == nil {
		canonical = *r
	} else {
		log.Warn("Failed to fetch reservation after payment", "error", err)
		canonical.Paid = true
	}

	confirmation := &Confirmation{
		Reservation: canonical,
		Total:       attempt.Amount,
		QRBase64:    payResp.QRBase64,
		QRURL:       payResp.QRURL,
	}
	if confirmation.QRURL == "" && c.appBaseURL != "" {
		confirmation.QRURL = ticket.URL(c.appBaseURL, canonical.ID)
	}
	if confirmation.QRBase64 == "" && c.appBaseURL != "" {
		if qr, err := ticket.Base64(c.appBaseURL, canonical.ID); err == nil {
			confirmation.QRBase64 = qr
		} else {
			log.Warn("Failed to render ticket QR", "error", err)
		}
	}

	log.Info("Payment completed", "card", card, "amount", attempt.Amount.Decimal(), "transaction_id", attempt.TransactionID)

	next := s.clone()
	next.step = StepConfirmed
	next.reservation = &canonical
	next.attempts = append(next.attempts, attempt)
	next.confirmation = confirmation
	return next, nil
}

// liveTransaction returns the processor transaction of the latest attempt on
// this reservation and amount, unless the processor reports it dead. A
// failed lookup keeps the transaction.
func (c *Coordinator) liveTransaction(ctx context.Context, s State, amount models.Money) string {
	var txID string
	for i := len(s.attempts) - 1; i >= 0; i-- {
		a := s.attempts[i]
		if a.ReservationID == s.reservation.ID && a.Amount == amount && a.TransactionID != "" {
			txID = a.TransactionID
			break
		}
	}
	if txID == "" {
		return ""
	}

	checker, ok := c.gateway.(TransactionChecker)
	if !ok {
		return txID
	}
	tx, err := checker.GetTransactionStatus(ctx, txID)
	if err != nil {
		logger.WithContext(ctx).Warn("Failed to check processor transaction", "transaction_id", txID, "error", err)
		return txID
	}
	if deadTransaction[strings.ToLower(tx.Status)] {
		return ""
	}
	return txID
}

// Back steps one screen back and re-syncs what that screen shows. A held
// reservation is kept, so its seats stay selectable.
func (c *Coordinator) Back(ctx context.Context, s State) (State, error) {
	switch s.step {
	case StepSelectSeats:
		movies, err := c.fetchMovies(ctx)
		if err != nil {
			return s.withNotice(err), err
		}
		next := s.clone()
		next.step = StepSelectMovie
		next.movies = movies
		return next, nil
	case StepPayment:
		seats, err := c.fetchSeats(ctx, s.movie.ID)
		if err != nil {
			return s.withNotice(err), err
		}
		next := s.clone()
		next.step = StepSelectSeats
		next.seats = seats
		next.selected = keepSelectable(next, next.selected)
		return next, nil
	default:
		return s, stepError("go back", s.step)
	}
}

func (c *Coordinator) fetchMovies(ctx context.Context) ([]models.Movie, error) {
	var movies []models.Movie
	err := external.Retry(ctx, c.retry, func(ctx context.Context) error {
		var err error
		movies, err = c.backend.ListMovies(ctx)
		return err
	})
	return movies, err
}

func (c *Coordinator) fetchSeats(ctx context.Context, movieID string) ([]models.Seat, error) {
	var seats []models.Seat
	err := external.Retry(ctx, c.retry, func(ctx context.Context) error {
		var err error
		seats, err = c.backend.ListSeats(ctx, movieID)
		return err
	})
	return seats, err
}

func (c *Coordinator) fetchReservation(ctx context.Context, id string) (*models.Reservation, error) {
	var reservation *models.Reservation
	err := external.Retry(ctx, c.retry, func(ctx context.Context) error {
		var err error
		reservation, err = c.backend.GetReservation(ctx, id)
		return err
	})
	return reservation, err
}

func keepSelectable(s State, selected []string) []string {
	return slices.DeleteFunc(selected, func(id string) bool { return !s.Selectable(id) })
}

func stepError(op string, step Step) error {
	return fmt.Errorf("%s in step %s: %w", op, step, apperrors.ErrInvalidStep)
}

// noticeFor renders err as a message for the customer
func noticeFor(err error) string {
	var ves apperrors.ValidationErrors
	var ve *apperrors.ValidationError
	var be *apperrors.BackendError
	var ge *apperrors.GatewayError
	switch {
	case errors.As(err, &ves) && len(ves) > 0:
		return ves.First().Message
	case errors.As(err, &ve):
		return ve.Message
	case errors.As(err, &be):
		return be.Message
	case errors.As(err, &ge):
		return ge.Message
	case errors.Is(err, apperrors.ErrTimeout):
		return "the request timed out, please try again"
	case apperrors.IsRetryable(err):
		return "could not reach the server, please try again"
	default:
		return err.Error()
	}
}
