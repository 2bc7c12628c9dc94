package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "cinepay/internal/errors"
	"cinepay/internal/logger"
	"cinepay/internal/metrics"
	"cinepay/internal/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ErrNotRetryable is returned when retrying a delivery that did not fail
var ErrNotRetryable = errors.New("delivery did not fail and cannot be retried")

// DeliveryState follows one delivery through the pipeline
type DeliveryState string

const (
	StateReceived   DeliveryState = "received"
	StateVerified   DeliveryState = "verified"
	StateDispatched DeliveryState = "dispatched"
	StateFailed     DeliveryState = "failed"
	StateLogged     DeliveryState = "logged"
	StateRejected   DeliveryState = "rejected"
)

// Delivery is one inbound webhook request
type Delivery struct {
	Body      []byte
	Signature string
}

// Result describes how a delivery ended. Err is set for rejected and
// failed deliveries.
type Result struct {
	State            DeliveryState            `json:"state"`
	LogID            string                   `json:"log_id,omitempty"`
	EventType        string                   `json:"event_type,omitempty"`
	TransactionID    string                   `json:"transaction_id,omitempty"`
	ReservationID    string                   `json:"reservation_id,omitempty"`
	Status           models.ReservationStatus `json:"reservation_status,omitempty"`
	ConfirmationCode string                   `json:"confirmation_code,omitempty"`
	FailureCode      string                   `json:"failure_code,omitempty"`
	FailureMessage   string                   `json:"failure_message,omitempty"`
	Duplicate        bool                     `json:"duplicate,omitempty"`
	Ignored          bool                     `json:"ignored,omitempty"`
	Message          string                   `json:"message"`
	Err              error                    `json:"-"`
}

// HTTPStatus maps the result to the ingress response code
func (r Result) HTTPStatus() int {
	switch {
	case errors.Is(r.Err, apperrors.ErrUnauthorized):
		return 401
	case r.Err != nil:
		return 500
	default:
		return 200
	}
}

// ReservationBackend receives the terminal reservation state
type ReservationBackend interface {
	UpdateReservationStatus(ctx context.Context, reservationID string, update models.ReservationStatusUpdate) error
	GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error)
}

// Publisher fans reservation events out to other services
type Publisher interface {
	Publish(subject string, data interface{}) error
}

type Options struct {
	Locker      Locker
	Publisher   Publisher
	Codes       CodeFunc
	Now         func() time.Time
	LockTimeout time.Duration
	// MaxAttempts caps automatic replays of one delivery chain
	MaxAttempts int
}

// Reconciler verifies webhook deliveries, applies them to reservations and
// keeps the audit log. Effects are keyed by transaction id and event type,
// so duplicate and replayed deliveries converge on the same state.
type Reconciler struct {
	store       Store
	backend     ReservationBackend
	verifier    *Verifier
	locker      Locker
	publisher   Publisher
	codes       CodeFunc
	now         func() time.Time
	lockTimeout time.Duration
	maxAttempts int
}

func NewReconciler(store Store, backend ReservationBackend, verifier *Verifier, opts Options) *Reconciler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Locker == nil {
		opts.Locker = NewKeyedMutex()
	}
	if opts.Codes == nil {
		opts.Codes = NewCodeGenerator(opts.Now)
	}
	if opts.LockTimeout == 0 {
		opts.LockTimeout = 10 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	return &Reconciler{
		store:       store,
		backend:     backend,
		verifier:    verifier,
		locker:      opts.Locker,
		publisher:   opts.Publisher,
		codes:       opts.Codes,
		now:         opts.Now,
		lockTimeout: opts.LockTimeout,
		maxAttempts: opts.MaxAttempts,
	}
}

// Handle runs a fresh delivery through verify, dispatch and log
func (r *Reconciler) Handle(ctx context.Context, d Delivery) Result {
	return r.run(ctx, d, 1, "")
}

func (r *Reconciler) run(ctx context.Context, d Delivery, attempt int, replayOf string) Result {
	start := r.now()
	log := logger.WithContext(ctx)

	if err := r.verifier.Verify(d.Body, d.Signature); err != nil {
		log.Warn("Webhook rejected", "error", err, "replay_of", replayOf)
		metrics.ObserveDelivery("", string(StateRejected), time.Since(start))
		res := Result{State: StateRejected, Message: err.Error(), Err: err}
		if replayOf != "" {
			res.LogID = r.logRejectedReplay(ctx, d, attempt, replayOf, err)
		}
		return res
	}

	payload, event, parseErr := Parse(d.Body)
	entry := &LogEntry{
		DeliveryID: payload.DeliveryID,
		EventType:  payload.EventType,
		Signature:  d.Signature,
		Attempt:    attempt,
		ReplayOf:   replayOf,
	}
	entry.SetBody(d.Body)

	var res Result
	if parseErr != nil {
		res = Result{State: StateFailed, Message: parseErr.Error(), Err: parseErr}
	} else {
		ref := RefOf(event)
		entry.TransactionID, entry.ReservationID = ref.TransactionID, ref.ReservationID
		log = log.With("event_type", event.Type(), "transaction_id", ref.TransactionID, "delivery_id", payload.DeliveryID)
		log.Info("Webhook verified", "attempt", attempt)
		res = r.dispatch(ctx, log, event)
	}

	entry.Status = LogProcessed
	if res.Err != nil {
		entry.Status = LogFailed
		entry.Error = res.Err.Error()
	}
	if res.ReservationID != "" {
		entry.ReservationID = res.ReservationID
	}
	if data, err := json.Marshal(res); err == nil {
		entry.Result = data
	}

	if err := r.store.Append(ctx, entry); err != nil {
		log.Error("Failed to write webhook log", "error", err)
		if res.Err == nil {
			res.Err = fmt.Errorf("failed to log delivery: %w", err)
			res.Message = res.Err.Error()
		}
	}
	res.LogID = entry.ID
	res.State = StateLogged

	if res.Err != nil {
		log.Error("Webhook processing failed", "error", res.Err, "log_id", entry.ID)
		metrics.ObserveDelivery(entry.EventType, string(StateFailed), time.Since(start))
	} else {
		log.Info("Webhook processed", "log_id", entry.ID, "duplicate", res.Duplicate, "ignored", res.Ignored)
		metrics.ObserveDelivery(entry.EventType, string(LogProcessed), time.Since(start))
	}
	return res
}

// dispatch applies one event; it never panics on unknown input
func (r *Reconciler) dispatch(ctx context.Context, log *slog.Logger, event Event) Result {
	ref := RefOf(event)
	res := Result{
		State:         StateDispatched,
		EventType:     event.Type(),
		TransactionID: ref.TransactionID,
		ReservationID: ref.ReservationID,
	}

	var err error
	switch e := event.(type) {
	case PaymentSucceeded:
		err = r.withLock(ctx, e.TransactionID, func(ctx context.Context) error {
			return r.applySucceeded(ctx, log, e, &res)
		})
	case PaymentFailed:
		err = r.withLock(ctx, e.TransactionID, func(ctx context.Context) error {
			return r.applyFailed(ctx, e, &res)
		})
	case PaymentRefunded:
		err = r.withLock(ctx, e.TransactionID, func(ctx context.Context) error {
			return r.applyStatus(ctx, e.Ref, TypeRefunded, models.ReservationRefunded, &res)
		})
	case PaymentCancelled:
		err = r.withLock(ctx, e.TransactionID, func(ctx context.Context) error {
			return r.applyCancelled(ctx, e, &res)
		})
	case Unknown:
		log.Info("Unhandled webhook event type")
		res.Ignored = true
		res.Message = "event type not handled"
	default:
		err = fmt.Errorf("unsupported event %T", event)
	}

	if err != nil {
		res.State = StateFailed
		res.Err = &apperrors.ReconciliationError{EventType: event.Type(), TransactionID: ref.TransactionID, Err: err}
		res.Message = res.Err.Error()
	}
	return res
}

func (r *Reconciler) withLock(ctx context.Context, transactionID string, fn func(context.Context) error) error {
	if transactionID == "" {
		return errors.New("event carries no transaction id")
	}
	lockCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	unlock, err := r.locker.Lock(lockCtx, transactionID)
	if err != nil {
		return fmt.Errorf("failed to lock transaction: %w", err)
	}
	defer unlock()
	return fn(ctx)
}

func (r *Reconciler) applySucceeded(ctx context.Context, log *slog.Logger, e PaymentSucceeded, res *Result) error {
	existing, err := r.store.FindOutcome(ctx, e.TransactionID, TypeSucceeded)
	if err != nil {
		return err
	}

	var outcome Outcome
	if existing != nil {
		outcome = *existing
	} else {
		if e.ReservationID == "" {
			return errors.New("event carries no metadata.reservation_id")
		}
		outcome, err = r.store.ReserveOutcome(ctx, Outcome{
			TransactionID:    e.TransactionID,
			EventType:        TypeSucceeded,
			ReservationID:    e.ReservationID,
			ConfirmationCode: r.codes(e.TransactionID),
		})
		if err != nil {
			return err
		}
	}

	res.ReservationID = outcome.ReservationID
	res.ConfirmationCode = outcome.ConfirmationCode
	res.Status = models.ReservationPaid

	if outcome.State == OutcomeApplied {
		res.Duplicate = true
		res.Message = "payment already applied"
		return nil
	}

	err = r.backend.UpdateReservationStatus(ctx, outcome.ReservationID, models.ReservationStatusUpdate{
		Status:           models.ReservationPaid,
		TransactionID:    e.TransactionID,
		ConfirmationCode: outcome.ConfirmationCode,
	})
	if err != nil {
		return fmt.Errorf("failed to push paid status: %w", err)
	}
	if err := r.store.MarkApplied(ctx, e.TransactionID, TypeSucceeded); err != nil {
		return err
	}
	res.Message = "payment applied"

	paid := models.ReservationPaidEvent{
		ReservationID:    outcome.ReservationID,
		TransactionID:    e.TransactionID,
		ConfirmationCode: outcome.ConfirmationCode,
		Email:            e.Email,
		MovieID:          e.MovieID,
		Seats:            e.Seats,
		Amount:           e.Amount,
		Currency:         e.Currency,
		Timestamp:        r.now(),
	}
	if paid.Email == "" || len(paid.Seats) == 0 {
		if reservation, err := r.backend.GetReservation(ctx, outcome.ReservationID); err == nil {
			paid.Email, paid.MovieID, paid.Seats = reservation.Email, reservation.MovieID, reservation.Seats
		} else {
			log.Warn("Failed to load reservation for paid event", "error", err)
		}
	}
	r.publish(ctx, models.EventReservationPaid, paid)
	return nil
}

func (r *Reconciler) applyFailed(ctx context.Context, e PaymentFailed, res *Result) error {
	res.FailureCode = e.FailureCode
	res.FailureMessage = e.FailureMessage
	res.Message = "payment failed"

	outcome, err := r.store.ReserveOutcome(ctx, Outcome{
		TransactionID: e.TransactionID,
		EventType:     TypeFailed,
		ReservationID: e.ReservationID,
	})
	if err != nil {
		return err
	}
	if outcome.State == OutcomeApplied {
		res.Duplicate = true
		return nil
	}

	r.publish(ctx, models.EventPaymentFailed, models.PaymentFailedEvent{
		ReservationID:  e.ReservationID,
		TransactionID:  e.TransactionID,
		FailureCode:    e.FailureCode,
		FailureMessage: e.FailureMessage,
		Timestamp:      r.now(),
	})
	return r.store.MarkApplied(ctx, e.TransactionID, TypeFailed)
}

func (r *Reconciler) applyCancelled(ctx context.Context, e PaymentCancelled, res *Result) error {
	settled, err := r.store.FindOutcome(ctx, e.TransactionID, TypeSucceeded)
	if err != nil {
		return err
	}
	if settled != nil {
		res.ReservationID = settled.ReservationID
		res.Ignored = true
		res.Message = "payment already settled, cancellation ignored"
		return nil
	}
	return r.applyStatus(ctx, e.Ref, TypeCancelled, models.ReservationCancelled, res)
}

// applyStatus pushes a refund or cancellation. The reservation id comes
// from the event metadata or from the settled payment.
func (r *Reconciler) applyStatus(ctx context.Context, ref Ref, eventType string, status models.ReservationStatus, res *Result) error {
	reservationID := ref.ReservationID
	if reservationID == "" {
		settled, err := r.store.FindOutcome(ctx, ref.TransactionID, TypeSucceeded)
		if err != nil {
			return err
		}
		if settled == nil {
			return fmt.Errorf("no reservation known for transaction %s", ref.TransactionID)
		}
		reservationID = settled.ReservationID
	}

	outcome, err := r.store.ReserveOutcome(ctx, Outcome{
		TransactionID: ref.TransactionID,
		EventType:     eventType,
		ReservationID: reservationID,
	})
	if err != nil {
		return err
	}
	res.ReservationID = outcome.ReservationID
	res.Status = status

	if outcome.State == OutcomeApplied {
		res.Duplicate = true
		res.Message = "status already applied"
		return nil
	}

	err = r.backend.UpdateReservationStatus(ctx, outcome.ReservationID, models.ReservationStatusUpdate{
		Status:        status,
		TransactionID: ref.TransactionID,
	})
	if err != nil {
		return fmt.Errorf("failed to push %s status: %w", status, err)
	}
	if err := r.store.MarkApplied(ctx, ref.TransactionID, eventType); err != nil {
		return err
	}
	res.Message = "reservation " + string(status)

	subject := models.EventReservationRefunded
	if status == models.ReservationCancelled {
		subject = models.EventReservationCancelled
	}
	r.publish(ctx, subject, models.ReservationStatusEvent{
		ReservationID: outcome.ReservationID,
		TransactionID: ref.TransactionID,
		Status:        status,
		Timestamp:     r.now(),
	})
	return nil
}

func (r *Reconciler) publish(ctx context.Context, subject string, event interface{}) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(subject, event); err != nil {
		logger.WithContext(ctx).Error("Failed to publish event", "subject", subject, "error", err)
	}
}

// logRejectedReplay records a replay whose stored signature no longer
// verifies, so the chain still counts toward the attempt cap
func (r *Reconciler) logRejectedReplay(ctx context.Context, d Delivery, attempt int, replayOf string, verifyErr error) string {
	payload, event, _ := Parse(d.Body)
	entry := &LogEntry{
		DeliveryID: payload.DeliveryID,
		EventType:  payload.EventType,
		Signature:  d.Signature,
		Status:     LogFailed,
		Error:      verifyErr.Error(),
		Attempt:    attempt,
		ReplayOf:   replayOf,
	}
	if event != nil {
		ref := RefOf(event)
		entry.TransactionID, entry.ReservationID = ref.TransactionID, ref.ReservationID
	}
	entry.SetBody(d.Body)
	if err := r.store.Append(ctx, entry); err != nil {
		logger.WithContext(ctx).Error("Failed to write webhook log", "error", err, "replay_of", replayOf)
		return ""
	}
	return entry.ID
}

// History pages through the audit log, newest first
func (r *Reconciler) History(ctx context.Context, limit, offset int) ([]LogEntry, int, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return r.store.List(ctx, limit, offset)
}

// Retry replays a failed delivery by log id. The stored body and signature
// go through the full pipeline again and a new log entry is appended.
func (r *Reconciler) Retry(ctx context.Context, id string) (Result, error) {
	entry, err := r.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if entry.Status != LogFailed {
		return Result{}, ErrNotRetryable
	}

	logger.WithContext(ctx).Info("Retrying webhook delivery", "log_id", id, "attempt", entry.Attempt+1)
	return r.run(ctx, Delivery{Body: entry.Body, Signature: entry.Signature}, entry.Attempt+1, entry.ID), nil
}

// ReplayFailed retries up to limit failed deliveries that are still below
// the attempt cap and returns how many of them now succeeded
func (r *Reconciler) ReplayFailed(ctx context.Context, limit int) (int, error) {
	failed, err := r.store.ListFailed(ctx, r.maxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed deliveries: %w", err)
	}

	recovered := 0
	for _, entry := range failed {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		res, err := r.Retry(ctx, entry.ID)
		if err != nil {
			logger.WithContext(ctx).Error("Failed to replay delivery", "log_id", entry.ID, "error", err)
			continue
		}
		if res.Err == nil {
			recovered++
		}
	}
	return recovered, nil
}

// TestWebhookConnection pushes a signed synthetic event through the pipeline;
// it is expected to come back as a processed no-op
func (r *Reconciler) TestWebhookConnection(ctx context.Context) Result {
	body, _ := json.Marshal(Payload{
		EventType: "test",
		Data: Data{
			ID:       "test_transaction",
			Amount:   models.MoneyFromFloat(1),
			Currency: "USD",
			Status:   "test",
		},
	})
	return r.Handle(ctx, Delivery{Body: body, Signature: r.verifier.Sign(body)})
}
