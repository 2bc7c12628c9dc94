package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/stan.go"

	"cinepay/internal/models"
	"cinepay/internal/notify"
	"cinepay/internal/ticket"
)

// Mailer sends ticket confirmations; *notify.Mailer satisfies it
type Mailer interface {
	SendConfirmation(ctx context.Context, t notify.Ticket) error
}

// errDrop marks a message that can never be handled and is acked anyway
var errDrop = errors.New("message dropped")

type Handlers struct {
	mailer     Mailer
	appBaseURL string
}

func NewHandlers(mailer Mailer, appBaseURL string) *Handlers {
	return &Handlers{
		mailer:     mailer,
		appBaseURL: appBaseURL,
	}
}

// HandleReservationPaid e-mails the ticket. The message is left unacked when
// sending fails so NATS Streaming redelivers it after AckWait.
func (h *Handlers) HandleReservationPaid(m *stan.Msg) {
	err := h.handlePaid(context.Background(), m.Data)
	switch {
	case errors.Is(err, errDrop):
		slog.Warn("Dropping reservation paid event", "sequence", m.Sequence, "error", err)
	case err != nil:
		slog.Error("Failed to process reservation paid event", "sequence", m.Sequence, "error", err)
		return
	}
	ack(m)
}

func (h *Handlers) handlePaid(ctx context.Context, data []byte) error {
	var event models.ReservationPaidEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: malformed event: %v", errDrop, err)
	}
	if event.Email == "" {
		return fmt.Errorf("%w: reservation %s has no e-mail", errDrop, event.ReservationID)
	}

	slog.Info("Processing reservation paid event",
		"reservation_id", event.ReservationID,
		"transaction_id", event.TransactionID,
		"confirmation_code", event.ConfirmationCode)

	t := notify.Ticket{
		To:               event.Email,
		ReservationID:    event.ReservationID,
		ConfirmationCode: event.ConfirmationCode,
		MovieID:          event.MovieID,
		Seats:            event.Seats,
		Amount:           event.Amount,
		Currency:         event.Currency,
	}
	if h.appBaseURL != "" {
		t.TicketURL = ticket.URL(h.appBaseURL, event.ReservationID)
		png, err := ticket.PNG(t.TicketURL, ticket.DefaultSize)
		if err != nil {
			slog.Warn("Sending confirmation without QR code", "reservation_id", event.ReservationID, "error", err)
		} else {
			t.QRPNG = png
		}
	}

	return h.mailer.SendConfirmation(ctx, t)
}

func (h *Handlers) HandlePaymentFailed(m *stan.Msg) {
	var event models.PaymentFailedEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal payment failed event", "error", err)
		ack(m)
		return
	}

	slog.Warn("Payment failed",
		"reservation_id", event.ReservationID,
		"transaction_id", event.TransactionID,
		"failure_code", event.FailureCode,
		"failure_message", event.FailureMessage)
	ack(m)
}

// HandleStatusChanged covers refunded and cancelled reservations
func (h *Handlers) HandleStatusChanged(m *stan.Msg) {
	var event models.ReservationStatusEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal reservation status event", "subject", m.Subject, "error", err)
		ack(m)
		return
	}

	slog.Info("Reservation status changed",
		"subject", m.Subject,
		"reservation_id", event.ReservationID,
		"transaction_id", event.TransactionID,
		"status", event.Status)
	ack(m)
}

func ack(m *stan.Msg) {
	if err := m.Ack(); err != nil {
		slog.Error("Failed to ack message", "subject", m.Subject, "sequence", m.Sequence, "error", err)
	}
}
