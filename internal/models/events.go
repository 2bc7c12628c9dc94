package models

import "time"

// NATS Event Types
const (
	EventReservationPaid      = "reservation.paid"
	EventReservationRefunded  = "reservation.refunded"
	EventReservationCancelled = "reservation.cancelled"
	EventPaymentFailed        = "payment.failed"
)

// ReservationPaidEvent is published once per settled transaction
type ReservationPaidEvent struct {
	ReservationID    string    `json:"reservation_id"`
	TransactionID    string    `json:"transaction_id"`
	ConfirmationCode string    `json:"confirmation_code"`
	Email            string    `json:"email,omitempty"`
	MovieID          string    `json:"movie_id,omitempty"`
	Seats            []string  `json:"seats,omitempty"`
	Amount           Money     `json:"amount"`
	Currency         string    `json:"currency,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// ReservationStatusEvent covers refunds and cancellations
type ReservationStatusEvent struct {
	ReservationID string            `json:"reservation_id"`
	TransactionID string            `json:"transaction_id"`
	Status        ReservationStatus `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
}

// PaymentFailedEvent represents a failed payment event
type PaymentFailedEvent struct {
	ReservationID  string    `json:"reservation_id,omitempty"`
	TransactionID  string    `json:"transaction_id"`
	FailureCode    string    `json:"failure_code,omitempty"`
	FailureMessage string    `json:"failure_message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
