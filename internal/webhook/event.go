package webhook

import (
	"encoding/json"
	"fmt"

	"cinepay/internal/models"
)

// Event types delivered by the processor
const (
	TypeSucceeded = "payment.succeeded"
	TypeFailed    = "payment.failed"
	TypeRefunded  = "payment.refunded"
	TypeCancelled = "payment.cancelled"
)

// SubscribedEvents are the event types registered with the processor
var SubscribedEvents = []string{TypeSucceeded, TypeFailed, TypeRefunded, TypeCancelled}

// Payload is the wire form of a delivery body
type Payload struct {
	EventType  string `json:"event_type"`
	DeliveryID string `json:"delivery_id,omitempty"`
	Data       Data   `json:"data"`
}

type Data struct {
	ID             string       `json:"id"`
	PaymentID      string       `json:"payment_id,omitempty"`
	Amount         models.Money `json:"amount"`
	Currency       string       `json:"currency,omitempty"`
	Status         string       `json:"status,omitempty"`
	Customer       Customer     `json:"customer"`
	Metadata       Metadata     `json:"metadata"`
	FailureCode    string       `json:"failure_code,omitempty"`
	FailureMessage string       `json:"failure_message,omitempty"`
}

type Customer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type Metadata struct {
	ReservationID string   `json:"reservation_id,omitempty"`
	MovieID       string   `json:"movie_id,omitempty"`
	Seats         []string `json:"seats,omitempty"`
}

// Ref identifies the payment and reservation an event is about
type Ref struct {
	TransactionID string
	ReservationID string
}

func (r Ref) ref() Ref { return r }

// Event is one of PaymentSucceeded, PaymentFailed, PaymentRefunded,
// PaymentCancelled or Unknown. The set is closed.
type Event interface {
	Type() string
	ref() Ref
}

type PaymentSucceeded struct {
	Ref
	Amount   models.Money
	Currency string
	Email    string
	MovieID  string
	Seats    []string
}

type PaymentFailed struct {
	Ref
	FailureCode    string
	FailureMessage string
}

// PaymentRefunded is keyed by the refunded payment; RefundID is the refund object
type PaymentRefunded struct {
	Ref
	RefundID string
	Amount   models.Money
}

type PaymentCancelled struct {
	Ref
}

type Unknown struct {
	Ref
	EventType string
}

func (PaymentSucceeded) Type() string { return TypeSucceeded }
func (PaymentFailed) Type() string    { return TypeFailed }
func (PaymentRefunded) Type() string  { return TypeRefunded }
func (PaymentCancelled) Type() string { return TypeCancelled }
func (e Unknown) Type() string        { return e.EventType }

// RefOf returns the transaction and reservation ids of an event
func RefOf(e Event) Ref { return e.ref() }

// Parse decodes a delivery body into its payload and typed event
func Parse(body []byte) (Payload, Event, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	return p, p.Event(), nil
}

// Event maps the payload to its typed event
func (p Payload) Event() Event {
	ref := Ref{TransactionID: p.Data.ID, ReservationID: p.Data.Metadata.ReservationID}

	switch p.EventType {
	case TypeSucceeded:
		return PaymentSucceeded{
			Ref:      ref,
			Amount:   p.Data.Amount,
			Currency: p.Data.Currency,
			Email:    p.Data.Customer.Email,
			MovieID:  p.Data.Metadata.MovieID,
			Seats:    p.Data.Metadata.Seats,
		}
	case TypeFailed:
		return PaymentFailed{
			Ref:            ref,
			FailureCode:    p.Data.FailureCode,
			FailureMessage: p.Data.FailureMessage,
		}
	case TypeRefunded:
		refunded := PaymentRefunded{Ref: ref, Amount: p.Data.Amount}
		if p.Data.PaymentID != "" {
			refunded.TransactionID = p.Data.PaymentID
			refunded.RefundID = p.Data.ID
		}
		return refunded
	case TypeCancelled:
		return PaymentCancelled{Ref: ref}
	default:
		return Unknown{Ref: ref, EventType: p.EventType}
	}
}
