package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Money is an amount in currency minor units (cents)
type Money int64

// MoneyFromFloat converts a decimal amount such as 12.50 to minor units
func MoneyFromFloat(v float64) Money {
	return Money(math.Round(v * 100))
}

// Times returns the amount multiplied by n
func (m Money) Times(n int) Money {
	return m * Money(n)
}

// Decimal renders the amount as a plain decimal, e.g. "20.00"
func (m Money) Decimal() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// String renders the amount with a dollar sign, e.g. "$20.00"
func (m Money) String() string {
	d := m.Decimal()
	if strings.HasPrefix(d, "-") {
		return "-$" + d[1:]
	}
	return "$" + d
}

// MarshalJSON encodes the amount as a JSON decimal number
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string
func (m *Money) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	if str == "" || str == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("invalid money value %q: %w", str, err)
	}
	*m = MoneyFromFloat(v)
	return nil
}

// Movie is immutable once loaded from the booking backend
type Movie struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
	Price    Money  `json:"price"`
	Poster   string `json:"poster"`
}

// Seat is a read-only snapshot of backend seat state
type Seat struct {
	ID         string `json:"id"`
	Row        string `json:"row"`
	Number     int    `json:"number"`
	Reserved   bool   `json:"is_reserved"`
	ReservedBy string `json:"reserved_by,omitempty"`
}

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationPaid      ReservationStatus = "paid"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationRefunded  ReservationStatus = "refunded"
)

// Reservation is the canonical backend record; ID joins the checkout flow,
// backend state and webhook events
type Reservation struct {
	ID               string            `json:"id"`
	MovieID          string            `json:"movie_id"`
	Seats            []string          `json:"seats"`
	Email            string            `json:"email"`
	Status           ReservationStatus `json:"status,omitempty"`
	Paid             bool              `json:"paid"`
	TransactionID    string            `json:"transaction_id,omitempty"`
	ConfirmationCode string            `json:"confirmation_code,omitempty"`
}

// EffectiveStatus falls back to the paid flag for backends that do not
// report an explicit status
func (r Reservation) EffectiveStatus() ReservationStatus {
	if r.Status != "" {
		return r.Status
	}
	if r.Paid {
		return ReservationPaid
	}
	return ReservationPending
}

type AttemptStatus string

const (
	AttemptInitiated AttemptStatus = "initiated"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// PaymentAttempt is created once per pay call; a retry creates a new attempt
type PaymentAttempt struct {
	ReservationID string        `json:"reservation_id"`
	TransactionID string        `json:"transaction_id,omitempty"`
	MaskedCard    string        `json:"masked_card"`
	Amount        Money         `json:"amount"`
	Currency      string        `json:"currency"`
	Status        AttemptStatus `json:"status"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
