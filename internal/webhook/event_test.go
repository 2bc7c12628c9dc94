package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinepay/internal/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Event
	}{
		{
			name: "succeeded",
			body: `{"event_type":"payment.succeeded","data":{"id":"T1","amount":20.00,"currency":"USD",
				"customer":{"email":"john@x.com"},"metadata":{"reservation_id":"R1","movie_id":"M1","seats":["A1","A2"]}}}`,
			want: PaymentSucceeded{
				Ref:      Ref{TransactionID: "T1", ReservationID: "R1"},
				Amount:   models.MoneyFromFloat(20),
				Currency: "USD",
				Email:    "john@x.com",
				MovieID:  "M1",
				Seats:    []string{"A1", "A2"},
			},
		},
		{
			name: "failed",
			body: `{"event_type":"payment.failed","data":{"id":"T1","failure_code":"card_declined","failure_message":"Declined"}}`,
			want: PaymentFailed{Ref: Ref{TransactionID: "T1"}, FailureCode: "card_declined", FailureMessage: "Declined"},
		},
		{
			name: "refund keyed by payment",
			body: `{"event_type":"payment.refunded","data":{"id":"RF1","payment_id":"T1","amount":"20.00"}}`,
			want: PaymentRefunded{Ref: Ref{TransactionID: "T1"}, RefundID: "RF1", Amount: models.MoneyFromFloat(20)},
		},
		{
			name: "refund without payment id",
			body: `{"event_type":"payment.refunded","data":{"id":"T1"}}`,
			want: PaymentRefunded{Ref: Ref{TransactionID: "T1"}},
		},
		{
			name: "cancelled",
			body: `{"event_type":"payment.cancelled","data":{"id":"T1","metadata":{"reservation_id":"R1"}}}`,
			want: PaymentCancelled{Ref: Ref{TransactionID: "T1", ReservationID: "R1"}},
		},
		{
			name: "unknown",
			body: `{"event_type":"payment.disputed","data":{"id":"T1"}}`,
			want: Unknown{Ref: Ref{TransactionID: "T1"}, EventType: "payment.disputed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, event, err := Parse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, event)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	_, _, err := Parse([]byte(`{"event_type":`))
	assert.Error(t, err)
}
