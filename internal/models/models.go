package models

// ReserveRequest - body of POST /reserve on the booking backend
type ReserveRequest struct {
	MovieID string   `json:"movie_id"`
	Seats   []string `json:"seats"`
	Email   string   `json:"email"`
}

// PayRequest - body of POST /pay on the booking backend
type PayRequest struct {
	ReservationID string `json:"reservation_id"`
	CardNumber    string `json:"card_number"`
	Expiry        string `json:"expiry"`
	CVV           string `json:"cvv"`
	CardName      string `json:"card_name"`
}

// PayResponse - answer of POST /pay; QRBase64 is optional
type PayResponse struct {
	Success       bool   `json:"success"`
	ReservationID string `json:"reservation_id"`
	QRBase64      string `json:"qr_base64,omitempty"`
	QRURL         string `json:"qr_url,omitempty"`
}

// ReservationStatusUpdate - body of PATCH /reservation/{id}, pushed by the
// webhook reconciler once a terminal payment state is known
type ReservationStatusUpdate struct {
	Status           ReservationStatus `json:"status"`
	TransactionID    string            `json:"transaction_id"`
	ConfirmationCode string            `json:"confirmation_code,omitempty"`
}

// WebhookResponse - body returned by POST /webhook/rapikom
type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PageResponse - paginated list envelope
type PageResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
}
