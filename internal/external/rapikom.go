package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "cinepay/internal/errors"
	"cinepay/internal/logger"
	"cinepay/internal/metrics"
	"cinepay/internal/models"
)

const userAgent = "CinePay/1.0.0"

// Processor endpoints per environment
var rapikomEndpoints = map[string]string{
	"development": "https://sandbox-api.rapikom.com/v1",
	"sandbox":     "https://sandbox-api.rapikom.com/v1",
	"staging":     "https://staging-api.rapikom.com/v1",
	"production":  "https://api.rapikom.com/v1",
}

// EnvironmentTag maps the application environment to the tag sent in X-Environment
func EnvironmentTag(env string) string {
	switch env {
	case "production", "staging":
		return env
	default:
		return "sandbox"
	}
}

// EndpointFor returns the processor base URL for an application environment
func EndpointFor(env string) string {
	if u, ok := rapikomEndpoints[env]; ok {
		return u
	}
	return rapikomEndpoints["development"]
}

type RapikomConfig struct {
	BaseURL       string
	APIKey        string
	MerchantID    string
	Environment   string
	Timeout       time.Duration
	RetryAttempts int
	Currency      string
	CinemaID      string
	AppBaseURL    string
}

// RapikomClient is a typed client over the Rapikom REST API. It is stateless
// and safe for concurrent use; it never retries on its own.
type RapikomClient struct {
	cfg        RapikomConfig
	httpClient *http.Client
}

// Processor models

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// PaymentRequest describes one charge for a reservation
type PaymentRequest struct {
	Reservation models.Reservation
	Movie       models.Movie
	Card        Card
	Customer    Customer
	Amount      models.Money
	Currency    string
}

type paymentMethodPayload struct {
	Type        string `json:"type"`
	CardNumber  string `json:"card_number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
}

type createPaymentPayload struct {
	Amount        models.Money         `json:"amount"`
	Currency      string               `json:"currency"`
	Description   string               `json:"description"`
	Customer      Customer             `json:"customer"`
	PaymentMethod paymentMethodPayload `json:"payment_method"`
	Metadata      PaymentMetadata      `json:"metadata"`
	CallbackURL   string               `json:"callback_url,omitempty"`
	SuccessURL    string               `json:"success_url,omitempty"`
	CancelURL     string               `json:"cancel_url,omitempty"`
}

// PaymentMetadata is echoed back by the processor in transactions and webhooks
type PaymentMetadata struct {
	ReservationID string   `json:"reservation_id"`
	MovieID       string   `json:"movie_id,omitempty"`
	MovieTitle    string   `json:"movie_title,omitempty"`
	Seats         []string `json:"seats,omitempty"`
	CinemaID      string   `json:"cinema_id,omitempty"`
	Service       string   `json:"service,omitempty"`
	CardMasked    string   `json:"card_masked,omitempty"`
}

type Transaction struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Amount         models.Money    `json:"amount"`
	Currency       string          `json:"currency"`
	Description    string          `json:"description,omitempty"`
	Metadata       PaymentMetadata `json:"metadata"`
	FailureCode    string          `json:"failure_code,omitempty"`
	FailureMessage string          `json:"failure_message,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
}

type TransactionFilter struct {
	Status        string
	ReservationID string
	From          time.Time
	To            time.Time
	Limit         int
	Offset        int
}

func (f TransactionFilter) query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.ReservationID != "" {
		q.Set("reservation_id", f.ReservationID)
	}
	if !f.From.IsZero() {
		q.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.Set("to", f.To.UTC().Format(time.RFC3339))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

type TransactionList struct {
	Data  []Transaction `json:"data"`
	Total int           `json:"total"`
}

type Refund struct {
	ID        string       `json:"id"`
	PaymentID string       `json:"payment_id"`
	Amount    models.Money `json:"amount"`
	Status    string       `json:"status"`
	Reason    string       `json:"reason"`
}

type refundPayload struct {
	Amount *models.Money `json:"amount"`
	Reason string        `json:"reason"`
}

type CardValidation struct {
	Valid   bool   `json:"valid"`
	Brand   string `json:"brand,omitempty"`
	Message string `json:"message,omitempty"`
}

type cardPayload struct {
	CardNumber  string `json:"card_number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
}

type PaymentMethod struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type Merchant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Environment string `json:"environment"`
	Currency    string `json:"currency"`
}

type WebhookRegistration struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type WebhookEndpoint struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// ConnectionStatus is the result of TestConnection; it never carries an error value
type ConnectionStatus struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Environment string `json:"environment"`
	Error       string `json:"error,omitempty"`
}

type gatewayErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func NewRapikomClient(cfg RapikomConfig) *RapikomClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = EndpointFor(cfg.Environment)
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &RapikomClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// RetryPolicy returns the caller-side policy configured for this processor
func (c *RapikomClient) RetryPolicy() RetryPolicy {
	return DefaultRetryPolicy(c.cfg.RetryAttempts)
}

func (c *RapikomClient) authenticate(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-Merchant-ID", c.cfg.MerchantID)
	req.Header.Set("X-Environment", EnvironmentTag(c.cfg.Environment))
	req.Header.Set("User-Agent", userAgent)
}

// do sends an authenticated request and decodes a 2xx body into out.
// Non-2xx answers become *errors.GatewayError.
func (c *RapikomClient) do(ctx context.Context, op, method, path string, payload, out any) error {
	resp, err := send(ctx, c.httpClient, "rapikom "+op, method, c.cfg.BaseURL+path, payload, c.authenticate)
	if err != nil {
		metrics.ObserveGatewayCall(op, resultClass(err))
		logger.WithContext(ctx).Error("Rapikom request failed", "operation", op, "error", err)
		return err
	}

	if !resp.ok() {
		var body gatewayErrorBody
		_ = decode(op, resp.body, &body)
		msg := body.Message
		if msg == "" {
			msg = body.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.status)
		}
		gerr := &apperrors.GatewayError{Status: resp.status, Message: msg, Code: body.Code}
		metrics.ObserveGatewayCall(op, "gateway_error")
		logger.WithContext(ctx).Error("Rapikom API error", "operation", op, "status", resp.status, "message", msg)
		return gerr
	}

	metrics.ObserveGatewayCall(op, "ok")
	return decode(op, resp.body, out)
}

func resultClass(err error) string {
	if errors.Is(err, apperrors.ErrTimeout) {
		return "timeout"
	}
	if apperrors.IsRetryable(err) {
		return "network"
	}
	return "error"
}

// CreatePayment starts a card charge for a reservation. The returned
// transaction id joins later webhook events via metadata.reservation_id.
func (c *RapikomClient) CreatePayment(ctx context.Context, req PaymentRequest) (*Transaction, error) {
	month, year, ok := req.Card.ExpiryParts()
	if !ok {
		return nil, &apperrors.ValidationError{Field: "expiry", Message: "expiry must match MM/YY"}
	}
	currency := req.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}

	payload := createPaymentPayload{
		Amount:      req.Amount,
		Currency:    currency,
		Description: "Ticket purchase - " + req.Movie.Title,
		Customer:    req.Customer,
		PaymentMethod: paymentMethodPayload{
			Type:        "card",
			CardNumber:  req.Card.Digits(),
			ExpiryMonth: month,
			ExpiryYear:  year,
			CVV:         req.Card.CVV,
		},
		Metadata: PaymentMetadata{
			ReservationID: req.Reservation.ID,
			MovieID:       req.Movie.ID,
			MovieTitle:    req.Movie.Title,
			Seats:         req.Reservation.Seats,
			CinemaID:      c.cfg.CinemaID,
			Service:       "cinepay",
			CardMasked:    req.Card.Masked(),
		},
	}
	if c.cfg.AppBaseURL != "" {
		payload.CallbackURL = c.cfg.AppBaseURL + "/payment/callback"
		payload.SuccessURL = c.cfg.AppBaseURL + "/payment/success"
		payload.CancelURL = c.cfg.AppBaseURL + "/payment/cancel"
	}

	logger.WithContext(ctx).Info("Creating Rapikom payment",
		"reservation_id", req.Reservation.ID,
		"amount", req.Amount.Decimal(),
		"currency", currency,
		"card", req.Card)

	var tx Transaction
	if err := c.do(ctx, "create_payment", http.MethodPost, "/payments", payload, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *RapikomClient) GetTransactionStatus(ctx context.Context, transactionID string) (*Transaction, error) {
	var tx Transaction
	if err := c.do(ctx, "get_transaction", http.MethodGet, "/payments/"+url.PathEscape(transactionID), nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Refund refunds a transaction; a nil amount refunds it in full
func (c *RapikomClient) Refund(ctx context.Context, transactionID string, amount *models.Money, reason string) (*Refund, error) {
	if reason == "" {
		reason = "Customer request"
	}
	var refund Refund
	path := "/payments/" + url.PathEscape(transactionID) + "/refund"
	if err := c.do(ctx, "refund", http.MethodPost, path, refundPayload{Amount: amount, Reason: reason}, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *RapikomClient) ListTransactions(ctx context.Context, filter TransactionFilter) (*TransactionList, error) {
	path := "/payments"
	if q := filter.query().Encode(); q != "" {
		path += "?" + q
	}
	var list TransactionList
	if err := c.do(ctx, "list_transactions", http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *RapikomClient) ValidateCard(ctx context.Context, card Card) (*CardValidation, error) {
	month, year, ok := card.ExpiryParts()
	if !ok {
		return nil, &apperrors.ValidationError{Field: "expiry", Message: "expiry must match MM/YY"}
	}
	payload := cardPayload{
		CardNumber:  card.Digits(),
		ExpiryMonth: month,
		ExpiryYear:  year,
		CVV:         card.CVV,
	}
	var result CardValidation
	if err := c.do(ctx, "validate_card", http.MethodPost, "/cards/validate", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RapikomClient) PaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	var methods []PaymentMethod
	if err := c.do(ctx, "payment_methods", http.MethodGet, "/payment-methods", nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

func (c *RapikomClient) MerchantInfo(ctx context.Context) (*Merchant, error) {
	var merchant Merchant
	if err := c.do(ctx, "merchant_info", http.MethodGet, "/merchant", nil, &merchant); err != nil {
		return nil, err
	}
	return &merchant, nil
}

// RegisterWebhook asks the processor to deliver events to reg.URL
func (c *RapikomClient) RegisterWebhook(ctx context.Context, reg WebhookRegistration) (*WebhookEndpoint, error) {
	var endpoint WebhookEndpoint
	if err := c.do(ctx, "register_webhook", http.MethodPost, "/webhooks", reg, &endpoint); err != nil {
		return nil, err
	}
	return &endpoint, nil
}

// TestConnection pings the processor health endpoint
func (c *RapikomClient) TestConnection(ctx context.Context) ConnectionStatus {
	status := ConnectionStatus{Environment: EnvironmentTag(c.cfg.Environment)}
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, nil); err != nil {
		status.Message = "Rapikom connection failed"
		status.Error = err.Error()
		return status
	}
	status.Success = true
	status.Message = fmt.Sprintf("Connected to Rapikom (%s)", status.Environment)
	return status
}
