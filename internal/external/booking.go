package external

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "cinepay/internal/errors"
	"cinepay/internal/logger"
	"cinepay/internal/models"
)

// BookingClient talks to the booking backend, the source of truth for
// movies, seats and reservations.
type BookingClient struct {
	baseURL    string
	httpClient *http.Client
}

type BookingConfig struct {
	BaseURL string
	Timeout time.Duration
}

type backendErrorBody struct {
	Detail string `json:"detail"`
}

func NewBookingClient(cfg BookingConfig) *BookingClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &BookingClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (bc *BookingClient) do(ctx context.Context, op, method, path string, payload, out any) error {
	resp, err := send(ctx, bc.httpClient, "booking "+op, method, bc.baseURL+path, payload, nil)
	if err != nil {
		return err
	}

	if !resp.ok() {
		var body backendErrorBody
		_ = decode(op, resp.body, &body)
		if body.Detail == "" {
			body.Detail = http.StatusText(resp.status)
		}
		logger.WithContext(ctx).Warn("Booking backend rejected request",
			"operation", op, "status", resp.status, "detail", body.Detail)
		if resp.status == http.StatusNotFound {
			return &notFoundError{BackendError: apperrors.BackendError{Status: resp.status, Message: body.Detail}}
		}
		return &apperrors.BackendError{Status: resp.status, Message: body.Detail}
	}

	return decode(op, resp.body, out)
}

// notFoundError is a 404 BackendError that also matches errors.ErrNotFound
type notFoundError struct {
	apperrors.BackendError
}

func (e *notFoundError) Unwrap() []error {
	return []error{&e.BackendError, apperrors.ErrNotFound}
}

// ListMovies - GET /movies
func (bc *BookingClient) ListMovies(ctx context.Context) ([]models.Movie, error) {
	var movies []models.Movie
	if err := bc.do(ctx, "list_movies", http.MethodGet, "/movies", nil, &movies); err != nil {
		return nil, err
	}
	return movies, nil
}

// ListSeats - GET /movies/{id}/seats
func (bc *BookingClient) ListSeats(ctx context.Context, movieID string) ([]models.Seat, error) {
	var seats []models.Seat
	if err := bc.do(ctx, "list_seats", http.MethodGet, "/movies/"+url.PathEscape(movieID)+"/seats", nil, &seats); err != nil {
		return nil, err
	}
	return seats, nil
}

// Reserve - POST /reserve
func (bc *BookingClient) Reserve(ctx context.Context, req models.ReserveRequest) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := bc.do(ctx, "reserve", http.MethodPost, "/reserve", req, &reservation); err != nil {
		return nil, err
	}
	if reservation.ID == "" {
		return nil, &apperrors.BackendError{Status: http.StatusOK, Message: "reservation response carries no id"}
	}
	return &reservation, nil
}

// Pay - POST /pay
func (bc *BookingClient) Pay(ctx context.Context, req models.PayRequest) (*models.PayResponse, error) {
	var result models.PayResponse
	if err := bc.do(ctx, "pay", http.MethodPost, "/pay", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetReservation - GET /reservation/{id}
func (bc *BookingClient) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := bc.do(ctx, "get_reservation", http.MethodGet, "/reservation/"+url.PathEscape(reservationID), nil, &reservation); err != nil {
		return nil, err
	}
	return &reservation, nil
}

// UpdateReservationStatus - PATCH /reservation/{id}
func (bc *BookingClient) UpdateReservationStatus(ctx context.Context, reservationID string, update models.ReservationStatusUpdate) error {
	return bc.do(ctx, "update_status", http.MethodPatch, "/reservation/"+url.PathEscape(reservationID), update, nil)
}
