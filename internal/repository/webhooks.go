package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"

	"cinepay/internal/database"
	apperrors "cinepay/internal/errors"
	"cinepay/internal/webhook"
)

// WebhookRepository is the PostgreSQL webhook.Store
type WebhookRepository struct {
	db *database.DB
}

func NewWebhookRepository(db *database.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const logColumns = `id, delivery_id, event_type, transaction_id, reservation_id, status,
		       signature, body, result, error, attempt, replay_of, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*webhook.LogEntry, error) {
	var (
		entry    webhook.LogEntry
		body     []byte
		result   []byte
		replayOf sql.NullString
	)
	err := row.Scan(
		&entry.ID,
		&entry.DeliveryID,
		&entry.EventType,
		&entry.TransactionID,
		&entry.ReservationID,
		&entry.Status,
		&entry.Signature,
		&body,
		&result,
		&entry.Error,
		&entry.Attempt,
		&replayOf,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.SetBody(body)
	entry.Result = result
	entry.ReplayOf = replayOf.String
	return &entry, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (r *WebhookRepository) Append(ctx context.Context, entry *webhook.LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	var result interface{}
	if len(entry.Result) > 0 {
		result = []byte(entry.Result)
	}

	query := `
		INSERT INTO webhook_log (id, delivery_id, event_type, transaction_id, reservation_id, status,
		                         signature, body, result, error, attempt, replay_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`

	return r.db.QueryRowContext(ctx, query,
		entry.ID,
		entry.DeliveryID,
		entry.EventType,
		entry.TransactionID,
		entry.ReservationID,
		entry.Status,
		entry.Signature,
		entry.Body,
		result,
		entry.Error,
		entry.Attempt,
		nullIfEmpty(entry.ReplayOf),
	).Scan(&entry.CreatedAt)
}

func (r *WebhookRepository) Get(ctx context.Context, id string) (*webhook.LogEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.ErrNotFound
	}

	query := `SELECT ` + logColumns + ` FROM webhook_log WHERE id = $1`
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	return entry, err
}

func (r *WebhookRepository) List(ctx context.Context, limit, offset int) ([]webhook.LogEntry, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count webhook log: %w", err)
	}

	query := `
		SELECT ` + logColumns + `
		FROM webhook_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryWithRetry(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries, err := collect(rows)
	return entries, total, err
}

// ListFailed skips entries that already have a replay child
func (r *WebhookRepository) ListFailed(ctx context.Context, maxAttempts, limit int) ([]webhook.LogEntry, error) {
	if maxAttempts <= 0 {
		maxAttempts = math.MaxInt32
	}
	if limit <= 0 {
		limit = webhook.MaxPageSize
	}

	query := `
		SELECT ` + logColumns + `
		FROM webhook_log w
		WHERE w.status = 'failed'
		  AND w.attempt < $1
		  AND NOT EXISTS (SELECT 1 FROM webhook_log c WHERE c.replay_of = w.id)
		ORDER BY w.created_at ASC
		LIMIT $2`

	rows, err := r.db.QueryWithRetry(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collect(rows)
}

func collect(rows *sql.Rows) ([]webhook.LogEntry, error) {
	var entries []webhook.LogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (r *WebhookRepository) ReserveOutcome(ctx context.Context, o webhook.Outcome) (webhook.Outcome, error) {
	query := `
		INSERT INTO webhook_outcomes (transaction_id, event_type, reservation_id, confirmation_code, state)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (transaction_id, event_type) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, o.TransactionID, o.EventType, o.ReservationID, o.ConfirmationCode); err != nil {
		return webhook.Outcome{}, fmt.Errorf("failed to reserve outcome: %w", err)
	}

	stored, err := r.FindOutcome(ctx, o.TransactionID, o.EventType)
	if err != nil {
		return webhook.Outcome{}, err
	}
	if stored == nil {
		return webhook.Outcome{}, fmt.Errorf("outcome for %s/%s vanished after insert", o.TransactionID, o.EventType)
	}
	return *stored, nil
}

func (r *WebhookRepository) FindOutcome(ctx context.Context, transactionID, eventType string) (*webhook.Outcome, error) {
	o := &webhook.Outcome{}
	query := `
		SELECT transaction_id, event_type, reservation_id, confirmation_code, state, created_at, updated_at
		FROM webhook_outcomes
		WHERE transaction_id = $1 AND event_type = $2`

	err := r.db.QueryRowContext(ctx, query, transactionID, eventType).Scan(
		&o.TransactionID,
		&o.EventType,
		&o.ReservationID,
		&o.ConfirmationCode,
		&o.State,
		&o.CreatedAt,
		&o.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *WebhookRepository) MarkApplied(ctx context.Context, transactionID, eventType string) error {
	query := `
		UPDATE webhook_outcomes
		SET state = 'applied', updated_at = NOW()
		WHERE transaction_id = $1 AND event_type = $2`

	res, err := r.db.ExecContext(ctx, query, transactionID, eventType)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
