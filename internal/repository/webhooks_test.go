package repository

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinepay/internal/database"
	apperrors "cinepay/internal/errors"
	"cinepay/internal/webhook"
)

// Runs against a real PostgreSQL when TEST_DB_HOST is set
func newTestRepository(t *testing.T) *WebhookRepository {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}

	db, err := database.Connect(database.Config{
		Host:         host,
		Port:         port,
		User:         os.Getenv("TEST_DB_USER"),
		Password:     os.Getenv("TEST_DB_PASSWORD"),
		DBName:       os.Getenv("TEST_DB_NAME"),
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations())

	return NewWebhookRepository(db)
}

func TestWebhookLogRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	tx := "T-" + uuid.NewString()

	failed := &webhook.LogEntry{
		EventType:     webhook.TypeSucceeded,
		TransactionID: tx,
		Status:        webhook.LogFailed,
		Signature:     "abc",
		Error:         "backend unavailable",
		Attempt:       1,
	}
	failed.SetBody([]byte(`{"event_type": "payment.succeeded",  "data": {"id": "` + tx + `"}}`))
	require.NoError(t, repo.Append(ctx, failed))

	got, err := repo.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, failed.Body, got.Body, "raw body is kept byte for byte")
	assert.Equal(t, "abc", got.Signature)

	pending, err := repo.ListFailed(ctx, 5, 1000)
	require.NoError(t, err)
	assert.True(t, containsEntry(pending, failed.ID))

	replay := &webhook.LogEntry{
		EventType: webhook.TypeSucceeded, TransactionID: tx, Status: webhook.LogProcessed,
		Attempt: 2, ReplayOf: failed.ID,
	}
	replay.SetBody(failed.Body)
	require.NoError(t, repo.Append(ctx, replay))

	pending, err = repo.ListFailed(ctx, 5, 1000)
	require.NoError(t, err)
	assert.False(t, containsEntry(pending, failed.ID))

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = repo.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOutcomeReservation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	tx := "T-" + uuid.NewString()

	first, err := repo.ReserveOutcome(ctx, webhook.Outcome{TransactionID: tx, EventType: webhook.TypeSucceeded, ReservationID: "R1", ConfirmationCode: "CINE-A-1"})
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomePending, first.State)

	second, err := repo.ReserveOutcome(ctx, webhook.Outcome{TransactionID: tx, EventType: webhook.TypeSucceeded, ReservationID: "R1", ConfirmationCode: "CINE-B-2"})
	require.NoError(t, err)
	assert.Equal(t, "CINE-A-1", second.ConfirmationCode)

	require.NoError(t, repo.MarkApplied(ctx, tx, webhook.TypeSucceeded))
	found, err := repo.FindOutcome(ctx, tx, webhook.TypeSucceeded)
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeApplied, found.State)

	missing, err := repo.FindOutcome(ctx, tx, webhook.TypeRefunded)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.ErrorIs(t, repo.MarkApplied(ctx, tx, webhook.TypeRefunded), apperrors.ErrNotFound)
}

func containsEntry(entries []webhook.LogEntry, id string) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}
