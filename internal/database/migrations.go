package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createWebhookLogTable,
		createWebhookLogIndexes,
		createWebhookOutcomesTable,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

// body keeps the exact bytes that were signed
const createWebhookLogTable = `
CREATE TABLE IF NOT EXISTS webhook_log (
    id UUID PRIMARY KEY,
    delivery_id VARCHAR(255) NOT NULL DEFAULT '',
    event_type VARCHAR(100) NOT NULL DEFAULT '',
    transaction_id VARCHAR(255) NOT NULL DEFAULT '',
    reservation_id VARCHAR(255) NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL CHECK (status IN ('processed', 'failed')),
    signature TEXT NOT NULL DEFAULT '',
    body BYTEA NOT NULL,
    result JSONB,
    error TEXT NOT NULL DEFAULT '',
    attempt INTEGER NOT NULL DEFAULT 1,
    replay_of UUID REFERENCES webhook_log(id),
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);`

const createWebhookLogIndexes = `
CREATE INDEX IF NOT EXISTS idx_webhook_log_created_at ON webhook_log(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_webhook_log_transaction ON webhook_log(transaction_id);
CREATE INDEX IF NOT EXISTS idx_webhook_log_replay_of ON webhook_log(replay_of);
CREATE INDEX IF NOT EXISTS idx_webhook_log_failed ON webhook_log(created_at) WHERE status = 'failed';`

const createWebhookOutcomesTable = `
CREATE TABLE IF NOT EXISTS webhook_outcomes (
    transaction_id VARCHAR(255) NOT NULL,
    event_type VARCHAR(100) NOT NULL,
    reservation_id VARCHAR(255) NOT NULL DEFAULT '',
    confirmation_code VARCHAR(64) NOT NULL DEFAULT '',
    state VARCHAR(20) NOT NULL DEFAULT 'pending' CHECK (state IN ('pending', 'applied')),
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
    PRIMARY KEY (transaction_id, event_type)
);`
