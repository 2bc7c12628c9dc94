package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	apperrors "cinepay/internal/errors"
)

func TestClassifyRetryable(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"bad connection", driver.ErrBadConn, true},
		{"wrapped bad connection", fmt.Errorf("query: %w", driver.ErrBadConn), true},
		{"closed connection", sql.ErrConnDone, true},
		{"dial refused", refused, true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"too many connections", &pq.Error{Code: "53300"}, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"syntax error", &pq.Error{Code: "42601"}, false},
		{"no rows", sql.ErrNoRows, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"message mentioning timeout", errors.New("column timeout does not exist"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("postgres query", tt.err)
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, classify("postgres query", nil))
}

func TestDSNEscapesCredentials(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "cine pay", Password: "p@ss word/1", DBName: "cinepay", SSLMode: "disable"}
	assert.Equal(t, "postgres://cine%20pay:p%40ss%20word%2F1@db:5432/cinepay?sslmode=disable", cfg.DSN())

	cfg.SSLMode = ""
	assert.Equal(t, "postgres://cine%20pay:p%40ss%20word%2F1@db:5432/cinepay", cfg.DSN())
}
