package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/lib/pq"

	apperrors "cinepay/internal/errors"
)

const (
	queryAttempts = 3
	queryBackoff  = 100 * time.Millisecond
	pingTimeout   = 5 * time.Second
)

// PoolStats is the subset of sql.DBStats reported by /health
type PoolStats struct {
	MaxOpenConns int           `json:"max_open_connections"`
	OpenConns    int           `json:"open_connections"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

type HealthCheck struct {
	Status       string        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
	Timestamp    time.Time     `json:"timestamp"`
}

func (db *DB) PoolStats() PoolStats {
	s := db.Stats()
	return PoolStats{
		MaxOpenConns: s.MaxOpenConnections,
		OpenConns:    s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}

// HealthCheck pings the audit log database
func (db *DB) HealthCheck(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Status: "healthy", Timestamp: start, Stats: db.PoolStats()}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := db.PingContext(pingCtx)
	check.ResponseTime = time.Since(start)
	if err != nil {
		check.Status = "unhealthy"
		check.Error = err.Error()
		slog.Error("Audit log database health check failed", "error", err)
	}
	return check
}

// WarnOnPressure logs when the pool is close to exhausted or callers queue for connections
func (db *DB) WarnOnPressure() {
	s := db.Stats()
	if s.MaxOpenConnections > 0 && s.InUse*10 > s.MaxOpenConnections*9 {
		slog.Warn("Audit log pool nearly exhausted", "in_use", s.InUse, "max_open", s.MaxOpenConnections)
	}
	if s.WaitCount > 0 && s.WaitDuration > time.Second {
		slog.Warn("Audit log queries waiting for connections", "wait_count", s.WaitCount, "wait_duration", s.WaitDuration)
	}
}

// QueryWithRetry runs a read query, retrying transient failures with a
// linear backoff. Errors are returned classified: transient ones as
// *apperrors.NetworkError.
func (db *DB) QueryWithRetry(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var err error
	for attempt := 1; attempt <= queryAttempts; attempt++ {
		var rows *sql.Rows
		rows, err = db.QueryContext(ctx, query, args...)
		if err == nil {
			return rows, nil
		}

		err = classify("postgres query", err)
		if !apperrors.IsRetryable(err) || attempt == queryAttempts {
			return nil, err
		}

		slog.Warn("Audit log query failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * queryBackoff):
		}
	}
	return nil, err
}

// classify wraps transient failures as *apperrors.NetworkError so callers
// decide with apperrors.IsRetryable. Cancellation is never transient.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if transient(err) {
		return &apperrors.NetworkError{Op: op, Err: err}
	}
	return err
}

func transient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"40", // serialization failure, deadlock
			"53", // insufficient resources, e.g. too many connections
			"57": // operator intervention, e.g. admin shutdown
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
