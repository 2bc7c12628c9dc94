package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cinepay/internal/database"
	"cinepay/internal/webhook"
)

// Reconciler is the part of *webhook.Reconciler the HTTP surface uses
type Reconciler interface {
	Handle(ctx context.Context, d webhook.Delivery) webhook.Result
	History(ctx context.Context, limit, offset int) ([]webhook.LogEntry, int, error)
	Retry(ctx context.Context, id string) (webhook.Result, error)
}

// HealthChecker reports the state of the audit log database
type HealthChecker interface {
	HealthCheck(ctx context.Context) database.HealthCheck
}

type Handlers struct {
	reconciler Reconciler
	db         HealthChecker
}

// NewHandlers wires the webhook endpoints; db may be nil when the audit log
// lives in memory
func NewHandlers(reconciler Reconciler, db HealthChecker) *Handlers {
	return &Handlers{
		reconciler: reconciler,
		db:         db,
	}
}

// Health - GET /health
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"service": "cinepay-api",
		"version": "1.0.0",
	}

	if h.db != nil {
		check := h.db.HealthCheck(c.Request.Context())
		body["database"] = check
		if check.Status != "healthy" {
			body["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}

	c.JSON(http.StatusOK, body)
}
