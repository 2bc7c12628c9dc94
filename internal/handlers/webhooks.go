package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "cinepay/internal/errors"
	"cinepay/internal/logger"
	"cinepay/internal/models"
	"cinepay/internal/webhook"
)

// maxWebhookBody bounds one delivery body
const maxWebhookBody = 1 << 20

// RapikomWebhook - POST /webhook/rapikom
// The raw body is passed on untouched; the signature covers its exact bytes.
func (h *Handlers) RapikomWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.WebhookResponse{Success: false, Message: "failed to read request body"})
		return
	}
	if len(body) > maxWebhookBody {
		logger.WithContext(c.Request.Context()).Warn("Webhook body too large", "limit", maxWebhookBody)
		c.JSON(http.StatusRequestEntityTooLarge, models.WebhookResponse{Success: false, Message: "request body too large"})
		return
	}

	res := h.reconciler.Handle(c.Request.Context(), webhook.Delivery{
		Body:      body,
		Signature: c.GetHeader(webhook.SignatureHeader),
	})

	status := res.HTTPStatus()
	switch status {
	case http.StatusOK:
		message := res.Message
		if message == "" {
			message = "Webhook processed successfully"
		}
		c.JSON(status, models.WebhookResponse{Success: true, Message: message, Data: res})
	case http.StatusUnauthorized:
		c.JSON(status, models.WebhookResponse{Success: false, Message: "Invalid signature"})
	default:
		c.JSON(status, models.WebhookResponse{Success: false, Message: "Webhook processing failed", Data: res})
	}
}

// WebhookStatus - GET /webhook/status?limit=&offset=
func (h *Handlers) WebhookStatus(c *gin.Context) {
	limit, err := queryInt(c, "limit", webhook.DefaultPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
		return
	}

	entries, total, err := h.reconciler.History(c.Request.Context(), limit, offset)
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("Failed to list webhook log", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get webhook status"})
		return
	}
	if entries == nil {
		entries = []webhook.LogEntry{}
	}

	if limit <= 0 {
		limit = webhook.DefaultPageSize
	}
	if limit > webhook.MaxPageSize {
		limit = webhook.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	c.JSON(http.StatusOK, models.PageResponse{
		Success: true,
		Data:    entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// RetryWebhook - POST /webhook/retry/:webhookId
func (h *Handlers) RetryWebhook(c *gin.Context) {
	id := c.Param("webhookId")

	res, err := h.reconciler.Retry(c.Request.Context(), id)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, models.WebhookResponse{Success: false, Message: "Webhook not found"})
		return
	case errors.Is(err, webhook.ErrNotRetryable):
		c.JSON(http.StatusConflict, models.WebhookResponse{Success: false, Message: err.Error()})
		return
	case err != nil:
		logger.WithContext(c.Request.Context()).Error("Failed to retry webhook", "log_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, models.WebhookResponse{Success: false, Message: "Failed to retry webhook"})
		return
	}

	if res.Err != nil {
		c.JSON(http.StatusOK, models.WebhookResponse{Success: false, Message: res.Message, Data: res})
		return
	}
	c.JSON(http.StatusOK, models.WebhookResponse{Success: true, Message: "Webhook retried successfully", Data: res})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
