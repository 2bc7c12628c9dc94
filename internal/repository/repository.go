package repository

import (
	"cinepay/internal/database"
	"cinepay/internal/webhook"
)

var _ webhook.Store = (*WebhookRepository)(nil)

type Repositories struct {
	Webhooks *WebhookRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Webhooks: NewWebhookRepository(db),
	}
}
