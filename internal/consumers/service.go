package consumers

import (
	"context"
	"log/slog"

	"cinepay/internal/config"
	"cinepay/internal/messaging"
	"cinepay/internal/models"
	"cinepay/internal/notify"
)

const queueGroup = "consumers"

type ConsumerService struct {
	nats     *messaging.NATSClient
	cfg      messaging.Config
	handlers *Handlers
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		return nil, err
	}

	handlers := NewHandlers(notify.NewMailer(cfg.SMTP), cfg.App.BaseURL)

	return &ConsumerService{
		nats:     natsClient,
		cfg:      cfg.NATS,
		handlers: handlers,
	}, nil
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	_, err := cs.nats.SubscribeQueue(models.EventReservationPaid, queueGroup, cs.cfg.AckWait, cs.handlers.HandleReservationPaid)
	if err != nil {
		return err
	}

	_, err = cs.nats.SubscribeQueue(models.EventPaymentFailed, queueGroup, cs.cfg.AckWait, cs.handlers.HandlePaymentFailed)
	if err != nil {
		return err
	}

	for _, subject := range []string{models.EventReservationRefunded, models.EventReservationCancelled} {
		if _, err := cs.nats.SubscribeQueue(subject, queueGroup, cs.cfg.AckWait, cs.handlers.HandleStatusChanged); err != nil {
			return err
		}
	}

	slog.Info("All consumers started successfully")
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
			return err
		}
	}
	return nil
}
