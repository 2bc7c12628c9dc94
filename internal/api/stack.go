package api

import (
	"errors"
	"fmt"
	"log/slog"

	"cinepay/internal/cache"
	"cinepay/internal/config"
	"cinepay/internal/database"
	"cinepay/internal/external"
	"cinepay/internal/messaging"
	"cinepay/internal/repository"
	"cinepay/internal/webhook"
)

// Stack is the webhook pipeline together with the connections it owns.
// Postgres, Redis and NATS are optional; without them the reconciler runs
// on an in-memory log, an in-process lock and no event fan-out.
type Stack struct {
	Reconciler *webhook.Reconciler
	Booking    *external.BookingClient
	Store      webhook.Store
	DB         *database.DB
	NATS       *messaging.NATSClient
	Redis      *cache.RedisLocker
}

func NewStack(cfg *config.Config) (*Stack, error) {
	s := &Stack{
		Booking: external.NewBookingClient(cfg.Booking),
	}

	verifier, err := webhook.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Algo)
	if err != nil {
		return nil, err
	}

	switch cfg.Webhook.Store {
	case config.StorePostgres:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, err
		}
		s.DB = db
		if err := db.RunMigrations(); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		s.Store = repository.NewRepositories(db).Webhooks
	default:
		slog.Warn("Webhook log is kept in memory and lost on restart")
		s.Store = webhook.NewMemoryStore()
	}

	opts := webhook.Options{MaxAttempts: cfg.Webhook.MaxAttempts}

	if cfg.Redis.Addr != "" {
		locker, err := cache.NewRedisLocker(cfg.Redis)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Redis = locker
		opts.Locker = locker
	}

	if cfg.NATS.URL != "" {
		natsClient, err := messaging.NewNATSClient(cfg.NATS)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.NATS = natsClient
		opts.Publisher = natsClient
	}

	s.Reconciler = webhook.NewReconciler(s.Store, s.Booking, verifier, opts)
	return s, nil
}

// Close releases every connection the stack opened
func (s *Stack) Close() error {
	var errs []error
	if s.NATS != nil {
		if err := s.NATS.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close NATS: %w", err))
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close Redis: %w", err))
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
