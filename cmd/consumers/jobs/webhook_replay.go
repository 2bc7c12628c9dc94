package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ReplayBatchSize bounds how many failed deliveries one run retries
const ReplayBatchSize = 50

// Replayer retries failed webhook deliveries; *webhook.Reconciler satisfies it
type Replayer interface {
	ReplayFailed(ctx context.Context, limit int) (int, error)
}

// WebhookReplayJob periodically re-runs failed deliveries that are still
// below the attempt cap
type WebhookReplayJob struct {
	replayer  Replayer
	interval  time.Duration
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewWebhookReplayJob(replayer Replayer, interval time.Duration) *WebhookReplayJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &WebhookReplayJob{
		replayer: replayer,
		interval: interval,
	}
}

// Start schedules the job; the first run happens immediately
func (j *WebhookReplayJob) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	j.ctx, j.cancel = context.WithCancel(ctx)
	_, err = s.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(j.run),
		gocron.WithName("webhook-replay"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		j.cancel()
		_ = s.Shutdown()
		return err
	}

	j.scheduler = s
	s.Start()
	slog.Info("Starting webhook replay job", "check_interval", j.interval.String(), "batch", ReplayBatchSize)
	return nil
}

// Stop waits for a running replay to finish
func (j *WebhookReplayJob) Stop() error {
	if j.scheduler == nil {
		return nil
	}
	j.cancel()
	err := j.scheduler.Shutdown()
	slog.Info("Webhook replay job stopped")
	return err
}

func (j *WebhookReplayJob) run() {
	recovered, err := j.replayer.ReplayFailed(j.ctx, ReplayBatchSize)
	if err != nil {
		slog.Error("Webhook replay run failed", "error", err, "recovered", recovered)
		return
	}
	if recovered > 0 {
		slog.Info("Replayed failed webhook deliveries", "recovered", recovered)
		return
	}
	slog.Debug("No failed webhook deliveries recovered")
}
