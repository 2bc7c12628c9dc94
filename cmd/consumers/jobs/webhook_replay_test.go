package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReplayer struct {
	runs  atomic.Int32
	limit atomic.Int32
}

func (r *countingReplayer) ReplayFailed(_ context.Context, limit int) (int, error) {
	r.runs.Add(1)
	r.limit.Store(int32(limit))
	return 0, nil
}

func TestWebhookReplayJobRunsOnSchedule(t *testing.T) {
	replayer := &countingReplayer{}
	job := NewWebhookReplayJob(replayer, 20*time.Millisecond)

	require.NoError(t, job.Start(context.Background()))

	assert.Eventually(t, func() bool { return replayer.runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, job.Stop())
	assert.Equal(t, int32(ReplayBatchSize), replayer.limit.Load())

	stopped := replayer.runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, replayer.runs.Load())
}

func TestWebhookReplayJobStopWithoutStart(t *testing.T) {
	job := NewWebhookReplayJob(&countingReplayer{}, 0)
	assert.Equal(t, time.Minute, job.interval)
	assert.NoError(t, job.Stop())
}
