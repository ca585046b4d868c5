package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michalmalinowski87/photo-sub008/internal/provider/resilience"
	"github.com/michalmalinowski87/photo-sub008/internal/scheduler"
	"github.com/michalmalinowski87/photo-sub008/internal/worker"
)

const (
	executorTopic   = "account-deletion"
	deadLetterTopic = "account-deletion-dlq"
)

type published struct {
	topic string
	data  []byte
	attrs map[string]string
}

type fakePublisher struct {
	mu       sync.Mutex
	failing  map[string]bool
	attempts map[string]int
	messages []published

	// onFirstPublish runs once, before the first publish attempt.
	onFirstPublish func()
}

func newFakePublisher(failingTopics ...string) *fakePublisher {
	p := &fakePublisher{failing: make(map[string]bool), attempts: make(map[string]int)}
	for _, topic := range failingTopics {
		p.failing[topic] = true
	}
	return p
}

func (p *fakePublisher) Publish(_ context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.onFirstPublish != nil {
		hook := p.onFirstPublish
		p.onFirstPublish = nil
		hook()
	}
	p.attempts[topic]++
	if p.failing[topic] {
		return "", errors.New("topic unavailable")
	}
	p.messages = append(p.messages, published{topic: topic, data: data, attrs: attrs})
	return "msg-1", nil
}

func (p *fakePublisher) Messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.messages...)
}

func (p *fakePublisher) Attempts(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[topic]
}

func testConfig() worker.DispatchConfig {
	return worker.DispatchConfig{
		BatchSize:      10,
		Concurrency:    2,
		PublishTimeout: time.Second,
		PublishRetries: 2,
		RetryInterval:  time.Millisecond,
	}
}

func TestDefaultDispatchConfig(t *testing.T) {
	cfg := worker.DefaultDispatchConfig()

	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
	assert.Equal(t, uint64(3), cfg.PublishRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryInterval)
}

func TestDispatchJob_PublishesDueJobs(t *testing.T) {
	now := time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)
	store := scheduler.NewInMemoryScheduler()
	ctx := context.Background()

	jobID, err := store.CreateJob(ctx, "acc_due", now.Add(-time.Minute), executorTopic, deadLetterTopic)
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, "acc_later", now.Add(time.Hour), executorTopic, deadLetterTopic)
	require.NoError(t, err)

	publisher := newFakePublisher()
	job := worker.NewDispatchJob(worker.DispatchJobConfig{
		Config:    testConfig(),
		Store:     store,
		Publisher: publisher,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	})

	result := job.Run(ctx)

	assert.Equal(t, 1, result.Claimed)
	assert.Equal(t, 1, result.Dispatched)
	assert.Zero(t, result.DeadLettered)
	assert.Zero(t, result.Requeued)

	msgs := publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, executorTopic, msgs[0].topic)
	assert.Equal(t, "acc_due", msgs[0].attrs["account_id"])

	var inv worker.ExecutorInvocation
	require.NoError(t, json.Unmarshal(msgs[0].data, &inv))
	assert.Equal(t, worker.InvocationTypeAccountDeletion, inv.Type)
	assert.Equal(t, "acc_due", inv.AccountID)
	assert.Equal(t, jobID, inv.JobID)
	assert.True(t, now.Add(-time.Minute).Equal(inv.ScheduledAt))
	assert.True(t, now.Equal(inv.DispatchedAt))

	// The future job is untouched
	_, ok := store.Get("acc_later")
	assert.True(t, ok)
	_, ok = store.Get("acc_due")
	assert.False(t, ok)
}

func TestDispatchJob_FallsBackToDeadLetter(t *testing.T) {
	now := time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)
	store := scheduler.NewInMemoryScheduler()
	ctx := context.Background()

	_, err := store.CreateJob(ctx, "acc_due", now, executorTopic, deadLetterTopic)
	require.NoError(t, err)

	publisher := newFakePublisher(executorTopic)
	job := worker.NewDispatchJob(worker.DispatchJobConfig{
		Config:    testConfig(),
		Store:     store,
		Publisher: publisher,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	})

	result := job.Run(ctx)

	assert.Equal(t, 1, result.DeadLettered)
	assert.Equal(t, 3, publisher.Attempts(executorTopic), "first attempt plus two retries")
	assert.Equal(t, 1, publisher.Attempts(deadLetterTopic))

	msgs := publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, deadLetterTopic, msgs[0].topic)
	assert.Equal(t, 0, store.Len())
}

func TestDispatchJob_RequeuesWhenNothingAccepts(t *testing.T) {
	now := time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)
	store := scheduler.NewInMemoryScheduler()
	ctx := context.Background()

	_, err := store.CreateJob(ctx, "acc_due", now, executorTopic, deadLetterTopic)
	require.NoError(t, err)

	registry := resilience.NewRegistry()
	job := worker.NewDispatchJob(worker.DispatchJobConfig{
		Config:    testConfig(),
		Store:     store,
		Publisher: newFakePublisher(executorTopic, deadLetterTopic),
		Logger:    zerolog.Nop(),
		Registry:  registry,
		Now:       func() time.Time { return now },
	})

	result := job.Run(ctx)

	assert.Equal(t, 1, result.Requeued)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "acc_due", result.Errors[0].AccountID)

	requeued, ok := store.Get("acc_due")
	require.True(t, ok)
	assert.Equal(t, now, requeued.FireAt)
	assert.Equal(t, deadLetterTopic, requeued.DeadLetterTarget)

	health := registry.GetHealth("executor-publisher")
	require.NotNil(t, health)
	assert.NotNil(t, health.LastFailureAt)
}

func TestDispatchJob_RequeueKeepsNewerJob(t *testing.T) {
	now := time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)
	store := scheduler.NewInMemoryScheduler()
	ctx := context.Background()

	_, err := store.CreateJob(ctx, "acc_1", now.Add(-time.Minute), executorTopic, deadLetterTopic)
	require.NoError(t, err)

	// The account is restored and deletion requested again while the
	// claimed job is still failing to publish.
	rescheduledAt := now.Add(72 * time.Hour)
	var newJobID string
	publisher := newFakePublisher(executorTopic, deadLetterTopic)
	publisher.onFirstPublish = func() {
		_ = store.CancelJob(ctx, "acc_1")
		id, createErr := store.CreateJob(ctx, "acc_1", rescheduledAt, executorTopic, deadLetterTopic)
		assert.NoError(t, createErr)
		newJobID = id
	}

	job := worker.NewDispatchJob(worker.DispatchJobConfig{
		Config:    testConfig(),
		Store:     store,
		Publisher: publisher,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	})

	result := job.Run(ctx)
	assert.Equal(t, 1, result.Requeued)

	current, ok := store.Get("acc_1")
	require.True(t, ok)
	assert.Equal(t, newJobID, current.ID)
	assert.True(t, rescheduledAt.Equal(current.FireAt), "fire time %s", current.FireAt)

	// Nothing is due on the next tick
	next := job.Run(ctx)
	assert.Zero(t, next.Claimed)
}

func TestDispatchJob_BatchSize(t *testing.T) {
	now := time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)
	store := scheduler.NewInMemoryScheduler()
	ctx := context.Background()

	for _, id := range []string{"acc_1", "acc_2", "acc_3", "acc_4", "acc_5"} {
		_, err := store.CreateJob(ctx, id, now.Add(-time.Second), executorTopic, deadLetterTopic)
		require.NoError(t, err)
	}

	cfg := testConfig()
	cfg.BatchSize = 3
	publisher := newFakePublisher()
	job := worker.NewDispatchJob(worker.DispatchJobConfig{
		Config:    cfg,
		Store:     store,
		Publisher: publisher,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	})

	first := job.Run(ctx)
	assert.Equal(t, 3, first.Dispatched)
	second := job.Run(ctx)
	assert.Equal(t, 2, second.Dispatched)
	assert.Len(t, publisher.Messages(), 5)

	metrics := job.GetMetrics()
	assert.Equal(t, int64(2), metrics.TotalRuns)
	assert.Equal(t, int64(5), metrics.Dispatched)
	assert.Equal(t, now, metrics.LastRunAt)
}

func TestDispatchJob_NoDueJobs(t *testing.T) {
	job := worker.NewDispatchJob(worker.DispatchJobConfig{
		Config:    testConfig(),
		Store:     scheduler.NewInMemoryScheduler(),
		Publisher: newFakePublisher(),
		Logger:    zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Zero(t, result.Claimed)
	assert.Empty(t, result.Errors)

	snapshot := job.MetricsSnapshot()
	assert.Equal(t, int64(1), snapshot["total_runs"])
	assert.Contains(t, snapshot, "last_run_duration")
}
