package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/michalmalinowski87/photo-sub008/internal/provider/resilience"
	"github.com/michalmalinowski87/photo-sub008/internal/scheduler"
)

// InvocationTypeAccountDeletion is the message type understood by the executor.
const InvocationTypeAccountDeletion = "account_deletion"

// ExecutorInvocation is the message published for a due job. The executor
// must re-check the account status before purging.
type ExecutorInvocation struct {
	Type         string    `json:"type"`
	AccountID    string    `json:"accountId"`
	JobID        string    `json:"jobId"`
	ScheduledAt  time.Time `json:"scheduledAt"`
	DispatchedAt time.Time `json:"dispatchedAt"`
}

// DispatchJob claims due deletion jobs and publishes executor invocations.
type DispatchJob struct {
	config    DispatchConfig
	store     scheduler.Store
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time

	primary    *resilience.Guard
	deadLetter *resilience.Guard

	metrics *DispatchMetrics
}

// DispatchMetrics tracks dispatch job statistics.
type DispatchMetrics struct {
	mu sync.RWMutex

	TotalRuns       int64
	Dispatched      int64
	DeadLettered    int64
	Requeued        int64
	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// DispatchJobConfig holds configuration for creating a DispatchJob.
type DispatchJobConfig struct {
	Config    DispatchConfig
	Store     scheduler.Store
	Publisher Publisher
	Logger    zerolog.Logger
	Registry  *resilience.Registry
	Now       func() time.Time
}

// NewDispatchJob creates a new dispatch job processor.
func NewDispatchJob(cfg DispatchJobConfig) *DispatchJob {
	config := cfg.Config.withDefaults()

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	primaryCfg := resilience.DefaultGuardConfig("executor-publisher")
	primaryCfg.Timeout = config.PublishTimeout
	primaryCfg.MaxRetries = config.PublishRetries
	primaryCfg.InitialInterval = config.RetryInterval
	primaryCfg.MaxInterval = 10 * config.RetryInterval
	primaryCfg.Registry = cfg.Registry

	deadLetterCfg := resilience.DefaultGuardConfig("dead-letter-publisher")
	deadLetterCfg.Timeout = config.PublishTimeout
	deadLetterCfg.Registry = cfg.Registry

	return &DispatchJob{
		config:     config,
		store:      cfg.Store,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger,
		now:        now,
		primary:    resilience.NewGuard(primaryCfg),
		deadLetter: resilience.NewGuard(deadLetterCfg),
		metrics:    &DispatchMetrics{},
	}
}

// DispatchResult contains the result of one dispatch run.
type DispatchResult struct {
	StartTime    time.Time
	Duration     time.Duration
	Claimed      int
	Dispatched   int
	DeadLettered int
	Requeued     int
	Errors       []DispatchError
}

// DispatchError describes a job that could not be delivered anywhere.
type DispatchError struct {
	AccountID string
	JobID     string
	Error     string
}

type jobOutcome int

const (
	outcomeDispatched jobOutcome = iota
	outcomeDeadLettered
	outcomeRequeued
)

type jobResult struct {
	job     scheduler.Job
	outcome jobOutcome
	err     error
}

// Run claims due jobs and publishes an invocation for each.
func (j *DispatchJob) Run(ctx context.Context) *DispatchResult {
	startTime := j.now()
	result := &DispatchResult{StartTime: startTime}

	jobs, err := j.store.ClaimDue(ctx, startTime, j.config.BatchSize)
	if err != nil {
		j.logger.Error().Err(err).Msg("failed to claim due deletion jobs")
	}
	result.Claimed = len(jobs)

	if len(jobs) > 0 {
		j.logger.Info().
			Int("claimed", len(jobs)).
			Int("concurrency", j.config.Concurrency).
			Msg("dispatching deletion jobs")
	}

	jobsChan := make(chan scheduler.Job, len(jobs))
	resultsChan := make(chan jobResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsChan {
				resultsChan <- j.dispatch(ctx, job)
			}
		}()
	}

	for _, job := range jobs {
		jobsChan <- job
	}
	close(jobsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for jr := range resultsChan {
		switch jr.outcome {
		case outcomeDispatched:
			result.Dispatched++
		case outcomeDeadLettered:
			result.DeadLettered++
		case outcomeRequeued:
			result.Requeued++
			result.Errors = append(result.Errors, DispatchError{
				AccountID: jr.job.AccountID,
				JobID:     jr.job.ID,
				Error:     jr.err.Error(),
			})
		}
	}

	result.Duration = j.now().Sub(startTime)
	j.updateMetrics(result)

	if result.Claimed > 0 {
		j.logger.Info().
			Dur("duration", result.Duration).
			Int("dispatched", result.Dispatched).
			Int("dead_lettered", result.DeadLettered).
			Int("requeued", result.Requeued).
			Msg("deletion job dispatch completed")
	}

	return result
}

// dispatch publishes to the job target with retries, then to the dead-letter
// target once. If both fail the job is put back so the next run retries it.
// Claimed jobs are never dropped.
func (j *DispatchJob) dispatch(ctx context.Context, job scheduler.Job) jobResult {
	logger := j.logger.With().
		Str("account_id", job.AccountID).
		Str("job_id", job.ID).
		Logger()

	data, err := json.Marshal(ExecutorInvocation{
		Type:         InvocationTypeAccountDeletion,
		AccountID:    job.AccountID,
		JobID:        job.ID,
		ScheduledAt:  job.FireAt.UTC(),
		DispatchedAt: j.now().UTC(),
	})
	if err != nil {
		return jobResult{job: job, outcome: outcomeRequeued, err: err}
	}
	attrs := map[string]string{
		"type":       InvocationTypeAccountDeletion,
		"account_id": job.AccountID,
	}

	publishErr := j.primary.Do(ctx, func(ctx context.Context) error {
		_, err := j.publisher.Publish(ctx, job.Target, data, attrs)
		return err
	})
	if publishErr == nil {
		logger.Info().Str("topic", job.Target).Msg("deletion job dispatched")
		return jobResult{job: job, outcome: outcomeDispatched}
	}

	logger.Warn().Err(publishErr).Str("topic", job.Target).Msg("executor publish failed")

	if job.DeadLetterTarget != "" {
		dlErr := j.deadLetter.Do(ctx, func(ctx context.Context) error {
			_, err := j.publisher.Publish(ctx, job.DeadLetterTarget, data, attrs)
			return err
		})
		if dlErr == nil {
			logger.Warn().Str("topic", job.DeadLetterTarget).Msg("deletion job dead-lettered")
			return jobResult{job: job, outcome: outcomeDeadLettered}
		}
		logger.Error().Err(dlErr).Str("topic", job.DeadLetterTarget).Msg("dead-letter publish failed")
	}

	// A newer request may have scheduled the account again meanwhile. Its
	// job must win over this stale one.
	stored, err := j.store.Requeue(context.WithoutCancel(ctx), job)
	switch {
	case err != nil:
		logger.Error().Err(err).Msg("failed to requeue deletion job")
	case !stored:
		logger.Info().Msg("account has a newer deletion job, stale job not requeued")
	}
	return jobResult{job: job, outcome: outcomeRequeued, err: publishErr}
}

func (j *DispatchJob) updateMetrics(result *DispatchResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.Dispatched += int64(result.Dispatched)
	j.metrics.DeadLettered += int64(result.DeadLettered)
	j.metrics.Requeued += int64(result.Requeued)
	j.metrics.LastRunAt = result.StartTime
	j.metrics.LastRunDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *DispatchJob) GetMetrics() DispatchMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return DispatchMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		Dispatched:      j.metrics.Dispatched,
		DeadLettered:    j.metrics.DeadLettered,
		Requeued:        j.metrics.Requeued,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *DispatchJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	return map[string]any{
		"total_runs":        m.TotalRuns,
		"dispatched":        m.Dispatched,
		"dead_lettered":     m.DeadLettered,
		"requeued":          m.Requeued,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
	}
}
