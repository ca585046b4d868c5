package worker

import (
	"context"
	"fmt"

	cron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner runs a DispatchJob on a cron schedule. A run still in progress
// when the next tick fires causes that tick to be skipped.
type Runner struct {
	cron   *cron.Cron
	job    *DispatchJob
	logger zerolog.Logger
}

// NewRunner creates a Runner. schedule accepts standard five-field cron
// specs and descriptors such as "@every 1m".
func NewRunner(schedule string, job *DispatchJob, logger zerolog.Logger) (*Runner, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	r := &Runner{cron: c, job: job, logger: logger}
	if _, err := c.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("parsing dispatch schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Runner) run() {
	r.job.Run(context.Background())
}

// Start begins running the job in the background.
func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info().Msg("deletion dispatch scheduled")
}

// Stop stops scheduling and waits for a running dispatch to finish, or for
// ctx to be done.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
