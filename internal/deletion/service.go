// Package deletion implements the deferred account deletion lifecycle:
// request with a grace period, cancel while authenticated, and undo through
// the emailed token link.
//
//	ACTIVE --RequestDeletion--> PENDING_DELETION
//	PENDING_DELETION --CancelDeletion | UndoByToken (before scheduledAt)--> ACTIVE
//	PENDING_DELETION --executor fires at scheduledAt--> purged
//
// The state transition is the operation. Scheduling the executor job and
// sending emails happen afterwards, best-effort, and only show up in logs and
// metrics.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/michalmalinowski87/photo-sub008/internal/account"
	"github.com/michalmalinowski87/photo-sub008/internal/provider/resilience"
	"github.com/michalmalinowski87/photo-sub008/internal/scheduler"
)

const instrumentationName = "github.com/michalmalinowski87/photo-sub008/internal/deletion"

// Policy values.
const (
	ConfirmationPhrase       = "Potwierdzam"
	DefaultGracePeriod       = 72 * time.Hour
	DefaultReason            = "manual"
	DefaultSideEffectTimeout = 5 * time.Second
	MaxReasonLength          = 200
)

// Config holds the collaborators and policy of the Service.
type Config struct {
	Repository account.Repository
	Scheduler  Scheduler
	Notifier   Notifier
	Clock      Clock
	Logger     zerolog.Logger

	// GracePeriod between request and purge. Default: 72h
	GracePeriod time.Duration

	// UndoBaseURL is the public undo endpoint; the token is appended as ?token=.
	UndoBaseURL string

	// ExecutorTarget and DeadLetterTarget are passed to the scheduler.
	ExecutorTarget   string
	DeadLetterTarget string

	// SideEffectTimeout bounds each scheduler and email call. Default: 5s
	SideEffectTimeout time.Duration

	// Registry, if set, exposes the side-effect circuit breakers on the ops status endpoint.
	Registry *resilience.Registry
}

// Service orchestrates the deletion lifecycle.
type Service struct {
	repo     account.Repository
	sched    Scheduler
	notifier Notifier
	clock    Clock
	logger   zerolog.Logger

	gracePeriod      time.Duration
	undoBaseURL      *url.URL
	executorTarget   string
	deadLetterTarget string

	schedulerGuard *resilience.Guard
	mailerGuard    *resilience.Guard

	tracer      trace.Tracer
	transitions metric.Int64Counter
	sideEffects metric.Int64Counter
}

// NewService validates the configuration and creates a Service.
// Missing collaborators yield ErrConfigurationMissing.
func NewService(cfg Config) (*Service, error) {
	var missing []string
	if cfg.Repository == nil {
		missing = append(missing, "repository")
	}
	if cfg.Scheduler == nil {
		missing = append(missing, "scheduler")
	}
	if cfg.Notifier == nil {
		missing = append(missing, "notifier")
	}
	if cfg.UndoBaseURL == "" {
		missing = append(missing, "undo base url")
	}
	if cfg.ExecutorTarget == "" {
		missing = append(missing, "executor target")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}

	undoBaseURL, err := url.Parse(cfg.UndoBaseURL)
	if err != nil || undoBaseURL.Scheme == "" || undoBaseURL.Host == "" {
		return nil, fmt.Errorf("%w: undo base url must be absolute", ErrConfigurationMissing)
	}

	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = DefaultSideEffectTimeout
	}

	meter := otel.Meter(instrumentationName)
	transitions, err := meter.Int64Counter(
		"deletion.transition.total",
		metric.WithDescription("Account deletion lifecycle transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}
	sideEffects, err := meter.Int64Counter(
		"deletion.side_effect.total",
		metric.WithDescription("Best-effort side effects by outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	schedCB := resilience.DefaultCircuitBreakerConfig("deletion-scheduler")
	schedCB.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, scheduler.ErrJobNotFound)
	}
	schedGuardCfg := resilience.DefaultGuardConfig("deletion-scheduler")
	schedGuardCfg.Timeout = cfg.SideEffectTimeout
	schedGuardCfg.CircuitBreaker = &schedCB
	schedGuardCfg.Registry = cfg.Registry

	mailGuardCfg := resilience.DefaultGuardConfig("deletion-mailer")
	mailGuardCfg.Timeout = cfg.SideEffectTimeout
	mailGuardCfg.Registry = cfg.Registry

	return &Service{
		repo:             cfg.Repository,
		sched:            cfg.Scheduler,
		notifier:         cfg.Notifier,
		clock:            cfg.Clock,
		logger:           cfg.Logger.With().Str("component", "deletion").Logger(),
		gracePeriod:      cfg.GracePeriod,
		undoBaseURL:      undoBaseURL,
		executorTarget:   cfg.ExecutorTarget,
		deadLetterTarget: cfg.DeadLetterTarget,
		schedulerGuard:   resilience.NewGuard(schedGuardCfg),
		mailerGuard:      resilience.NewGuard(mailGuardCfg),
		tracer:           otel.Tracer(instrumentationName),
		transitions:      transitions,
		sideEffects:      sideEffects,
	}, nil
}

// RequestResult is the result of RequestDeletion.
type RequestResult struct {
	Status      account.Status
	ScheduledAt time.Time
	Outcomes    []SideEffectOutcome
}

// CancelResult is the result of CancelDeletion and UndoByToken.
type CancelResult struct {
	Status   account.Status
	Outcomes []SideEffectOutcome
}

// StatusResult is the result of GetDeletionStatus.
type StatusResult struct {
	Status      account.Status
	ScheduledAt *time.Time
	RequestedAt *time.Time
	Reason      string
}

// RequestDeletion moves an ACTIVE account to PENDING_DELETION, then schedules
// the executor and emails the undo link.
//
// A repeated request returns *AlreadyPendingError carrying the existing
// schedule; the grace period and token are never reset.
func (s *Service) RequestDeletion(ctx context.Context, accountID, confirmation, reason string) (*RequestResult, error) {
	ctx, span := s.tracer.Start(ctx, "deletion.RequestDeletion")
	defer span.End()

	if accountID == "" {
		return nil, ErrUnauthenticated
	}
	span.SetAttributes(attribute.String("account.id", accountID))

	acc, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if confirmation != ConfirmationPhrase {
		return nil, ErrInvalidConfirmation
	}

	if acc.IsPendingDeletion() {
		return nil, &AlreadyPendingError{ScheduledAt: acc.Deletion.ScheduledAt}
	}

	token, err := GenerateUndoToken()
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReason
	}

	now := s.clock.Now()
	d := account.Deletion{
		RequestedAt: now,
		ScheduledAt: now.Add(s.gracePeriod),
		Reason:      reason,
		UndoToken:   token,
	}

	if err := s.repo.MarkPendingDeletion(ctx, accountID, acc.Version, d); err != nil {
		return nil, s.writeError(err)
	}
	s.countTransition(ctx, "requested")

	logger := s.logger.With().Str("account_id", accountID).Logger()
	logger.Info().
		Time("deletion_scheduled_at", d.ScheduledAt).
		Str("deletion_reason", reason).
		Msg("account deletion requested")

	// Side effects must outlive a disconnected client.
	effectCtx := context.WithoutCancel(ctx)
	outcomes := []SideEffectOutcome{
		s.scheduleJob(effectCtx, logger, accountID, d.ScheduledAt),
		s.sendRequestedEmail(effectCtx, logger, acc.Email, token, d.ScheduledAt),
	}

	return &RequestResult{
		Status:      account.StatusPendingDeletion,
		ScheduledAt: d.ScheduledAt,
		Outcomes:    outcomes,
	}, nil
}

// CancelDeletion returns a PENDING_DELETION account to ACTIVE.
// Cancelling an ACTIVE account returns ErrNoPendingDeletion.
func (s *Service) CancelDeletion(ctx context.Context, accountID string) (*CancelResult, error) {
	ctx, span := s.tracer.Start(ctx, "deletion.CancelDeletion")
	defer span.End()

	if accountID == "" {
		return nil, ErrUnauthenticated
	}
	span.SetAttributes(attribute.String("account.id", accountID))

	acc, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if !acc.IsPendingDeletion() {
		return nil, ErrNoPendingDeletion
	}

	return s.restore(ctx, acc, "cancelled")
}

// UndoByToken cancels the pending deletion holding token. Possession of the
// token is the only credential.
//
// Unknown tokens, tokens of active accounts and malformed values all yield
// ErrInvalidOrExpiredToken. Once the grace period has elapsed the token yields
// ErrAlreadyProcessed, even if the record still exists.
func (s *Service) UndoByToken(ctx context.Context, token string) (*CancelResult, error) {
	ctx, span := s.tracer.Start(ctx, "deletion.UndoByToken")
	defer span.End()

	if !wellFormedToken(token) {
		return nil, ErrInvalidOrExpiredToken
	}

	acc, err := s.repo.FindByUndoToken(ctx, token)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, err
	}

	if !acc.IsPendingDeletion() || !tokensEqual(acc.Deletion.UndoToken, token) {
		return nil, ErrInvalidOrExpiredToken
	}
	span.SetAttributes(attribute.String("account.id", acc.ID))

	if !acc.Deletion.ScheduledAt.After(s.clock.Now()) {
		return nil, ErrAlreadyProcessed
	}

	return s.restore(ctx, acc, "undone")
}

// GetDeletionStatus reports the lifecycle status of an account.
func (s *Service) GetDeletionStatus(ctx context.Context, accountID string) (*StatusResult, error) {
	ctx, span := s.tracer.Start(ctx, "deletion.GetDeletionStatus")
	defer span.End()

	if accountID == "" {
		return nil, ErrUnauthenticated
	}

	acc, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{Status: acc.CurrentStatus()}
	if acc.IsPendingDeletion() {
		scheduledAt := acc.Deletion.ScheduledAt
		requestedAt := acc.Deletion.RequestedAt
		result.ScheduledAt = &scheduledAt
		result.RequestedAt = &requestedAt
		result.Reason = acc.Deletion.Reason
	}
	return result, nil
}

// restore writes ACTIVE first, then cancels the job and sends the email.
// A failed cancel leaves a job that fires for an active account, which the
// executor discards after re-checking status. The opposite order could leave
// a pending account with no job.
func (s *Service) restore(ctx context.Context, acc *account.Account, transition string) (*CancelResult, error) {
	if err := s.repo.RestoreActive(ctx, acc.ID, acc.Version); err != nil {
		return nil, s.writeError(err)
	}
	s.countTransition(ctx, transition)

	logger := s.logger.With().Str("account_id", acc.ID).Logger()
	logger.Info().Str("transition", transition).Msg("account deletion cancelled")

	effectCtx := context.WithoutCancel(ctx)
	outcomes := []SideEffectOutcome{
		s.cancelJob(effectCtx, logger, acc.ID),
		s.sendCancelledEmail(effectCtx, logger, acc.Email),
	}

	return &CancelResult{
		Status:   account.StatusActive,
		Outcomes: outcomes,
	}, nil
}

func (s *Service) writeError(err error) error {
	if errors.Is(err, account.ErrVersionConflict) {
		return ErrConflict
	}
	return err
}

func (s *Service) scheduleJob(ctx context.Context, logger zerolog.Logger, accountID string, fireAt time.Time) SideEffectOutcome {
	var jobID string
	err := s.schedulerGuard.Do(ctx, func(ctx context.Context) error {
		var err error
		jobID, err = s.sched.CreateJob(ctx, accountID, fireAt, s.executorTarget, s.deadLetterTarget)
		return err
	})
	if err != nil {
		logger.Warn().
			Err(err).
			Str("effect", string(EffectScheduleJob)).
			Str("job_target", s.executorTarget).
			Time("fire_at", fireAt).
			Msg("failed to schedule deletion job")
		return s.record(ctx, failed(EffectScheduleJob, err.Error()))
	}

	logger.Debug().Str("job_id", jobID).Time("fire_at", fireAt).Msg("deletion job scheduled")
	return s.record(ctx, succeeded(EffectScheduleJob))
}

func (s *Service) cancelJob(ctx context.Context, logger zerolog.Logger, accountID string) SideEffectOutcome {
	err := s.schedulerGuard.Do(ctx, func(ctx context.Context) error {
		return s.sched.CancelJob(ctx, accountID)
	})
	if errors.Is(err, scheduler.ErrJobNotFound) {
		// Already fired or never created
		logger.Debug().Msg("no deletion job to cancel")
		return s.record(ctx, succeeded(EffectCancelJob))
	}
	if err != nil {
		logger.Warn().
			Err(err).
			Str("effect", string(EffectCancelJob)).
			Str("job_target", s.executorTarget).
			Msg("failed to cancel deletion job")
		return s.record(ctx, failed(EffectCancelJob, err.Error()))
	}
	return s.record(ctx, succeeded(EffectCancelJob))
}

func (s *Service) sendRequestedEmail(ctx context.Context, logger zerolog.Logger, to, token string, scheduledAt time.Time) SideEffectOutcome {
	if to == "" {
		logger.Warn().Str("effect", string(EffectRequestedEmail)).Msg("no email on record")
		return s.record(ctx, failed(EffectRequestedEmail, "no email on record"))
	}

	link := s.undoLink(token)
	err := s.mailerGuard.Do(ctx, func(ctx context.Context) error {
		return s.notifier.SendDeletionRequestedEmail(ctx, to, link, scheduledAt)
	})
	if err != nil {
		logger.Warn().
			Err(err).
			Str("effect", string(EffectRequestedEmail)).
			Time("deletion_scheduled_at", scheduledAt).
			Msg("failed to send deletion requested email")
		return s.record(ctx, failed(EffectRequestedEmail, err.Error()))
	}
	return s.record(ctx, succeeded(EffectRequestedEmail))
}

func (s *Service) sendCancelledEmail(ctx context.Context, logger zerolog.Logger, to string) SideEffectOutcome {
	if to == "" {
		logger.Warn().Str("effect", string(EffectCancelledEmail)).Msg("no email on record")
		return s.record(ctx, failed(EffectCancelledEmail, "no email on record"))
	}

	err := s.mailerGuard.Do(ctx, func(ctx context.Context) error {
		return s.notifier.SendDeletionCancelledEmail(ctx, to)
	})
	if err != nil {
		logger.Warn().
			Err(err).
			Str("effect", string(EffectCancelledEmail)).
			Msg("failed to send deletion cancelled email")
		return s.record(ctx, failed(EffectCancelledEmail, err.Error()))
	}
	return s.record(ctx, succeeded(EffectCancelledEmail))
}

// undoLink appends the token to the configured undo endpoint.
func (s *Service) undoLink(token string) string {
	u := *s.undoBaseURL
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Service) record(ctx context.Context, o SideEffectOutcome) SideEffectOutcome {
	s.sideEffects.Add(ctx, 1, metric.WithAttributes(
		attribute.String("effect", string(o.Effect)),
		attribute.String("result", o.result()),
	))
	return o
}

func (s *Service) countTransition(ctx context.Context, transition string) {
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", transition)))
}
