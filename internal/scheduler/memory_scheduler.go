package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryScheduler is an in-memory implementation of Store.
// This is intended for testing and local development. Production should use RedisScheduler.
type InMemoryScheduler struct {
	mu   sync.Mutex
	jobs map[string]Job // account ID -> job
	now  func() time.Time
}

// NewInMemoryScheduler creates a new in-memory scheduler.
func NewInMemoryScheduler() *InMemoryScheduler {
	return &InMemoryScheduler{
		jobs: make(map[string]Job),
		now:  time.Now,
	}
}

// CreateJob schedules a job, replacing any existing job for the account.
func (s *InMemoryScheduler) CreateJob(_ context.Context, accountID string, fireAt time.Time, target, deadLetterTarget string) (string, error) {
	if err := validateJob(accountID, fireAt, target); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := Job{
		ID:               newJobID(),
		AccountID:        accountID,
		FireAt:           fireAt,
		Target:           target,
		DeadLetterTarget: deadLetterTarget,
		CreatedAt:        s.now(),
	}
	s.jobs[accountID] = job
	return job.ID, nil
}

// CancelJob removes the account's job.
func (s *InMemoryScheduler) CancelJob(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[accountID]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, accountID)
	return nil
}

// ClaimDue removes and returns due jobs, earliest first.
func (s *InMemoryScheduler) ClaimDue(_ context.Context, now time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Job
	for _, job := range s.jobs {
		if !job.FireAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, job := range due {
		delete(s.jobs, job.AccountID)
	}
	return due, nil
}

// Requeue stores job unless the account already has one.
func (s *InMemoryScheduler) Requeue(_ context.Context, job Job) (bool, error) {
	if err := validateJob(job.AccountID, job.FireAt, job.Target); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.AccountID]; ok {
		return false, nil
	}
	s.jobs[job.AccountID] = job
	return true, nil
}

// Get returns the account's job, if any.
func (s *InMemoryScheduler) Get(accountID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[accountID]
	return job, ok
}

// Len returns the number of scheduled jobs.
func (s *InMemoryScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func newJobID() string {
	return "job_" + uuid.New().String()[:22]
}

// Ensure InMemoryScheduler implements Store interface.
var _ Store = (*InMemoryScheduler)(nil)
