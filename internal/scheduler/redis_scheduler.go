package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	scheduleKey  = "deletion:schedule"
	jobKeyPrefix = "deletion:job:"
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// RedisScheduler is a Redis implementation of Store.
//
// Jobs are indexed by fire time in a sorted set (member = account ID) and
// their details kept in one hash per account. Removing the sorted set member
// is the claim. Claims and requeues run as Lua scripts so that a concurrent
// cancel or replacement is never half applied.
type RedisScheduler struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisScheduler creates a new Redis-backed scheduler.
func NewRedisScheduler(client *redis.Client) *RedisScheduler {
	return &RedisScheduler{
		client: client,
		now:    time.Now,
	}
}

func jobKey(accountID string) string {
	return jobKeyPrefix + accountID
}

// CreateJob schedules a job, replacing any existing job for the account.
func (s *RedisScheduler) CreateJob(ctx context.Context, accountID string, fireAt time.Time, target, deadLetterTarget string) (string, error) {
	if err := validateJob(accountID, fireAt, target); err != nil {
		return "", err
	}

	jobID := newJobID()
	fields := encodeJob(Job{
		ID:               jobID,
		AccountID:        accountID,
		FireAt:           fireAt,
		Target:           target,
		DeadLetterTarget: deadLetterTarget,
		CreatedAt:        s.now(),
	})

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, jobKey(accountID))
		pipe.HSet(ctx, jobKey(accountID), fields)
		pipe.ZAdd(ctx, scheduleKey, redis.Z{
			Score:  float64(fireAt.UnixMilli()),
			Member: accountID,
		})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}

	return jobID, nil
}

// CancelJob removes the account's job.
func (s *RedisScheduler) CancelJob(ctx context.Context, accountID string) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, scheduleKey, accountID)
		pipe.Del(ctx, jobKey(accountID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancelling job: %w", err)
	}

	if removed.Val() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// claimScript removes the account from the schedule and returns its job
// fields, but only while its fire time is still <= now. It returns nil when
// the job was cancelled, claimed elsewhere or replaced by a later one.
var claimScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) > tonumber(ARGV[2]) then
	return false
end
redis.call('ZREM', KEYS[1], ARGV[1])
local fields = redis.call('HGETALL', KEYS[2])
redis.call('DEL', KEYS[2])
return fields
`)

// requeueScript stores a job only if the account has no job at all.
var requeueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 or redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[2], unpack(ARGV, 3))
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1
`)

// ClaimDue removes and returns due jobs, earliest first. An entry whose
// details cannot be decoded is put back and reported in the error; the other
// jobs are still returned.
func (s *RedisScheduler) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	nowMilli := strconv.FormatInt(now.UnixMilli(), 10)
	due, err := s.client.ZRangeByScoreWithScores(ctx, scheduleKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   nowMilli,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing due jobs: %w", err)
	}

	var errs []error
	jobs := make([]Job, 0, len(due))
	for _, z := range due {
		accountID, _ := z.Member.(string)
		fields, err := s.claim(ctx, accountID, nowMilli)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(fields) == 0 {
			continue
		}

		job, err := decodeJob(accountID, fields)
		if err != nil {
			errs = append(errs, err)
			if restoreErr := s.restore(ctx, accountID, z.Score, fields); restoreErr != nil {
				errs = append(errs, restoreErr)
			}
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, errors.Join(errs...)
}

// claim runs claimScript for one listed account. It returns no fields when
// the entry was cancelled, claimed elsewhere or replaced by a later job
// since it was listed, or when it has no details left.
func (s *RedisScheduler) claim(ctx context.Context, accountID, nowMilli string) (map[string]string, error) {
	keys := []string{scheduleKey, jobKey(accountID)}
	raw, err := claimScript.Run(ctx, s.client, keys, accountID, nowMilli).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming job %s: %w", accountID, err)
	}
	return pairs(raw), nil
}

// Requeue stores a claimed job again unless the account already has a job.
func (s *RedisScheduler) Requeue(ctx context.Context, job Job) (bool, error) {
	if err := validateJob(job.AccountID, job.FireAt, job.Target); err != nil {
		return false, err
	}

	keys := []string{scheduleKey, jobKey(job.AccountID)}
	args := []any{job.AccountID, job.FireAt.UnixMilli()}
	for k, v := range encodeJob(job) {
		args = append(args, k, v)
	}

	stored, err := requeueScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("requeueing job: %w", err)
	}
	return stored == 1, nil
}

// restore puts back a claimed entry whose details could not be decoded, so
// it stays visible for inspection instead of disappearing.
func (s *RedisScheduler) restore(ctx context.Context, accountID string, score float64, fields map[string]string) error {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobKey(accountID), values)
		pipe.ZAdd(ctx, scheduleKey, redis.Z{Score: score, Member: accountID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("restoring job %s: %w", accountID, err)
	}
	return nil
}

func encodeJob(job Job) map[string]any {
	return map[string]any{
		"job_id":             job.ID,
		"fire_at":            job.FireAt.UTC().Format(time.RFC3339Nano),
		"target":             job.Target,
		"dead_letter_target": job.DeadLetterTarget,
		"created_at":         job.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeJob(accountID string, fields map[string]string) (Job, error) {
	fireAt, err := time.Parse(time.RFC3339Nano, fields["fire_at"])
	if err != nil {
		return Job{}, fmt.Errorf("decoding job for %s: fire_at: %w", accountID, err)
	}
	job := Job{
		ID:               fields["job_id"],
		AccountID:        accountID,
		FireAt:           fireAt,
		Target:           fields["target"],
		DeadLetterTarget: fields["dead_letter_target"],
	}
	if job.Target == "" {
		return Job{}, fmt.Errorf("decoding job for %s: %w", accountID, ErrInvalidJob)
	}
	if createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		job.CreatedAt = createdAt
	}
	return job, nil
}

// pairs turns an HGETALL reply into a map.
func pairs(raw []string) map[string]string {
	m := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		m[raw[i]] = raw[i+1]
	}
	return m
}

// Ping verifies the Redis connection.
func (s *RedisScheduler) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Ensure RedisScheduler implements Store interface.
var _ Store = (*RedisScheduler)(nil)
