// Package queue implements the durable delayed job queue the sync pipeline
// chains its page continuations through. Jobs live in a Redis sorted set
// scored by the time they become eligible; failed jobs are retried with a
// bounded attempt budget and moved to a dead-letter list when it runs out.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Job is one unit of work. Payload is opaque to the queue.
type Job struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Handler processes one job. A returned error means the job failed and is
// retried while the attempt budget allows.
type Handler func(ctx context.Context, job *Job) error

// ExhaustedFunc is invoked when a job has used up its attempt budget, after
// the job has been moved to the dead-letter list.
type ExhaustedFunc func(ctx context.Context, job *Job, err error)

// retryAfterHinter lets an error carry its own backoff, e.g. a rate-limit
// response with an explicit Retry-After.
type retryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// Options tunes queue behavior. Zero values fall back to defaults.
type Options struct {
	ScheduledKey  string        // sorted set of pending jobs
	DeadLetterKey string        // list of jobs that exhausted their budget
	MaxAttempts   int           // attempt budget per job
	RetryBackoff  time.Duration // fixed delay between attempts
	PollInterval  time.Duration // how often idle workers look for work
}

func (o *Options) withDefaults() {
	if o.ScheduledKey == "" {
		o.ScheduledKey = "sync:jobs:scheduled"
	}
	if o.DeadLetterKey == "" {
		o.DeadLetterKey = "sync:jobs:dead"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 5 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
}

// popScript atomically claims the first due job.
var popScript = redis.NewScript(`
	local jobs = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 1)
	if #jobs == 0 then
		return false
	end
	redis.call("ZREM", KEYS[1], jobs[1])
	return jobs[1]
`)

// Queue is a Redis-backed delayed job queue consumed by a worker pool.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
	opts   Options
}

// New creates a Queue.
func New(client *redis.Client, logger *zap.Logger, opts Options) *Queue {
	opts.withDefaults()
	return &Queue{client: client, logger: logger, opts: opts}
}

// Enqueue schedules a payload to become eligible after delay.
func (q *Queue) Enqueue(ctx context.Context, payload interface{}, delay time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}
	job := &Job{
		ID:         uuid.New().String(),
		Payload:    data,
		Attempt:    0,
		EnqueuedAt: time.Now().UTC(),
	}
	return q.schedule(ctx, job, delay)
}

func (q *Queue) schedule(ctx context.Context, job *Job, delay time.Duration) error {
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	readyAt := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.opts.ScheduledKey, redis.Z{Score: readyAt, Member: member}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.Debug("Job scheduled",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.Duration("delay", delay),
	)
	return nil
}

// Run consumes jobs with the given number of workers until ctx is
// canceled. Failed jobs are retried up to MaxAttempts; exhausted jobs are
// pushed to the dead-letter list and reported through exhausted.
func (q *Queue) Run(ctx context.Context, concurrency int, handler Handler, exhausted ExhaustedFunc) {
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			q.work(ctx, worker, handler, exhausted)
		}(i)
	}
	wg.Wait()
}

func (q *Queue) work(ctx context.Context, worker int, handler Handler, exhausted ExhaustedFunc) {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		job, err := q.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Error("Failed to poll job queue", zap.Error(err), zap.Int("worker", worker))
		}

		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		q.process(ctx, job, handler, exhausted)
	}
}

func (q *Queue) process(ctx context.Context, job *Job, handler Handler, exhausted ExhaustedFunc) {
	err := handler(ctx, job)
	if err == nil {
		return
	}

	job.Attempt++
	if job.Attempt < q.opts.MaxAttempts {
		delay := q.retryDelayFor(err)
		q.logger.Warn("Job failed, retrying",
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempt),
			zap.Int("max_attempts", q.opts.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if schedErr := q.schedule(ctx, job, delay); schedErr != nil {
			q.logger.Error("Failed to reschedule job", zap.String("job_id", job.ID), zap.Error(schedErr))
		}
		return
	}

	q.logger.Error("Job exhausted its attempt budget",
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	)

	if member, marshalErr := json.Marshal(job); marshalErr == nil {
		if dlErr := q.client.LPush(ctx, q.opts.DeadLetterKey, member).Err(); dlErr != nil {
			q.logger.Error("Failed to dead-letter job", zap.String("job_id", job.ID), zap.Error(dlErr))
		}
	}

	if exhausted != nil {
		exhausted(ctx, job, err)
	}
}

func (q *Queue) retryDelayFor(err error) time.Duration {
	var hinter retryAfterHinter
	if errors.As(err, &hinter) {
		if hint := hinter.RetryAfterHint(); hint > 0 {
			return hint
		}
	}
	return q.opts.RetryBackoff
}

func (q *Queue) pop(ctx context.Context) (*Job, error) {
	now := time.Now().UnixMilli()
	res, err := popScript.Run(ctx, q.client, []string{q.opts.ScheduledKey}, now).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	member, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected pop result type %T", res)
	}

	job := &Job{}
	if err := json.Unmarshal([]byte(member), job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return job, nil
}

// Pending returns the number of scheduled jobs.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.opts.ScheduledKey).Result()
}

// DeadLettered returns the number of jobs that exhausted their budget.
func (q *Queue) DeadLettered(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.opts.DeadLetterKey).Result()
}
