package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key the Redis queue writes
const DefaultRedisPrefix = "leadboard:jobs"

// completedJobTTL bounds how long finished jobs stay inspectable
const completedJobTTL = 7 * 24 * time.Hour

// popDue atomically claims the earliest job whose run time has passed
var popDue = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
	return false
end
redis.call('ZREM', KEYS[1], ids[1])
return ids[1]
`)

// RedisQueue implements Queue on Redis.
//
// Each job is a hash; pending jobs sit in one sorted set per job type scored by
// their next run time in unix milliseconds.
type RedisQueue struct {
	client *redis.Client
	prefix string
	owns   bool
	now    func() time.Time
}

// NewRedisQueue wraps an existing client. The caller keeps ownership of the client.
func NewRedisQueue(client *redis.Client, prefix string) (*RedisQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisQueue{client: client, prefix: prefix, now: time.Now}, nil
}

// NewRedisQueueFromURL dials Redis from a redis:// URL and verifies the connection
func NewRedisQueueFromURL(ctx context.Context, redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	q, err := NewRedisQueue(client, DefaultRedisPrefix)
	if err != nil {
		return nil, err
	}
	q.owns = true
	return q, nil
}

func (q *RedisQueue) seqKey() string   { return q.prefix + ":seq" }
func (q *RedisQueue) typesKey() string { return q.prefix + ":types" }

func (q *RedisQueue) pendingKey(jobType string) string {
	return q.prefix + ":pending:" + jobType
}

func (q *RedisQueue) jobKey(id int64) string {
	return q.prefix + ":job:" + strconv.FormatInt(id, 10)
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// wrap classifies a Redis failure; context errors pass through unchanged
func (q *RedisQueue) wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to %s job: %w", op, err)
	}
	return fmt.Errorf("%w: failed to %s job: %v", ErrQueueUnavailable, op, err)
}

// Enqueue adds a new job to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, payload map[string]interface{}) error {
	return q.EnqueueWithDelay(ctx, jobType, payload, 0)
}

// EnqueueWithDelay adds a job to be processed after a delay
func (q *RedisQueue) EnqueueWithDelay(ctx context.Context, jobType string, payload map[string]interface{}, delay time.Duration) error {
	if jobType == "" {
		return fmt.Errorf("%w: job type is required", ErrInvalidPayload)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	id, err := q.client.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return q.wrap("enqueue", err)
	}

	now := q.now()
	runAt := now.Add(delay)

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(id), map[string]interface{}{
			"type":        jobType,
			"payload":     string(payloadJSON),
			"created_at":  now.UnixMilli(),
			"next_run_at": runAt.UnixMilli(),
			"attempts":    0,
			"status":      "pending",
		})
		pipe.SAdd(ctx, q.typesKey(), jobType)
		pipe.ZAdd(ctx, q.pendingKey(jobType), redis.Z{Score: score(runAt), Member: id})
		return nil
	})
	if err != nil {
		return q.wrap("enqueue", err)
	}
	return nil
}

// Dequeue retrieves the next due job of one of jobTypes (every known type when none are given).
// Types are polled in the order given.
func (q *RedisQueue) Dequeue(ctx context.Context, jobTypes ...string) (*Job, error) {
	types := jobTypes
	if len(types) == 0 {
		known, err := q.client.SMembers(ctx, q.typesKey()).Result()
		if err != nil {
			return nil, q.wrap("dequeue", err)
		}
		types = known
	}

	nowScore := strconv.FormatInt(q.now().UnixMilli(), 10)
	for _, jobType := range types {
		raw, err := popDue.Run(ctx, q.client, []string{q.pendingKey(jobType)}, nowScore).Text()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, q.wrap("dequeue", err)
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad job id %q", ErrInvalidPayload, raw)
		}
		return q.claim(ctx, id)
	}

	return nil, nil
}

func (q *RedisQueue) claim(ctx context.Context, id int64) (*Job, error) {
	key := q.jobKey(id)

	var fields *redis.MapStringStringCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "attempts", 1)
		pipe.HSet(ctx, key, "status", "processing")
		fields = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return nil, q.wrap("dequeue", err)
	}

	values := fields.Val()
	job := &Job{ID: id, Type: values["type"]}

	if err := json.Unmarshal([]byte(values["payload"]), &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	if ms, err := strconv.ParseInt(values["created_at"], 10, 64); err == nil {
		job.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(values["next_run_at"], 10, 64); err == nil {
		job.NextRunAt = time.UnixMilli(ms).UTC()
	}
	job.Attempts, _ = strconv.Atoi(values["attempts"])

	return job, nil
}

// Complete marks a job as successfully completed
func (q *RedisQueue) Complete(ctx context.Context, jobID int64) error {
	jobType, err := q.jobType(ctx, jobID)
	if err != nil {
		return err
	}

	key := q.jobKey(jobID)
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "status", "completed", "completed_at", q.now().UnixMilli())
		pipe.ZRem(ctx, q.pendingKey(jobType), jobID)
		pipe.Expire(ctx, key, completedJobTTL)
		return nil
	})
	if err != nil {
		return q.wrap("complete", err)
	}
	return nil
}

// Retry reschedules a job for retry with a delay
func (q *RedisQueue) Retry(ctx context.Context, jobID int64, delay time.Duration) error {
	jobType, err := q.jobType(ctx, jobID)
	if err != nil {
		return err
	}

	runAt := q.now().Add(delay)
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(jobID), "status", "pending", "next_run_at", runAt.UnixMilli())
		pipe.ZAdd(ctx, q.pendingKey(jobType), redis.Z{Score: score(runAt), Member: jobID})
		return nil
	})
	if err != nil {
		return q.wrap("retry", err)
	}
	return nil
}

// Fail marks a job as permanently failed
func (q *RedisQueue) Fail(ctx context.Context, jobID int64, errorMsg string) error {
	jobType, err := q.jobType(ctx, jobID)
	if err != nil {
		return err
	}

	key := q.jobKey(jobID)
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "status", "failed", "error_message", errorMsg, "failed_at", q.now().UnixMilli())
		pipe.ZRem(ctx, q.pendingKey(jobType), jobID)
		return nil
	})
	if err != nil {
		return q.wrap("fail", err)
	}
	return nil
}

// Status returns the stored status of a job ("pending", "processing", "completed" or "failed")
func (q *RedisQueue) Status(ctx context.Context, jobID int64) (string, error) {
	status, err := q.client.HGet(ctx, q.jobKey(jobID), "status").Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: job %d", ErrJobNotFound, jobID)
	}
	if err != nil {
		return "", q.wrap("read", err)
	}
	return status, nil
}

func (q *RedisQueue) jobType(ctx context.Context, jobID int64) (string, error) {
	jobType, err := q.client.HGet(ctx, q.jobKey(jobID), "type").Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: job %d", ErrJobNotFound, jobID)
	}
	if err != nil {
		return "", q.wrap("read", err)
	}
	return jobType, nil
}

// HealthCheck verifies the queue is operational
func (q *RedisQueue) HealthCheck(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue health check failed: %w", err)
	}
	return nil
}

// Close closes the client when the queue dialed it itself
func (q *RedisQueue) Close() error {
	if !q.owns {
		return nil
	}
	return q.client.Close()
}
