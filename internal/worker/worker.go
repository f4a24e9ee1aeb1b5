package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobTypeAuditLog JobType = "audit_log"
)

const (
	QueueAudit = "audit"

	defaultMaxTries     = 3
	defaultBlockTimeout = 5 * time.Second
	defaultJobTimeout   = 30 * time.Second
	keyPrefix           = "todo:queue:"
)

var ErrNoHandler = errors.New("no handler registered for job type")

type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	MaxTries  int             `json:"max_tries"`
	CreatedAt time.Time       `json:"created_at"`
	ProcessAt time.Time       `json:"process_at"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

type JobHandler func(ctx context.Context, job *Job) error

func listKey(queue string) string    { return keyPrefix + queue }
func delayedKey(queue string) string { return keyPrefix + queue + ":delayed" }
func deadKey(queue string) string    { return keyPrefix + queue + ":dead" }

// Worker pops jobs from Redis lists and dispatches them to handlers. Failed
// jobs are retried with exponential backoff through a per-queue sorted set
// and moved to a dead list once MaxTries is reached.
type Worker struct {
	client       *redis.Client
	handlers     map[JobType]JobHandler
	queues       []string
	pollInterval time.Duration
	blockTimeout time.Duration
	backoffBase  time.Duration
	log          *slog.Logger
	mu           sync.RWMutex
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	Concurrency  int
	PollInterval time.Duration
	BlockTimeout time.Duration
	BackoffBase  time.Duration
	Queues       []string
	Logger       *slog.Logger
}

func NewWorker(config WorkerConfig) *Worker {
	w := &Worker{
		client:       config.RedisClient,
		handlers:     make(map[JobType]JobHandler),
		queues:       config.Queues,
		pollInterval: config.PollInterval,
		blockTimeout: config.BlockTimeout,
		backoffBase:  config.BackoffBase,
		log:          config.Logger,
	}

	if len(w.queues) == 0 {
		w.queues = []string{QueueAudit}
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.blockTimeout <= 0 {
		w.blockTimeout = defaultBlockTimeout
	}
	if w.backoffBase <= 0 {
		w.backoffBase = time.Second
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	w.log = w.log.With(slog.String("component", "worker"))

	return w
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start launches concurrency consumer goroutines plus one goroutine that
// promotes due retries. It returns immediately.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.log.Info("starting worker", slog.Int("concurrency", concurrency), slog.Any("queues", w.queues))

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx)
	}

	w.wg.Add(1)
	go w.promoteLoop(ctx)
}

func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.log.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) workerLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := w.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("error processing job", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.PromoteDue(ctx, time.Now()); err != nil && ctx.Err() == nil {
				w.log.Warn("failed to promote delayed jobs", slog.String("error", err.Error()))
			}
		}
	}
}

// ProcessNext blocks for at most the block timeout waiting for a job and runs
// it. It reports whether a job was taken.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	keys := make([]string, len(w.queues))
	for i, q := range w.queues {
		keys[i] = listKey(q)
	}

	result, err := w.client.BLPop(ctx, w.blockTimeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return false, fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return true, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return true, w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	log := w.log.With(slog.String("job_id", job.ID), slog.String("job_type", string(job.Type)))

	if !exists {
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("%w: %s", ErrNoHandler, job.Type))
	}

	jobCtx, cancel := context.WithTimeout(ctx, defaultJobTimeout)
	defer cancel()

	if err := handler(jobCtx, job); err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			log.Warn("job failed, retrying",
				slog.Int("attempt", job.Attempts),
				slog.Int("max_tries", job.MaxTries),
				slog.String("error", err.Error()))
			return w.retryJob(ctx, job)
		}

		log.Error("job failed permanently", slog.Int("attempts", job.Attempts), slog.String("error", err.Error()))
		return w.moveToDeadQueue(ctx, job, err)
	}

	log.Debug("job completed")
	return nil
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := time.Duration(1<<job.Attempts) * w.backoffBase
	job.ProcessAt = time.Now().Add(delay)

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return w.client.ZAdd(ctx, delayedKey(job.Queue), redis.Z{
		Score:  float64(job.ProcessAt.UnixMilli()),
		Member: data,
	}).Err()
}

// PromoteDue moves delayed jobs whose time has come back onto their lists.
func (w *Worker) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	promoted := 0
	upper := strconv.FormatInt(now.UnixMilli(), 10)

	for _, queue := range w.queues {
		due, err := w.client.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
		if err != nil {
			return promoted, err
		}

		for _, member := range due {
			removed, err := w.client.ZRem(ctx, delayedKey(queue), member).Result()
			if err != nil {
				return promoted, err
			}
			if removed == 0 {
				continue
			}
			if err := w.client.RPush(ctx, listKey(queue), member).Err(); err != nil {
				return promoted, err
			}
			promoted++
		}
	}

	return promoted, nil
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    time.Now(),
	}

	data, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(ctx, deadKey(job.Queue), data).Err()
}

type JobQueue struct {
	client *redis.Client
}

func NewJobQueue(client *redis.Client) *JobQueue {
	return &JobQueue{client: client}
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload interface{}) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Queue:     queue,
		Payload:   raw,
		MaxTries:  defaultMaxTries,
		CreatedAt: now,
		ProcessAt: now,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.RPush(ctx, listKey(queue), data).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job, nil
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, listKey(queue)).Result()
}

func (q *JobQueue) GetDeadQueueSize(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, deadKey(queue)).Result()
}

func (q *JobQueue) GetDelayedSize(ctx context.Context, queue string) (int64, error) {
	return q.client.ZCard(ctx, delayedKey(queue)).Result()
}
