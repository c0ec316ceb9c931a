package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type JobHandler func(ctx context.Context, job *Job) error

type Worker struct {
	client       redis.UniversalClient
	handlers     map[JobType]JobHandler
	queues       []string
	blockTimeout time.Duration
	jobTimeout   time.Duration
	logger       zerolog.Logger
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient redis.UniversalClient
	Queues      []string
	// BlockTimeout bounds each BLPOP so delayed jobs get promoted regularly.
	BlockTimeout time.Duration
	JobTimeout   time.Duration
	Logger       zerolog.Logger
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if config.BlockTimeout <= 0 {
		config.BlockTimeout = 5 * time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}

	return &Worker{
		client:       config.RedisClient,
		handlers:     make(map[JobType]JobHandler),
		queues:       config.Queues,
		blockTimeout: config.BlockTimeout,
		jobTimeout:   config.JobTimeout,
		logger:       config.Logger.With().Str("component", "worker").Logger(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	w.logger.Info().Int("concurrency", concurrency).Strs("queues", w.queues).Msg("starting worker")

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
}

func (w *Worker) Stop() {
	w.logger.Info().Msg("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.logger.Info().Msg("worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		if err := w.promoteDue(w.ctx); err != nil && w.ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("failed to promote delayed jobs")
		}
		if err := w.processNextJob(w.ctx); err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.logger.Error().Err(err).Msg("error processing job")
			select {
			case <-w.ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// promoteDue moves delayed jobs whose time has come onto their queue. ZREM
// decides which worker wins a job when several promote at once.
func (w *Worker) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	for _, queue := range w.queues {
		due, err := w.client.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{
			Min: "-inf",
			Max: now,
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to read delayed jobs of %s: %w", queue, err)
		}
		for _, member := range due {
			removed, err := w.client.ZRem(ctx, delayedKey(queue), member).Result()
			if err != nil {
				return err
			}
			if removed == 0 {
				continue
			}
			if err := w.client.RPush(ctx, queue, member).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Worker) processNextJob(ctx context.Context) error {
	result, err := w.client.BLPop(ctx, w.blockTimeout, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return w.bury(ctx, result[0], json.RawMessage(strconv.Quote(result[1])), fmt.Errorf("failed to unmarshal job: %w", err))
	}
	if job.Queue == "" {
		job.Queue = result[0]
	}

	return w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	log := w.logger.With().Str("job_id", job.ID).Str("job_type", string(job.Type)).Logger()

	if !exists {
		return w.bury(ctx, job.Queue, mustMarshal(job), fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	if err := handler(jobCtx, job); err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			log.Warn().Err(err).Int("attempt", job.Attempts).Int("max_tries", job.MaxTries).Msg("job failed, retrying")
			return w.retryJob(ctx, job)
		}

		log.Error().Err(err).Int("attempts", job.Attempts).Msg("job failed permanently")
		return w.bury(ctx, job.Queue, mustMarshal(job), err)
	}

	log.Debug().Msg("job completed")
	return nil
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := time.Duration(1<<job.Attempts) * time.Second
	job.ProcessAt = time.Now().Add(delay)
	return push(ctx, w.client, job)
}

func (w *Worker) bury(ctx context.Context, queue string, job json.RawMessage, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    time.Now(),
	}

	data, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(ctx, deadKey(queue), data).Err()
}

func mustMarshal(job *Job) json.RawMessage {
	data, err := json.Marshal(job)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return data
}
