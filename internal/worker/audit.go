package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"tasktree/backend/internal/models"
	"tasktree/backend/internal/repositories"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	JobTypeAuditRecord JobType = "audit_record"
	QueueAudit                 = "audit"
)

var ErrAuditBufferFull = errors.New("audit buffer full")

type AuditRecorderConfig struct {
	// Buffer is how many entries may wait for the flush loop.
	Buffer         int
	EnqueueTimeout time.Duration
	Logger         zerolog.Logger
}

// QueueAuditRecorder hands access decisions to the worker. Record only
// buffers the entry; a background loop pushes it to redis, so callers holding
// a database transaction never wait on the network.
type QueueAuditRecorder struct {
	queue   *JobQueue
	entries chan models.AuditLog
	timeout time.Duration
	logger  zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueueAuditRecorder(queue *JobQueue, config AuditRecorderConfig) *QueueAuditRecorder {
	if config.Buffer <= 0 {
		config.Buffer = 1024
	}
	if config.EnqueueTimeout <= 0 {
		config.EnqueueTimeout = 2 * time.Second
	}
	return &QueueAuditRecorder{
		queue:   queue,
		entries: make(chan models.AuditLog, config.Buffer),
		timeout: config.EnqueueTimeout,
		logger:  config.Logger.With().Str("component", "audit_recorder").Logger(),
		done:    make(chan struct{}),
	}
}

func (r *QueueAuditRecorder) Record(_ context.Context, entry models.AuditLog) error {
	select {
	case r.entries <- entry:
		return nil
	default:
		return ErrAuditBufferFull
	}
}

func (r *QueueAuditRecorder) Start() {
	r.wg.Add(1)
	go r.flushLoop()
}

// Stop flushes whatever is still buffered and waits for the loop to exit.
func (r *QueueAuditRecorder) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}

func (r *QueueAuditRecorder) flushLoop() {
	defer r.wg.Done()
	for {
		select {
		case entry := <-r.entries:
			r.enqueue(entry)
		case <-r.done:
			for {
				select {
				case entry := <-r.entries:
					r.enqueue(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *QueueAuditRecorder) enqueue(entry models.AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.queue.Enqueue(ctx, QueueAudit, JobTypeAuditRecord, entry); err != nil {
		r.logger.Error().
			Err(err).
			Str("request_id", entry.RequestID).
			Str("subject", entry.UserID).
			Str("action", entry.Action).
			Msg("failed to enqueue audit entry")
	}
}

// AuditRecordHandler persists queued audit entries.
func AuditRecordHandler(db *gorm.DB) JobHandler {
	audit := repositories.NewAuditRepository(db)
	return func(ctx context.Context, job *Job) error {
		var entry models.AuditLog
		if err := job.Decode(&entry); err != nil {
			return err
		}
		return audit.Create(ctx, &entry)
	}
}
