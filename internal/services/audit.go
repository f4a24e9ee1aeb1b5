package services

import (
	"context"
	"fmt"
	"log/slog"

	"todo-api/internal/models"
	"todo-api/internal/worker"
)

// AuditRecorder persists authorization decisions.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog) error
}

type AuditWriter interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// StoreAuditRecorder writes decisions synchronously.
type StoreAuditRecorder struct {
	store AuditWriter
}

func NewStoreAuditRecorder(store AuditWriter) *StoreAuditRecorder {
	return &StoreAuditRecorder{store: store}
}

func (r *StoreAuditRecorder) Record(ctx context.Context, entry models.AuditLog) error {
	return r.store.Create(ctx, &entry)
}

// QueuedAuditRecorder hands decisions to the job queue and falls back to
// fallback when the queue cannot be reached.
type QueuedAuditRecorder struct {
	queue    *worker.JobQueue
	fallback AuditRecorder
	log      *slog.Logger
}

func NewQueuedAuditRecorder(queue *worker.JobQueue, fallback AuditRecorder, log *slog.Logger) *QueuedAuditRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &QueuedAuditRecorder{queue: queue, fallback: fallback, log: log}
}

func (r *QueuedAuditRecorder) Record(ctx context.Context, entry models.AuditLog) error {
	if _, err := r.queue.Enqueue(ctx, worker.QueueAudit, worker.JobTypeAuditLog, entry); err != nil {
		r.log.Warn("audit queue unavailable, writing directly", slog.String("error", err.Error()))
		if r.fallback == nil {
			return err
		}
		return r.fallback.Record(ctx, entry)
	}
	return nil
}

// AuditJobHandler persists audit_log jobs taken off the queue.
func AuditJobHandler(store AuditWriter) worker.JobHandler {
	return func(ctx context.Context, job *worker.Job) error {
		var entry models.AuditLog
		if err := job.Decode(&entry); err != nil {
			return fmt.Errorf("decode audit entry: %w", err)
		}
		return store.Create(ctx, &entry)
	}
}
