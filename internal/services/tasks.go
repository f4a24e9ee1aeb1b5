package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"todo-api/internal/models"
	"todo-api/internal/repositories"
	"todo-api/internal/requestid"

	"github.com/gofrs/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("todo-api/internal/services")

// NewTask is the input for TaskService.Create. The owner is never taken from
// the request body.
type NewTask struct {
	Title       string
	Description string
}

type TaskService struct {
	store  TaskStore
	policy TaskAccessPolicy
	audit  AuditRecorder
	log    *slog.Logger
}

func NewTaskService(store TaskStore, audit AuditRecorder, log *slog.Logger) *TaskService {
	if log == nil {
		log = slog.Default()
	}
	return &TaskService{store: store, audit: audit, log: log}
}

func (s *TaskService) List(ctx context.Context) ([]models.Task, error) {
	const op = "services.TaskService.List"

	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	tasks, err := s.store.List(ctx)
	if err != nil {
		return nil, s.fail(span, internalError(op, err))
	}

	span.SetAttributes(attribute.Int("tasks.count", len(tasks)))
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	const op = "services.TaskService.Get"

	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(attribute.String("task.id", id.String())))
	defer span.End()

	task, err := s.load(ctx, op, id)
	if err != nil {
		return nil, s.fail(span, err)
	}

	return task, nil
}

func (s *TaskService) Create(ctx context.Context, subject uuid.UUID, input NewTask) (*models.Task, error) {
	const op = "services.TaskService.Create"

	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(attribute.String("user.id", subject.String())))
	defer span.End()

	if strings.TrimSpace(input.Title) == "" {
		return nil, s.fail(span, fmt.Errorf("%s: %w", op, newError(ErrBadRequest, "title is required")))
	}

	task := &models.Task{
		OwnerID:     subject,
		Title:       input.Title,
		Description: input.Description,
	}

	if err := s.store.Create(ctx, task); err != nil {
		return nil, s.fail(span, fmt.Errorf("%s: %w: %w", op, newError(ErrBadRequest, "error creating task"), err))
	}

	span.SetAttributes(attribute.String("task.id", task.ID.String()))
	s.log.Info("task created",
		slog.String("op", op),
		slog.String("task_id", task.ID.String()),
		slog.String("owner_id", subject.String()))

	return task, nil
}

// Update applies patch when the policy allows it. The task must exist before
// access is decided, and the body values are validated only for callers the
// policy lets through.
func (s *TaskService) Update(ctx context.Context, subject, id uuid.UUID, patch models.TaskPatch) (*models.Task, error) {
	const op = "services.TaskService.Update"

	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("task.id", id.String()),
		attribute.String("user.id", subject.String()),
		attribute.StringSlice("task.fields", patch.Keys()),
	))
	defer span.End()

	task, err := s.load(ctx, op, id)
	if err != nil {
		return nil, s.fail(span, err)
	}

	decision := s.policy.CanUpdate(subject, task, patch)
	s.record(ctx, subject, id, ActionUpdate, decision)

	if !decision.Allowed() {
		return nil, s.fail(span, fmt.Errorf("%s: %w", op, newError(ErrForbidden, "not authorized to update this task")))
	}

	update, err := patch.Update()
	if err != nil {
		message := err.Error()
		if errors.Is(err, models.ErrEmptyUpdate) {
			message = "no fields to update"
		}
		return nil, s.fail(span, fmt.Errorf("%s: %w: %w", op, newError(ErrBadRequest, message), err))
	}

	updated, err := s.store.Update(ctx, id, update)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.fail(span, fmt.Errorf("%s: %w", op, newError(ErrNotFound, "task not found")))
		}
		return nil, s.fail(span, fmt.Errorf("%s: %w: %w", op, newError(ErrBadRequest, "error updating task"), err))
	}

	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, subject, id uuid.UUID) error {
	const op = "services.TaskService.Delete"

	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("task.id", id.String()),
		attribute.String("user.id", subject.String()),
	))
	defer span.End()

	task, err := s.load(ctx, op, id)
	if err != nil {
		return s.fail(span, err)
	}

	decision := s.policy.CanDelete(subject, task)
	s.record(ctx, subject, id, ActionDelete, decision)

	if !decision.Allowed() {
		return s.fail(span, fmt.Errorf("%s: %w", op, newError(ErrForbidden, "not authorized to delete this task")))
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return s.fail(span, fmt.Errorf("%s: %w", op, newError(ErrNotFound, "task not found")))
		}
		return s.fail(span, fmt.Errorf("%s: %w: %w", op, newError(ErrBadRequest, "error deleting task"), err))
	}

	s.log.Info("task deleted", slog.String("op", op), slog.String("task_id", id.String()))

	return nil
}

func (s *TaskService) load(ctx context.Context, op string, id uuid.UUID) (*models.Task, error) {
	task, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, newError(ErrNotFound, "task not found"))
		}
		return nil, internalError(op, err)
	}
	return task, nil
}

func (s *TaskService) record(ctx context.Context, subject, id uuid.UUID, action string, decision models.AuthorizationDecision) {
	if s.audit == nil {
		return
	}

	entry := models.AuditLog{
		UserID:     subject,
		Action:     action,
		Resource:   ResourceTask,
		ResourceID: id,
		Decision:   decision.Decision,
		Reason:     decision.Reason,
		RequestID:  requestid.From(ctx),
	}

	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("failed to record audit entry",
			slog.String("action", action),
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
	}
}

func (s *TaskService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
