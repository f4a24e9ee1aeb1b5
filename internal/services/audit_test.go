package services_test

import (
	"context"
	"testing"
	"time"

	"todo-api/internal/database/dbtest"
	"todo-api/internal/models"
	"todo-api/internal/repositories"
	"todo-api/internal/services"
	"todo-api/internal/worker"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditEntry(resource uuid.UUID, decision models.AuthorizationDecision) models.AuditLog {
	return models.AuditLog{
		UserID:     uuid.Must(uuid.NewV4()),
		Action:     services.ActionDelete,
		Resource:   services.ResourceTask,
		ResourceID: resource,
		Decision:   decision.Decision,
		Reason:     decision.Reason,
		RequestID:  "req-42",
	}
}

func TestQueuedAuditRecorder_WorkerPersistsEntry(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewAuditRepository(dbtest.New(t).DB)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	queue := worker.NewJobQueue(client)
	recorder := services.NewQueuedAuditRecorder(queue, nil, nil)

	resource := uuid.Must(uuid.NewV4())
	require.NoError(t, recorder.Record(ctx, auditEntry(resource, models.Deny("only the owner can delete"))))

	size, err := queue.GetQueueSize(ctx, worker.QueueAudit)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	w := worker.NewWorker(worker.WorkerConfig{
		RedisClient:  client,
		BlockTimeout: time.Second,
	})
	w.RegisterHandler(worker.JobTypeAuditLog, services.AuditJobHandler(repo))

	taken, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, taken)

	entries, err := repo.ListByResource(ctx, resource)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.DecisionDenied, entries[0].Decision)
	assert.Equal(t, "req-42", entries[0].RequestID)
}

func TestQueuedAuditRecorder_FallsBackWhenQueueIsDown(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewAuditRepository(dbtest.New(t).DB)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	recorder := services.NewQueuedAuditRecorder(worker.NewJobQueue(client), services.NewStoreAuditRecorder(repo), nil)

	resource := uuid.Must(uuid.NewV4())
	require.NoError(t, recorder.Record(ctx, auditEntry(resource, models.Allow("owner"))))

	entries, err := repo.ListByResource(ctx, resource)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.DecisionAllowed, entries[0].Decision)
}

func TestQueuedAuditRecorder_NoFallbackReturnsError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	recorder := services.NewQueuedAuditRecorder(worker.NewJobQueue(client), nil, nil)
	err = recorder.Record(context.Background(), auditEntry(uuid.Must(uuid.NewV4()), models.Allow("owner")))
	assert.Error(t, err)
}

func TestTaskAccessPolicy(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	other := uuid.Must(uuid.NewV4())
	task := &models.Task{ID: uuid.Must(uuid.NewV4()), OwnerID: owner, Title: "t"}

	tests := []struct {
		name    string
		subject uuid.UUID
		body    string
		allowed bool
	}{
		{"owner edits title", owner, `{"title":"new"}`, true},
		{"owner toggles completed", owner, `{"completed":true}`, true},
		{"owner sends unknown key", owner, `{"owner_id":"x"}`, true},
		{"other toggles completed", other, `{"completed":true}`, true},
		{"other edits title", other, `{"title":"new"}`, false},
		{"other edits title and completed", other, `{"title":"new","completed":true}`, false},
		{"other sends completed and owner", other, `{"completed":true,"owner_id":"x"}`, false},
		{"other sends empty body", other, `{}`, false},
	}

	var policy services.TaskAccessPolicy
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := policy.CanUpdate(tt.subject, task, models.DecodeTaskPatch([]byte(tt.body)))
			if decision.Allowed() != tt.allowed {
				t.Errorf("CanUpdate() allowed = %v, want %v (%s)", decision.Allowed(), tt.allowed, decision.Reason)
			}
		})
	}

	if !policy.CanDelete(owner, task).Allowed() {
		t.Error("owner should be allowed to delete")
	}
	if policy.CanDelete(other, task).Allowed() {
		t.Error("non-owner should not be allowed to delete")
	}
}
