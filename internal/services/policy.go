package services

import (
	"todo-api/internal/models"

	"github.com/gofrs/uuid"
)

const (
	ActionUpdate = "update"
	ActionDelete = "delete"

	ResourceTask = "task"
)

// TaskAccessPolicy decides task mutations. Reads are open to any
// authenticated user and are not routed through the policy.
type TaskAccessPolicy struct{}

// CanUpdate allows the owner any edit and everyone else a body whose only key
// is completed. It looks at keys only; values are validated afterwards.
func (TaskAccessPolicy) CanUpdate(subject uuid.UUID, task *models.Task, patch models.TaskPatch) models.AuthorizationDecision {
	if task.IsOwnedBy(subject) {
		return models.Allow("owner")
	}
	if patch.IsCompletionOnly() {
		return models.Allow("completion-only update")
	}
	return models.Deny("only the owner can edit fields other than completed")
}

func (TaskAccessPolicy) CanDelete(subject uuid.UUID, task *models.Task) models.AuthorizationDecision {
	if task.IsOwnedBy(subject) {
		return models.Allow("owner")
	}
	return models.Deny("only the owner can delete")
}
