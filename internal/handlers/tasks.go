package handlers

import (
	"context"
	"net/http"

	"todo-api/internal/auth"
	"todo-api/internal/models"
	"todo-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type TaskManager interface {
	List(ctx context.Context) ([]models.Task, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Create(ctx context.Context, subject uuid.UUID, input services.NewTask) (*models.Task, error)
	Update(ctx context.Context, subject, id uuid.UUID, patch models.TaskPatch) (*models.Task, error)
	Delete(ctx context.Context, subject, id uuid.UUID) error
}

type TaskHandler struct {
	taskService TaskManager
}

// CreateTaskRequest carries the accepted create fields. Any owner supplied by
// the client is dropped during decoding.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func NewTaskHandler(taskService TaskManager) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	tasks, err := h.taskService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	task, err := h.taskService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	subject, ok := subjectOf(c)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), subject, services.NewTask{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	subject, ok := subjectOf(c)
	if !ok {
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "invalid request body")
		return
	}

	// Values are validated by the service once existence and access are settled.
	task, err := h.taskService.Update(c.Request.Context(), subject, id, models.DecodeTaskPatch(raw))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	subject, ok := subjectOf(c)
	if !ok {
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}

	if err := h.taskService.Delete(c.Request.Context(), subject, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// taskID parses the :id parameter. An id that is not a UUID cannot name a
// task, so it is answered with 404.
func taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return uuid.Nil, false
	}
	return id, true
}

func subjectOf(c *gin.Context) (uuid.UUID, bool) {
	subject, ok := auth.SubjectFromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no token provided"})
		return uuid.Nil, false
	}
	return subject, true
}
