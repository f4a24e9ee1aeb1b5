package handlers

import (
	"context"
	"net/http"

	"todo-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type UserManager interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, update models.UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type UserHandler struct {
	userService UserManager
}

type UserUpdateResponse struct {
	Message string             `json:"message"`
	User    models.UserSummary `json:"user"`
}

func NewUserHandler(userService UserManager) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]models.UserSummary, 0, len(users))
	for i := range users {
		response = append(response, users[i].Listing())
	}

	c.JSON(http.StatusOK, response)
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid user id")
		return
	}

	var update models.UserUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), id, update)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, UserUpdateResponse{
		Message: "user updated successfully",
		User:    user.Summary(),
	})
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid user id")
		return
	}

	if err := h.userService.DeleteUser(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
