package repositories

import (
	"context"
	"fmt"

	"todo-api/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) List(ctx context.Context) ([]models.Task, error) {
	tasks := []models.Task{}
	if err := r.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("repositories.TaskRepository.List: %w", translate(err))
	}
	return tasks, nil
}

func (r *TaskRepository) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, fmt.Errorf("repositories.TaskRepository.Get: %w", translate(err))
	}
	return &task, nil
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("repositories.TaskRepository.Create: %w", translate(err))
	}
	return nil
}

func (r *TaskRepository) Update(ctx context.Context, id uuid.UUID, update models.TaskUpdate) (*models.Task, error) {
	const op = "repositories.TaskRepository.Update"

	var task models.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
			return err
		}
		if err := tx.Model(&task).Updates(update.Columns()).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&task).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translate(err))
	}

	return &task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Task{})
	if result.Error != nil {
		return fmt.Errorf("repositories.TaskRepository.Delete: %w", translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("repositories.TaskRepository.Delete: %w", ErrNotFound)
	}
	return nil
}
