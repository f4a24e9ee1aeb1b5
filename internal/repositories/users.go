package repositories

import (
	"context"
	"fmt"

	"todo-api/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("repositories.UserRepository.Create: %w", translate(err))
	}
	return nil
}

// GetByEmail matches the stored email exactly.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, fmt.Errorf("repositories.UserRepository.GetByEmail: %w", translate(err))
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, fmt.Errorf("repositories.UserRepository.GetByID: %w", translate(err))
	}
	return &user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("repositories.UserRepository.List: %w", translate(err))
	}
	return users, nil
}

// Update writes the given columns and returns the stored row.
func (r *UserRepository) Update(ctx context.Context, id uuid.UUID, columns map[string]interface{}) (*models.User, error) {
	const op = "repositories.UserRepository.Update"

	var user models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&user).Error; err != nil {
			return err
		}
		if len(columns) == 0 {
			return nil
		}
		if err := tx.Model(&user).Updates(columns).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&user).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translate(err))
	}

	return &user, nil
}

// Delete removes the user and every task it owns in one transaction. It
// returns the ids of the removed tasks.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	const op = "repositories.UserRepository.Delete"

	var taskIDs []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ?", id).First(&user).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Task{}).Where("owner_id = ?", id).Pluck("id", &taskIDs).Error; err != nil {
			return err
		}

		if err := tx.Where("owner_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return err
		}

		return tx.Delete(&user).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translate(err))
	}

	return taskIDs, nil
}
