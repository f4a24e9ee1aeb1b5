package repositories

import (
	"context"
	"fmt"

	"todo-api/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("repositories.AuditRepository.Create: %w", translate(err))
	}
	return nil
}

func (r *AuditRepository) ListByResource(ctx context.Context, resourceID uuid.UUID) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("repositories.AuditRepository.ListByResource: %w", translate(err))
	}
	return entries, nil
}
