package persistence

import (
	"context"
	"errors"

	"github.com/clinicpos/backend/internal/domain/sales"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRefundRepository implements RefundRepository using GORM
type GormRefundRepository struct {
	db *gorm.DB
}

// NewGormRefundRepository creates a new GormRefundRepository
func NewGormRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// FindByID finds a refund with its lines
func (r *GormRefundRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.Refund, error) {
	var refund sales.Refund
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		First(&refund, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &refund, nil
}

// Ensure GormRefundRepository implements RefundRepository
var _ sales.RefundRepository = (*GormRefundRepository)(nil)
