package persistence

import (
	"context"
	"errors"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLocationRepository implements LocationRepository using GORM
type GormLocationRepository struct {
	db *gorm.DB
}

// NewGormLocationRepository creates a new GormLocationRepository
func NewGormLocationRepository(db *gorm.DB) *GormLocationRepository {
	return &GormLocationRepository{db: db}
}

// FindByID finds a location by its ID
func (r *GormLocationRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Location, error) {
	var location inventory.Location
	if err := r.db.WithContext(ctx).First(&location, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &location, nil
}

// FindByCode finds a location by its unique code
func (r *GormLocationRepository) FindByCode(ctx context.Context, code string) (*inventory.Location, error) {
	var location inventory.Location
	if err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&location).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &location, nil
}

// FindDefault finds the default location for unscoped operations
func (r *GormLocationRepository) FindDefault(ctx context.Context) (*inventory.Location, error) {
	var location inventory.Location
	if err := r.db.WithContext(ctx).
		Where("is_default = TRUE AND active = TRUE").
		First(&location).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &location, nil
}

// FindActive finds all active locations ordered by code
func (r *GormLocationRepository) FindActive(ctx context.Context) ([]inventory.Location, error) {
	var locations []inventory.Location
	if err := r.db.WithContext(ctx).
		Where("active = TRUE").
		Order("code ASC").
		Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}

// Save creates or updates a location
func (r *GormLocationRepository) Save(ctx context.Context, location *inventory.Location) error {
	if err := r.db.WithContext(ctx).Save(location).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Ensure GormLocationRepository implements LocationRepository
var _ inventory.LocationRepository = (*GormLocationRepository)(nil)
