package inventory

import (
	"strings"

	"github.com/clinicpos/backend/internal/domain/shared"
)

// Location represents a physical stock location (clinic room, dispensary,
// storage fridge). Every balance row and ledger move is scoped to one location.
type Location struct {
	shared.BaseEntity
	Code      string `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name      string `gorm:"type:varchar(255);not null"`
	IsDefault bool   `gorm:"not null;default:false"`
	Active    bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (Location) TableName() string {
	return "locations"
}

// NewLocation creates a new stock location
func NewLocation(code, name string) (*Location, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, shared.NewDomainError("INVALID_LOCATION_CODE", "Location code cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_LOCATION_NAME", "Location name cannot be empty")
	}
	return &Location{
		BaseEntity: shared.NewBaseEntity(),
		Code:       code,
		Name:       name,
		Active:     true,
	}, nil
}

// Deactivate marks the location as inactive. Inactive locations keep their
// ledger history but are rejected for new moves.
func (l *Location) Deactivate() {
	l.Active = false
}

// Activate marks the location as active
func (l *Location) Activate() {
	l.Active = true
}
