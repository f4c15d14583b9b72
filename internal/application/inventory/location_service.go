package inventory

import (
	"context"

	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocationService manages the stock locations moves are scoped to.
type LocationService struct {
	scope  TransactionScope
	logger *zap.Logger
}

// NewLocationService creates a new LocationService
func NewLocationService(scope TransactionScope, logger *zap.Logger) *LocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationService{scope: scope, logger: logger}
}

// RegisterLocation creates a new stock location. When makeDefault is set the
// previous default, if any, loses the flag in the same transaction.
func (s *LocationService) RegisterLocation(ctx context.Context, code, name string, makeDefault bool) (*inventory.Location, error) {
	loc, err := inventory.NewLocation(code, name)
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if makeDefault {
			if err := s.clearDefault(ctx, repos); err != nil {
				return err
			}
			loc.IsDefault = true
		}
		return repos.LocationRepo().Save(ctx, loc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Location registered",
		zap.String("location_id", loc.ID.String()),
		zap.String("code", loc.Code),
		zap.Bool("default", loc.IsDefault))
	return loc, nil
}

// GetLocation returns one location by ID
func (s *LocationService) GetLocation(ctx context.Context, id uuid.UUID) (*inventory.Location, error) {
	var loc *inventory.Location
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		loc, err = repos.LocationRepo().FindByID(ctx, id)
		return err
	})
	return loc, err
}

// ListLocations returns all active locations ordered by code
func (s *LocationService) ListLocations(ctx context.Context) ([]inventory.Location, error) {
	var locs []inventory.Location
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		locs, err = repos.LocationRepo().FindActive(ctx)
		return err
	})
	return locs, err
}

// MakeDefault moves the default flag to the given location
func (s *LocationService) MakeDefault(ctx context.Context, id uuid.UUID) (*inventory.Location, error) {
	var loc *inventory.Location
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		loc, err = repos.LocationRepo().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !loc.Active {
			return shared.ErrInvalidState
		}
		if loc.IsDefault {
			return nil
		}
		if err := s.clearDefault(ctx, repos); err != nil {
			return err
		}
		loc.IsDefault = true
		return repos.LocationRepo().Save(ctx, loc)
	})
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// DeactivateLocation marks a location inactive. Its ledger history stays
// intact; new moves against it are rejected.
func (s *LocationService) DeactivateLocation(ctx context.Context, id uuid.UUID) (*inventory.Location, error) {
	var loc *inventory.Location
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		loc, err = repos.LocationRepo().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if loc.IsDefault {
			return shared.NewDomainError("CANNOT_DEACTIVATE", "The default location cannot be deactivated")
		}
		loc.Deactivate()
		return repos.LocationRepo().Save(ctx, loc)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Location deactivated", zap.String("location_id", loc.ID.String()))
	return loc, nil
}

func (s *LocationService) clearDefault(ctx context.Context, repos TransactionalRepositories) error {
	current, err := repos.LocationRepo().FindDefault(ctx)
	if err != nil {
		if err == shared.ErrNotFound {
			return nil
		}
		return err
	}
	current.IsDefault = false
	return repos.LocationRepo().Save(ctx, current)
}
