package mappers

import (
	"fmt"

	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/mapper"
)

// AdminMapper handles the conversion between domain entities and persistence models
type AdminMapper interface {
	ToEntity(model *models.AdminModel) (*admin.Admin, error)
	ToModel(entity *admin.Admin) (*models.AdminModel, error)
	ToEntities(models []*models.AdminModel) ([]*admin.Admin, error)
}

// AdminMapperImpl is the concrete implementation of AdminMapper
type AdminMapperImpl struct{}

// NewAdminMapper creates a new admin mapper
func NewAdminMapper() AdminMapper {
	return &AdminMapperImpl{}
}

// ToEntity converts a persistence model to a domain entity
func (m *AdminMapperImpl) ToEntity(model *models.AdminModel) (*admin.Admin, error) {
	if model == nil {
		return nil, nil
	}

	entity, err := admin.ReconstructAdmin(
		model.ID,
		model.Username,
		admin.AdminStatus(model.Status),
		model.DataLimit,
		model.UsersLimit,
		model.UsersUsage,
		model.LifetimeUsage,
		model.DisabledByQuota,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct admin entity: %w", err)
	}

	return entity, nil
}

// ToModel converts a domain entity to a persistence model
func (m *AdminMapperImpl) ToModel(entity *admin.Admin) (*models.AdminModel, error) {
	if entity == nil {
		return nil, nil
	}

	return &models.AdminModel{
		ID:              entity.ID(),
		Username:        entity.Username(),
		Status:          entity.Status().String(),
		DataLimit:       entity.DataLimit(),
		UsersLimit:      entity.UsersLimit(),
		UsersUsage:      entity.UsersUsage(),
		LifetimeUsage:   entity.LifetimeUsage(),
		DisabledByQuota: entity.DisabledByQuota(),
		CreatedAt:       entity.CreatedAt(),
		UpdatedAt:       entity.UpdatedAt(),
	}, nil
}

// ToEntities converts multiple persistence models to domain entities
func (m *AdminMapperImpl) ToEntities(modelList []*models.AdminModel) ([]*admin.Admin, error) {
	return mapper.MapSlicePtrWithID(modelList, m.ToEntity, func(model *models.AdminModel) uint { return model.ID })
}
