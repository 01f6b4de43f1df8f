package mappers

import (
	"fmt"

	"github.com/vetiver-inc/vetiver/internal/domain/service"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/mapper"
)

// ServiceMapper handles the conversion between domain entities and persistence models
type ServiceMapper interface {
	ToEntity(model *models.ServiceModel) (*service.Service, error)
	ToModel(entity *service.Service) (*models.ServiceModel, error)
	ToEntities(models []*models.ServiceModel) ([]*service.Service, error)
}

// ServiceMapperImpl is the concrete implementation of ServiceMapper
type ServiceMapperImpl struct{}

// NewServiceMapper creates a new service mapper
func NewServiceMapper() ServiceMapper {
	return &ServiceMapperImpl{}
}

// ToEntity converts a persistence model to a domain entity
func (m *ServiceMapperImpl) ToEntity(model *models.ServiceModel) (*service.Service, error) {
	if model == nil {
		return nil, nil
	}

	entity, err := service.ReconstructService(
		model.ID,
		model.Name,
		model.UsedTraffic,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct service entity: %w", err)
	}

	return entity, nil
}

// ToModel converts a domain entity to a persistence model
func (m *ServiceMapperImpl) ToModel(entity *service.Service) (*models.ServiceModel, error) {
	if entity == nil {
		return nil, nil
	}

	return &models.ServiceModel{
		ID:          entity.ID(),
		Name:        entity.Name(),
		UsedTraffic: entity.UsedTraffic(),
		CreatedAt:   entity.CreatedAt(),
		UpdatedAt:   entity.UpdatedAt(),
	}, nil
}

// ToEntities converts multiple persistence models to domain entities
func (m *ServiceMapperImpl) ToEntities(modelList []*models.ServiceModel) ([]*service.Service, error) {
	return mapper.MapSlicePtrWithID(modelList, m.ToEntity, func(model *models.ServiceModel) uint { return model.ID })
}

// LinkMapper handles the conversion for admin-service links
type LinkMapper interface {
	ToEntity(model *models.AdminServiceLinkModel) (*service.AdminServiceLink, error)
	ToModel(entity *service.AdminServiceLink) (*models.AdminServiceLinkModel, error)
	ToEntities(models []*models.AdminServiceLinkModel) ([]*service.AdminServiceLink, error)
}

// LinkMapperImpl is the concrete implementation of LinkMapper
type LinkMapperImpl struct{}

// NewLinkMapper creates a new admin-service link mapper
func NewLinkMapper() LinkMapper {
	return &LinkMapperImpl{}
}

// ToEntity converts a persistence model to a domain entity
func (m *LinkMapperImpl) ToEntity(model *models.AdminServiceLinkModel) (*service.AdminServiceLink, error) {
	if model == nil {
		return nil, nil
	}

	entity, err := service.ReconstructAdminServiceLink(
		model.ID,
		model.AdminID,
		model.ServiceID,
		model.UsedTraffic,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct admin-service link: %w", err)
	}

	return entity, nil
}

// ToModel converts a domain entity to a persistence model
func (m *LinkMapperImpl) ToModel(entity *service.AdminServiceLink) (*models.AdminServiceLinkModel, error) {
	if entity == nil {
		return nil, nil
	}

	return &models.AdminServiceLinkModel{
		ID:          entity.ID(),
		AdminID:     entity.AdminID(),
		ServiceID:   entity.ServiceID(),
		UsedTraffic: entity.UsedTraffic(),
		CreatedAt:   entity.CreatedAt(),
		UpdatedAt:   entity.UpdatedAt(),
	}, nil
}

// ToEntities converts multiple persistence models to domain entities
func (m *LinkMapperImpl) ToEntities(modelList []*models.AdminServiceLinkModel) ([]*service.AdminServiceLink, error) {
	return mapper.MapSlicePtrWithID(modelList, m.ToEntity, func(model *models.AdminServiceLinkModel) uint { return model.ID })
}
