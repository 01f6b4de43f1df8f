package mappers

import (
	"fmt"

	"github.com/vetiver-inc/vetiver/internal/domain/user"
	vo "github.com/vetiver-inc/vetiver/internal/domain/user/value_objects"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/mapper"
)

// UserMapper handles the conversion between domain entities and persistence models
type UserMapper interface {
	ToEntity(model *models.UserModel) (*user.User, error)
	ToModel(entity *user.User) (*models.UserModel, error)
	ToEntities(models []*models.UserModel) ([]*user.User, error)
}

// UserMapperImpl is the concrete implementation of UserMapper
type UserMapperImpl struct{}

// NewUserMapper creates a new user mapper
func NewUserMapper() UserMapper {
	return &UserMapperImpl{}
}

// ToEntity converts a persistence model to a domain entity
func (m *UserMapperImpl) ToEntity(model *models.UserModel) (*user.User, error) {
	if model == nil {
		return nil, nil
	}

	status, err := vo.ParseStatus(model.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user status: %w", err)
	}

	var prevStatus *vo.Status
	if model.PrevStatus != nil {
		parsed, err := vo.ParseStatus(*model.PrevStatus)
		if err != nil {
			return nil, fmt.Errorf("failed to parse previous user status: %w", err)
		}
		prevStatus = &parsed
	}

	entity, err := user.ReconstructUser(
		model.ID,
		model.Username,
		model.AdminID,
		model.ServiceID,
		status,
		prevStatus,
		model.UsedTraffic,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct user entity: %w", err)
	}

	return entity, nil
}

// ToModel converts a domain entity to a persistence model
func (m *UserMapperImpl) ToModel(entity *user.User) (*models.UserModel, error) {
	if entity == nil {
		return nil, nil
	}

	var prevStatus *string
	if entity.PrevStatus() != nil {
		s := entity.PrevStatus().String()
		prevStatus = &s
	}

	return &models.UserModel{
		ID:          entity.ID(),
		Username:    entity.Username().String(),
		AdminID:     entity.AdminID(),
		ServiceID:   entity.ServiceID(),
		Status:      entity.Status().String(),
		PrevStatus:  prevStatus,
		UsedTraffic: entity.UsedTraffic(),
		CreatedAt:   entity.CreatedAt(),
		UpdatedAt:   entity.UpdatedAt(),
	}, nil
}

// ToEntities converts multiple persistence models to domain entities
func (m *UserMapperImpl) ToEntities(modelList []*models.UserModel) ([]*user.User, error) {
	return mapper.MapSlicePtrWithID(modelList, m.ToEntity, func(model *models.UserModel) uint { return model.ID })
}
