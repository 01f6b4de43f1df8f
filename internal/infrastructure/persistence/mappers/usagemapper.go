package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/mapper"
)

// UsageMapper handles the conversion for hourly usage buckets and reset logs
type UsageMapper interface {
	ToNodeUsageEntity(model *models.NodeUsageModel) (*usage.NodeUsage, error)
	ToNodeUsageEntities(models []*models.NodeUsageModel) ([]*usage.NodeUsage, error)
	ToNodeUserUsageEntity(model *models.NodeUserUsageModel) (*usage.NodeUserUsage, error)
	ToNodeUserUsageEntities(models []*models.NodeUserUsageModel) ([]*usage.NodeUserUsage, error)
	ToResetLogEntity(model *models.UsageResetLogModel) (*usage.ResetLog, error)
	ToResetLogModel(entity *usage.ResetLog) (*models.UsageResetLogModel, error)
	ToResetLogEntities(models []*models.UsageResetLogModel) ([]*usage.ResetLog, error)
}

// UsageMapperImpl is the concrete implementation of UsageMapper
type UsageMapperImpl struct{}

// NewUsageMapper creates a new usage mapper
func NewUsageMapper() UsageMapper {
	return &UsageMapperImpl{}
}

// ToNodeUsageEntity converts a node usage bucket model to a domain entity
func (m *UsageMapperImpl) ToNodeUsageEntity(model *models.NodeUsageModel) (*usage.NodeUsage, error) {
	if model == nil {
		return nil, nil
	}

	entity, err := usage.ReconstructNodeUsage(
		model.ID,
		model.NodeID,
		model.Uplink,
		model.Downlink,
		model.CreatedAt,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct node usage bucket: %w", err)
	}

	return entity, nil
}

// ToNodeUsageEntities converts multiple bucket models to domain entities
func (m *UsageMapperImpl) ToNodeUsageEntities(modelList []*models.NodeUsageModel) ([]*usage.NodeUsage, error) {
	return mapper.MapSlicePtrWithID(modelList, m.ToNodeUsageEntity, func(model *models.NodeUsageModel) uint { return model.ID })
}

// ToNodeUserUsageEntity converts a per-user bucket model to a domain entity
func (m *UsageMapperImpl) ToNodeUserUsageEntity(model *models.NodeUserUsageModel) (*usage.NodeUserUsage, error) {
	if model == nil {
		return nil, nil
	}

	entity, err := usage.ReconstructNodeUserUsage(
		model.ID,
		model.UserID,
		model.NodeID,
		model.UsedTraffic,
		model.CreatedAt,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct node user usage bucket: %w", err)
	}

	return entity, nil
}

// ToNodeUserUsageEntities converts multiple per-user bucket models to domain entities
func (m *UsageMapperImpl) ToNodeUserUsageEntities(modelList []*models.NodeUserUsageModel) ([]*usage.NodeUserUsage, error) {
	return mapper.MapSlicePtrWithID(modelList, m.ToNodeUserUsageEntity, func(model *models.NodeUserUsageModel) uint { return model.ID })
}

// ToResetLogEntity converts a reset log model to a domain entity
func (m *UsageMapperImpl) ToResetLogEntity(model *models.UsageResetLogModel) (*usage.ResetLog, error) {
	if model == nil {
		return nil, nil
	}

	category, err := usage.NewCategory(model.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reset log category: %w", err)
	}

	var snapshot map[string]uint64
	if len(model.Snapshot) > 0 {
		if err := json.Unmarshal(model.Snapshot, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reset snapshot: %w", err)
		}
	}

	entity, err := usage.ReconstructResetLog(
		model.ID,
		category,
		model.EntityID,
		model.Value,
		snapshot,
		model.Reason,
		model.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct reset log: %w", err)
	}

	return entity, nil
}

// ToResetLogModel converts a reset log entity to a persistence model
func (m *UsageMapperImpl) ToResetLogModel(entity *usage.ResetLog) (*models.UsageResetLogModel, error) {
	if entity == nil {
		return nil, nil
	}

	var snapshot datatypes.JSON
	if entity.Snapshot() != nil {
		raw, err := json.Marshal(entity.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal reset snapshot: %w", err)
		}
		snapshot = datatypes.JSON(raw)
	}

	return &models.UsageResetLogModel{
		ID:        entity.ID(),
		Category:  entity.Category().String(),
		EntityID:  entity.EntityID(),
		Value:     entity.Value(),
		Snapshot:  snapshot,
		Reason:    entity.Reason(),
		CreatedAt: entity.CreatedAt(),
	}, nil
}

// ToResetLogEntities converts multiple reset log models to domain entities
func (m *UsageMapperImpl) ToResetLogEntities(modelList []*models.UsageResetLogModel) ([]*usage.ResetLog, error) {
	return mapper.MapSlicePtrWithID(modelList, m.ToResetLogEntity, func(model *models.UsageResetLogModel) uint { return model.ID })
}
