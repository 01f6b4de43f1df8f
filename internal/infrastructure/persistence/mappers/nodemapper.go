package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/vetiver-inc/vetiver/internal/domain/node"
	vo "github.com/vetiver-inc/vetiver/internal/domain/node/value_objects"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/persistence/models"
	"github.com/vetiver-inc/vetiver/internal/shared/mapper"
)

// NodeMapper handles the conversion between domain entities and persistence models
type NodeMapper interface {
	ToEntity(model *models.NodeModel) (*node.Node, error)
	ToModel(entity *node.Node) (*models.NodeModel, error)
	ToEntities(models []*models.NodeModel) ([]*node.Node, error)
}

// NodeMapperImpl is the concrete implementation of NodeMapper
type NodeMapperImpl struct{}

// NewNodeMapper creates a new node mapper
func NewNodeMapper() NodeMapper {
	return &NodeMapperImpl{}
}

// ToEntity converts a persistence model to a domain entity
func (m *NodeMapperImpl) ToEntity(model *models.NodeModel) (*node.Node, error) {
	if model == nil {
		return nil, nil
	}

	status, err := vo.NewNodeStatus(model.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to create node status: %w", err)
	}

	var tags []string
	if len(model.Tags) > 0 {
		if err := json.Unmarshal(model.Tags, &tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node tags: %w", err)
		}
	}

	entity, err := node.ReconstructNode(
		model.ID,
		model.Name,
		model.Address,
		model.Port,
		model.APIPort,
		model.APIToken,
		status,
		model.Message,
		model.EngineVersion,
		model.Uplink,
		model.Downlink,
		model.DataLimit,
		model.UsageCoefficient,
		tags,
		model.LastStatusChange,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct node entity: %w", err)
	}

	return entity, nil
}

// ToModel converts a domain entity to a persistence model
func (m *NodeMapperImpl) ToModel(entity *node.Node) (*models.NodeModel, error) {
	if entity == nil {
		return nil, nil
	}

	tags, err := json.Marshal(entity.Tags())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node tags: %w", err)
	}

	return &models.NodeModel{
		ID:               entity.ID(),
		Name:             entity.Name(),
		Address:          entity.Address(),
		Port:             entity.Port(),
		APIPort:          entity.APIPort(),
		APIToken:         entity.APIToken(),
		Status:           entity.Status().String(),
		Message:          entity.Message(),
		EngineVersion:    entity.EngineVersion(),
		Uplink:           entity.Uplink(),
		Downlink:         entity.Downlink(),
		DataLimit:        entity.DataLimit(),
		UsageCoefficient: entity.UsageCoefficient(),
		Tags:             datatypes.JSON(tags),
		LastStatusChange: entity.LastStatusChange(),
		CreatedAt:        entity.CreatedAt(),
		UpdatedAt:        entity.UpdatedAt(),
	}, nil
}

// ToEntities converts multiple persistence models to domain entities
func (m *NodeMapperImpl) ToEntities(modelList []*models.NodeModel) ([]*node.Node, error) {
	return mapper.MapSlicePtrWithID(modelList, m.ToEntity, func(model *models.NodeModel) uint { return model.ID })
}

// MasterMapper handles the conversion for the singleton master state
type MasterMapper interface {
	ToEntity(model *models.MasterNodeStateModel) (*node.Master, error)
	ToModel(entity *node.Master) (*models.MasterNodeStateModel, error)
}

// MasterMapperImpl is the concrete implementation of MasterMapper
type MasterMapperImpl struct{}

// NewMasterMapper creates a new master state mapper
func NewMasterMapper() MasterMapper {
	return &MasterMapperImpl{}
}

// ToEntity converts a persistence model to the master domain entity
func (m *MasterMapperImpl) ToEntity(model *models.MasterNodeStateModel) (*node.Master, error) {
	if model == nil {
		return nil, nil
	}

	status, err := vo.NewNodeStatus(model.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to create master status: %w", err)
	}

	entity, err := node.ReconstructMaster(
		status,
		model.Message,
		model.EngineVersion,
		model.Uplink,
		model.Downlink,
		model.DataLimit,
		model.UsageCoefficient,
		model.UpdatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct master state: %w", err)
	}

	return entity, nil
}

// ToModel converts the master domain entity to a persistence model
func (m *MasterMapperImpl) ToModel(entity *node.Master) (*models.MasterNodeStateModel, error) {
	if entity == nil {
		return nil, nil
	}

	return &models.MasterNodeStateModel{
		ID:               node.MasterStateID,
		Status:           entity.Status().String(),
		Message:          entity.Message(),
		EngineVersion:    entity.EngineVersion(),
		Uplink:           entity.Uplink(),
		Downlink:         entity.Downlink(),
		DataLimit:        entity.DataLimit(),
		UsageCoefficient: entity.UsageCoefficient(),
		UpdatedAt:        entity.UpdatedAt(),
	}, nil
}
