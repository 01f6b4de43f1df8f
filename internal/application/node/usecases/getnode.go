package usecases

import (
	"context"
	"fmt"

	"github.com/vetiver-inc/vetiver/internal/application/node/dto"
	domainNode "github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// GetNodeQuery represents the query for getting a node
type GetNodeQuery struct {
	NodeID uint
}

// GetNodeResult represents the result of getting a node
type GetNodeResult struct {
	Node *dto.NodeView
}

// GetNodeUseCase handles the business logic for retrieving a node
type GetNodeUseCase struct {
	nodeRepo domainNode.NodeRepository
	logger   logger.Interface
}

// NewGetNodeUseCase creates a new get node use case
func NewGetNodeUseCase(nodeRepo domainNode.NodeRepository, logger logger.Interface) *GetNodeUseCase {
	return &GetNodeUseCase{
		nodeRepo: nodeRepo,
		logger:   logger,
	}
}

// Execute retrieves a node by ID
func (uc *GetNodeUseCase) Execute(ctx context.Context, query GetNodeQuery) (*GetNodeResult, error) {
	if query.NodeID == 0 {
		return nil, errors.NewValidationError("node ID must be positive")
	}

	nodeEntity, err := uc.nodeRepo.GetByID(ctx, query.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	if nodeEntity == nil {
		return nil, errors.NewNotFoundError("node not found")
	}

	uc.logger.Debugw("node retrieved", "node_id", nodeEntity.ID())

	return &GetNodeResult{
		Node: dto.ToNodeView(nodeEntity),
	}, nil
}
