package usecases

import (
	"context"
	"fmt"

	"github.com/vetiver-inc/vetiver/internal/application/node/dto"
	domainNode "github.com/vetiver-inc/vetiver/internal/domain/node"
	vo "github.com/vetiver-inc/vetiver/internal/domain/node/value_objects"
	"github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
	"github.com/vetiver-inc/vetiver/internal/shared/query"
	"github.com/vetiver-inc/vetiver/internal/shared/version"
)

// ListNodesQuery represents the query for listing nodes
type ListNodesQuery struct {
	Page     int
	PageSize int
	Status   *string
	Name     *string
}

// ListNodesResult represents the result of listing nodes
type ListNodesResult struct {
	Nodes      []*dto.NodeView
	TotalCount int64
}

// MasterVersionSource reports the engine build the master instance runs,
// used as the reference version for node update hints.
type MasterVersionSource interface {
	Version() string
}

// ListNodesUseCase handles the business logic for listing nodes
type ListNodesUseCase struct {
	nodeRepo      domainNode.NodeRepository
	versionSource MasterVersionSource
	logger        logger.Interface
}

// NewListNodesUseCase creates a new list nodes use case. versionSource
// may be nil when no master engine runs in-process.
func NewListNodesUseCase(
	nodeRepo domainNode.NodeRepository,
	versionSource MasterVersionSource,
	logger logger.Interface,
) *ListNodesUseCase {
	return &ListNodesUseCase{
		nodeRepo:      nodeRepo,
		versionSource: versionSource,
		logger:        logger,
	}
}

// Execute lists nodes matching the query
func (uc *ListNodesUseCase) Execute(ctx context.Context, q ListNodesQuery) (*ListNodesResult, error) {
	filter := domainNode.NodeFilter{
		PageFilter: query.PageFilter{Page: q.Page, PageSize: q.PageSize},
		Name:       q.Name,
	}

	if q.Status != nil && *q.Status != "" {
		status, err := vo.NewNodeStatus(*q.Status)
		if err != nil {
			return nil, errors.NewValidationError("invalid status filter", err.Error())
		}
		filter.Status = &status
	}

	nodes, total, err := uc.nodeRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	views := dto.ToNodeViews(nodes)

	// Flag nodes whose engine trails the master's build. Without a
	// reference version every flag stays false.
	if uc.versionSource != nil {
		if ref := uc.versionSource.Version(); ref != "" {
			for _, view := range views {
				view.HasUpdate = version.HasNewerVersion(view.EngineVersion, ref)
			}
		}
	}

	uc.logger.Debugw("nodes listed", "count", len(nodes), "total", total)

	return &ListNodesResult{
		Nodes:      views,
		TotalCount: total,
	}, nil
}
