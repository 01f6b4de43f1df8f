package usecases

import (
	"context"
	"fmt"
	"time"

	nodeDTO "github.com/vetiver-inc/vetiver/internal/application/node/dto"
	"github.com/vetiver-inc/vetiver/internal/application/usage/dto"
	domainNode "github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/shared/biztime"
	"github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

const (
	defaultSummaryWindowHours = 24
	maxSummaryWindowHours     = 24 * 30
)

// GetUsageSummaryQuery represents the query for the fleet usage summary
type GetUsageSummaryQuery struct {
	WindowHours int
}

// GetUsageSummaryResult represents the result of the fleet usage summary
type GetUsageSummaryResult struct {
	Summary *dto.UsageSummary
}

// PendingCounter reports the write-behind backlog per category.
type PendingCounter interface {
	PendingCounts(ctx context.Context) map[usage.Category]int64
}

// EngineProbe reports whether the in-process engine is running.
type EngineProbe interface {
	IsRunning() bool
}

// GetUsageSummaryUseCase assembles the fleet-wide usage snapshot
type GetUsageSummaryUseCase struct {
	nodeUsageRepo usage.NodeUsageRepository
	nodeRepo      domainNode.NodeRepository
	masterRepo    domainNode.MasterStateRepository
	pending       PendingCounter
	engine        EngineProbe
	logger        logger.Interface
}

// NewGetUsageSummaryUseCase creates a new usage summary use case
func NewGetUsageSummaryUseCase(
	nodeUsageRepo usage.NodeUsageRepository,
	nodeRepo domainNode.NodeRepository,
	masterRepo domainNode.MasterStateRepository,
	pending PendingCounter,
	engine EngineProbe,
	logger logger.Interface,
) *GetUsageSummaryUseCase {
	return &GetUsageSummaryUseCase{
		nodeUsageRepo: nodeUsageRepo,
		nodeRepo:      nodeRepo,
		masterRepo:    masterRepo,
		pending:       pending,
		engine:        engine,
		logger:        logger,
	}
}

// Execute builds the usage summary for the requested window
func (uc *GetUsageSummaryUseCase) Execute(ctx context.Context, query GetUsageSummaryQuery) (*GetUsageSummaryResult, error) {
	windowHours := query.WindowHours
	if windowHours == 0 {
		windowHours = defaultSummaryWindowHours
	}
	if windowHours < 0 || windowHours > maxSummaryWindowHours {
		return nil, errors.NewValidationError(
			fmt.Sprintf("window_hours must be between 1 and %d", maxSummaryWindowHours))
	}

	since := biztime.NowUTC().Add(-time.Duration(windowHours) * time.Hour)
	uplink, downlink, err := uc.nodeUsageRepo.TotalsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to total usage buckets: %w", err)
	}

	summary := &dto.UsageSummary{
		WindowHours: windowHours,
		Uplink:      uplink,
		Downlink:    downlink,
		Total:       uplink + downlink,
		Pending:     make(map[string]int64),
		Nodes:       make(map[string]int),
	}

	if uc.pending != nil {
		for category, n := range uc.pending.PendingCounts(ctx) {
			summary.Pending[category.String()] = n
		}
	}

	nodes, err := uc.nodeRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	for _, n := range nodes {
		summary.Nodes[n.Status().String()]++
	}

	master, err := uc.masterRepo.Get(ctx)
	if err != nil {
		// Summary stays useful without the master snapshot.
		uc.logger.Warnw("failed to load master state for summary", "error", err)
	} else {
		running := false
		if uc.engine != nil {
			running = uc.engine.IsRunning()
		}
		summary.Master = nodeDTO.ToMasterView(master, running)
	}

	return &GetUsageSummaryResult{Summary: summary}, nil
}
