package handlers

import (
	"context"

	nodeUsecases "github.com/vetiver-inc/vetiver/internal/application/node/usecases"
	usageUsecases "github.com/vetiver-inc/vetiver/internal/application/usage/usecases"
)

// Use case interfaces for the ops handlers - enables unit testing with mocks.

type getNodeUseCase interface {
	Execute(ctx context.Context, query nodeUsecases.GetNodeQuery) (*nodeUsecases.GetNodeResult, error)
}

type listNodesUseCase interface {
	Execute(ctx context.Context, query nodeUsecases.ListNodesQuery) (*nodeUsecases.ListNodesResult, error)
}

type getUsageSummaryUseCase interface {
	Execute(ctx context.Context, query usageUsecases.GetUsageSummaryQuery) (*usageUsecases.GetUsageSummaryResult, error)
}

// masterLogSource exposes the in-process engine's recent output lines.
type masterLogSource interface {
	RecentLogs(n int) []string
	IsRunning() bool
}

// cachePinger reports reachability of the pending-usage cache.
type cachePinger interface {
	Ping(ctx context.Context) error
}
