package node

import (
	"context"

	vo "github.com/vetiver-inc/vetiver/internal/domain/node/value_objects"
	"github.com/vetiver-inc/vetiver/internal/shared/query"
)

type NodeRepository interface {
	Create(ctx context.Context, node *Node) error
	GetByID(ctx context.Context, id uint) (*Node, error)
	GetAll(ctx context.Context) ([]*Node, error)
	GetByStatuses(ctx context.Context, statuses ...vo.NodeStatus) ([]*Node, error)
	Update(ctx context.Context, node *Node) error

	// UpdateStatus persists only the status fields. It is what the
	// supervisor uses on every transition so concurrent usage writers
	// never clobber counters through a full-aggregate save.
	UpdateStatus(ctx context.Context, id uint, status vo.NodeStatus, message, engineVersion string) error

	// IncrementUsage atomically adds to the rolling counters with a
	// value = value + delta statement.
	IncrementUsage(ctx context.Context, id uint, uplink, downlink uint64) error

	// ResetUsage zeroes the rolling counters and returns the previous values.
	ResetUsage(ctx context.Context, id uint) (uplink, downlink uint64, err error)

	// Delete removes the node together with its usage rows.
	Delete(ctx context.Context, id uint) error

	List(ctx context.Context, filter NodeFilter) ([]*Node, int64, error)
}

type NodeFilter struct {
	query.PageFilter
	Name   *string
	Status *vo.NodeStatus
}

// MasterStateRepository persists the singleton master engine state.
type MasterStateRepository interface {
	// Get returns the singleton, creating it lazily on first access.
	Get(ctx context.Context) (*Master, error)
	Update(ctx context.Context, master *Master) error
	IncrementUsage(ctx context.Context, uplink, downlink uint64) error

	// ResetUsage zeroes the rolling counters and returns the previous values.
	ResetUsage(ctx context.Context) (uplink, downlink uint64, err error)
}
