package services

import (
	"context"
	"fmt"

	"github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// QuotaEnforcer runs the node and master data-limit checks. It is called
// with the entities whose durable rows just changed, after a direct-path
// commit or a reconciliation commit, never against cache-buffered values.
type QuotaEnforcer struct {
	supervisor      *Supervisor
	nodeRepo        node.NodeRepository
	masterRepo      node.MasterStateRepository
	eventDispatcher events.EventDispatcher
	logger          logger.Interface
}

// NewQuotaEnforcer creates a new QuotaEnforcer
func NewQuotaEnforcer(
	supervisor *Supervisor,
	nodeRepo node.NodeRepository,
	masterRepo node.MasterStateRepository,
	eventDispatcher events.EventDispatcher,
	logger logger.Interface,
) *QuotaEnforcer {
	return &QuotaEnforcer{
		supervisor:      supervisor,
		nodeRepo:        nodeRepo,
		masterRepo:      masterRepo,
		eventDispatcher: eventDispatcher,
		logger:          logger.Named("quota-enforcer"),
	}
}

// Evaluate checks every node and the master named in applied. Failures
// are contained per entity.
func (e *QuotaEnforcer) Evaluate(ctx context.Context, applied *usage.Applied) {
	if applied == nil {
		return
	}

	for _, nodeID := range applied.NodeIDs {
		if err := e.EvaluateNode(ctx, nodeID); err != nil {
			e.logger.Errorw("node quota evaluation failed", "node_id", nodeID, "error", err)
		}
	}

	if applied.Master {
		if err := e.EvaluateMaster(ctx); err != nil {
			e.logger.Errorw("master quota evaluation failed", "error", err)
		}
	}
}

// EvaluateNode compares a node's rolling totals against its data limit.
// Crossing the limit transitions it to limited with exactly one
// disconnect; a limited node back under the limit is re-armed toward
// connecting. Both no-op when the node is already on the right side.
func (e *QuotaEnforcer) EvaluateNode(ctx context.Context, nodeID uint) error {
	n, err := e.nodeRepo.GetByID(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("failed to load node %d: %w", nodeID, err)
	}

	if n.IsDataLimitExceeded() {
		if n.Status().IsLimited() {
			return nil
		}
		reason := fmt.Sprintf("data limit reached: %d of %d bytes used", n.TotalUsage(), *n.DataLimit())
		return e.supervisor.MarkLimited(ctx, nodeID, reason)
	}

	if n.Status().IsLimited() {
		return e.supervisor.Rearm(ctx, nodeID, "usage back under data limit")
	}
	return nil
}

// EvaluateMaster compares the master's rolling totals against its data
// limit. The master toggles connected ↔ limited in place; there is no
// process to disconnect, only the flag that config generation respects.
func (e *QuotaEnforcer) EvaluateMaster(ctx context.Context) error {
	m, err := e.masterRepo.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load master state: %w", err)
	}

	previous := m.Status().String()

	if m.IsDataLimitExceeded() {
		reason := fmt.Sprintf("data limit reached: %d of %d bytes used", m.TotalUsage(), *m.DataLimit())
		if !m.MarkLimited(reason) {
			return nil
		}
		if err := e.masterRepo.Update(ctx, m); err != nil {
			return fmt.Errorf("failed to persist master state: %w", err)
		}
		e.publishMasterTransition(previous, m)
		e.logger.Warnw("master reached data limit", "reason", reason)
		return nil
	}

	if !m.ClearLimited("usage back under data limit") {
		return nil
	}
	if err := e.masterRepo.Update(ctx, m); err != nil {
		return fmt.Errorf("failed to persist master state: %w", err)
	}
	e.publishMasterTransition(previous, m)
	e.logger.Infow("master back under data limit")
	return nil
}

func (e *QuotaEnforcer) publishMasterTransition(previous string, m *node.Master) {
	event := node.NewMasterStatusChangedEvent(previous, m.Status().String(), m.Message())
	if err := e.eventDispatcher.Publish(event); err != nil {
		e.logger.Warnw("failed to publish master status event", "error", err)
	}
}
