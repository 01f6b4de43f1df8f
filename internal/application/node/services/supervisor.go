package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vetiver-inc/vetiver/internal/domain/node"
	vo "github.com/vetiver-inc/vetiver/internal/domain/node/value_objects"
	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/metrics"
	"github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/goroutine"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
	"github.com/vetiver-inc/vetiver/internal/shared/version"
)

// Supervisor drives the node connection lifecycle: connect, restart,
// disconnect and the periodic retry sweep. Every status change goes
// through the aggregate, so each actual transition is persisted and
// published exactly once; polls that observe an unchanged status record
// nothing.
type Supervisor struct {
	nodeRepo        node.NodeRepository
	registry        *Registry
	configProvider  engine.ConfigProvider
	eventDispatcher events.EventDispatcher
	cfg             config.SupervisorConfig
	logger          logger.Interface

	retryMu sync.Mutex
	retries map[uint]*retrySchedule
}

// retrySchedule tracks the reconnect backoff for one failing node
type retrySchedule struct {
	policy *backoff.ExponentialBackOff
	next   time.Time
}

// NewSupervisor creates a new Supervisor
func NewSupervisor(
	nodeRepo node.NodeRepository,
	registry *Registry,
	configProvider engine.ConfigProvider,
	eventDispatcher events.EventDispatcher,
	cfg config.SupervisorConfig,
	logger logger.Interface,
) *Supervisor {
	return &Supervisor{
		nodeRepo:        nodeRepo,
		registry:        registry,
		configProvider:  configProvider,
		eventDispatcher: eventDispatcher,
		cfg:             cfg,
		logger:          logger.Named("node-supervisor"),
		retries:         make(map[uint]*retrySchedule),
	}
}

// Registry exposes the handle registry for collaborators that read the
// live handle set (collector, provisioner).
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Connect runs one connection attempt for a node. A second call while an
// attempt for the same node is in flight returns immediately without
// touching the node.
func (s *Supervisor) Connect(ctx context.Context, nodeID uint) error {
	if !s.registry.TryBeginConnect(nodeID) {
		s.logger.Debugw("connect already in flight", "node_id", nodeID)
		return nil
	}
	defer s.registry.EndConnect(nodeID)

	return s.connect(ctx, nodeID)
}

// connect is the unguarded attempt body. Callers hold the in-flight
// marker for nodeID.
func (s *Supervisor) connect(ctx context.Context, nodeID uint) error {
	n, err := s.nodeRepo.GetByID(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("failed to load node %d: %w", nodeID, err)
	}

	if n.Status().IsTerminal() {
		s.logger.Debugw("skipping connect for terminal node",
			"node_id", nodeID,
			"status", n.Status().String(),
		)
		return nil
	}

	// A broken previous handle must not keep reporting ready while the
	// new attempt runs.
	if stale, ok := s.registry.Remove(nodeID); ok {
		stale.Teardown()
	}

	if err := n.MarkConnecting(); err != nil {
		return err
	}
	if err := s.applyStatus(ctx, n); err != nil {
		return err
	}

	cfg, err := s.configProvider.NodeConfig(ctx, nodeID)
	if err != nil {
		return s.markFailed(ctx, n, fmt.Errorf("failed to load engine config: %w", err))
	}

	handle := engine.NewHandle(nodeID, engine.NewClient(n.Address(), n.APIPort(), n.APIToken(), s.cfg.ConnectTimeout()))

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout())
	defer cancel()

	engineVersion, err := handle.Connect(connectCtx, cfg)
	if err != nil {
		return s.markFailed(ctx, n, err)
	}

	if !version.MeetsMinimum(engineVersion, s.cfg.MinimumEngineVersion) {
		handle.Teardown()
		return s.markFailed(ctx, n, fmt.Errorf("engine version %s is below minimum %s", engineVersion, s.cfg.MinimumEngineVersion))
	}

	if err := n.MarkConnected(engineVersion); err != nil {
		handle.Teardown()
		return err
	}
	if err := s.applyStatus(ctx, n); err != nil {
		handle.Teardown()
		return err
	}

	s.registry.Put(handle)
	s.clearRetry(nodeID)

	s.logger.Infow("node connected",
		"node_id", nodeID,
		"name", n.Name(),
		"engine_version", engineVersion,
	)
	return nil
}

// Restart restarts the remote engine in place when the node has a live
// handle, re-probing its version. Without a live handle it falls back to
// the full connect path.
func (s *Supervisor) Restart(ctx context.Context, nodeID uint) error {
	if !s.registry.TryBeginConnect(nodeID) {
		s.logger.Debugw("restart skipped, attempt already in flight", "node_id", nodeID)
		return nil
	}
	defer s.registry.EndConnect(nodeID)

	handle, ok := s.registry.Get(nodeID)
	if !ok || !handle.IsReady() {
		return s.connect(ctx, nodeID)
	}

	n, err := s.nodeRepo.GetByID(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("failed to load node %d: %w", nodeID, err)
	}

	if n.Status().IsTerminal() {
		s.logger.Debugw("skipping restart for terminal node",
			"node_id", nodeID,
			"status", n.Status().String(),
		)
		return nil
	}

	cfg, err := s.configProvider.NodeConfig(ctx, nodeID)
	if err != nil {
		return s.markFailed(ctx, n, fmt.Errorf("failed to load engine config: %w", err))
	}

	restartCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout())
	defer cancel()

	engineVersion, err := handle.Restart(restartCtx, cfg)
	if err != nil {
		return s.markFailed(ctx, n, fmt.Errorf("engine restart failed: %w", err))
	}

	// MarkConnected refreshes the version; when the status is already
	// connected no transition event is recorded.
	if err := n.MarkConnected(engineVersion); err != nil {
		return err
	}
	if err := s.applyStatus(ctx, n); err != nil {
		return err
	}

	s.logger.Infow("node restarted",
		"node_id", nodeID,
		"name", n.Name(),
		"engine_version", engineVersion,
	)
	return nil
}

// Remove tears down and discards the node's handle together with its
// retry state. Safe to call for a node that was never connected.
func (s *Supervisor) Remove(nodeID uint) {
	if handle, ok := s.registry.Remove(nodeID); ok {
		handle.Teardown()
	}
	s.clearRetry(nodeID)
}

// Disable switches the node off until an explicit enable and disconnects
// its engine.
func (s *Supervisor) Disable(ctx context.Context, nodeID uint, reason string) error {
	n, err := s.nodeRepo.GetByID(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("failed to load node %d: %w", nodeID, err)
	}

	if err := n.Disable(reason); err != nil {
		return err
	}
	if err := s.applyStatus(ctx, n); err != nil {
		return err
	}

	s.Remove(nodeID)

	s.logger.Infow("node disabled", "node_id", nodeID, "reason", n.Message())
	return nil
}

// Enable re-arms a disabled node and starts a connection attempt in the
// background.
func (s *Supervisor) Enable(ctx context.Context, nodeID uint) error {
	n, err := s.nodeRepo.GetByID(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("failed to load node %d: %w", nodeID, err)
	}

	if err := n.Enable(); err != nil {
		return err
	}
	if err := s.applyStatus(ctx, n); err != nil {
		return err
	}

	s.connectInBackground(nodeID)

	s.logger.Infow("node enabled", "node_id", nodeID)
	return nil
}

// MarkLimited transitions the node to limited and disconnects it. A node
// already limited is left untouched, so crossing the data limit produces
// exactly one notification and one disconnect.
func (s *Supervisor) MarkLimited(ctx context.Context, nodeID uint, reason string) error {
	n, err := s.nodeRepo.GetByID(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("failed to load node %d: %w", nodeID, err)
	}

	if n.Status().IsLimited() {
		return nil
	}

	if err := n.MarkLimited(reason); err != nil {
		return err
	}
	if err := s.applyStatus(ctx, n); err != nil {
		return err
	}

	s.Remove(nodeID)

	s.logger.Warnw("node reached data limit",
		"node_id", nodeID,
		"name", n.Name(),
		"reason", reason,
	)
	return nil
}

// Rearm returns a limited node to connecting after its usage dropped back
// under the data limit, then reconnects it in the background. A node that
// is not limited is left untouched.
func (s *Supervisor) Rearm(ctx context.Context, nodeID uint, message string) error {
	n, err := s.nodeRepo.GetByID(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("failed to load node %d: %w", nodeID, err)
	}

	if !n.Status().IsLimited() {
		return nil
	}

	if err := n.Rearm(message); err != nil {
		return err
	}
	if err := s.applyStatus(ctx, n); err != nil {
		return err
	}

	s.connectInBackground(nodeID)

	s.logger.Infow("node re-armed", "node_id", nodeID, "message", message)
	return nil
}

// ReportUnreachable flips a connected node to error after a failed
// control-API call so the review sweep picks it up for reconnection.
func (s *Supervisor) ReportUnreachable(ctx context.Context, nodeID uint, cause error) error {
	n, err := s.nodeRepo.GetByID(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("failed to load node %d: %w", nodeID, err)
	}

	if !n.Status().IsConnected() {
		return nil
	}

	return s.markFailed(ctx, n, cause)
}

// ReviewConnections sweeps nodes eligible for automatic reconnection and
// retries those whose backoff window has elapsed. Limited and disabled
// nodes are never part of the sweep.
func (s *Supervisor) ReviewConnections(ctx context.Context) error {
	nodes, err := s.nodeRepo.GetByStatuses(ctx, vo.NodeStatusConnecting, vo.NodeStatusError)
	if err != nil {
		return fmt.Errorf("failed to list reconnectable nodes: %w", err)
	}

	var attempted int
	for _, n := range nodes {
		if handle, ok := s.registry.Get(n.ID()); ok && handle.IsReady() {
			continue
		}
		if !s.retryDue(n.ID()) {
			continue
		}

		attempted++
		if err := s.Connect(ctx, n.ID()); err != nil {
			s.logger.Debugw("reconnect attempt failed", "node_id", n.ID(), "error", err)
		}
	}

	if attempted > 0 {
		s.logger.Debugw("connection review finished",
			"eligible", len(nodes),
			"attempted", attempted,
		)
	}
	return nil
}

// Bootstrap reconnects every node that was live before the last shutdown.
// Attempts run in the background so startup is not serialized behind slow
// nodes.
func (s *Supervisor) Bootstrap(ctx context.Context) error {
	nodes, err := s.nodeRepo.GetByStatuses(ctx,
		vo.NodeStatusConnecting,
		vo.NodeStatusConnected,
		vo.NodeStatusError,
	)
	if err != nil {
		return fmt.Errorf("failed to list nodes for bootstrap: %w", err)
	}

	for _, n := range nodes {
		s.connectInBackground(n.ID())
	}

	s.logger.Infow("node bootstrap started", "count", len(nodes))
	return nil
}

// Shutdown tears down every live handle. Status rows are left as they
// are so the next start can bootstrap from them.
func (s *Supervisor) Shutdown() {
	drained := s.registry.Drain()
	for _, handle := range drained {
		handle.Teardown()
	}
	s.logger.Infow("node handles torn down", "count", len(drained))
}

// markFailed records a failed attempt: the handle is discarded, the node
// transitions to error and the backoff for the next automatic retry
// advances. Returns the original cause.
func (s *Supervisor) markFailed(ctx context.Context, n *node.Node, cause error) error {
	if stale, ok := s.registry.Remove(n.ID()); ok {
		stale.Teardown()
	}

	s.logger.Warnw("node connection failed",
		"node_id", n.ID(),
		"name", n.Name(),
		"error", cause,
	)

	if err := n.MarkError(cause.Error()); err != nil {
		return fmt.Errorf("failed to mark node %d as errored: %w", n.ID(), err)
	}
	if err := s.applyStatus(ctx, n); err != nil {
		return err
	}

	s.scheduleRetry(n.ID())
	return cause
}

// applyStatus persists the aggregate's status fields and publishes the
// transition events recorded since the last save.
func (s *Supervisor) applyStatus(ctx context.Context, n *node.Node) error {
	if err := s.nodeRepo.UpdateStatus(ctx, n.ID(), n.Status(), n.Message(), n.EngineVersion()); err != nil {
		return fmt.Errorf("failed to persist node status: %w", err)
	}

	domainEvents := n.GetEvents()
	if len(domainEvents) > 0 {
		convertedEvents := make([]events.DomainEvent, 0, len(domainEvents))
		for _, evt := range domainEvents {
			if statusEvent, ok := evt.(node.NodeStatusChangedEvent); ok {
				metrics.IncNodeStatusTransition(statusEvent.PreviousStatus, statusEvent.NewStatus)
			}
			if domainEvent, ok := evt.(events.DomainEvent); ok {
				convertedEvents = append(convertedEvents, domainEvent)
			}
		}
		if err := s.eventDispatcher.PublishAll(convertedEvents); err != nil {
			s.logger.Warnw("failed to publish node status events",
				"node_id", n.ID(),
				"error", err,
			)
		}
	}
	return nil
}

func (s *Supervisor) connectInBackground(nodeID uint) {
	goroutine.SafeGo(s.logger, fmt.Sprintf("node-connect-%d", nodeID), func() {
		if err := s.Connect(context.Background(), nodeID); err != nil {
			s.logger.Warnw("background connect failed", "node_id", nodeID, "error", err)
		}
	})
}

func (s *Supervisor) scheduleRetry(nodeID uint) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	sched, ok := s.retries[nodeID]
	if !ok {
		policy := backoff.NewExponentialBackOff()
		if initial := s.cfg.BackoffInitial(); initial > 0 {
			policy.InitialInterval = initial
		}
		if ceiling := s.cfg.BackoffMax(); ceiling > 0 {
			policy.MaxInterval = ceiling
		}
		policy.MaxElapsedTime = 0
		policy.Reset()

		sched = &retrySchedule{policy: policy}
		s.retries[nodeID] = sched
	}
	sched.next = time.Now().Add(sched.policy.NextBackOff())
}

func (s *Supervisor) retryDue(nodeID uint) bool {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	sched, ok := s.retries[nodeID]
	if !ok {
		return true
	}
	return !time.Now().Before(sched.next)
}

func (s *Supervisor) clearRetry(nodeID uint) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	delete(s.retries, nodeID)
}
