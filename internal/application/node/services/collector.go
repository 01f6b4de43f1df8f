package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vetiver-inc/vetiver/internal/domain/node"
	vo "github.com/vetiver-inc/vetiver/internal/domain/node/value_objects"
	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/domain/user"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
	"github.com/vetiver-inc/vetiver/internal/shared/biztime"
	"github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

const defaultCollectWorkers = 10

// Collector pulls read-and-reset traffic counters from the master and
// every connected node, scales them by each source's usage coefficient
// and folds them into one pending-delta batch per tick. Failures are
// contained per source: one unreachable node never blocks the others.
type Collector struct {
	registry   *Registry
	supervisor *Supervisor
	master     *engine.Master
	masterRepo node.MasterStateRepository
	nodeRepo   node.NodeRepository
	userRepo   user.Repository
	cfg        config.CollectionConfig
	logger     logger.Interface
}

// NewCollector creates a new Collector. master may be nil when no local
// engine is configured.
func NewCollector(
	registry *Registry,
	supervisor *Supervisor,
	master *engine.Master,
	masterRepo node.MasterStateRepository,
	nodeRepo node.NodeRepository,
	userRepo user.Repository,
	cfg config.CollectionConfig,
	logger logger.Interface,
) *Collector {
	return &Collector{
		registry:   registry,
		supervisor: supervisor,
		master:     master,
		masterRepo: masterRepo,
		nodeRepo:   nodeRepo,
		userRepo:   userRepo,
		cfg:        cfg,
		logger:     logger.Named("usage-collector"),
	}
}

// CollectResult summarizes one collection tick.
type CollectResult struct {
	Batch   *usage.Batch
	Sources int
	Failed  int
}

// pullTarget is one engine the collector talks to during a tick.
// A nil nodeID marks the master.
type pullTarget struct {
	nodeID      *uint
	name        string
	coefficient float64
	source      engine.StatsSource
}

// CollectUsers pulls and resets the per-user counters of every reachable
// engine and folds them into user, admin, service and per-node-user
// deltas, all sharing the tick's hour bucket.
func (c *Collector) CollectUsers(ctx context.Context) (*CollectResult, error) {
	targets, err := c.targets(ctx)
	if err != nil {
		return nil, err
	}

	bucket := biztime.TruncateToHourUTC()

	type pulled struct {
		stats []engine.UserStat
		err   error
	}
	results := make([]pulled, len(targets))

	var g errgroup.Group
	g.SetLimit(c.workers())
	for i, target := range targets {
		g.Go(func() error {
			pullCtx, cancel := context.WithTimeout(ctx, c.cfg.UserTimeout())
			defer cancel()

			stats, err := target.source.PullUserStats(pullCtx)
			results[i] = pulled{stats: stats, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var allStats []engine.UserStat
	for _, res := range results {
		allStats = append(allStats, res.stats...)
	}
	index, err := c.resolveUsers(ctx, allStats)
	if err != nil {
		return nil, err
	}

	batch := &usage.Batch{}
	failed := 0
	for i, target := range targets {
		res := results[i]
		if res.err != nil {
			failed++
			c.handlePullError(ctx, target, res.err)
			continue
		}
		c.foldUserStats(batch, target, res.stats, index, bucket)
	}

	c.logger.Debugw("user usage collected",
		"sources", len(targets),
		"failed", failed,
		"deltas", batch.Size(),
	)

	return &CollectResult{Batch: batch, Sources: len(targets), Failed: failed}, nil
}

// CollectOutbound pulls and resets the outbound counters of every
// reachable engine into node-level deltas.
func (c *Collector) CollectOutbound(ctx context.Context) (*CollectResult, error) {
	targets, err := c.targets(ctx)
	if err != nil {
		return nil, err
	}

	bucket := biztime.TruncateToHourUTC()

	type pulled struct {
		stat *engine.OutboundStat
		err  error
	}
	results := make([]pulled, len(targets))

	var g errgroup.Group
	g.SetLimit(c.workers())
	for i, target := range targets {
		g.Go(func() error {
			pullCtx, cancel := context.WithTimeout(ctx, c.cfg.OutboundTimeout())
			defer cancel()

			stat, err := target.source.PullOutboundStats(pullCtx)
			results[i] = pulled{stat: stat, err: err}
			return nil
		})
	}
	_ = g.Wait()

	batch := &usage.Batch{}
	failed := 0
	for i, target := range targets {
		res := results[i]
		if res.err != nil {
			failed++
			c.handlePullError(ctx, target, res.err)
			continue
		}
		if res.stat == nil {
			continue
		}

		uplink := scaleUsage(res.stat.Uplink, target.coefficient)
		downlink := scaleUsage(res.stat.Downlink, target.coefficient)
		if uplink == 0 && downlink == 0 {
			continue
		}

		batch.Nodes = append(batch.Nodes, usage.NodeDelta{
			NodeID:   target.nodeID,
			Uplink:   uplink,
			Downlink: downlink,
			Bucket:   bucket,
		})
	}

	c.logger.Debugw("outbound usage collected",
		"sources", len(targets),
		"failed", failed,
		"deltas", batch.Size(),
	)

	return &CollectResult{Batch: batch, Sources: len(targets), Failed: failed}, nil
}

// targets assembles the tick's pull list: the running master plus every
// node that is both persisted as connected and holding a ready handle.
func (c *Collector) targets(ctx context.Context) ([]pullTarget, error) {
	var targets []pullTarget

	if c.master != nil && c.master.IsRunning() {
		state, err := c.masterRepo.Get(ctx)
		if err != nil {
			c.logger.Errorw("failed to load master state", "error", err)
		} else {
			targets = append(targets, pullTarget{
				name:        "master",
				coefficient: state.UsageCoefficient(),
				source:      c.master,
			})
		}
	}

	connected, err := c.nodeRepo.GetByStatuses(ctx, vo.NodeStatusConnected)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected nodes: %w", err)
	}
	for _, n := range connected {
		handle, ok := c.registry.Get(n.ID())
		if !ok || !handle.IsReady() {
			continue
		}
		nodeID := n.ID()
		targets = append(targets, pullTarget{
			nodeID:      &nodeID,
			name:        n.Name(),
			coefficient: n.UsageCoefficient(),
			source:      handle,
		})
	}

	return targets, nil
}

// resolveUsers maps every reported username onto its user aggregate in a
// single query.
func (c *Collector) resolveUsers(ctx context.Context, stats []engine.UserStat) (map[string]*user.User, error) {
	seen := make(map[string]struct{}, len(stats))
	usernames := make([]string, 0, len(stats))
	for _, stat := range stats {
		if _, ok := seen[stat.Username]; ok {
			continue
		}
		seen[stat.Username] = struct{}{}
		usernames = append(usernames, stat.Username)
	}

	if len(usernames) == 0 {
		return map[string]*user.User{}, nil
	}

	resolved, err := c.userRepo.GetByUsernames(ctx, usernames)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stat usernames: %w", err)
	}

	index := make(map[string]*user.User, len(resolved))
	for _, u := range resolved {
		index[u.Username().String()] = u
	}
	return index, nil
}

// foldUserStats turns one source's stat list into deltas. Stats for
// usernames the store does not know are logged and skipped; they must
// not sink the rest of the batch.
func (c *Collector) foldUserStats(
	batch *usage.Batch,
	target pullTarget,
	stats []engine.UserStat,
	index map[string]*user.User,
	bucket time.Time,
) {
	for _, stat := range stats {
		u, ok := index[stat.Username]
		if !ok {
			c.logger.Warnw("stats for unknown user",
				"username", stat.Username,
				"source", target.name,
			)
			continue
		}

		uplink := scaleUsage(stat.Uplink, target.coefficient)
		downlink := scaleUsage(stat.Downlink, target.coefficient)
		amount := uplink + downlink
		if amount == 0 {
			continue
		}

		userID := u.ID()
		batch.Users = append(batch.Users, usage.UserDelta{
			UserID: userID,
			Amount: amount,
			Bucket: bucket,
		})
		batch.Admins = append(batch.Admins, usage.AdminDelta{
			AdminID: u.AdminID(),
			Amount:  amount,
			Bucket:  bucket,
		})
		if serviceID := u.ServiceID(); serviceID != nil {
			batch.Services = append(batch.Services, usage.ServiceDelta{
				ServiceID: *serviceID,
				AdminID:   u.AdminID(),
				Amount:    amount,
				Bucket:    bucket,
			})
		}
		batch.Nodes = append(batch.Nodes, usage.NodeDelta{
			NodeID:   target.nodeID,
			UserID:   &userID,
			Uplink:   uplink,
			Downlink: downlink,
			Bucket:   bucket,
		})
	}
}

// handlePullError contains a single source's failure. A transport-level
// unreachable from a node flips it to error so the review sweep owns the
// reconnect; anything else just logs and contributes nothing this tick.
func (c *Collector) handlePullError(ctx context.Context, target pullTarget, cause error) {
	if target.nodeID == nil {
		c.logger.Warnw("failed to pull stats from master", "error", cause)
		return
	}

	c.logger.Warnw("failed to pull stats from node",
		"node_id", *target.nodeID,
		"name", target.name,
		"error", cause,
	)

	if errors.Is(cause, engine.ErrUnreachable) {
		if err := c.supervisor.ReportUnreachable(ctx, *target.nodeID, cause); err != nil {
			c.logger.Errorw("failed to report unreachable node",
				"node_id", *target.nodeID,
				"error", err,
			)
		}
	}
}

func (c *Collector) workers() int {
	if c.cfg.Workers > 0 {
		return c.cfg.Workers
	}
	return defaultCollectWorkers
}

// scaleUsage applies the usage coefficient to a raw byte count.
func scaleUsage(raw uint64, coefficient float64) uint64 {
	if raw == 0 || coefficient == 1.0 || coefficient <= 0 {
		return raw
	}
	return uint64(float64(raw) * coefficient)
}
