// Package scheduler provides unified scheduler management using gocron v2.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/vetiver-inc/vetiver/internal/shared/biztime"
	"github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// UsagePipeline defines the interface for the periodic usage jobs: the
// two collection ticks plus the cache-to-store reconciliation run.
type UsagePipeline interface {
	RunUserCollection(ctx context.Context) error
	RunOutboundCollection(ctx context.Context) error
	RunReconciliation(ctx context.Context) error
}

// ConnectionReviewer defines the interface for the periodic node
// reconnection sweep.
type ConnectionReviewer interface {
	ReviewConnections(ctx context.Context) error
}

// UsageCleaner defines the interface for deleting hourly usage buckets
// past the retention window.
type UsageCleaner interface {
	CleanupOldUsage(ctx context.Context, retentionDays int) error
}

// DefaultRetentionDays is the default number of days to retain hourly
// usage buckets.
const DefaultRetentionDays = 90

// SchedulerManager manages all scheduled jobs using gocron v2.
// Every job runs in singleton mode, so a slow tick is rescheduled rather
// than stacked on top of the still-running one.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	// Track whether the scheduler has been started
	started   bool
	startedMu sync.RWMutex
}

// NewSchedulerManager creates a new SchedulerManager instance.
// It initializes gocron with the business timezone for cron expressions.
func NewSchedulerManager(log logger.Interface) (*SchedulerManager, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(biztime.Location()),
	)
	if err != nil {
		return nil, err
	}

	return &SchedulerManager{
		scheduler: scheduler,
		logger:    log,
	}, nil
}

// ========================================
// Usage Jobs (configured intervals, start immediately)
// ========================================

// RegisterUsageJobs registers the usage pipeline jobs:
// - User collection: pull-and-reset per-user counters from every ready engine
// - Outbound collection: pull-and-reset aggregate outbound counters
// - Reconciliation: drain buffered deltas into the relational store
func (m *SchedulerManager) RegisterUsageJobs(
	pipeline UsagePipeline,
	collectionCfg config.CollectionConfig,
	reconcileCfg config.ReconcileConfig,
) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(collectionCfg.UserInterval()),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			m.runUserCollection(ctx, pipeline)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("usage", "user-collection"),
		gocron.WithName("usage-user-collection"),
	)
	if err != nil {
		return err
	}

	_, err = m.scheduler.NewJob(
		gocron.DurationJob(collectionCfg.OutboundInterval()),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			m.runOutboundCollection(ctx, pipeline)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("usage", "outbound-collection"),
		gocron.WithName("usage-outbound-collection"),
	)
	if err != nil {
		return err
	}

	_, err = m.scheduler.NewJob(
		gocron.DurationJob(reconcileCfg.Interval()),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			m.runReconciliation(ctx, pipeline)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("usage", "reconciliation"),
		gocron.WithName("usage-reconciliation"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered usage jobs",
		"user_collection", collectionCfg.UserInterval().String(),
		"outbound_collection", collectionCfg.OutboundInterval().String(),
		"reconciliation", reconcileCfg.Interval().String(),
	)
	return nil
}

func (m *SchedulerManager) runUserCollection(ctx context.Context, pipeline UsagePipeline) {
	m.logger.Debugw("user usage collection started")

	startTime := biztime.NowUTC()
	if err := pipeline.RunUserCollection(ctx); err != nil {
		// Don't log error if context was cancelled (graceful shutdown)
		if ctx.Err() != nil {
			return
		}
		m.logger.Errorw("user usage collection failed",
			"error", err,
			"duration", time.Since(startTime),
		)
		return
	}

	m.logger.Debugw("user usage collection completed",
		"duration", time.Since(startTime),
	)
}

func (m *SchedulerManager) runOutboundCollection(ctx context.Context, pipeline UsagePipeline) {
	m.logger.Debugw("outbound usage collection started")

	startTime := biztime.NowUTC()
	if err := pipeline.RunOutboundCollection(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Errorw("outbound usage collection failed",
			"error", err,
			"duration", time.Since(startTime),
		)
		return
	}

	m.logger.Debugw("outbound usage collection completed",
		"duration", time.Since(startTime),
	)
}

func (m *SchedulerManager) runReconciliation(ctx context.Context, pipeline UsagePipeline) {
	m.logger.Debugw("usage reconciliation started")

	startTime := biztime.NowUTC()
	if err := pipeline.RunReconciliation(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Errorw("usage reconciliation failed",
			"error", err,
			"duration", time.Since(startTime),
		)
		return
	}

	m.logger.Debugw("usage reconciliation completed",
		"duration", time.Since(startTime),
	)
}

// ========================================
// Connection Jobs (configured interval, start immediately)
// ========================================

// RegisterConnectionJobs registers the node reconnection sweep:
// - Retry nodes in connecting or error whose backoff window has elapsed
func (m *SchedulerManager) RegisterConnectionJobs(
	reviewer ConnectionReviewer,
	cfg config.SupervisorConfig,
) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(cfg.ReviewInterval()),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			m.runConnectionReview(ctx, reviewer)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("node", "connection-review"),
		gocron.WithName("node-connection-review"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered connection jobs",
		"review_interval", cfg.ReviewInterval().String(),
	)
	return nil
}

func (m *SchedulerManager) runConnectionReview(ctx context.Context, reviewer ConnectionReviewer) {
	m.logger.Debugw("connection review started")

	if err := reviewer.ReviewConnections(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Errorw("connection review failed", "error", err)
		return
	}

	m.logger.Debugw("connection review completed")
}

// ========================================
// Cleanup Jobs (cron-based)
// ========================================

// RegisterCleanupJobs registers the usage retention job:
// - Bucket cleanup: runs at 05:00 business timezone every day
func (m *SchedulerManager) RegisterCleanupJobs(
	cleaner UsageCleaner,
	retentionDays int,
) error {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	_, err := m.scheduler.NewJob(
		gocron.CronJob("0 5 * * *", false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			m.runUsageCleanup(ctx, cleaner, retentionDays)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("usage", "cleanup"),
		gocron.WithName("usage-bucket-cleanup"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered cleanup jobs",
		"cleanup", "05:00",
		"retention_days", retentionDays,
	)
	return nil
}

func (m *SchedulerManager) runUsageCleanup(ctx context.Context, cleaner UsageCleaner, retentionDays int) {
	m.logger.Debugw("usage bucket cleanup started",
		"retention_days", retentionDays,
	)

	startTime := biztime.NowUTC()
	if err := cleaner.CleanupOldUsage(ctx, retentionDays); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Errorw("usage bucket cleanup failed",
			"error", err,
			"duration", time.Since(startTime),
			"retention_days", retentionDays,
		)
		return
	}

	m.logger.Infow("usage bucket cleanup completed",
		"duration", time.Since(startTime),
		"retention_days", retentionDays,
	)
}

// ========================================
// Scheduler Lifecycle Methods
// ========================================

// Start starts the scheduler and all registered jobs.
func (m *SchedulerManager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler manager started", "job_count", len(m.scheduler.Jobs()))
}

// Stop gracefully stops the scheduler.
// It waits for all running jobs to complete before returning.
func (m *SchedulerManager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}

	m.logger.Infow("stopping scheduler manager")

	// Shutdown scheduler and wait for running jobs
	err := m.scheduler.Shutdown()
	m.started = false

	if err != nil {
		m.logger.Errorw("scheduler manager shutdown with error", "error", err)
		return err
	}

	m.logger.Infow("scheduler manager stopped")
	return nil
}

// IsStarted returns whether the scheduler is running.
func (m *SchedulerManager) IsStarted() bool {
	m.startedMu.RLock()
	defer m.startedMu.RUnlock()
	return m.started
}

// Jobs returns all registered jobs for inspection.
func (m *SchedulerManager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
