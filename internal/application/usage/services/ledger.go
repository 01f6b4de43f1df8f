package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/domain/service"
	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/domain/user"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/backup"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/cache"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/metrics"
	"github.com/vetiver-inc/vetiver/internal/shared/biztime"
	"github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	apperrors "github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

const defaultMaxItemsPerRun = 1000

// Ledger owns the usage write path. Collected deltas are buffered
// write-behind when the cache tier is up (disk backup first, then the
// cache list) and drained into the relational store by Reconcile; with
// the cache down they are applied directly in the same call. Whichever
// path runs, an aggregate row only ever changes through an atomic
// increment, and cache or backup state is shed strictly after the
// database commit that covers it.
type Ledger struct {
	cache         cache.PendingUsageCache
	backup        backup.Store
	tm            *db.TransactionManager
	userRepo      user.Repository
	adminRepo     admin.Repository
	serviceRepo   service.Repository
	linkRepo      service.LinkRepository
	nodeRepo      node.NodeRepository
	masterRepo    node.MasterStateRepository
	nodeUsageRepo usage.NodeUsageRepository
	nodeUserRepo  usage.NodeUserUsageRepository
	cfg           config.ReconcileConfig
	logger        logger.Interface

	// one mutex per category: the buffered write path and reconciliation
	// both rewrite the category's backup file and must not interleave
	mu map[usage.Category]*sync.Mutex
}

// NewLedger creates a new Ledger. pendingCache may be nil when the cache
// tier is disabled; every write then takes the direct path.
func NewLedger(
	pendingCache cache.PendingUsageCache,
	backupStore backup.Store,
	tm *db.TransactionManager,
	userRepo user.Repository,
	adminRepo admin.Repository,
	serviceRepo service.Repository,
	linkRepo service.LinkRepository,
	nodeRepo node.NodeRepository,
	masterRepo node.MasterStateRepository,
	nodeUsageRepo usage.NodeUsageRepository,
	nodeUserRepo usage.NodeUserUsageRepository,
	cfg config.ReconcileConfig,
	logger logger.Interface,
) *Ledger {
	mu := make(map[usage.Category]*sync.Mutex, len(usage.AllCategories()))
	for _, category := range usage.AllCategories() {
		mu[category] = &sync.Mutex{}
	}

	return &Ledger{
		cache:         pendingCache,
		backup:        backupStore,
		tm:            tm,
		userRepo:      userRepo,
		adminRepo:     adminRepo,
		serviceRepo:   serviceRepo,
		linkRepo:      linkRepo,
		nodeRepo:      nodeRepo,
		masterRepo:    masterRepo,
		nodeUsageRepo: nodeUsageRepo,
		nodeUserRepo:  nodeUserRepo,
		cfg:           cfg,
		logger:        logger.Named("usage-ledger"),
		mu:            mu,
	}
}

// Record accepts one tick's batch. The returned Applied covers only
// entities whose durable rows changed in this call: empty on the
// buffered path, the full batch on the direct path. Quota evaluation for
// buffered deltas happens after Reconcile commits them.
func (l *Ledger) Record(ctx context.Context, batch *usage.Batch) (*usage.Applied, error) {
	applied := &usage.Applied{}
	if batch == nil || batch.IsEmpty() {
		return applied, nil
	}

	if !l.cacheAvailable(ctx) {
		direct, err := l.applyDirect(ctx, batch)
		applied.Merge(direct)
		return applied, err
	}

	// A category whose buffering fails mid-batch falls back to the
	// direct path; the backup file was already restored to the
	// cache-resident set so replay cannot double-apply it.
	fallback := &usage.Batch{}

	if err := bufferDeltas(ctx, l, usage.CategoryUser, batch.Users); err != nil {
		l.logger.Warnw("buffering user deltas failed, applying directly", "error", err)
		fallback.Users = batch.Users
	}
	if err := bufferDeltas(ctx, l, usage.CategoryAdmin, batch.Admins); err != nil {
		l.logger.Warnw("buffering admin deltas failed, applying directly", "error", err)
		fallback.Admins = batch.Admins
	}
	if err := bufferDeltas(ctx, l, usage.CategoryService, batch.Services); err != nil {
		l.logger.Warnw("buffering service deltas failed, applying directly", "error", err)
		fallback.Services = batch.Services
	}
	if err := bufferDeltas(ctx, l, usage.CategoryNode, batch.Nodes); err != nil {
		l.logger.Warnw("buffering node deltas failed, applying directly", "error", err)
		fallback.Nodes = batch.Nodes
	}

	if !fallback.IsEmpty() {
		direct, err := l.applyDirect(ctx, fallback)
		applied.Merge(direct)
		if err != nil {
			return applied, err
		}
	}

	return applied, nil
}

// Reconcile drains up to the configured maximum of pending entries per
// category into the relational store. Entries leave the cache, and the
// backup shrinks, only after the category's transaction committed; a
// failed run leaves everything queued for the next one.
func (l *Ledger) Reconcile(ctx context.Context) (*usage.Applied, error) {
	applied := &usage.Applied{}

	if l.cache == nil {
		return applied, nil
	}
	if err := l.cache.Ping(ctx); err != nil {
		l.logger.Warnw("skipping reconciliation, cache unreachable", "error", err)
		return applied, nil
	}
	defer l.refreshPendingGauges(ctx)

	userApplied, err := reconcileCategory(ctx, l, usage.CategoryUser, usage.GroupUserDeltas, l.commitUserDeltas)
	applied.Merge(userApplied)
	if err != nil {
		return applied, err
	}

	adminApplied, err := reconcileCategory(ctx, l, usage.CategoryAdmin, usage.GroupAdminDeltas, l.commitAdminDeltas)
	applied.Merge(adminApplied)
	if err != nil {
		return applied, err
	}

	serviceApplied, err := reconcileCategory(ctx, l, usage.CategoryService, usage.GroupServiceDeltas, l.commitServiceDeltas)
	applied.Merge(serviceApplied)
	if err != nil {
		return applied, err
	}

	nodeApplied, err := reconcileCategory(ctx, l, usage.CategoryNode, usage.GroupNodeDeltas, l.commitNodeDeltas)
	applied.Merge(nodeApplied)
	if err != nil {
		return applied, err
	}

	return applied, nil
}

// ReplayBackups restores each category's pending list from its disk
// backup, once, before the scheduler starts. The file is the
// authoritative uncommitted set: when the cache survived the restart its
// list is replaced, not appended to, so surviving entries are never
// double-counted. With the cache unreachable the backed-up deltas are
// applied directly and the backup cleared after the commit.
func (l *Ledger) ReplayBackups(ctx context.Context) error {
	cacheUp := l.cacheAvailable(ctx)

	for _, category := range usage.AllCategories() {
		entries, err := l.backup.Read(category)
		if err != nil {
			l.logger.Errorw("failed to read backup",
				"category", category.String(),
				"error", err,
			)
			continue
		}

		if cacheUp {
			if err := l.cache.Reset(ctx, category, entries); err != nil {
				return fmt.Errorf("failed to replay %s backup into cache: %w", category, err)
			}
			if len(entries) > 0 {
				l.logger.Infow("replayed backup into cache",
					"category", category.String(),
					"entries", len(entries),
				)
			}
			continue
		}

		if len(entries) == 0 {
			continue
		}

		if _, err := l.applyEntriesDirect(ctx, category, entries); err != nil {
			return fmt.Errorf("failed to apply %s backup directly: %w", category, err)
		}
		if err := l.backup.Clear(category); err != nil {
			return fmt.Errorf("failed to clear %s backup: %w", category, err)
		}
		l.logger.Infow("applied backup directly",
			"category", category.String(),
			"entries", len(entries),
		)
	}

	return nil
}

// PendingCounts reports the pending list length per category, zero for
// everything when the cache tier is down.
func (l *Ledger) PendingCounts(ctx context.Context) map[usage.Category]int64 {
	counts := make(map[usage.Category]int64, len(usage.AllCategories()))
	if l.cache == nil {
		return counts
	}
	for _, category := range usage.AllCategories() {
		n, err := l.cache.Len(ctx, category)
		if err != nil {
			continue
		}
		counts[category] = n
	}
	return counts
}

// CleanupOldUsage deletes hourly usage buckets older than the retention
// window from the per-node and per-user snapshot tables. Rolling counters
// are untouched.
func (l *Ledger) CleanupOldUsage(ctx context.Context, retentionDays int) error {
	before := biztime.NowUTC().AddDate(0, 0, -retentionDays)

	if err := l.nodeUsageRepo.DeleteOldRecords(ctx, before); err != nil {
		return fmt.Errorf("failed to delete old node usage buckets: %w", err)
	}
	if err := l.nodeUserRepo.DeleteOldRecords(ctx, before); err != nil {
		return fmt.Errorf("failed to delete old node user usage buckets: %w", err)
	}

	l.logger.Infow("old usage buckets deleted",
		"before", before,
		"retention_days", retentionDays,
	)
	return nil
}

func (l *Ledger) refreshPendingGauges(ctx context.Context) {
	for category, n := range l.PendingCounts(ctx) {
		metrics.SetPendingEntries(category.String(), n)
	}
}

func (l *Ledger) cacheAvailable(ctx context.Context) bool {
	if l.cache == nil {
		return false
	}
	if err := l.cache.Ping(ctx); err != nil {
		l.logger.Warnw("cache unreachable, using direct path", "error", err)
		return false
	}
	return true
}

// bufferDeltas writes one category's deltas behind the cache. The backup
// file is rewritten first to hold the full uncommitted set including the
// new entries; only then does the cache append run, so a crash between
// the two writes can lose nothing. An append failure restores the file
// to the cache-resident set and surfaces the error so the caller can
// apply the deltas directly.
func bufferDeltas[T any](ctx context.Context, l *Ledger, category usage.Category, deltas []T) error {
	if len(deltas) == 0 {
		return nil
	}

	entries, err := encodeDeltas(deltas)
	if err != nil {
		return fmt.Errorf("failed to encode %s deltas: %w", category, err)
	}

	mu := l.mu[category]
	mu.Lock()
	defer mu.Unlock()

	current, err := l.cache.Entries(ctx, category)
	if err != nil {
		return fmt.Errorf("failed to read pending %s entries: %w", category, err)
	}

	full := make([][]byte, 0, len(current)+len(entries))
	full = append(full, current...)
	full = append(full, entries...)

	if err := l.backup.Write(category, full); err != nil {
		return fmt.Errorf("failed to write %s backup: %w", category, err)
	}

	if err := l.cache.Append(ctx, category, entries); err != nil {
		if restoreErr := l.backup.Write(category, current); restoreErr != nil {
			l.logger.Errorw("failed to restore backup after append failure",
				"category", category.String(),
				"error", restoreErr,
			)
		}
		return fmt.Errorf("failed to append pending %s entries: %w", category, err)
	}

	return nil
}

// reconcileCategory drains one category. All peeked entries are removed
// after the commit, malformed ones included; they contributed nothing
// but must not stay queued as a poison pill.
func reconcileCategory[T any](
	ctx context.Context,
	l *Ledger,
	category usage.Category,
	group func([]T) []T,
	commit func(context.Context, []T, *usage.Applied) error,
) (*usage.Applied, error) {
	mu := l.mu[category]
	mu.Lock()
	defer mu.Unlock()

	entries, err := l.cache.Peek(ctx, category, l.maxItems())
	if err != nil {
		return nil, fmt.Errorf("failed to peek pending %s entries: %w", category, err)
	}
	if len(entries) == 0 {
		return &usage.Applied{}, nil
	}

	grouped := group(decodeDeltas[T](entries, l.logger, category))

	applied := &usage.Applied{}
	if err := commit(ctx, grouped, applied); err != nil {
		return nil, err
	}
	metrics.AddReconciledItems(category.String(), len(entries))

	if err := l.cache.Remove(ctx, category, len(entries)); err != nil {
		return applied, fmt.Errorf("failed to remove reconciled %s entries: %w", category, err)
	}

	remaining, err := l.cache.Entries(ctx, category)
	if err != nil {
		return applied, fmt.Errorf("failed to read remaining %s entries: %w", category, err)
	}
	if err := l.backup.Write(category, remaining); err != nil {
		return applied, fmt.Errorf("failed to rewrite %s backup: %w", category, err)
	}

	l.logger.Debugw("category reconciled",
		"category", category.String(),
		"entries", len(entries),
		"groups", len(grouped),
		"remaining", len(remaining),
	)

	return applied, nil
}

// applyDirect groups and commits a whole batch against the store,
// bypassing the cache.
func (l *Ledger) applyDirect(ctx context.Context, batch *usage.Batch) (*usage.Applied, error) {
	grouped := usage.GroupBatch(batch)
	applied := &usage.Applied{}

	if err := l.commitUserDeltas(ctx, grouped.Users, applied); err != nil {
		return applied, err
	}
	if err := l.commitAdminDeltas(ctx, grouped.Admins, applied); err != nil {
		return applied, err
	}
	if err := l.commitServiceDeltas(ctx, grouped.Services, applied); err != nil {
		return applied, err
	}
	if err := l.commitNodeDeltas(ctx, grouped.Nodes, applied); err != nil {
		return applied, err
	}

	return applied, nil
}

// applyEntriesDirect decodes one category's raw entries and commits them.
// Used by the startup replay when the cache tier is down.
func (l *Ledger) applyEntriesDirect(ctx context.Context, category usage.Category, entries [][]byte) (*usage.Applied, error) {
	applied := &usage.Applied{}
	var err error

	switch category {
	case usage.CategoryUser:
		err = l.commitUserDeltas(ctx, usage.GroupUserDeltas(decodeDeltas[usage.UserDelta](entries, l.logger, category)), applied)
	case usage.CategoryAdmin:
		err = l.commitAdminDeltas(ctx, usage.GroupAdminDeltas(decodeDeltas[usage.AdminDelta](entries, l.logger, category)), applied)
	case usage.CategoryService:
		err = l.commitServiceDeltas(ctx, usage.GroupServiceDeltas(decodeDeltas[usage.ServiceDelta](entries, l.logger, category)), applied)
	case usage.CategoryNode:
		err = l.commitNodeDeltas(ctx, usage.GroupNodeDeltas(decodeDeltas[usage.NodeDelta](entries, l.logger, category)), applied)
	default:
		err = fmt.Errorf("unknown usage category: %s", category)
	}

	return applied, err
}

// commitUserDeltas applies grouped user deltas to the rolling counters in
// one transaction, replaying it on a MySQL deadlock. Deltas for users
// that no longer exist are dropped with a log.
func (l *Ledger) commitUserDeltas(ctx context.Context, deltas []usage.UserDelta, applied *usage.Applied) error {
	if len(deltas) == 0 {
		return nil
	}

	committed := make([]uint, 0, len(deltas))
	err := db.RunWithDeadlockRetry(ctx, func() error {
		committed = committed[:0]
		return l.tm.RunInTransaction(ctx, func(txCtx context.Context) error {
			for _, d := range deltas {
				if d.Amount == 0 {
					continue
				}
				if err := l.userRepo.IncrementUsage(txCtx, d.UserID, d.Amount); err != nil {
					if apperrors.IsNotFoundError(err) {
						l.logger.Warnw("dropping delta for missing user", "user_id", d.UserID)
						continue
					}
					return err
				}
				committed = append(committed, d.UserID)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to commit user deltas: %w", err)
	}

	for _, id := range committed {
		applied.AddUser(id)
	}
	return nil
}

// commitAdminDeltas applies grouped admin deltas to the rolling and
// lifetime counters in one transaction.
func (l *Ledger) commitAdminDeltas(ctx context.Context, deltas []usage.AdminDelta, applied *usage.Applied) error {
	if len(deltas) == 0 {
		return nil
	}

	committed := make([]uint, 0, len(deltas))
	err := db.RunWithDeadlockRetry(ctx, func() error {
		committed = committed[:0]
		return l.tm.RunInTransaction(ctx, func(txCtx context.Context) error {
			for _, d := range deltas {
				if d.Amount == 0 {
					continue
				}
				if err := l.adminRepo.IncrementUsage(txCtx, d.AdminID, d.Amount); err != nil {
					if apperrors.IsNotFoundError(err) {
						l.logger.Warnw("dropping delta for missing admin", "admin_id", d.AdminID)
						continue
					}
					return err
				}
				committed = append(committed, d.AdminID)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to commit admin deltas: %w", err)
	}

	for _, id := range committed {
		applied.AddAdmin(id)
	}
	return nil
}

// commitServiceDeltas applies grouped service deltas to the service
// counter and the owning admin's service link in one transaction.
func (l *Ledger) commitServiceDeltas(ctx context.Context, deltas []usage.ServiceDelta, applied *usage.Applied) error {
	if len(deltas) == 0 {
		return nil
	}

	committed := make([]uint, 0, len(deltas))
	err := db.RunWithDeadlockRetry(ctx, func() error {
		committed = committed[:0]
		return l.tm.RunInTransaction(ctx, func(txCtx context.Context) error {
			for _, d := range deltas {
				if d.Amount == 0 {
					continue
				}
				if err := l.serviceRepo.IncrementUsage(txCtx, d.ServiceID, d.Amount); err != nil {
					if apperrors.IsNotFoundError(err) {
						l.logger.Warnw("dropping delta for missing service", "service_id", d.ServiceID)
						continue
					}
					return err
				}
				if err := l.linkRepo.IncrementUsage(txCtx, d.AdminID, d.ServiceID, d.Amount); err != nil {
					return err
				}
				committed = append(committed, d.ServiceID)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to commit service deltas: %w", err)
	}

	for _, id := range committed {
		applied.AddService(id)
	}
	return nil
}

// commitNodeDeltas applies grouped node deltas in one transaction:
// per-user deltas feed the (user, node, hour) snapshot buckets, node
// level deltas feed the hourly bucket plus the node's (or master's)
// rolling counters that the data-limit check reads.
func (l *Ledger) commitNodeDeltas(ctx context.Context, deltas []usage.NodeDelta, applied *usage.Applied) error {
	if len(deltas) == 0 {
		return nil
	}

	committed := make([]*uint, 0, len(deltas))
	err := db.RunWithDeadlockRetry(ctx, func() error {
		committed = committed[:0]
		return l.tm.RunInTransaction(ctx, func(txCtx context.Context) error {
			for _, d := range deltas {
				if d.Uplink == 0 && d.Downlink == 0 {
					continue
				}

				if d.UserID != nil {
					if err := l.nodeUserRepo.Increment(txCtx, *d.UserID, d.NodeID, d.Bucket, d.Uplink+d.Downlink); err != nil {
						return err
					}
					continue
				}

				if err := l.nodeUsageRepo.Increment(txCtx, d.NodeID, d.Bucket, d.Uplink, d.Downlink); err != nil {
					return err
				}

				if d.NodeID != nil {
					if err := l.nodeRepo.IncrementUsage(txCtx, *d.NodeID, d.Uplink, d.Downlink); err != nil {
						if apperrors.IsNotFoundError(err) {
							l.logger.Warnw("dropping delta for missing node", "node_id", *d.NodeID)
							continue
						}
						return err
					}
				} else {
					if err := l.masterRepo.IncrementUsage(txCtx, d.Uplink, d.Downlink); err != nil {
						return err
					}
				}
				committed = append(committed, d.NodeID)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to commit node deltas: %w", err)
	}

	for _, id := range committed {
		applied.AddNode(id)
	}
	return nil
}

func (l *Ledger) maxItems() int {
	if l.cfg.MaxItemsPerRun > 0 {
		return l.cfg.MaxItemsPerRun
	}
	return defaultMaxItemsPerRun
}

// encodeDeltas serializes a category's deltas one JSON document per entry.
func encodeDeltas[T any](deltas []T) ([][]byte, error) {
	entries := make([][]byte, 0, len(deltas))
	for _, d := range deltas {
		raw, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, raw)
	}
	return entries, nil
}

// decodeDeltas parses raw pending entries, skipping malformed ones with
// a log so one bad entry never sinks its batch.
func decodeDeltas[T any](entries [][]byte, log logger.Interface, category usage.Category) []T {
	out := make([]T, 0, len(entries))
	for _, raw := range entries {
		var d T
		if err := json.Unmarshal(raw, &d); err != nil {
			log.Warnw("skipping malformed pending entry",
				"category", category.String(),
				"error", err,
			)
			continue
		}
		out = append(out, d)
	}
	return out
}
