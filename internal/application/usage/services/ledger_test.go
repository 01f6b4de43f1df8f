package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/domain/service"
	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/domain/user"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/backup"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/cache"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/migration"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/repository"
	"github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	apperrors "github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// nopLogger is a no-op logger for testing.
type nopLogger struct{}

func newNopLogger() logger.Interface { return &nopLogger{} }

func (l *nopLogger) Debug(msg string, args ...any)                   {}
func (l *nopLogger) Info(msg string, args ...any)                    {}
func (l *nopLogger) Warn(msg string, args ...any)                    {}
func (l *nopLogger) Error(msg string, args ...any)                   {}
func (l *nopLogger) Fatal(msg string, args ...any)                   {}
func (l *nopLogger) With(args ...any) logger.Interface               { return l }
func (l *nopLogger) Named(name string) logger.Interface              { return l }
func (l *nopLogger) Debugw(msg string, keysAndValues ...interface{}) {}
func (l *nopLogger) Infow(msg string, keysAndValues ...interface{})  {}
func (l *nopLogger) Warnw(msg string, keysAndValues ...interface{})  {}
func (l *nopLogger) Errorw(msg string, keysAndValues ...interface{}) {}
func (l *nopLogger) Fatalw(msg string, keysAndValues ...interface{}) {}

// ledgerEnv wires a Ledger against an in-memory database, a miniredis
// pending cache and a temp-dir backup store, mirroring the production
// assembly.
type ledgerEnv struct {
	gdb   *gorm.DB
	mr    *miniredis.Miniredis
	cache cache.PendingUsageCache
	store *backup.FileStore

	users       user.Repository
	admins      admin.Repository
	services    service.Repository
	links       service.LinkRepository
	nodes       node.NodeRepository
	master      node.MasterStateRepository
	buckets     usage.NodeUsageRepository
	userBuckets usage.NodeUserUsageRepository

	ledger *Ledger
}

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	// Each :memory: connection opens a distinct database; supervisor
	// reconnects write from their own goroutine, so keep the pool at one.
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(migration.AutoMigrateModels()...))

	return gdb
}

func newLedgerEnv(t *testing.T, cfg config.ReconcileConfig, withCache bool) *ledgerEnv {
	t.Helper()

	log := newNopLogger()
	env := &ledgerEnv{
		gdb:   setupLedgerDB(t),
		store: backup.NewFileStore(t.TempDir()),
	}

	env.users = repository.NewUserRepository(env.gdb, log)
	env.admins = repository.NewAdminRepository(env.gdb, log)
	env.services = repository.NewServiceRepository(env.gdb, log)
	env.links = repository.NewAdminServiceLinkRepository(env.gdb, log)
	env.nodes = repository.NewNodeRepository(env.gdb, log)
	env.master = repository.NewMasterStateRepository(env.gdb, log)
	env.buckets = repository.NewNodeUsageRepository(env.gdb, log)
	env.userBuckets = repository.NewNodeUserUsageRepository(env.gdb, log)

	if withCache {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)

		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		env.mr = mr
		env.cache = cache.NewPendingUsageCache(client, log)
	}

	env.ledger = env.newLedger(cfg)
	return env
}

// newLedger builds another Ledger over the same database, cache and
// backup directory, the way a restarted process would.
func (e *ledgerEnv) newLedger(cfg config.ReconcileConfig) *Ledger {
	return NewLedger(
		e.cache,
		e.store,
		db.NewTransactionManager(e.gdb),
		e.users,
		e.admins,
		e.services,
		e.links,
		e.nodes,
		e.master,
		e.buckets,
		e.userBuckets,
		cfg,
		newNopLogger(),
	)
}

func seedAdmin(t *testing.T, env *ledgerEnv, username string) *admin.Admin {
	t.Helper()
	a, err := admin.NewAdmin(username, nil, nil)
	require.NoError(t, err)
	require.NoError(t, env.admins.Create(context.Background(), a))
	return a
}

func seedUser(t *testing.T, env *ledgerEnv, username string, adminID uint) *user.User {
	t.Helper()
	u, err := user.NewUser(username, adminID, nil)
	require.NoError(t, err)
	require.NoError(t, env.users.Create(context.Background(), u))
	return u
}

func seedService(t *testing.T, env *ledgerEnv, name string) *service.Service {
	t.Helper()
	svc, err := service.NewService(name)
	require.NoError(t, err)
	require.NoError(t, env.services.Create(context.Background(), svc))
	return svc
}

func seedNode(t *testing.T, env *ledgerEnv, name string) *node.Node {
	t.Helper()
	n, err := node.NewNode(name, "203.0.113.10", 443, 8443, 1.0, nil)
	require.NoError(t, err)
	require.NoError(t, env.nodes.Create(context.Background(), n))
	return n
}

func bucketHour() time.Time {
	return time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
}

func TestLedger_RecordBuffersWhenCacheUp(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{MaxItemsPerRun: 100}, true)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())

	applied, err := env.ledger.Record(ctx, &usage.Batch{
		Users: []usage.UserDelta{{UserID: u.ID(), Amount: 1500, Bucket: bucketHour()}},
	})
	require.NoError(t, err)
	assert.True(t, applied.IsEmpty(), "buffered writes must not report applied entities")

	// The database row is untouched until reconciliation drains the cache.
	got, err := env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Zero(t, got.UsedTraffic())

	counts := env.ledger.PendingCounts(ctx)
	assert.Equal(t, int64(1), counts[usage.CategoryUser])

	// The backup file mirrors the uncommitted set.
	entries, err := env.store.Read(usage.CategoryUser)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedger_RecordEmptyBatch(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{}, true)
	ctx := context.Background()

	applied, err := env.ledger.Record(ctx, nil)
	require.NoError(t, err)
	assert.True(t, applied.IsEmpty())

	applied, err = env.ledger.Record(ctx, &usage.Batch{})
	require.NoError(t, err)
	assert.True(t, applied.IsEmpty())
}

func TestLedger_ReconcileCommitsBufferedDeltas(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{MaxItemsPerRun: 100}, true)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())
	svc := seedService(t, env, "premium")
	n := seedNode(t, env, "tokyo-1")
	nodeID := n.ID()

	_, err := env.ledger.Record(ctx, &usage.Batch{
		Users:    []usage.UserDelta{{UserID: u.ID(), Amount: 1500, Bucket: bucketHour()}},
		Admins:   []usage.AdminDelta{{AdminID: a.ID(), Amount: 1500, Bucket: bucketHour()}},
		Services: []usage.ServiceDelta{{ServiceID: svc.ID(), AdminID: a.ID(), Amount: 1500, Bucket: bucketHour()}},
		Nodes:    []usage.NodeDelta{{NodeID: &nodeID, Uplink: 900, Downlink: 600, Bucket: bucketHour()}},
	})
	require.NoError(t, err)

	applied, err := env.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{u.ID()}, applied.UserIDs)
	assert.Equal(t, []uint{a.ID()}, applied.AdminIDs)
	assert.Equal(t, []uint{svc.ID()}, applied.ServiceIDs)
	assert.Equal(t, []uint{nodeID}, applied.NodeIDs)
	assert.False(t, applied.Master)

	gotUser, err := env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), gotUser.UsedTraffic())

	gotAdmin, err := env.admins.GetByID(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), gotAdmin.UsersUsage())
	assert.Equal(t, uint64(1500), gotAdmin.LifetimeUsage())

	gotService, err := env.services.GetByID(ctx, svc.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), gotService.UsedTraffic())

	// Service deltas also feed the admin's link row, created on demand.
	link, err := env.links.GetByAdminAndService(ctx, a.ID(), svc.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), link.UsedTraffic())

	gotNode, err := env.nodes.GetByID(ctx, nodeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), gotNode.Uplink())
	assert.Equal(t, uint64(600), gotNode.Downlink())

	bucket, err := env.buckets.GetByNodeAndBucket(ctx, &nodeID, bucketHour())
	require.NoError(t, err)
	assert.Equal(t, uint64(900), bucket.Uplink())
	assert.Equal(t, uint64(600), bucket.Downlink())

	// Drained categories leave nothing behind in cache or backup.
	for _, category := range usage.AllCategories() {
		assert.Zero(t, env.ledger.PendingCounts(ctx)[category])
		entries, err := env.store.Read(category)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}

	// A second run has nothing to do and must not double-apply.
	applied, err = env.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, applied.IsEmpty())

	gotUser, err = env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), gotUser.UsedTraffic())
}

func TestLedger_ReconcileHonorsMaxItemsPerRun(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{MaxItemsPerRun: 1}, true)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())

	for _, amount := range []uint64{100, 200, 400} {
		_, err := env.ledger.Record(ctx, &usage.Batch{
			Users: []usage.UserDelta{{UserID: u.ID(), Amount: amount, Bucket: bucketHour()}},
		})
		require.NoError(t, err)
	}

	_, err := env.ledger.Reconcile(ctx)
	require.NoError(t, err)

	got, err := env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got.UsedTraffic(), "one entry per run")
	assert.Equal(t, int64(2), env.ledger.PendingCounts(ctx)[usage.CategoryUser])

	// The backup shrinks with the cache.
	entries, err := env.store.Read(usage.CategoryUser)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	for i := 0; i < 2; i++ {
		_, err = env.ledger.Reconcile(ctx)
		require.NoError(t, err)
	}

	got, err = env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(700), got.UsedTraffic())
	assert.Zero(t, env.ledger.PendingCounts(ctx)[usage.CategoryUser])
}

func TestLedger_ReplayAfterRestartDoesNotDoubleApply(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{MaxItemsPerRun: 1}, true)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())

	for _, amount := range []uint64{100, 200, 400} {
		_, err := env.ledger.Record(ctx, &usage.Batch{
			Users: []usage.UserDelta{{UserID: u.ID(), Amount: amount, Bucket: bucketHour()}},
		})
		require.NoError(t, err)
	}

	// Drain exactly one entry, leaving two committed to neither store.
	_, err := env.ledger.Reconcile(ctx)
	require.NoError(t, err)

	got, err := env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	require.Equal(t, uint64(100), got.UsedTraffic())

	// The process dies and the cache loses its lists; the backup files
	// survive on disk.
	env.mr.FlushAll()

	restarted := env.newLedger(config.ReconcileConfig{MaxItemsPerRun: 100})
	require.NoError(t, restarted.ReplayBackups(ctx))

	assert.Equal(t, int64(2), restarted.PendingCounts(ctx)[usage.CategoryUser])

	_, err = restarted.Reconcile(ctx)
	require.NoError(t, err)

	got, err = env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(700), got.UsedTraffic(), "drained entry must not re-apply after replay")
	assert.Zero(t, restarted.PendingCounts(ctx)[usage.CategoryUser])
}

func TestLedger_ReplayWithSurvivingCacheResetsToBackup(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{MaxItemsPerRun: 100}, true)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())

	_, err := env.ledger.Record(ctx, &usage.Batch{
		Users: []usage.UserDelta{{UserID: u.ID(), Amount: 300, Bucket: bucketHour()}},
	})
	require.NoError(t, err)

	// The cache survived the restart with its list intact. Replay must
	// replace, not append, or the surviving entries would count twice.
	restarted := env.newLedger(config.ReconcileConfig{MaxItemsPerRun: 100})
	require.NoError(t, restarted.ReplayBackups(ctx))
	require.Equal(t, int64(1), restarted.PendingCounts(ctx)[usage.CategoryUser])

	_, err = restarted.Reconcile(ctx)
	require.NoError(t, err)

	got, err := env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(300), got.UsedTraffic())
}

func TestLedger_DirectPathWithoutCache(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{}, false)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())

	applied, err := env.ledger.Record(ctx, &usage.Batch{
		Users:  []usage.UserDelta{{UserID: u.ID(), Amount: 2048, Bucket: bucketHour()}},
		Admins: []usage.AdminDelta{{AdminID: a.ID(), Amount: 2048, Bucket: bucketHour()}},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{u.ID()}, applied.UserIDs)
	assert.Equal(t, []uint{a.ID()}, applied.AdminIDs)

	got, err := env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(2048), got.UsedTraffic())

	// Without a cache tier there is nothing pending and nothing to drain.
	assert.Empty(t, env.ledger.PendingCounts(ctx))

	applied, err = env.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, applied.IsEmpty())
}

func TestLedger_DirectFallbackWhenCacheDown(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{}, true)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())

	env.mr.Close()

	applied, err := env.ledger.Record(ctx, &usage.Batch{
		Users: []usage.UserDelta{{UserID: u.ID(), Amount: 512, Bucket: bucketHour()}},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{u.ID()}, applied.UserIDs)

	got, err := env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(512), got.UsedTraffic())
}

func TestLedger_ReplayAppliesDirectlyWhenCacheDown(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{MaxItemsPerRun: 100}, true)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())

	_, err := env.ledger.Record(ctx, &usage.Batch{
		Users: []usage.UserDelta{{UserID: u.ID(), Amount: 900, Bucket: bucketHour()}},
	})
	require.NoError(t, err)

	// Cache gone for good; the restarted process drains the backup
	// straight into the database.
	env.mr.Close()

	restarted := env.newLedger(config.ReconcileConfig{MaxItemsPerRun: 100})
	require.NoError(t, restarted.ReplayBackups(ctx))

	got, err := env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(900), got.UsedTraffic())

	entries, err := env.store.Read(usage.CategoryUser)
	require.NoError(t, err)
	assert.Empty(t, entries, "applied backup must be cleared")
}

func TestLedger_MissingEntitiesAreDropped(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{}, false)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())

	applied, err := env.ledger.Record(ctx, &usage.Batch{
		Users: []usage.UserDelta{
			{UserID: u.ID(), Amount: 100, Bucket: bucketHour()},
			{UserID: 9999, Amount: 100, Bucket: bucketHour()},
		},
	})
	require.NoError(t, err, "a deleted user must not sink the batch")
	assert.Equal(t, []uint{u.ID()}, applied.UserIDs)

	got, err := env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got.UsedTraffic())
}

func TestLedger_ZeroAmountDeltasSkipped(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{}, false)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())

	applied, err := env.ledger.Record(ctx, &usage.Batch{
		Users: []usage.UserDelta{{UserID: u.ID(), Amount: 0, Bucket: bucketHour()}},
	})
	require.NoError(t, err)
	assert.True(t, applied.IsEmpty())
}

func TestLedger_MasterDeltasShareOneBucketRow(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{}, false)
	ctx := context.Background()

	// Two collection ticks inside the same hour, both for the master
	// instance (nil node ID).
	applied, err := env.ledger.Record(ctx, &usage.Batch{
		Nodes: []usage.NodeDelta{{Uplink: 100, Downlink: 50, Bucket: bucketHour()}},
	})
	require.NoError(t, err)
	assert.True(t, applied.Master)

	_, err = env.ledger.Record(ctx, &usage.Batch{
		Nodes: []usage.NodeDelta{{Uplink: 25, Downlink: 25, Bucket: bucketHour()}},
	})
	require.NoError(t, err)

	master, err := env.master.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(125), master.Uplink())
	assert.Equal(t, uint64(75), master.Downlink())

	bucket, err := env.buckets.GetByNodeAndBucket(ctx, nil, bucketHour())
	require.NoError(t, err)
	assert.Equal(t, uint64(125), bucket.Uplink())
	assert.Equal(t, uint64(75), bucket.Downlink())

	// NULL node_id does not collide on the unique index, so the second
	// increment must find the first row instead of inserting a sibling.
	rows, err := env.buckets.ListByNode(ctx, nil, bucketHour().Add(-time.Hour), bucketHour().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLedger_PerUserNodeDeltasFeedSnapshotsOnly(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{}, false)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())
	n := seedNode(t, env, "tokyo-1")
	nodeID := n.ID()
	userID := u.ID()

	applied, err := env.ledger.Record(ctx, &usage.Batch{
		Nodes: []usage.NodeDelta{{NodeID: &nodeID, UserID: &userID, Uplink: 40, Downlink: 60, Bucket: bucketHour()}},
	})
	require.NoError(t, err)
	assert.Empty(t, applied.NodeIDs, "per-user deltas do not touch rolling counters")

	snapshot, err := env.userBuckets.GetByUserNodeAndBucket(ctx, userID, &nodeID, bucketHour())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), snapshot.UsedTraffic())

	// Rolling counters move only through their own categories.
	gotNode, err := env.nodes.GetByID(ctx, nodeID)
	require.NoError(t, err)
	assert.Zero(t, gotNode.TotalUsage())

	gotUser, err := env.users.GetByID(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, gotUser.UsedTraffic())
}

func TestLedger_CleanupOldUsage(t *testing.T) {
	env := newLedgerEnv(t, config.ReconcileConfig{}, false)
	ctx := context.Background()

	a := seedAdmin(t, env, "reseller-1")
	u := seedUser(t, env, "alice", a.ID())
	n := seedNode(t, env, "tokyo-1")
	nodeID := n.ID()

	oldBucket := time.Now().UTC().AddDate(0, 0, -120).Truncate(time.Hour)
	recentBucket := time.Now().UTC().AddDate(0, 0, -1).Truncate(time.Hour)

	require.NoError(t, env.buckets.Increment(ctx, &nodeID, oldBucket, 10, 10))
	require.NoError(t, env.buckets.Increment(ctx, &nodeID, recentBucket, 20, 20))
	require.NoError(t, env.userBuckets.Increment(ctx, u.ID(), &nodeID, oldBucket, 10))
	require.NoError(t, env.userBuckets.Increment(ctx, u.ID(), &nodeID, recentBucket, 20))

	require.NoError(t, env.ledger.CleanupOldUsage(ctx, 90))

	_, err := env.buckets.GetByNodeAndBucket(ctx, &nodeID, oldBucket)
	assert.True(t, apperrors.IsNotFoundError(err))
	_, err = env.userBuckets.GetByUserNodeAndBucket(ctx, u.ID(), &nodeID, oldBucket)
	assert.True(t, apperrors.IsNotFoundError(err))

	kept, err := env.buckets.GetByNodeAndBucket(ctx, &nodeID, recentBucket)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), kept.Total())

	keptUser, err := env.userBuckets.GetByUserNodeAndBucket(ctx, u.ID(), &nodeID, recentBucket)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), keptUser.UsedTraffic())
}
