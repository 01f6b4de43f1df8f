package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adminServices "github.com/vetiver-inc/vetiver/internal/application/admin/services"
	nodeServices "github.com/vetiver-inc/vetiver/internal/application/node/services"
	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/domain/node"
	nodevo "github.com/vetiver-inc/vetiver/internal/domain/node/value_objects"
	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/domain/user"
	uservo "github.com/vetiver-inc/vetiver/internal/domain/user/value_objects"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
	"github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
)

// fakeStatsEngine serves the engine stats API with read-and-reset
// semantics, enough for full collection ticks.
type fakeStatsEngine struct {
	mu        sync.Mutex
	userStats []engine.UserStat
	outbound  engine.OutboundStat
}

func newFakeStatsEngine() *fakeStatsEngine {
	return &fakeStatsEngine{}
}

func (f *fakeStatsEngine) setUserStats(stats ...engine.UserStat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userStats = stats
}

func (f *fakeStatsEngine) setOutbound(uplink, downlink uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbound = engine.OutboundStat{Uplink: uplink, Downlink: downlink}
}

func (f *fakeStatsEngine) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/api/v1/version":
			_ = json.NewEncoder(w).Encode(map[string]string{"version": "1.9.0"})
		case "/api/v1/start":
		case "/api/v1/stats/users":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"stats": f.userStats})
			if r.URL.Query().Get("reset") == "true" {
				f.userStats = nil
			}
		case "/api/v1/stats/outbound":
			_ = json.NewEncoder(w).Encode(f.outbound)
			if r.URL.Query().Get("reset") == "true" {
				f.outbound = engine.OutboundStat{}
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// pipelineEnv stacks the full tick path over a ledgerEnv: registry,
// supervisor, collector, quota policy and the pipeline itself.
type pipelineEnv struct {
	*ledgerEnv
	registry   *nodeServices.Registry
	supervisor *nodeServices.Supervisor
	pipeline   *Pipeline
}

func newPipelineEnv(t *testing.T, withCache bool) *pipelineEnv {
	t.Helper()

	base := newLedgerEnv(t, config.ReconcileConfig{MaxItemsPerRun: 100}, withCache)
	log := newNopLogger()
	dispatcher := &silentDispatcher{}
	tm := db.NewTransactionManager(base.gdb)
	registry := nodeServices.NewRegistry()
	provider := engine.NewFileConfigProvider(t.TempDir())
	supCfg := config.SupervisorConfig{ReviewIntervalSeconds: 1, ConnectTimeoutSeconds: 5}

	supervisor := nodeServices.NewSupervisor(base.nodes, registry, provider, dispatcher, supCfg, log)
	enforcer := nodeServices.NewQuotaEnforcer(supervisor, base.nodes, base.master, dispatcher, log)
	cascade := adminServices.NewQuotaCascadeService(
		base.admins,
		base.users,
		nodeServices.NewProvisioner(registry, provider, supCfg, log),
		tm,
		dispatcher,
		log,
	)
	collector := nodeServices.NewCollector(
		registry,
		supervisor,
		nil,
		base.master,
		base.nodes,
		base.users,
		config.CollectionConfig{UserTimeoutSeconds: 5, OutboundTimeoutSeconds: 5, Workers: 4},
		log,
	)

	return &pipelineEnv{
		ledgerEnv:  base,
		registry:   registry,
		supervisor: supervisor,
		pipeline:   NewPipeline(collector, base.ledger, enforcer, cascade, log),
	}
}

// connectNode seeds one node backed by the fake engine and connects it.
func (e *pipelineEnv) connectNode(t *testing.T, fake *fakeStatsEngine, name string, dataLimit *uint64) *node.Node {
	t.Helper()

	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	n, err := node.NewNode(name, u.Hostname(), 443, uint16(port), 1.0, dataLimit)
	require.NoError(t, err)
	require.NoError(t, e.nodes.Create(context.Background(), n))
	require.NoError(t, e.supervisor.Connect(context.Background(), n.ID()))
	return n
}

func TestPipeline_UserTickBuffersThenReconciles(t *testing.T) {
	env := newPipelineEnv(t, true)
	ctx := context.Background()

	adminLimit := uint64(1000)
	a, err := admin.NewAdmin("tenant", &adminLimit, nil)
	require.NoError(t, err)
	require.NoError(t, env.admins.Create(ctx, a))

	u, err := user.NewUser("alice", a.ID(), nil)
	require.NoError(t, err)
	require.NoError(t, u.Activate())
	require.NoError(t, env.users.Create(ctx, u))

	fake := newFakeStatsEngine()
	env.connectNode(t, fake, "tokyo-1", nil)
	fake.setUserStats(engine.UserStat{Username: "alice", Uplink: 700, Downlink: 500})

	require.NoError(t, env.pipeline.RunUserCollection(ctx))

	// With the cache up the tick only buffers; nothing durable moved and
	// quota policy has not fired.
	got, err := env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Zero(t, got.UsedTraffic())

	counts := env.ledger.PendingCounts(ctx)
	assert.Equal(t, int64(1), counts[usage.CategoryUser])
	assert.Equal(t, int64(1), counts[usage.CategoryAdmin])
	assert.Equal(t, int64(1), counts[usage.CategoryNode])

	owner, err := env.admins.GetByID(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, owner.IsActive())

	require.NoError(t, env.pipeline.RunReconciliation(ctx))

	// Reconciliation made the deltas durable and the quota pass caught
	// the admin 1200 bytes over its 1000-byte limit.
	got, err = env.users.GetByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), got.UsedTraffic())
	assert.Equal(t, uservo.StatusDisabled, got.Status())
	assert.True(t, got.WasSuspendedByAdminQuota())

	owner, err = env.admins.GetByID(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), owner.UsersUsage())
	assert.True(t, owner.DisabledByQuota())

	for category, count := range env.ledger.PendingCounts(ctx) {
		assert.Zerof(t, count, "category %s still pending", category)
	}
}

func TestPipeline_OutboundTickLimitsNodeInline(t *testing.T) {
	env := newPipelineEnv(t, false)
	ctx := context.Background()

	nodeLimit := uint64(1000)
	fake := newFakeStatsEngine()
	n := env.connectNode(t, fake, "osaka-1", &nodeLimit)
	fake.setOutbound(900, 400)

	require.NoError(t, env.pipeline.RunOutboundCollection(ctx))

	// Without a cache the tick applies directly, so enforcement runs
	// inside the same call: the node is limited and its handle is gone.
	got, err := env.nodes.GetByID(ctx, n.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1300), got.TotalUsage())
	assert.Equal(t, nodevo.NodeStatusLimited, got.Status())

	_, ok := env.registry.Get(n.ID())
	assert.False(t, ok)

	// The engine counters were read-and-reset and the limited node left
	// the pull rotation, so another tick changes nothing.
	require.NoError(t, env.pipeline.RunOutboundCollection(ctx))
	got, err = env.nodes.GetByID(ctx, n.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1300), got.TotalUsage())
}
