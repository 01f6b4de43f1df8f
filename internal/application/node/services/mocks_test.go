package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
	"github.com/vetiver-inc/vetiver/internal/domain/user"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/migration"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/repository"
	"github.com/vetiver-inc/vetiver/internal/shared/config"
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

// captureDispatcher records published events synchronously so tests can
// assert on transition publications without a running dispatcher.
type captureDispatcher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func newCaptureDispatcher() *captureDispatcher { return &captureDispatcher{} }

func (d *captureDispatcher) Publish(event events.DomainEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *captureDispatcher) PublishAll(evts []events.DomainEvent) error {
	for _, evt := range evts {
		if err := d.Publish(evt); err != nil {
			return err
		}
	}
	return nil
}

func (d *captureDispatcher) Subscribe(eventType string, handler events.EventHandler) error {
	return nil
}

func (d *captureDispatcher) Unsubscribe(eventType string, handler events.EventHandler) error {
	return nil
}

func (d *captureDispatcher) Start() error { return nil }
func (d *captureDispatcher) Stop() error  { return nil }

func (d *captureDispatcher) ofType(eventType string) []events.DomainEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	var matched []events.DomainEvent
	for _, evt := range d.events {
		if evt.GetEventType() == eventType {
			matched = append(matched, evt)
		}
	}
	return matched
}

// fakeEngine serves the control API of one proxy engine, including the
// read-and-reset counter endpoints.
type fakeEngine struct {
	mu        sync.Mutex
	version   string
	starts    int
	restarts  int
	users     map[string]bool
	removed   []string
	userStats []engine.UserStat
	outbound  engine.OutboundStat
	failStats bool
}

func newFakeEngine(version string) *fakeEngine {
	return &fakeEngine{
		version: version,
		users:   make(map[string]bool),
	}
}

func (f *fakeEngine) setUserStats(stats ...engine.UserStat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userStats = stats
}

func (f *fakeEngine) setOutbound(uplink, downlink uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbound = engine.OutboundStat{Uplink: uplink, Downlink: downlink}
}

func (f *fakeEngine) knows(username string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[username]
}

func (f *fakeEngine) removedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

func (f *fakeEngine) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.URL.Path == "/api/v1/version":
			_ = json.NewEncoder(w).Encode(map[string]string{"version": f.version})
		case r.URL.Path == "/api/v1/start":
			f.starts++
		case r.URL.Path == "/api/v1/restart":
			f.restarts++
		case r.URL.Path == "/api/v1/users" && r.Method == http.MethodPost:
			var body struct {
				Username string `json:"username"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if f.users[body.Username] {
				w.WriteHeader(http.StatusConflict)
				return
			}
			f.users[body.Username] = true
		case strings.HasPrefix(r.URL.Path, "/api/v1/users/") && r.Method == http.MethodDelete:
			name := strings.TrimPrefix(r.URL.Path, "/api/v1/users/")
			if !f.users[name] {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(f.users, name)
			f.removed = append(f.removed, name)
		case r.URL.Path == "/api/v1/stats/users":
			if f.failStats {
				http.Error(w, "stats unavailable", http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"stats": f.userStats})
			if r.URL.Query().Get("reset") == "true" {
				f.userStats = nil
			}
		case r.URL.Path == "/api/v1/stats/outbound":
			if f.failStats {
				http.Error(w, "stats unavailable", http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(f.outbound)
			if r.URL.Query().Get("reset") == "true" {
				f.outbound = engine.OutboundStat{}
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// serve starts the fake engine on a local listener and returns it together
// with the (host, port) pair a node row should point at.
func (f *fakeEngine) serve(t *testing.T) (*httptest.Server, string, uint16) {
	t.Helper()

	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return srv, u.Hostname(), uint16(port)
}

// nodeEnv assembles the supervisor stack over an in-memory database with
// a capturing dispatcher, the way the server process wires it.
type nodeEnv struct {
	gdb        *gorm.DB
	users      user.Repository
	admins     admin.Repository
	nodes      node.NodeRepository
	masterRepo node.MasterStateRepository
	registry   *Registry
	dispatcher *captureDispatcher
	supervisor *Supervisor
	supCfg     config.SupervisorConfig
}

func defaultSupervisorConfig() config.SupervisorConfig {
	return config.SupervisorConfig{
		ReviewIntervalSeconds: 1,
		ConnectTimeoutSeconds: 5,
	}
}

func newNodeEnv(t *testing.T, supCfg config.SupervisorConfig) *nodeEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	// Each :memory: connection opens a distinct database; the reconnect
	// loop writes from its own goroutine, so keep the pool at one.
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(migration.AutoMigrateModels()...))

	log := newNopLogger()
	env := &nodeEnv{
		gdb:        gdb,
		users:      repository.NewUserRepository(gdb, log),
		admins:     repository.NewAdminRepository(gdb, log),
		nodes:      repository.NewNodeRepository(gdb, log),
		masterRepo: repository.NewMasterStateRepository(gdb, log),
		registry:   NewRegistry(),
		dispatcher: newCaptureDispatcher(),
		supCfg:     supCfg,
	}

	env.supervisor = NewSupervisor(
		env.nodes,
		env.registry,
		engine.NewFileConfigProvider(t.TempDir()),
		env.dispatcher,
		supCfg,
		log,
	)

	return env
}

func (e *nodeEnv) newCollector(master *engine.Master, cfg config.CollectionConfig) *Collector {
	return NewCollector(
		e.registry,
		e.supervisor,
		master,
		e.masterRepo,
		e.nodes,
		e.users,
		cfg,
		newNopLogger(),
	)
}

func (e *nodeEnv) seedNode(t *testing.T, name, address string, apiPort uint16, coefficient float64) *node.Node {
	t.Helper()

	n, err := node.NewNode(name, address, 443, apiPort, coefficient, nil)
	require.NoError(t, err)
	require.NoError(t, e.nodes.Create(context.Background(), n))
	return n
}

func (e *nodeEnv) seedUser(t *testing.T, username string, serviceID *uint) *user.User {
	t.Helper()

	a, err := admin.NewAdmin("admin-of-"+username, nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.admins.Create(context.Background(), a))

	u, err := user.NewUser(username, a.ID(), serviceID)
	require.NoError(t, err)
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}
