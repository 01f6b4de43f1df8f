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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	nodeServices "github.com/vetiver-inc/vetiver/internal/application/node/services"
	"github.com/vetiver-inc/vetiver/internal/domain/admin"
	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
	"github.com/vetiver-inc/vetiver/internal/domain/user"
	vo "github.com/vetiver-inc/vetiver/internal/domain/user/value_objects"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/migration"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/repository"
	"github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
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

// captureDispatcher records published events synchronously.
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

// fakeNodeEngine is a minimal engine control API recording user membership
// changes, enough for the provisioning fan-out the cascade triggers.
type fakeNodeEngine struct {
	mu      sync.Mutex
	users   map[string]bool
	removed []string
}

func newFakeNodeEngine() *fakeNodeEngine {
	return &fakeNodeEngine{users: make(map[string]bool)}
}

func (f *fakeNodeEngine) knows(username string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[username]
}

func (f *fakeNodeEngine) removedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

func (f *fakeNodeEngine) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.URL.Path == "/api/v1/version":
			_ = json.NewEncoder(w).Encode(map[string]string{"version": "1.9.0"})
		case r.URL.Path == "/api/v1/start":
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
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

type cascadeEnv struct {
	gdb         *gorm.DB
	admins      admin.Repository
	users       user.Repository
	registry    *nodeServices.Registry
	provisioner *nodeServices.Provisioner
	dispatcher  *captureDispatcher
	svc         *QuotaCascadeService
}

func newCascadeEnv(t *testing.T) *cascadeEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(migration.AutoMigrateModels()...))

	log := newNopLogger()
	env := &cascadeEnv{
		gdb:        gdb,
		admins:     repository.NewAdminRepository(gdb, log),
		users:      repository.NewUserRepository(gdb, log),
		registry:   nodeServices.NewRegistry(),
		dispatcher: newCaptureDispatcher(),
	}
	env.provisioner = nodeServices.NewProvisioner(
		env.registry,
		engine.NewFileConfigProvider(t.TempDir()),
		config.SupervisorConfig{ConnectTimeoutSeconds: 5},
		log,
	)
	env.svc = NewQuotaCascadeService(
		env.admins,
		env.users,
		env.provisioner,
		db.NewTransactionManager(gdb),
		env.dispatcher,
		log,
	)
	return env
}

// attachEngine registers one ready node handle backed by a fake engine.
func (e *cascadeEnv) attachEngine(t *testing.T) *fakeNodeEngine {
	t.Helper()

	fake := newFakeNodeEngine()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	handle := engine.NewHandle(1, engine.NewClient(u.Hostname(), uint16(port), "", 5*time.Second))
	_, err = handle.Connect(context.Background(), engine.Config(`{}`))
	require.NoError(t, err)
	e.registry.Put(handle)
	return fake
}

func (e *cascadeEnv) seedAdmin(t *testing.T, username string, dataLimit uint64) *admin.Admin {
	t.Helper()

	a, err := admin.NewAdmin(username, &dataLimit, nil)
	require.NoError(t, err)
	require.NoError(t, e.admins.Create(context.Background(), a))
	return a
}

func (e *cascadeEnv) seedUser(t *testing.T, adminID uint, username string, status vo.Status) *user.User {
	t.Helper()

	u, err := user.NewUser(username, adminID, nil)
	require.NoError(t, err)
	switch status {
	case vo.StatusActive:
		require.NoError(t, u.Activate())
	case vo.StatusDisabled:
		require.NoError(t, u.Disable(""))
	case vo.StatusOnHold:
	default:
		t.Fatalf("unsupported seed status %s", status)
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *cascadeEnv) userStatus(t *testing.T, id uint) (*user.User, vo.Status) {
	t.Helper()

	u, err := e.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u, u.Status()
}

func TestQuotaCascade_DisablesAdminAndSuspendsUsers(t *testing.T) {
	ctx := context.Background()
	env := newCascadeEnv(t)
	fake := env.attachEngine(t)

	a := env.seedAdmin(t, "tenant-a", 1000)
	active := env.seedUser(t, a.ID(), "alice", vo.StatusActive)
	onHold := env.seedUser(t, a.ID(), "bob", vo.StatusOnHold)
	disabled := env.seedUser(t, a.ID(), "carol", vo.StatusDisabled)

	other := env.seedAdmin(t, "tenant-b", 1000)
	bystander := env.seedUser(t, other.ID(), "dave", vo.StatusActive)

	// Only alice is on the engine; removal of the on-hold bob is a no-op
	// the engine answers with 404.
	require.Equal(t, 1, env.provisioner.AddUser(ctx, "alice"))

	require.NoError(t, env.admins.IncrementUsage(ctx, a.ID(), 1500))
	require.NoError(t, env.svc.EvaluateAdmin(ctx, a.ID()))

	reloaded, err := env.admins.GetByID(ctx, a.ID())
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive())
	assert.True(t, reloaded.DisabledByQuota())

	u, status := env.userStatus(t, active.ID())
	assert.Equal(t, vo.StatusDisabled, status)
	assert.True(t, u.WasSuspendedByAdminQuota())
	require.NotNil(t, u.PrevStatus())
	assert.Equal(t, vo.StatusActive, *u.PrevStatus())

	u, status = env.userStatus(t, onHold.ID())
	assert.Equal(t, vo.StatusDisabled, status)
	require.NotNil(t, u.PrevStatus())
	assert.Equal(t, vo.StatusOnHold, *u.PrevStatus())

	// A directly disabled user carries no cascade memory.
	u, status = env.userStatus(t, disabled.ID())
	assert.Equal(t, vo.StatusDisabled, status)
	assert.False(t, u.WasSuspendedByAdminQuota())

	// Another admin's fleet is untouched.
	_, status = env.userStatus(t, bystander.ID())
	assert.Equal(t, vo.StatusActive, status)

	assert.False(t, fake.knows("alice"))
	assert.Equal(t, []string{"alice"}, fake.removedNames())

	adminEvents := env.dispatcher.ofType(admin.EventTypeAdminStatusChanged)
	require.Len(t, adminEvents, 1)
	sc, ok := adminEvents[0].(admin.AdminStatusChangedEvent)
	require.True(t, ok)
	assert.True(t, sc.ByQuota)
	assert.Equal(t, admin.AdminStatusDisabled.String(), sc.NewStatus)
	assert.Len(t, env.dispatcher.ofType(user.EventTypeUserStatusChanged), 2)

	// Still disabled and still over: evaluating again changes nothing.
	require.NoError(t, env.svc.EvaluateAdmin(ctx, a.ID()))
	assert.Len(t, env.dispatcher.ofType(admin.EventTypeAdminStatusChanged), 1)
}

func TestQuotaCascade_ReversalRestoresPriorStatuses(t *testing.T) {
	ctx := context.Background()
	env := newCascadeEnv(t)
	fake := env.attachEngine(t)

	a := env.seedAdmin(t, "tenant-a", 1000)
	active := env.seedUser(t, a.ID(), "alice", vo.StatusActive)
	onHold := env.seedUser(t, a.ID(), "bob", vo.StatusOnHold)

	require.NoError(t, env.admins.IncrementUsage(ctx, a.ID(), 1500))
	require.NoError(t, env.svc.EvaluateAdmin(ctx, a.ID()))

	// The monthly reset zeroes the rolling counter but keeps the
	// lifetime total; the next evaluation reverses the cascade.
	_, err := env.admins.ResetUsage(ctx, a.ID())
	require.NoError(t, err)
	require.NoError(t, env.svc.EvaluateAdmin(ctx, a.ID()))

	reloaded, err := env.admins.GetByID(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, reloaded.IsActive())
	assert.False(t, reloaded.DisabledByQuota())
	assert.Equal(t, uint64(1500), reloaded.LifetimeUsage())

	u, status := env.userStatus(t, active.ID())
	assert.Equal(t, vo.StatusActive, status)
	assert.Nil(t, u.PrevStatus())

	u, status = env.userStatus(t, onHold.ID())
	assert.Equal(t, vo.StatusOnHold, status)
	assert.Nil(t, u.PrevStatus())

	// Only the serviceable user goes back onto the engines.
	assert.True(t, fake.knows("alice"))
	assert.False(t, fake.knows("bob"))
}

func TestQuotaCascade_SweepCatchesLimitEdits(t *testing.T) {
	ctx := context.Background()
	env := newCascadeEnv(t)

	// Over its limit but never hit by a reactive evaluation.
	over := env.seedAdmin(t, "tenant-over", 1000)
	overUser := env.seedUser(t, over.ID(), "alice", vo.StatusActive)
	require.NoError(t, env.admins.IncrementUsage(ctx, over.ID(), 2000))

	// Quota-disabled, then the operator raised the limit above the usage.
	raised := env.seedAdmin(t, "tenant-raised", 1000)
	raisedUser := env.seedUser(t, raised.ID(), "bob", vo.StatusActive)
	require.NoError(t, env.admins.IncrementUsage(ctx, raised.ID(), 1500))
	require.NoError(t, env.svc.EvaluateAdmin(ctx, raised.ID()))

	loaded, err := env.admins.GetByID(ctx, raised.ID())
	require.NoError(t, err)
	newLimit := uint64(5000)
	loaded.UpdateDataLimit(&newLimit)
	require.NoError(t, env.admins.Update(ctx, loaded))

	require.NoError(t, env.svc.Sweep(ctx))

	reloaded, err := env.admins.GetByID(ctx, over.ID())
	require.NoError(t, err)
	assert.True(t, reloaded.DisabledByQuota())
	_, status := env.userStatus(t, overUser.ID())
	assert.Equal(t, vo.StatusDisabled, status)

	reloaded, err = env.admins.GetByID(ctx, raised.ID())
	require.NoError(t, err)
	assert.True(t, reloaded.IsActive())
	_, status = env.userStatus(t, raisedUser.ID())
	assert.Equal(t, vo.StatusActive, status)
}

func TestQuotaCascade_EvaluateSkipsMissingAdmins(t *testing.T) {
	ctx := context.Background()
	env := newCascadeEnv(t)

	a := env.seedAdmin(t, "tenant-a", 1000)
	env.seedUser(t, a.ID(), "alice", vo.StatusActive)
	require.NoError(t, env.admins.IncrementUsage(ctx, a.ID(), 1500))

	env.svc.Evaluate(ctx, []uint{9999, a.ID()})

	reloaded, err := env.admins.GetByID(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, reloaded.DisabledByQuota())
}
