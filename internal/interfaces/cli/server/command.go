package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	adminServices "github.com/vetiver-inc/vetiver/internal/application/admin/services"
	nodeServices "github.com/vetiver-inc/vetiver/internal/application/node/services"
	notificationServices "github.com/vetiver-inc/vetiver/internal/application/notification/services"
	usageServices "github.com/vetiver-inc/vetiver/internal/application/usage/services"
	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/backup"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/cache"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/config"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/database"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/migration"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/notification"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/repository"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/scheduler"
	httpRouter "github.com/vetiver-inc/vetiver/internal/interfaces/http"
	"github.com/vetiver-inc/vetiver/internal/shared/biztime"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

var (
	env                string
	autoMigrate        bool
	skipMigrationCheck bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the control-plane server",
		Long:  `Start the Vetiver control plane: node supervision, usage collection, the write-behind usage ledger, quota enforcement and the read-only ops API.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Automatically run database migrations on startup (not recommended for production)")
	cmd.Flags().BoolVar(&skipMigrationCheck, "skip-migration-check", false, "Skip migration status check on startup")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	ginMode := mapEnvToGinMode(env)

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Server.Mode = ginMode

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting server",
		"environment", env,
		"auto_migrate", autoMigrate)

	if err := biztime.Init(cfg.Timezone); err != nil {
		return fmt.Errorf("failed to initialize business timezone: %w", err)
	}

	gin.SetMode(cfg.Server.Mode)

	gin.DefaultWriter = io.Discard
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, nuHandlers int) {
	}

	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("failed to initialize database", "error", err)
	}
	defer database.Close()

	if err := handleMigrations(env); err != nil {
		logger.Fatal("migration handling failed", "error", err)
	}

	log := logger.NewLogger()

	// Cache tier. When disabled every ledger write takes the direct path,
	// so the server stays useful on a box without Redis.
	var pendingCache cache.PendingUsageCache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", "error", err)
		}
		defer redisClient.Close()
		pendingCache = cache.NewPendingUsageCache(redisClient, log)
		logger.Info("redis connection established")
	} else {
		logger.Info("redis disabled, usage writes take the direct path")
	}

	eventDispatcher := events.NewInMemoryEventDispatcher(100)
	if err := eventDispatcher.Start(); err != nil {
		logger.Fatal("failed to start event dispatcher", "error", err)
	}
	defer func() {
		if err := eventDispatcher.Stop(); err != nil {
			logger.Error("failed to stop event dispatcher", "error", err)
		}
	}()
	logger.Info("event dispatcher started")

	notifier := notification.New(cfg.Notification, cfg.Email, log)
	statusNotifier := notificationServices.NewStatusNotifier(notifier, log)
	if err := statusNotifier.Register(eventDispatcher); err != nil {
		logger.Fatal("failed to register status notifier", "error", err)
	}

	gdb := database.Get()
	userRepo := repository.NewUserRepository(gdb, log)
	adminRepo := repository.NewAdminRepository(gdb, log)
	serviceRepo := repository.NewServiceRepository(gdb, log)
	linkRepo := repository.NewAdminServiceLinkRepository(gdb, log)
	nodeRepo := repository.NewNodeRepository(gdb, log)
	masterRepo := repository.NewMasterStateRepository(gdb, log)
	nodeUsageRepo := repository.NewNodeUsageRepository(gdb, log)
	nodeUserRepo := repository.NewNodeUserUsageRepository(gdb, log)
	tm := db.NewTransactionManager(gdb)

	configProvider := engine.NewFileConfigProvider(cfg.Supervisor.ConfigDir)
	registry := nodeServices.NewRegistry()
	supervisor := nodeServices.NewSupervisor(nodeRepo, registry, configProvider, eventDispatcher, cfg.Supervisor, log)

	// The local engine is optional: without a binary to spawn or a token
	// to attach with there is nothing to supervise, and collection covers
	// remote nodes only.
	var master *engine.Master
	if cfg.Master.BinaryPath != "" || cfg.Master.APIToken != "" {
		master = engine.NewMaster(cfg.Master, log)
		startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := master.Start(startCtx); err != nil {
			logger.Warn("local engine not started, collection covers remote nodes only", "error", err)
		}
		cancel()
	} else {
		logger.Info("no local engine configured")
	}

	collector := nodeServices.NewCollector(registry, supervisor, master, masterRepo, nodeRepo, userRepo, cfg.Collection, log)
	enforcer := nodeServices.NewQuotaEnforcer(supervisor, nodeRepo, masterRepo, eventDispatcher, log)
	provisioner := nodeServices.NewProvisioner(registry, configProvider, cfg.Supervisor, log)
	cascade := adminServices.NewQuotaCascadeService(adminRepo, userRepo, provisioner, tm, eventDispatcher, log)

	backupStore := backup.NewFileStore(cfg.Backup.Dir)
	ledger := usageServices.NewLedger(
		pendingCache, backupStore, tm,
		userRepo, adminRepo, serviceRepo, linkRepo,
		nodeRepo, masterRepo, nodeUsageRepo, nodeUserRepo,
		cfg.Reconcile, log,
	)
	pipeline := usageServices.NewPipeline(collector, ledger, enforcer, cascade, log)

	// Deltas buffered by a previous run must become durable before any
	// new write lands on the same categories.
	replayCtx, cancelReplay := context.WithTimeout(context.Background(), 2*time.Minute)
	err = ledger.ReplayBackups(replayCtx)
	cancelReplay()
	if err != nil {
		logger.Fatal("failed to replay usage backups", "error", err)
	}

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 5*time.Minute)
	err = supervisor.Bootstrap(bootCtx)
	cancelBoot()
	if err != nil {
		logger.Fatal("failed to bootstrap node connections", "error", err)
	}

	schedulerManager, err := scheduler.NewSchedulerManager(log)
	if err != nil {
		logger.Fatal("failed to create scheduler", "error", err)
	}
	if err := schedulerManager.RegisterUsageJobs(pipeline, cfg.Collection, cfg.Reconcile); err != nil {
		logger.Fatal("failed to register usage jobs", "error", err)
	}
	if err := schedulerManager.RegisterConnectionJobs(supervisor, cfg.Supervisor); err != nil {
		logger.Fatal("failed to register connection jobs", "error", err)
	}
	retentionDays := cfg.Reconcile.RetentionDays
	if retentionDays <= 0 {
		retentionDays = scheduler.DefaultRetentionDays
	}
	if err := schedulerManager.RegisterCleanupJobs(ledger, retentionDays); err != nil {
		logger.Fatal("failed to register cleanup jobs", "error", err)
	}
	schedulerManager.Start()

	deps := httpRouter.Dependencies{
		DB:            gdb,
		NodeRepo:      nodeRepo,
		MasterRepo:    masterRepo,
		NodeUsageRepo: nodeUsageRepo,
		Ledger:        ledger,
		Master:        master,
		Redis:         redisClient,
		Logger:        log,
	}
	if redisCache, ok := pendingCache.(*cache.RedisPendingUsageCache); ok {
		deps.Cache = redisCache
	}
	router := httpRouter.NewRouter(deps)
	router.SetupRoutes()

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			"address", cfg.Server.GetAddr(),
			"mode", cfg.Server.Mode)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Pending entries survive in the cache and the backup files; the next
	// start replays them. Only the processes need an orderly stop.
	if err := schedulerManager.Stop(); err != nil {
		logger.Error("failed to stop scheduler", "error", err)
	}
	supervisor.Shutdown()
	if master != nil {
		if err := master.Stop(); err != nil {
			logger.Error("failed to stop local engine", "error", err)
		}
	}

	logger.Info("server exited gracefully")
	return nil
}

func handleMigrations(environment string) error {
	if skipMigrationCheck {
		logger.Info("skipping migration check")
		return nil
	}

	if autoMigrate {
		if environment == "production" {
			logger.Warn("auto-migration is enabled in production environment - this is not recommended!")
		}

		logger.Info("running auto-migration")
		migrationManager := migration.NewManager(environment)
		if err := migrationManager.Migrate(database.Get(), migration.AutoMigrateModels()...); err != nil {
			return fmt.Errorf("auto-migration failed: %w", err)
		}
		logger.Info("auto-migration completed successfully")
		return nil
	}

	logger.Info("checking migration status")

	scriptsPath, err := filepath.Abs("./internal/infrastructure/migration/scripts")
	if err != nil {
		logger.Warn("failed to get migration scripts path", "error", err)
		return nil
	}

	strategy := migration.NewGolangMigrateStrategy(scriptsPath)
	if migrateStrategy, ok := strategy.(*migration.GolangMigrateStrategy); ok {
		version, dirty, err := migrateStrategy.GetVersion(database.Get())
		if err != nil {
			logger.Warn("failed to check migration status", "error", err)
		} else {
			logger.Info("current migration version",
				"version", version,
				"dirty", dirty)
		}
	}

	logger.Info("migration check completed")

	return nil
}

func mapEnvToGinMode(environment string) string {
	switch environment {
	case "production", "prod":
		return "release"
	case "development", "dev":
		return "debug"
	case "test", "testing":
		return "test"
	case "debug":
		return "debug"
	case "release":
		return "release"
	default:
		return "debug"
	}
}
