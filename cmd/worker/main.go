package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

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
	"github.com/vetiver-inc/vetiver/internal/infrastructure/notification"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/repository"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/scheduler"
	"github.com/vetiver-inc/vetiver/internal/shared/biztime"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// The worker runs the background jobs without the ops API: usage
// collection, reconciliation, connection review and bucket cleanup. Run it
// instead of the full server, never beside it, or both processes would
// issue the destructive read-and-reset RPCs against the same engines.
func main() {
	env := "development"
	if len(os.Args) > 1 {
		env = os.Args[1]
	}
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.NewLogger()
	log.Infow("starting usage worker", "environment", env)

	if err := biztime.Init(cfg.Timezone); err != nil {
		log.Fatalw("failed to initialize business timezone", "error", err)
	}

	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalw("failed to initialize database", "error", err)
	}
	defer database.Close()

	var pendingCache cache.PendingUsageCache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		log.Infow("redis connection established", "address", cfg.Redis.GetAddr())
		pendingCache = cache.NewPendingUsageCache(redisClient, log)
	} else {
		log.Infow("redis disabled, usage writes take the direct path")
	}

	eventDispatcher := events.NewInMemoryEventDispatcher(100)
	if err := eventDispatcher.Start(); err != nil {
		log.Fatalw("failed to start event dispatcher", "error", err)
	}
	defer func() {
		if err := eventDispatcher.Stop(); err != nil {
			log.Errorw("failed to stop event dispatcher", "error", err)
		}
	}()

	notifier := notification.New(cfg.Notification, cfg.Email, log)
	statusNotifier := notificationServices.NewStatusNotifier(notifier, log)
	if err := statusNotifier.Register(eventDispatcher); err != nil {
		log.Fatalw("failed to register status notifier", "error", err)
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

	var master *engine.Master
	if cfg.Master.BinaryPath != "" || cfg.Master.APIToken != "" {
		master = engine.NewMaster(cfg.Master, log)
		startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := master.Start(startCtx); err != nil {
			log.Warnw("local engine not started, collection covers remote nodes only", "error", err)
		}
		cancel()
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

	replayCtx, cancelReplay := context.WithTimeout(context.Background(), 2*time.Minute)
	err = ledger.ReplayBackups(replayCtx)
	cancelReplay()
	if err != nil {
		log.Fatalw("failed to replay usage backups", "error", err)
	}

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 5*time.Minute)
	err = supervisor.Bootstrap(bootCtx)
	cancelBoot()
	if err != nil {
		log.Fatalw("failed to bootstrap node connections", "error", err)
	}

	schedulerManager, err := scheduler.NewSchedulerManager(log)
	if err != nil {
		log.Fatalw("failed to create scheduler", "error", err)
	}
	if err := schedulerManager.RegisterUsageJobs(pipeline, cfg.Collection, cfg.Reconcile); err != nil {
		log.Fatalw("failed to register usage jobs", "error", err)
	}
	if err := schedulerManager.RegisterConnectionJobs(supervisor, cfg.Supervisor); err != nil {
		log.Fatalw("failed to register connection jobs", "error", err)
	}
	retentionDays := cfg.Reconcile.RetentionDays
	if retentionDays <= 0 {
		retentionDays = scheduler.DefaultRetentionDays
	}
	if err := schedulerManager.RegisterCleanupJobs(ledger, retentionDays); err != nil {
		log.Fatalw("failed to register cleanup jobs", "error", err)
	}
	schedulerManager.Start()

	log.Infow("usage worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infow("received signal, shutting down", "signal", sig)

	if err := schedulerManager.Stop(); err != nil {
		log.Errorw("failed to stop scheduler", "error", err)
	}

	// Drain what the cache holds so the next start replays as little as
	// possible. Anything left over survives in the backup files.
	log.Infow("performing final reconciliation")
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pipeline.RunReconciliation(flushCtx); err != nil {
		log.Errorw("final reconciliation failed", "error", err)
	}
	flushCancel()

	supervisor.Shutdown()
	if master != nil {
		if err := master.Stop(); err != nil {
			log.Errorw("failed to stop local engine", "error", err)
		}
	}

	log.Infow("usage worker stopped")
}
