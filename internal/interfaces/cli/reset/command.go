package reset

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	adminServices "github.com/vetiver-inc/vetiver/internal/application/admin/services"
	nodeServices "github.com/vetiver-inc/vetiver/internal/application/node/services"
	usageServices "github.com/vetiver-inc/vetiver/internal/application/usage/services"
	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/config"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/database"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/repository"
	"github.com/vetiver-inc/vetiver/internal/shared/biztime"
	"github.com/vetiver-inc/vetiver/internal/shared/db"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

const resetTimeout = 2 * time.Minute

var (
	env      string
	entityID uint
	reason   string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset rolling usage counters",
		Long:  `Zero an entity's rolling usage counter. The previous value is archived in the reset log, and an entity dropping back under its data limit is re-armed.`,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.PersistentFlags().StringVar(&reason, "reason", "manual reset", "Reason recorded in the reset log")

	cmd.AddCommand(
		newEntityCommand("user", "Reset a user's rolling usage"),
		newEntityCommand("admin", "Reset an admin's aggregated usage"),
		newEntityCommand("service", "Reset a service's aggregated usage"),
		newEntityCommand("node", "Reset a node's traffic counters"),
		newMasterCommand(),
	)

	return cmd
}

func newEntityCommand(entity, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   entity,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(entity)
		},
	}

	cmd.Flags().UintVar(&entityID, "id", 0, fmt.Sprintf("ID of the %s to reset (required)", entity))
	cmd.MarkFlagRequired("id")

	return cmd
}

func newMasterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "master",
		Short: "Reset the master's traffic counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset("master")
		},
	}
}

func runReset(entity string) error {
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	log := logger.NewLogger()

	if err := biztime.Init(cfg.Timezone); err != nil {
		return fmt.Errorf("failed to initialize business timezone: %w", err)
	}

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	// Re-arming an entity publishes status events and may dial nodes, so
	// the reset path gets the same collaborators the server wires.
	eventDispatcher := events.NewInMemoryEventDispatcher(100)
	if err := eventDispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}
	defer func() {
		if err := eventDispatcher.Stop(); err != nil {
			log.Errorw("failed to stop event dispatcher", "error", err)
		}
	}()

	gdb := database.Get()
	userRepo := repository.NewUserRepository(gdb, log)
	adminRepo := repository.NewAdminRepository(gdb, log)
	serviceRepo := repository.NewServiceRepository(gdb, log)
	nodeRepo := repository.NewNodeRepository(gdb, log)
	masterRepo := repository.NewMasterStateRepository(gdb, log)
	resetLogRepo := repository.NewUsageResetLogRepository(gdb, log)
	tm := db.NewTransactionManager(gdb)

	configProvider := engine.NewFileConfigProvider(cfg.Supervisor.ConfigDir)
	registry := nodeServices.NewRegistry()
	supervisor := nodeServices.NewSupervisor(nodeRepo, registry, configProvider, eventDispatcher, cfg.Supervisor, log)
	enforcer := nodeServices.NewQuotaEnforcer(supervisor, nodeRepo, masterRepo, eventDispatcher, log)
	provisioner := nodeServices.NewProvisioner(registry, configProvider, cfg.Supervisor, log)
	cascade := adminServices.NewQuotaCascadeService(adminRepo, userRepo, provisioner, tm, eventDispatcher, log)

	svc := usageServices.NewResetService(
		userRepo, adminRepo, serviceRepo, nodeRepo, masterRepo, resetLogRepo,
		enforcer, cascade, tm, log,
	)

	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()

	var previous uint64
	switch entity {
	case "user":
		previous, err = svc.ResetUserUsage(ctx, entityID, reason)
	case "admin":
		previous, err = svc.ResetAdminUsage(ctx, entityID, reason)
	case "service":
		previous, err = svc.ResetServiceUsage(ctx, entityID, reason)
	case "node":
		previous, err = svc.ResetNodeUsage(ctx, entityID, reason)
	case "master":
		previous, err = svc.ResetMasterUsage(ctx, reason)
	default:
		return fmt.Errorf("unknown entity %q", entity)
	}
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}

	if entity == "master" {
		fmt.Printf("master usage reset, previous value: %d bytes\n", previous)
	} else {
		fmt.Printf("%s %d usage reset, previous value: %d bytes\n", entity, entityID, previous)
	}
	return nil
}
