package usercmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	nodeServices "github.com/vetiver-inc/vetiver/internal/application/node/services"
	"github.com/vetiver-inc/vetiver/internal/application/user/usecases"
	vo "github.com/vetiver-inc/vetiver/internal/domain/node/value_objects"
	"github.com/vetiver-inc/vetiver/internal/domain/shared/events"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/config"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/database"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/repository"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

const activateTimeout = 2 * time.Minute

var (
	env    string
	userID uint
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")

	cmd.AddCommand(newActivateCommand())

	return cmd
}

func newActivateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate a user and provision it on connected nodes",
		Long:  `Mark a user active after checking the owning admin's users limit, then push the account to every reachable node.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActivate()
		},
	}

	cmd.Flags().UintVar(&userID, "id", 0, "ID of the user to activate (required)")
	cmd.MarkFlagRequired("id")

	return cmd
}

func runActivate() error {
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	log := logger.NewLogger()

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

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
	nodeRepo := repository.NewNodeRepository(gdb, log)

	configProvider := engine.NewFileConfigProvider(cfg.Supervisor.ConfigDir)
	registry := nodeServices.NewRegistry()
	supervisor := nodeServices.NewSupervisor(nodeRepo, registry, configProvider, eventDispatcher, cfg.Supervisor, log)
	defer supervisor.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), activateTimeout)
	defer cancel()

	// Connect live nodes up front so the provisioning push has somewhere
	// to land. Unreachable nodes are skipped, not fatal: they pick the
	// user up from the config file on their next connect.
	nodes, err := nodeRepo.GetByStatuses(ctx, vo.NodeStatusConnecting, vo.NodeStatusConnected, vo.NodeStatusError)
	if err != nil {
		return fmt.Errorf("failed to list nodes: %w", err)
	}
	for _, n := range nodes {
		if err := supervisor.Connect(ctx, n.ID()); err != nil {
			log.Warnw("node unreachable for provisioning", "node_id", n.ID(), "error", err)
		}
	}

	provisioner := nodeServices.NewProvisioner(registry, configProvider, cfg.Supervisor, log)
	uc := usecases.NewActivateUserUseCase(userRepo, adminRepo, provisioner, eventDispatcher, log)

	result, err := uc.Execute(ctx, usecases.ActivateUserCommand{UserID: userID})
	if err != nil {
		return fmt.Errorf("activation failed: %w", err)
	}

	fmt.Printf("user %d (%s) is now %s\n", result.UserID, result.Username, result.Status)
	return nil
}
