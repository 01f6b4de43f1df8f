package migrate

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vetiver-inc/vetiver/internal/infrastructure/config"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/database"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/migration"
	"github.com/vetiver-inc/vetiver/internal/shared/biztime"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

const (
	toolGolangMigrate = "golang-migrate"
	toolGoose         = "goose"
)

var (
	env          string
	tool         string
	name         string
	steps        int
	forceVersion int
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Manage database migrations: apply, rollback, inspect status, scaffold new migration files and repair version state.`,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.PersistentFlags().StringVar(&tool, "tool", toolGolangMigrate, "Migration tool (golang-migrate, goose)")

	cmd.AddCommand(
		newUpCommand(),
		newDownCommand(),
		newStatusCommand(),
		newCreateCommand(),
		newForceCommand(),
	)

	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		Long:  `Apply all pending database migrations to bring the database schema up to date.`,
		RunE:  runUp,
	}
}

func newDownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		Long:  `Rollback a specified number of database migrations.`,
		RunE:  runDown,
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  `Display the current migration version and status of the database.`,
		RunE:  runStatus,
	}
}

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new migration",
		Long:  `Create new migration files with the specified name, in the selected tool's file format.`,
		RunE:  runCreate,
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Name of the migration (required)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newForceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "force",
		Short: "Force the migration version",
		Long:  `Set the recorded migration version and clear the dirty flag after a failed migration has been repaired by hand. golang-migrate only.`,
		RunE:  runForce,
	}

	cmd.Flags().IntVarP(&forceVersion, "version", "v", -1, "Version to force (required)")
	cmd.MarkFlagRequired("version")

	return cmd
}

func initEnv() (string, logger.Interface, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		return "", nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log := logger.NewLogger()

	if err := biztime.Init(cfg.Timezone); err != nil {
		return "", nil, fmt.Errorf("failed to initialize business timezone: %w", err)
	}

	if err := database.Init(&cfg.Database); err != nil {
		return "", nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	scriptsPath, err := filepath.Abs("./internal/infrastructure/migration/scripts")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get scripts path: %w", err)
	}

	return scriptsPath, log, nil
}

func runUp(cmd *cobra.Command, args []string) error {
	scriptsPath, log, err := initEnv()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer database.Close()

	log.Infow("running up migrations", "environment", env, "tool", tool)

	var strategy migration.Strategy
	switch tool {
	case toolGoose:
		strategy = migration.NewGooseStrategy(scriptsPath)
	case toolGolangMigrate:
		strategy = migration.NewGolangMigrateStrategy(scriptsPath)
	default:
		return fmt.Errorf("unknown migration tool %q", tool)
	}

	if err := strategy.Migrate(database.Get()); err != nil {
		log.Errorw("migration failed", "error", err)
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Infow("migrations completed successfully")
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	scriptsPath, log, err := initEnv()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer database.Close()

	log.Infow("running down migrations", "environment", env, "tool", tool, "steps", steps)

	switch tool {
	case toolGoose:
		strategy, ok := migration.NewGooseStrategy(scriptsPath).(*migration.GooseStrategy)
		if !ok {
			return fmt.Errorf("goose strategy does not support down migrations")
		}
		if err := strategy.MigrateDown(database.Get(), steps); err != nil {
			log.Errorw("down migration failed", "error", err)
			return fmt.Errorf("down migration failed: %w", err)
		}
	case toolGolangMigrate:
		strategy, ok := migration.NewGolangMigrateStrategy(scriptsPath).(*migration.GolangMigrateStrategy)
		if !ok {
			return fmt.Errorf("golang-migrate strategy does not support down migrations")
		}
		if err := strategy.MigrateDown(database.Get(), steps); err != nil {
			log.Errorw("down migration failed", "error", err)
			return fmt.Errorf("down migration failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown migration tool %q", tool)
	}

	log.Infow("down migration completed successfully")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	scriptsPath, log, err := initEnv()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer database.Close()

	log.Infow("checking migration status", "environment", env, "tool", tool)

	switch tool {
	case toolGoose:
		strategy, ok := migration.NewGooseStrategy(scriptsPath).(*migration.GooseStrategy)
		if !ok {
			return fmt.Errorf("goose strategy does not support status reporting")
		}
		version, err := strategy.GetVersion(database.Get())
		if err != nil {
			log.Errorw("failed to get migration version", "error", err)
			return fmt.Errorf("failed to get migration version: %w", err)
		}

		fmt.Printf("\nMigration Status:\n")
		fmt.Printf("  Environment:     %s\n", env)
		fmt.Printf("  Current Version: %d\n", version)

		if err := strategy.Status(database.Get()); err != nil {
			log.Errorw("failed to get detailed status", "error", err)
			return fmt.Errorf("failed to get detailed status: %w", err)
		}
	case toolGolangMigrate:
		strategy, ok := migration.NewGolangMigrateStrategy(scriptsPath).(*migration.GolangMigrateStrategy)
		if !ok {
			return fmt.Errorf("golang-migrate strategy does not support status reporting")
		}
		version, dirty, err := strategy.GetVersion(database.Get())
		if err != nil {
			log.Errorw("failed to get migration version", "error", err)
			return fmt.Errorf("failed to get migration version: %w", err)
		}

		fmt.Printf("\nMigration Status:\n")
		fmt.Printf("  Environment:     %s\n", env)
		fmt.Printf("  Current Version: %d\n", version)
		fmt.Printf("  Dirty:           %t\n", dirty)
	default:
		return fmt.Errorf("unknown migration tool %q", tool)
	}

	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	scriptsPath, log, err := initEnv()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer database.Close()

	log.Infow("creating new migration", "name", name, "tool", tool)

	switch tool {
	case toolGoose:
		strategy, ok := migration.NewGooseStrategy(scriptsPath).(*migration.GooseStrategy)
		if !ok {
			return fmt.Errorf("goose strategy does not support creating migrations")
		}
		if err := strategy.Create(name); err != nil {
			log.Errorw("failed to create migration", "error", err)
			return fmt.Errorf("failed to create migration: %w", err)
		}
	case toolGolangMigrate:
		generator := migration.NewGenerator(scriptsPath)
		if err := generator.CreateMigration(name); err != nil {
			log.Errorw("failed to create migration", "error", err)
			return fmt.Errorf("failed to create migration: %w", err)
		}
	default:
		return fmt.Errorf("unknown migration tool %q", tool)
	}

	log.Infow("migration created successfully", "name", name)
	return nil
}

func runForce(cmd *cobra.Command, args []string) error {
	scriptsPath, log, err := initEnv()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer database.Close()

	if tool != toolGolangMigrate {
		return fmt.Errorf("force is only supported with the golang-migrate tool")
	}
	if forceVersion < 0 {
		return fmt.Errorf("version must be non-negative")
	}

	log.Infow("forcing migration version", "environment", env, "version", forceVersion)

	strategy, ok := migration.NewGolangMigrateStrategy(scriptsPath).(*migration.GolangMigrateStrategy)
	if !ok {
		return fmt.Errorf("golang-migrate strategy does not support forcing versions")
	}
	if err := strategy.Force(database.Get(), forceVersion); err != nil {
		log.Errorw("force failed", "error", err)
		return fmt.Errorf("force failed: %w", err)
	}

	log.Infow("migration version forced successfully", "version", forceVersion)
	return nil
}
