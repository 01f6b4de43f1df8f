// Package migration brings the database schema up to date. Development
// environments derive the schema from the GORM models directly; test and
// production run the versioned SQL scripts so every deployment walks the
// same upgrade path.
package migration

import (
	"fmt"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/vetiver-inc/vetiver/internal/shared/constants"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// Manager runs the migration strategy chosen for an environment.
type Manager struct {
	strategy Strategy
	logger   logger.Interface
}

// NewManager picks the strategy for the given environment. Unknown
// environments fall back to AutoMigrate so a fresh checkout can start
// without any migration tooling.
func NewManager(environment string) *Manager {
	var strategy Strategy

	switch strings.ToLower(environment) {
	case constants.EnvDevelopment:
		strategy = NewGormAutoMigrateStrategy()
	case constants.EnvTest, constants.EnvProduction:
		scriptsPath, _ := filepath.Abs("./internal/infrastructure/migration/scripts")
		strategy = NewGolangMigrateStrategy(scriptsPath)
	default:
		strategy = NewGormAutoMigrateStrategy()
	}

	return &Manager{
		strategy: strategy,
		logger:   logger.NewLogger().With("component", "migration.manager"),
	}
}

// Migrate runs the configured strategy against db.
func (m *Manager) Migrate(db *gorm.DB, models ...interface{}) error {
	m.logger.Infow("starting database migration",
		"strategy", m.strategy.GetName(),
		"models_count", len(models))

	if err := m.strategy.Migrate(db, models...); err != nil {
		m.logger.Errorw("migration failed",
			"strategy", m.strategy.GetName(),
			"error", err)
		return fmt.Errorf("migration failed with strategy %s: %w", m.strategy.GetName(), err)
	}

	m.logger.Infow("database migration completed",
		"strategy", m.strategy.GetName())

	return nil
}
