package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	domainNode "github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/migration"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/repository"
	apperrors "github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// quietLogger is a no-op logger for testing.
type quietLogger struct{}

func newQuietLogger() logger.Interface { return &quietLogger{} }

func (l *quietLogger) Debug(msg string, args ...any)                   {}
func (l *quietLogger) Info(msg string, args ...any)                    {}
func (l *quietLogger) Warn(msg string, args ...any)                    {}
func (l *quietLogger) Error(msg string, args ...any)                   {}
func (l *quietLogger) Fatal(msg string, args ...any)                   {}
func (l *quietLogger) With(args ...any) logger.Interface               { return l }
func (l *quietLogger) Named(name string) logger.Interface              { return l }
func (l *quietLogger) Debugw(msg string, keysAndValues ...interface{}) {}
func (l *quietLogger) Infow(msg string, keysAndValues ...interface{})  {}
func (l *quietLogger) Warnw(msg string, keysAndValues ...interface{})  {}
func (l *quietLogger) Errorw(msg string, keysAndValues ...interface{}) {}
func (l *quietLogger) Fatalw(msg string, keysAndValues ...interface{}) {}

func newNodeRepo(t *testing.T) domainNode.NodeRepository {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(migration.AutoMigrateModels()...))
	return repository.NewNodeRepository(gdb, newQuietLogger())
}

func seedNodeRow(t *testing.T, repo domainNode.NodeRepository, name string) *domainNode.Node {
	t.Helper()

	n, err := domainNode.NewNode(name, "203.0.113.10", 443, 8443, 1.5, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), n))
	return n
}

func TestGetNodeUseCase_Execute(t *testing.T) {
	ctx := context.Background()
	repo := newNodeRepo(t)
	uc := NewGetNodeUseCase(repo, newQuietLogger())

	n := seedNodeRow(t, repo, "edge-1")

	t.Run("returns the node view", func(t *testing.T) {
		result, err := uc.Execute(ctx, GetNodeQuery{NodeID: n.ID()})
		require.NoError(t, err)
		require.NotNil(t, result.Node)

		assert.Equal(t, n.ID(), result.Node.ID)
		assert.Equal(t, "edge-1", result.Node.Name)
		assert.Equal(t, "203.0.113.10", result.Node.Address)
		assert.Equal(t, uint16(443), result.Node.Port)
		assert.Equal(t, uint16(8443), result.Node.APIPort)
		assert.Equal(t, "connecting", result.Node.Status)
		assert.Equal(t, 1.5, result.Node.UsageCoefficient)
		assert.Nil(t, result.Node.DataLimit)
	})

	t.Run("rejects zero ID", func(t *testing.T) {
		_, err := uc.Execute(ctx, GetNodeQuery{NodeID: 0})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidationError(err))
	})

	t.Run("unknown node is not found", func(t *testing.T) {
		_, err := uc.Execute(ctx, GetNodeQuery{NodeID: 9999})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFoundError(err))
	})
}
