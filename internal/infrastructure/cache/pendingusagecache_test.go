package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetiver-inc/vetiver/internal/domain/usage"
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

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, func() {
		client.Close()
		mr.Close()
	}
}

func entriesOf(values ...string) [][]byte {
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		out = append(out, []byte(v))
	}
	return out
}

func TestPendingUsageCache_AppendPreservesOrder(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewPendingUsageCache(client, newNopLogger())
	ctx := context.Background()

	require.NoError(t, cache.Append(ctx, usage.CategoryUser, entriesOf("a", "b")))
	require.NoError(t, cache.Append(ctx, usage.CategoryUser, entriesOf("c")))

	entries, err := cache.Entries(ctx, usage.CategoryUser)
	require.NoError(t, err)
	assert.Equal(t, entriesOf("a", "b", "c"), entries)

	length, err := cache.Len(ctx, usage.CategoryUser)
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)
}

func TestPendingUsageCache_CategoriesAreIsolated(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewPendingUsageCache(client, newNopLogger())
	ctx := context.Background()

	require.NoError(t, cache.Append(ctx, usage.CategoryUser, entriesOf("user-delta")))
	require.NoError(t, cache.Append(ctx, usage.CategoryAdmin, entriesOf("admin-delta")))

	userEntries, err := cache.Entries(ctx, usage.CategoryUser)
	require.NoError(t, err)
	assert.Equal(t, entriesOf("user-delta"), userEntries)

	adminEntries, err := cache.Entries(ctx, usage.CategoryAdmin)
	require.NoError(t, err)
	assert.Equal(t, entriesOf("admin-delta"), adminEntries)
}

func TestPendingUsageCache_PeekDoesNotRemove(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewPendingUsageCache(client, newNopLogger())
	ctx := context.Background()

	require.NoError(t, cache.Append(ctx, usage.CategoryNode, entriesOf("a", "b", "c")))

	peeked, err := cache.Peek(ctx, usage.CategoryNode, 2)
	require.NoError(t, err)
	assert.Equal(t, entriesOf("a", "b"), peeked)

	length, err := cache.Len(ctx, usage.CategoryNode)
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)
}

func TestPendingUsageCache_PeekBeyondLength(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewPendingUsageCache(client, newNopLogger())
	ctx := context.Background()

	require.NoError(t, cache.Append(ctx, usage.CategoryService, entriesOf("only")))

	peeked, err := cache.Peek(ctx, usage.CategoryService, 10)
	require.NoError(t, err)
	assert.Equal(t, entriesOf("only"), peeked)
}

func TestPendingUsageCache_RemovePopsFromHead(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewPendingUsageCache(client, newNopLogger())
	ctx := context.Background()

	require.NoError(t, cache.Append(ctx, usage.CategoryUser, entriesOf("a", "b", "c")))
	require.NoError(t, cache.Remove(ctx, usage.CategoryUser, 2))

	entries, err := cache.Entries(ctx, usage.CategoryUser)
	require.NoError(t, err)
	assert.Equal(t, entriesOf("c"), entries)
}

func TestPendingUsageCache_RemoveOnEmptyList(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewPendingUsageCache(client, newNopLogger())
	ctx := context.Background()

	assert.NoError(t, cache.Remove(ctx, usage.CategoryUser, 5))
}

func TestPendingUsageCache_ResetReplacesList(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewPendingUsageCache(client, newNopLogger())
	ctx := context.Background()

	require.NoError(t, cache.Append(ctx, usage.CategoryAdmin, entriesOf("stale", "entries")))
	require.NoError(t, cache.Reset(ctx, usage.CategoryAdmin, entriesOf("fresh")))

	entries, err := cache.Entries(ctx, usage.CategoryAdmin)
	require.NoError(t, err)
	assert.Equal(t, entriesOf("fresh"), entries)
}

func TestPendingUsageCache_ResetToEmptyClearsList(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewPendingUsageCache(client, newNopLogger())
	ctx := context.Background()

	require.NoError(t, cache.Append(ctx, usage.CategoryAdmin, entriesOf("stale")))
	require.NoError(t, cache.Reset(ctx, usage.CategoryAdmin, nil))

	length, err := cache.Len(ctx, usage.CategoryAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}
