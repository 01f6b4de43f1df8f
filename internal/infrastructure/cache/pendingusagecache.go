package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

const (
	// Redis key pattern for pending usage deltas.
	// Key format: usage:pending:{category}, one list per category holding
	// serialized deltas in arrival order.
	pendingUsageKeyPrefix = "usage:pending:"
)

// PendingUsageCache buffers serialized usage deltas per category until the
// reconciler commits them to the database. Entries are opaque byte payloads;
// ordering is strictly FIFO so a bounded drain always consumes the oldest
// deltas first.
type PendingUsageCache interface {
	// Append pushes entries to the tail of the category's pending list.
	Append(ctx context.Context, category usage.Category, entries [][]byte) error

	// Peek returns up to max entries from the head without removing them.
	Peek(ctx context.Context, category usage.Category, max int) ([][]byte, error)

	// Remove pops count entries from the head. Called after the database
	// commit for those entries succeeded.
	Remove(ctx context.Context, category usage.Category, count int) error

	// Entries returns the category's full pending list.
	Entries(ctx context.Context, category usage.Category) ([][]byte, error)

	// Reset replaces the category's pending list with the given entries.
	// Used at startup to make the list match the on-disk backup exactly,
	// whether or not the cache survived the restart.
	Reset(ctx context.Context, category usage.Category, entries [][]byte) error

	// Len returns the category's pending list length.
	Len(ctx context.Context, category usage.Category) (int64, error)

	// Ping reports whether the cache is reachable.
	Ping(ctx context.Context) error
}

// RedisPendingUsageCache implements PendingUsageCache on a Redis list per
// category.
type RedisPendingUsageCache struct {
	client *redis.Client
	logger logger.Interface
}

// NewPendingUsageCache creates a new Redis-backed pending usage cache
func NewPendingUsageCache(client *redis.Client, logger logger.Interface) PendingUsageCache {
	return &RedisPendingUsageCache{
		client: client,
		logger: logger,
	}
}

func pendingUsageKey(category usage.Category) string {
	return pendingUsageKeyPrefix + category.String()
}

// Append pushes entries to the tail of the category's pending list
func (c *RedisPendingUsageCache) Append(ctx context.Context, category usage.Category, entries [][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		values = append(values, entry)
	}

	if err := c.client.RPush(ctx, pendingUsageKey(category), values...).Err(); err != nil {
		return fmt.Errorf("failed to append pending usage for %s: %w", category, err)
	}

	return nil
}

// Peek returns up to max entries from the head without removing them
func (c *RedisPendingUsageCache) Peek(ctx context.Context, category usage.Category, max int) ([][]byte, error) {
	if max <= 0 {
		return nil, nil
	}

	values, err := c.client.LRange(ctx, pendingUsageKey(category), 0, int64(max-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to peek pending usage for %s: %w", category, err)
	}

	return toByteEntries(values), nil
}

// Remove pops count entries from the head
func (c *RedisPendingUsageCache) Remove(ctx context.Context, category usage.Category, count int) error {
	if count <= 0 {
		return nil
	}

	err := c.client.LPopCount(ctx, pendingUsageKey(category), count).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to remove pending usage for %s: %w", category, err)
	}

	return nil
}

// Entries returns the category's full pending list
func (c *RedisPendingUsageCache) Entries(ctx context.Context, category usage.Category) ([][]byte, error) {
	values, err := c.client.LRange(ctx, pendingUsageKey(category), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read pending usage for %s: %w", category, err)
	}

	return toByteEntries(values), nil
}

// Reset replaces the category's pending list with the given entries
func (c *RedisPendingUsageCache) Reset(ctx context.Context, category usage.Category, entries [][]byte) error {
	key := pendingUsageKey(category)

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(entries) > 0 {
			values := make([]interface{}, 0, len(entries))
			for _, entry := range entries {
				values = append(values, entry)
			}
			pipe.RPush(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset pending usage for %s: %w", category, err)
	}

	c.logger.Infow("pending usage list reset", "category", category.String(), "entries", len(entries))
	return nil
}

// Len returns the category's pending list length
func (c *RedisPendingUsageCache) Len(ctx context.Context, category usage.Category) (int64, error) {
	length, err := c.client.LLen(ctx, pendingUsageKey(category)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get pending usage length for %s: %w", category, err)
	}

	return length, nil
}

// Ping reports whether the cache is reachable
func (c *RedisPendingUsageCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache unreachable: %w", err)
	}
	return nil
}

func toByteEntries(values []string) [][]byte {
	if len(values) == 0 {
		return nil
	}

	entries := make([][]byte, 0, len(values))
	for _, v := range values {
		entries = append(entries, []byte(v))
	}
	return entries
}
