package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// availabilityTTL bounds staleness if an invalidation is ever lost.
const availabilityTTL = 5 * time.Minute

// Client caches event availability for the public read path. The database
// is always authoritative; everything here is best-effort.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func availabilityKey(eventID int64) string {
	return fmt.Sprintf("availability:%d", eventID)
}

// GetAvailability returns the cached counters for an event.
// found is false on a miss.
func (c *Client) GetAvailability(ctx context.Context, eventID int64) (total, available int, found bool, err error) {
	val, err := c.rdb.Get(ctx, availabilityKey(eventID)).Result()
	if err == redis.Nil {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}

	parts := strings.SplitN(val, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false, fmt.Errorf("corrupt availability cache entry: %q", val)
	}
	total, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false, fmt.Errorf("corrupt availability cache entry: %w", err)
	}
	available, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false, fmt.Errorf("corrupt availability cache entry: %w", err)
	}
	return total, available, true, nil
}

// SetAvailability caches the counters for an event
func (c *Client) SetAvailability(ctx context.Context, eventID int64, total, available int) error {
	val := fmt.Sprintf("%d:%d", total, available)
	return c.rdb.Set(ctx, availabilityKey(eventID), val, availabilityTTL).Err()
}

// InvalidateAvailability drops the cached counter after an inventory write
func (c *Client) InvalidateAvailability(ctx context.Context, eventID int64) error {
	return c.rdb.Del(ctx, availabilityKey(eventID)).Err()
}
