package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/hotstore/internal/core/domain"
)

// DefaultChannel receives one message per rolled back height.
const DefaultChannel = "hotstore:reverts"

// Client wraps Redis operations for rollback notifications and coordination.
type Client struct {
	rdb       *redis.Client
	channel   string
	namespace string
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	Channel   string `yaml:"channel"`
	Namespace string `yaml:"namespace"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newClient(rdb, cfg), nil
}

func newClient(rdb *redis.Client, cfg Config) *Client {
	c := &Client{rdb: rdb, channel: cfg.Channel, namespace: cfg.Namespace}
	if c.channel == "" {
		c.channel = DefaultChannel
	}
	if c.namespace == "" {
		c.namespace = "default"
	}
	return c
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func lockKey(namespace string) string {
	return fmt.Sprintf("hotstore:rollback_lock:%s", namespace)
}

func failedQueueKey(namespace string) string {
	return fmt.Sprintf("hotstore:failed_rollbacks:%s", namespace)
}

func failedKey(namespace, id string) string {
	return fmt.Sprintf("hotstore:failed_rollback:%s:%s", namespace, id)
}

// EmitRevert publishes the event as JSON on the configured channel.
func (c *Client) EmitRevert(ctx context.Context, event domain.RevertEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := c.rdb.Publish(ctx, c.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func encodeEvent(event domain.RevertEvent) ([]byte, error) {
	if event.EventType == "" {
		event.EventType = domain.EventTypeBlockReverted
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal revert event: %w", err)
	}
	return payload, nil
}

// AcquireLock takes the rollback lock so only one process rewinds the store.
func (c *Client) AcquireLock(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(c.namespace), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleaseLock releases the rollback lock if owner still holds it.
func (c *Client) ReleaseLock(ctx context.Context, owner string) error {
	key := lockKey(c.namespace)
	holder, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}
	if holder != owner {
		return nil
	}
	return c.rdb.Del(ctx, key).Err()
}

// RefreshLock extends the TTL of the rollback lock.
func (c *Client) RefreshLock(ctx context.Context, ttl time.Duration) error {
	return c.rdb.Expire(ctx, lockKey(c.namespace), ttl).Err()
}
