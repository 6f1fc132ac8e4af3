package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"todo-scheduler/internal/config"
	"todo-scheduler/internal/models"
	"todo-scheduler/pkg/logger"
)

const todosCacheKey = "todos:all"

// TodoCache keeps the full todo list in Redis. Failures are logged and
// reported as misses so callers fall back to the store.
type TodoCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to cfg.URL and verifies the connection with a ping.
func New(ctx context.Context, cfg config.RedisConfig) (*TodoCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info(ctx, "Redis client initialized", "pool_size", opts.PoolSize, "ttl", cfg.CacheTTL.String())
	return NewTodoCache(client, cfg.CacheTTL), nil
}

func NewTodoCache(client *redis.Client, ttl time.Duration) *TodoCache {
	return &TodoCache{client: client, ttl: ttl}
}

// GetTodos reads the todos list from Redis. Returns (nil, false) on miss or error.
func (c *TodoCache) GetTodos(ctx context.Context) ([]models.Todo, bool) {
	b, err := c.client.Get(ctx, todosCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Debug(ctx, "Redis get todos failed", "error", err)
		return nil, false
	}
	var todos []models.Todo
	if err := json.Unmarshal(b, &todos); err != nil {
		logger.Debug(ctx, "Redis unmarshal todos failed", "error", err)
		return nil, false
	}
	return todos, true
}

// SetTodos writes the todos list to Redis with the configured TTL.
func (c *TodoCache) SetTodos(ctx context.Context, todos []models.Todo) {
	b, err := json.Marshal(todos)
	if err != nil {
		logger.Debug(ctx, "Marshal todos for cache failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, todosCacheKey, b, c.ttl).Err(); err != nil {
		logger.Debug(ctx, "Redis set todos failed", "error", err)
	}
}

// InvalidateTodos deletes the todos cache key so the next read goes to the store.
func (c *TodoCache) InvalidateTodos(ctx context.Context) {
	if err := c.client.Del(ctx, todosCacheKey).Err(); err != nil {
		logger.Warn(ctx, "Redis invalidate todos failed", "error", err)
	}
}

func (c *TodoCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *TodoCache) Close() error {
	return c.client.Close()
}
