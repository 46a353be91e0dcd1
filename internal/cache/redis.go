package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"example.com/fieldtrack/services/ledger/config"
	"example.com/fieldtrack/services/ledger/internal/models"
)

// CacheClient defines the interface for cache operations
type CacheClient interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*models.ActivityPlan, error)
	SetPlan(ctx context.Context, plan *models.ActivityPlan) error
	DeletePlan(ctx context.Context, id uuid.UUID) error
	FlushAll(ctx context.Context) error
}

// RedisClient implements CacheClient using Redis
type RedisClient struct {
	client  *redis.Client
	enabled bool
	ttl     time.Duration
}

// NewRedisClient creates a new Redis client. A disabled configuration
// yields a client whose reads always miss.
func NewRedisClient(cfg config.RedisConfig) (CacheClient, error) {
	if !cfg.Enabled {
		return &RedisClient{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client:  client,
		enabled: true,
		ttl:     10 * time.Minute,
	}, nil
}

func planKey(id uuid.UUID) string {
	return fmt.Sprintf("plan:%s", id)
}

// GetPlan retrieves a plan aggregate from cache
func (c *RedisClient) GetPlan(ctx context.Context, id uuid.UUID) (*models.ActivityPlan, error) {
	if !c.enabled {
		return nil, redis.Nil
	}

	data, err := c.client.Get(ctx, planKey(id)).Bytes()
	if err != nil {
		return nil, err
	}

	var plan models.ActivityPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// SetPlan caches a plan aggregate
func (c *RedisClient) SetPlan(ctx context.Context, plan *models.ActivityPlan) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, planKey(plan.ID), data, c.ttl).Err()
}

// DeletePlan invalidates a cached plan after a write against it
func (c *RedisClient) DeletePlan(ctx context.Context, id uuid.UUID) error {
	if !c.enabled {
		return nil
	}
	return c.client.Del(ctx, planKey(id)).Err()
}

// FlushAll clears all cache
func (c *RedisClient) FlushAll(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.client.FlushAll(ctx).Err()
}
