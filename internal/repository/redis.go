package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/config"
	"github.com/GoPolymarket/frontdoor/internal/model"
	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	Client *redis.Client
	prefix string
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{Client: rdb, prefix: strings.TrimSuffix(cfg.Redis.KeyPrefix, ":")}, nil
}

func (r *RedisClient) key(parts ...string) string {
	if r.prefix == "" {
		return strings.Join(parts, ":")
	}
	return r.prefix + ":" + strings.Join(parts, ":")
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// ActiveSessionCache remembers the launch a wallet is waiting on so a later
// process can resume polling it.
type ActiveSessionCache struct {
	client *RedisClient
	ttl    time.Duration
}

func NewActiveSessionCache(client *RedisClient, ttl time.Duration) *ActiveSessionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ActiveSessionCache{client: client, ttl: ttl}
}

func (c *ActiveSessionCache) PutActive(ctx context.Context, rec *model.ActiveLaunch) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Client.Set(ctx, c.client.key("active", strings.ToLower(rec.WalletAddress)), payload, c.ttl).Err()
}

func (c *ActiveSessionCache) GetActive(ctx context.Context, wallet string) (*model.ActiveLaunch, error) {
	raw, err := c.client.Client.Get(ctx, c.client.key("active", strings.ToLower(wallet))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec model.ActiveLaunch
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *ActiveSessionCache) DeleteActive(ctx context.Context, wallet string) error {
	return c.client.Client.Del(ctx, c.client.key("active", strings.ToLower(wallet))).Err()
}
