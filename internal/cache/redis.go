package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjannette/dolarbot/internal/models"
)

const keyPrefix = "dolarbot:snapshot:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis stores snapshots as JSON values under one key per currency.
type Redis struct {
	cli *redis.Client
	ttl time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig, ttl time.Duration) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Redis{cli: cli, ttl: ttl}, nil
}

func key(iso string) string {
	return keyPrefix + models.NormalizeISO(iso)
}

func (r *Redis) Put(ctx context.Context, s models.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.cli.Set(ctx, key(s.ISO), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.ISO, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, iso string) (models.Snapshot, bool, error) {
	b, err := r.cli.Get(ctx, key(iso)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Snapshot{}, false, nil
		}
		return models.Snapshot{}, false, fmt.Errorf("redis get %s: %w", iso, err)
	}
	var s models.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return models.Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", iso, err)
	}
	return s, true, nil
}

func (r *Redis) All(ctx context.Context) ([]models.Snapshot, error) {
	var keys []string
	iter := r.cli.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return []models.Snapshot{}, nil
	}

	vals, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make([]models.Snapshot, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // expired between SCAN and MGET
		}
		var s models.Snapshot
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, s)
	}
	sortByISO(out)
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.cli.Close()
}
