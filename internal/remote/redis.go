package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/promodesk/slovolov/internal/database"
)

// Redis stores all configs as fields of a single hash: one field per
// subcluster id, value = the config document JSON.
type Redis struct {
	rdb *goredis.Client
	key string
}

// Dial connects to Redis and verifies the connection with a ping.
func Dial(addr, key string) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{rdb: rdb, key: key}, nil
}

func (r *Redis) Get(ctx context.Context, subclusterID string) (database.BindingConfig, bool, error) {
	var cfg database.BindingConfig
	raw, err := r.rdb.HGet(ctx, r.key, subclusterID).Result()
	if err == goredis.Nil {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, fmt.Errorf("reading remote config: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, false, fmt.Errorf("decoding remote config: %w", err)
	}
	return cfg, true, nil
}

func (r *Redis) PutAll(ctx context.Context, configs map[string]database.BindingConfig) error {
	if len(configs) == 0 {
		return nil
	}

	fields := make(map[string]any, len(configs))
	for id, cfg := range configs {
		doc, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encoding config for %s: %w", id, err)
		}
		fields[id] = string(doc)
	}

	if err := r.rdb.HSet(ctx, r.key, fields).Err(); err != nil {
		return fmt.Errorf("pushing configs: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
