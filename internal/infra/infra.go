// Package infra opens the external services the terminal backend can use.
// Each one is optional in development.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/cash-point/cashpoint/internal/config"
	"github.com/cash-point/cashpoint/internal/notification"
)

const connectTimeout = 10 * time.Second

// Resources holds the connections shared by the server.
type Resources struct {
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Events *kafka.Writer
}

// Open connects to every service named in cfg.
func Open(ctx context.Context, cfg config.Config) (*Resources, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	res := &Resources{}
	if cfg.DatabaseURL != "" {
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		res.DB = db
	}
	if cfg.RedisURL != "" {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			res.Close(nil)
			return nil, err
		}
		res.Cache = cache
	}
	if len(cfg.KafkaBrokers) > 0 {
		res.Events = notification.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	return res, nil
}

// Close releases every open connection.
func (r *Resources) Close(logger *slog.Logger) {
	if r == nil {
		return
	}
	if r.Events != nil {
		if err := r.Events.Close(); err != nil && logger != nil {
			logger.Warn("close kafka writer", "error", err)
		}
	}
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil && logger != nil {
			logger.Warn("close redis", "error", err)
		}
	}
	if r.DB != nil {
		r.DB.Close()
	}
}

// NewPostgresPool configures and returns a PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
