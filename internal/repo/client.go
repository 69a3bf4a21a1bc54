package repo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions selects the Redis instance holding the camera directory.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisClient wraps the Redis client with connection diagnostics.
type RedisClient struct {
	*redis.Client
	log *zap.Logger
}

// NewRedisClient creates a client; it does not dial until first use.
func NewRedisClient(log *zap.Logger, o RedisOptions) *RedisClient {
	return WrapRedisClient(log, redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}))
}

// WrapRedisClient adopts an existing client, e.g. one pointed at miniredis.
func WrapRedisClient(log *zap.Logger, c *redis.Client) *RedisClient {
	return &RedisClient{Client: c, log: log.Named("redis")}
}

// Ping checks connectivity within 500ms and logs diagnostics.
func (c *RedisClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	opts := c.Options()
	log := c.log.With(
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int("max_retries", opts.MaxRetries),
	)

	start := time.Now()
	err := c.Client.Ping(ctx).Err()
	elapsed := time.Since(start)

	if err != nil {
		log.Warn("connection failed", zap.Error(err), zap.Duration("ping_rtt", elapsed))
		return err
	}
	log.Info("connection established", zap.Duration("ping_rtt", elapsed))
	return nil
}
