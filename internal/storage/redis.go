package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/rickgao/botmanager/internal/config"
)

// Redis stores each bucket as a Redis hash.
type Redis struct {
	pool *redis.Pool
}

// NewRedis creates a pooled Redis store and verifies the server answers.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	pool := &redis.Pool{
		MaxIdle:     cfg.MaxIdle,
		MaxActive:   cfg.MaxActive,
		Wait:        true,
		IdleTimeout: cfg.IdleTimeout,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, cfg.URL)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	r := &Redis{pool: pool}
	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return r, nil
}

func (r *Redis) do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, unavailable("redis "+cmd, err)
	}
	defer conn.Close()

	reply, err := redis.DoContext(conn, ctx, cmd, args...)
	if err != nil {
		if _, ok := err.(redis.Error); ok {
			// Server-side error reply, the connection itself is fine.
			return nil, fmt.Errorf("redis %s: %w", cmd, err)
		}
		return nil, unavailable("redis "+cmd, err)
	}
	return reply, nil
}

func (r *Redis) Set(ctx context.Context, bucket, field, value string) error {
	_, err := r.do(ctx, "HSET", bucket, field, value)
	return err
}

func (r *Redis) GetAll(ctx context.Context, bucket string) (map[string]string, error) {
	m, err := redis.StringMap(r.do(ctx, "HGETALL", bucket))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Redis) Delete(ctx context.Context, bucket, field string) error {
	_, err := r.do(ctx, "HDEL", bucket, field)
	return err
}

func (r *Redis) Ping(ctx context.Context) error {
	_, err := r.do(ctx, "PING")
	return err
}

func (r *Redis) Close() error {
	return r.pool.Close()
}
