package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/kvpool/pkg/kverr"
	"github.com/redis/go-redis/v9"
)

// DefaultURL is the store target used when none is configured.
const DefaultURL = "redis://127.0.0.1/"

// Options tunes the sessions opened by a RedisDialer. Zero values keep what
// the connection string (or go-redis) specifies.
type Options struct {
	// DialTimeout bounds establishing the TCP session.
	DialTimeout time.Duration

	// ReadTimeout and WriteTimeout bound individual commands.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisDialer opens dedicated single-socket go-redis sessions.
type RedisDialer struct {
	opts *redis.Options
}

// NewRedisDialer parses url once and returns a dialer for it.
// A malformed url is reported as a client construction error.
func NewRedisDialer(url string, o Options) (*RedisDialer, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, kverr.New(kverr.StageClientConstruction, "parse_url", err)
	}

	if o.DialTimeout > 0 {
		opts.DialTimeout = o.DialTimeout
	}
	if o.ReadTimeout > 0 {
		opts.ReadTimeout = o.ReadTimeout
	}
	if o.WriteTimeout > 0 {
		opts.WriteTimeout = o.WriteTimeout
	}

	// Exactly one socket per session; lifetime, idling and retries are the
	// caller's business.
	opts.PoolSize = 1
	opts.MinIdleConns = 0
	opts.MaxIdleConns = 1
	opts.ConnMaxIdleTime = -1
	opts.ConnMaxLifetime = 0
	opts.MaxRetries = -1

	return &RedisDialer{opts: opts}, nil
}

// Addr returns the host:port the dialer connects to.
func (d *RedisDialer) Addr() string {
	return d.opts.Addr
}

// Dial opens a session and pings it so an unreachable store fails here
// rather than on the first command.
func (d *RedisDialer) Dial(ctx context.Context) (Conn, error) {
	opts := *d.opts
	client := redis.NewClient(&opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("dial %s: %w", opts.Addr, err)
	}

	return &redisConn{client: client}, nil
}

type redisConn struct {
	client *redis.Client
}

func (c *redisConn) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, key, value, 0).Err()
}

func (c *redisConn) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Expire(ctx, key, ttl).Err()
}

func (c *redisConn) Get(ctx context.Context, key string) (any, error) {
	val, err := c.client.Do(ctx, "GET", key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *redisConn) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisConn) Close() error {
	return c.client.Close()
}
