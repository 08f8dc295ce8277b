package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions configures the shared client used for slot locks and the
// availability cache. Zero values fall back to the defaults below.
type ClientOptions struct {
	Addr     string
	Username string
	Password string
	DB       int

	// Name is reported by CLIENT LIST.
	Name string

	PoolSize       int
	CommandTimeout time.Duration
	DialTimeout    time.Duration
}

const (
	defaultPoolSize       = 10
	defaultCommandTimeout = 2 * time.Second
	defaultDialTimeout    = 5 * time.Second
)

func (o ClientOptions) redisOptions() *redis.Options {
	if o.PoolSize <= 0 {
		o.PoolSize = defaultPoolSize
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = defaultCommandTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	return &redis.Options{
		Addr:         o.Addr,
		Username:     o.Username,
		Password:     o.Password,
		DB:           o.DB,
		ClientName:   o.Name,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.CommandTimeout,
		WriteTimeout: o.CommandTimeout,
		PoolSize:     o.PoolSize,
		MinIdleConns: 1,
	}
}

// NewClient connects and pings once. An unreachable server is an error.
func NewClient(ctx context.Context, opts ClientOptions) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is empty")
	}
	ro := opts.redisOptions()
	rdb := redis.NewClient(ro)

	pingCtx, cancel := context.WithTimeout(ctx, ro.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}
