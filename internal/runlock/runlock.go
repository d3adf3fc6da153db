// Package runlock keeps notification runs from overlapping across processes.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "stockalert/pkg/logx"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("run lock is held by another process")

// Locker is a non-blocking mutual exclusion primitive.
type Locker interface {
	// TryLock acquires the lock or fails immediately with ErrLocked.
	// The returned release func must be called exactly once.
	TryLock(ctx context.Context) (release func() error, err error)
}

type Config struct {
	Driver   string // "file" (default), "redis", "none"
	Path     string
	RedisURL string
	Key      string
	TTL      time.Duration
}

// New builds the configured locker.
func New(ctx context.Context, cfg Config, log logx.Logger) (Locker, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d {
	case "", "file", "flock":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, errors.New("runlock: file lock path is required")
		}
		return NewFile(cfg.Path), nil
	case "redis":
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return nil, errors.New("runlock: REDIS_URL is required for the redis lock")
		}
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("runlock: parse redis url: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("runlock: ping redis: %w", err)
		}
		return NewRedis(client, cfg.Key, cfg.TTL, log), nil
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("runlock: unknown driver %q", cfg.Driver)
	}
}

// Noop always succeeds.
type Noop struct{}

func (Noop) TryLock(context.Context) (func() error, error) {
	return func() error { return nil }, nil
}
