package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	logx "stockalert/pkg/logx"
)

const (
	DefaultRedisKey = "stockalert:run-lock"
	DefaultRedisTTL = 10 * time.Minute
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a SET NX PX lock. While held, the TTL is refreshed every TTL/3.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	log    logx.Logger
}

func NewRedis(client redis.UniversalClient, key string, ttl time.Duration, log logx.Logger) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Redis{client: client, key: key, ttl: ttl, log: log}
}

// Close closes the redis client. A lock still held expires with its TTL.
func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) TryLock(ctx context.Context) (func() error, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("runlock: redis setnx: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(token, stop, done)

	var once sync.Once
	var rerr error
	return func() error {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			rerr = releaseScript.Run(ctx, r.client, []string{r.key}, token).Err()
		})
		return rerr
	}, nil
}

func (r *Redis) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(r.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			n, err := extendScript.Run(ctx, r.client, []string{r.key}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				r.log.Warn("run lock refresh failed", logx.String("key", r.key), logx.Err(err))
				continue
			}
			if n == 0 {
				r.log.Warn("run lock lost", logx.String("key", r.key))
				return
			}
		}
	}
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("runlock: token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
