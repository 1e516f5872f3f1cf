package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/LedgerFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("cache: lock is held")

var (
	client     *redis.Client
	clientOnce sync.Once
)

// Options returns the connection settings read from CACHE_HOST, CACHE_PORT
// and CACHE_PASSWORD.
func Options() *redis.Options {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetInt("CACHE_DB", 0),
	}
}

// SetupCache initializes the connection to the Redis server
func SetupCache() {
	clientOnce.Do(func() {
		client = redis.NewClient(Options())

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		pong, err := client.Ping(ctx).Result()
		if err != nil {
			log.Warnf("[Cache] Could not connect to Redis at %s: %v", client.Options().Addr, err)
			return
		}
		log.Infof("[Cache] Connected to Redis: %s", pong)
	})
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	SetupCache()
	return client
}

// Ping reports whether Redis answers.
func Ping(ctx context.Context) error {
	return GetClient().Ping(ctx).Err()
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out expiring locks stored as Redis keys.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

// Acquire takes key for at most ttl. It returns ErrLockHeld when the key is
// taken. The returned release func is safe to call after the lock expired.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", full, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{full}, token).Err(); err != nil {
			log.Warnf("[Cache] Failed to release lock %s: %v", full, err)
		}
	}, nil
}

// LocalLocker is an in-process locker for single-instance runs and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]time.Time{}, now: time.Now}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, ErrLockHeld
	}
	until := now.Add(ttl)
	l.held[key] = until
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(until) {
			delete(l.held, key)
		}
	}, nil
}
