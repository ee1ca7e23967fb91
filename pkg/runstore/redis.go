package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis run-store backend.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password for Redis authentication (optional)
	Password string

	// DB is the database number to use
	DB int

	// Prefix is prepended to all run keys
	Prefix string

	// TTL is the time-to-live for run keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(addr string) RedisConfig {
	return RedisConfig{
		Addr:     addr,
		Prefix:   "trrecon:runs:",
		TTL:      30 * 24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// RedisBackend stores runs in Redis for low-latency shared access.
type RedisBackend struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisBackend creates a Redis run-store backend.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &RedisBackend{cfg: cfg, client: client}, nil
}

func (b *RedisBackend) key(id string) string {
	return b.cfg.Prefix + id
}

// Save persists a run to Redis.
func (b *RedisBackend) Save(ctx context.Context, run *Run) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	if err := b.client.Set(ctx, b.key(run.ID), data, b.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("saving run to Redis: %w", err)
	}
	return nil
}

// Load retrieves a run from Redis. Missing runs return os.ErrNotExist.
func (b *RedisBackend) Load(ctx context.Context, id string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("loading run from Redis: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshaling run %s: %w", id, err)
	}
	return &run, nil
}

// Delete removes a run from Redis.
func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	return b.client.Del(ctx, b.key(id)).Err()
}

// List returns all runs, newest first.
func (b *RedisBackend) List(ctx context.Context) ([]*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	var keys []string
	iter := b.client.Scan(ctx, 0, b.cfg.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.Contains(key, ":lock:") {
			continue
		}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning run keys: %w", err)
	}

	var runs []*Run
	for _, key := range keys {
		run, err := b.Load(ctx, strings.TrimPrefix(key, b.cfg.Prefix))
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// Name returns "redis".
func (b *RedisBackend) Name() string { return "redis" }

// Close closes the Redis connection.
func (b *RedisBackend) Close() error { return b.client.Close() }

// DocumentLocker is implemented by backends that can serialize
// reconciliations of one canonical document across workers.
type DocumentLocker interface {
	AcquireLock(ctx context.Context, documentPath string, ttl time.Duration) (*Lock, error)
}

// Lock is a distributed per-document run lock. Two reconciliations of
// the same live document must be serialized; the lock enforces that
// across workers.
type Lock struct {
	backend *RedisBackend
	key     string
	value   string
	ttl     time.Duration
}

// AcquireLock attempts to take the run lock for a canonical document.
func (b *RedisBackend) AcquireLock(ctx context.Context, documentPath string, ttl time.Duration) (*Lock, error) {
	lockKey := b.cfg.Prefix + "lock:" + sanitizeKey(documentPath)
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	ok, err := b.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("document %s is locked by another run", documentPath)
	}

	return &Lock{backend: b, key: lockKey, value: lockValue, ttl: ttl}, nil
}

// Release releases the lock. A Lua compare-and-delete ensures only the
// holder can release.
func (l *Lock) Release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, l.backend.client, []string{l.key}, l.value).Result()
	return err
}

// Extend extends the lock TTL, failing if the lock was lost.
func (l *Lock) Extend(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
	result, err := script.Run(ctx, l.backend.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return fmt.Errorf("run lock no longer held")
	}
	return nil
}

func sanitizeKey(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
