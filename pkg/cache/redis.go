package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entries are stored as hashes with two fields so metadata can be listed
// without pulling value bodies across the wire.
const (
	redisFieldValue = "value"
	redisFieldMeta  = "meta"
)

// RedisStore is a Redis-backed Store for multi-instance deployments.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// DefaultRedisPrefix namespaces store keys; the sweep scans everything under
// it, so other components sharing the database must stay outside.
const DefaultRedisPrefix = "usedby:"

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces all keys (default [DefaultRedisPrefix]).
	Prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, *Metadata, error) {
	vals, err := s.client.HMGet(ctx, s.prefix+key, redisFieldValue, redisFieldMeta).Result()
	if err != nil {
		return nil, nil, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, nil, ErrNotFound
	}
	return []byte(raw), decodeMeta(vals[1]), nil
}

func (s *RedisStore) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	full := s.prefix + key
	raw, err := s.client.HGet(ctx, full, redisFieldMeta).Result()
	if err == redis.Nil {
		exists, eerr := s.client.Exists(ctx, full).Result()
		if eerr != nil {
			return nil, eerr
		}
		if exists == 0 {
			return nil, ErrNotFound
		}
		return nil, nil // key exists without metadata (lock or legacy entry)
	}
	if err != nil {
		return nil, err
	}
	return decodeMeta(raw), nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, meta *Metadata) error {
	fields := map[string]any{redisFieldValue: string(value)}
	if meta != nil {
		encoded, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		fields[redisFieldMeta] = string(encoded)
	}
	return s.client.HSet(ctx, s.prefix+key, fields).Err()
}

func (s *RedisStore) PutMetadata(ctx context.Context, key string, meta *Metadata) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.prefix+key, redisFieldMeta, string(encoded)).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// List walks the keyspace with SCAN. The cursor is Redis's numeric scan
// cursor; an empty returned cursor means the scan is complete. SCAN pages
// are approximate in size, so callers must keep draining until done.
func (s *RedisStore) List(ctx context.Context, cursor string, limit int) (*ListPage, error) {
	var scanCursor uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, err
		}
		scanCursor = parsed
	}

	keys, next, err := s.client.Scan(ctx, scanCursor, s.prefix+"*", int64(limit)).Result()
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGet(ctx, key, redisFieldMeta)
	}
	_, _ = pipe.Exec(ctx) // per-command errors inspected below

	page := &ListPage{}
	for i, key := range keys {
		info := KeyInfo{Key: key[len(s.prefix):]}
		if raw, err := cmds[i].Result(); err == nil {
			info.Meta = decodeMeta(raw)
		}
		page.Keys = append(page.Keys, info)
	}
	if next != 0 {
		page.Cursor = strconv.FormatUint(next, 10)
	}
	return page, nil
}

// acquireScript creates the lock hash and sets its expiry in one server-side
// step. A client crash mid-acquire can therefore never leave a lock key
// without a TTL.
var acquireScript = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], ARGV[1], "1") == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0`)

// Acquire atomically creates the key with a TTL if it is absent.
func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	won, err := acquireScript.Run(ctx, s.client, []string{s.prefix + key}, redisFieldValue, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return won == 1, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func decodeMeta(v any) *Metadata {
	raw, ok := v.(string)
	if !ok || raw == "" {
		return nil
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return &meta
}

var _ Store = (*RedisStore)(nil)
