package objectstore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces object keys inside a shared Redis
const DefaultRedisKeyPrefix = "tides:obj:"

// RedisBackend stores each object as a plain string value
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
	ownsConn  bool
}

// NewRedisBackend wraps an existing client. The caller keeps ownership of it.
func NewRedisBackend(client *redis.Client, keyPrefix string) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisBackend{client: client, keyPrefix: keyPrefix}
}

// Name returns the backend name
func (r *RedisBackend) Name() string {
	return "redis"
}

// Get returns the stored value
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, classifyTransportError(r.Name(), err)
	}
	return body, nil
}

// Put overwrites the value without expiry
func (r *RedisBackend) Put(ctx context.Context, key string, body []byte) error {
	if err := r.client.Set(ctx, r.keyPrefix+key, body, 0).Err(); err != nil {
		return classifyTransportError(r.Name(), err)
	}
	return nil
}

// Delete removes the value
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, r.keyPrefix+key).Result()
	if err != nil {
		return classifyTransportError(r.Name(), err)
	}
	if n == 0 {
		return notFound(key)
	}
	return nil
}

// List scans for keys under prefix. SCAN may repeat keys, so results are deduplicated.
func (r *RedisBackend) List(ctx context.Context, prefix string) ([]string, error) {
	pattern := r.keyPrefix + escapeGlob(prefix) + "*"
	seen := make(map[string]struct{})

	iter := r.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		seen[strings.TrimPrefix(iter.Val(), r.keyPrefix)] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, classifyTransportError(r.Name(), err)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the client when the backend dialed it itself
func (r *RedisBackend) Close(ctx context.Context) error {
	if !r.ownsConn {
		return nil
	}
	return r.client.Close()
}

// escapeGlob escapes the characters Redis MATCH treats specially
func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\', '^', '-':
			b.WriteRune('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
