package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache stores generated details by key.
type Cache interface {
	Get(ctx context.Context, key string) (Details, bool, error)
	Set(ctx context.Context, key string, d Details) error
}

// CacheKey hashes disease and the symptom set. Symptom order does not matter.
func CacheKey(disease string, symptoms []string) string {
	sorted := make([]string, len(symptoms))
	copy(sorted, symptoms)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(disease))))
	for _, s := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryCache is a size bounded LRU with per entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, Details]
}

// NewMemoryCache holds up to size entries for ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 256
	}
	return &MemoryCache{lru: expirable.NewLRU[string, Details](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Details, bool, error) {
	d, ok := c.lru.Get(key)
	return d, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, d Details) error {
	c.lru.Add(key, d)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int { return c.lru.Len() }

// RedisCache stores JSON encoded details in Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to url and pings it.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "lifeline:details:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (Details, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Details{}, false, nil
	}
	if err != nil {
		return Details{}, false, fmt.Errorf("redis get: %w", err)
	}

	var d Details
	if err := json.Unmarshal(val, &d); err != nil {
		return Details{}, false, fmt.Errorf("redis decode: %w", err)
	}
	return d, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, d Details) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("redis encode: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
