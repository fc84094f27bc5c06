package bots

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds resolved explicit-id lookups. Safe for concurrent use
// across stream sessions.
type Cache interface {
	Get(ctx context.Context, userID string, botID uint64) (*BotConfig, bool)
	Set(ctx context.Context, b *BotConfig)
}

type memEntry struct {
	bot *BotConfig
	exp time.Time
}

type MemCache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]memEntry
}

func NewMemCache(ttl time.Duration) *MemCache {
	return &MemCache{ttl: ttl, m: make(map[string]memEntry)}
}

func cacheKey(userID string, botID uint64) string {
	return fmt.Sprintf("bot:%s:%d", userID, botID)
}

func (c *MemCache) Get(_ context.Context, userID string, botID uint64) (*BotConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[cacheKey(userID, botID)]
	if !ok || time.Now().After(e.exp) {
		return nil, false
	}
	cp := *e.bot
	return &cp, true
}

func (c *MemCache) Set(_ context.Context, b *BotConfig) {
	cp := *b
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[cacheKey(b.UserID, b.ID)] = memEntry{bot: &cp, exp: time.Now().Add(c.ttl)}
}

// RedisCache shares resolved bots across relay instances.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// cachedBot carries every BotConfig field; the model's own json tags
// hide credentials from API responses and must not apply here.
type cachedBot struct {
	ID            uint64    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	AccessKey     string    `json:"access_key"`
	AccessPath    *string   `json:"access_path"`
	Model         string    `json:"model"`
	Temperature   float32   `json:"temperature"`
	MaxTokens     int       `json:"max_tokens"`
	OpenRouterKey *string   `json:"openrouter_key"`
	UseOpenRouter bool      `json:"use_openrouter"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (c *RedisCache) Get(ctx context.Context, userID string, botID uint64) (*BotConfig, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(userID, botID)).Bytes()
	if err != nil {
		return nil, false
	}
	var cb cachedBot
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, false
	}
	return &BotConfig{
		ID: cb.ID, UserID: cb.UserID, Name: cb.Name,
		AccessKey: cb.AccessKey, AccessPath: cb.AccessPath,
		Model: cb.Model, Temperature: cb.Temperature, MaxTokens: cb.MaxTokens,
		OpenRouterKey: cb.OpenRouterKey, UseOpenRouter: cb.UseOpenRouter,
		IsDefault: cb.IsDefault, CreatedAt: cb.CreatedAt, UpdatedAt: cb.UpdatedAt,
	}, true
}

func (c *RedisCache) Set(ctx context.Context, b *BotConfig) {
	raw, err := json.Marshal(cachedBot{
		ID: b.ID, UserID: b.UserID, Name: b.Name,
		AccessKey: b.AccessKey, AccessPath: b.AccessPath,
		Model: b.Model, Temperature: b.Temperature, MaxTokens: b.MaxTokens,
		OpenRouterKey: b.OpenRouterKey, UseOpenRouter: b.UseOpenRouter,
		IsDefault: b.IsDefault, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	})
	if err != nil {
		return
	}
	// best effort
	_ = c.rdb.Set(ctx, cacheKey(b.UserID, b.ID), raw, c.ttl).Err()
}
