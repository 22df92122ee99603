// Package cache provides the Redis-backed narrative cache
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL is used when no TTL is configured
const DefaultTTL = 24 * time.Hour

const keyPrefix = "clinctx:narrative"

// Narrative is a cached model answer
type Narrative struct {
	Model       string    `json:"model"`
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Config holds cache configuration
type Config struct {
	URL string
	TTL time.Duration
}

// NarrativeCache stores model answers keyed by model, context digest and
// question. The zero configuration gives a disabled cache that never hits.
type NarrativeCache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
	logger  *zap.Logger
}

// New connects to Redis. An empty URL returns a disabled cache.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*NarrativeCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		return &NarrativeCache{logger: logger}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &NarrativeCache{client: client, ttl: ttl, enabled: true, logger: logger}, nil
}

// Enabled reports whether the cache talks to Redis
func (c *NarrativeCache) Enabled() bool { return c != nil && c.enabled }

// Key derives the cache key. The question is trimmed and lowercased so
// trivially different phrasings of the same question share an entry.
func Key(model, digest, question string) string {
	q := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(model + "|" + digest + "|" + q))
	return keyPrefix + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached narrative and whether it was found
func (c *NarrativeCache) Get(ctx context.Context, model, digest, question string) (*Narrative, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}

	data, err := c.client.Get(ctx, Key(model, digest, question)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var n Narrative
	if err := json.Unmarshal(data, &n); err != nil {
		c.logger.Warn("dropping corrupt cache entry", zap.Error(err))
		return nil, false, nil
	}
	return &n, true, nil
}

// Put stores a narrative with the configured TTL
func (c *NarrativeCache) Put(ctx context.Context, digest, question string, n *Narrative) error {
	if !c.Enabled() || n == nil {
		return nil
	}

	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, Key(n.Model, digest, question), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (c *NarrativeCache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *NarrativeCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
