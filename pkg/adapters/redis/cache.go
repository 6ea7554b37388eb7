// Package redis provides Redis-backed adapters: a shared narration cache, a
// distributed lock for warming it and an analytics stream sink.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// AudioCache implements ports.AudioCache using Redis hashes.
type AudioCache struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ ports.AudioCache = (*AudioCache)(nil)

type Option func(*AudioCache)

// WithTTL sets the expiration of cached clips.
func WithTTL(ttl time.Duration) Option {
	return func(c *AudioCache) {
		c.ttl = ttl
	}
}

// WithPrefix sets the key prefix for clips.
func WithPrefix(prefix string) Option {
	return func(c *AudioCache) {
		c.prefix = prefix
	}
}

// New creates a Redis cache with options.
func New(address, password string, db int, opts ...Option) *AudioCache {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis cache from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *AudioCache {
	c := &AudioCache{
		client: client,
		prefix: "narrate:audio:",
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AudioCache) key(k string) string {
	return c.prefix + k
}

func (c *AudioCache) indexKey() string {
	return c.prefix + "index"
}

// Put stores the clip and records it in the index.
func (c *AudioCache) Put(ctx context.Context, key string, clip domain.AudioClip) error {
	pipe := c.client.TxPipeline()

	pipe.HSet(ctx, c.key(key), "data", clip.Data, "mime", clip.MIME)
	if c.ttl > 0 {
		pipe.Expire(ctx, c.key(key), c.ttl)
	}

	// Score = expiry time; clips without TTL never leave the index.
	score := float64(time.Now().Add(c.ttl).Unix())
	if c.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, c.indexKey(), backend.Z{Score: score, Member: key})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save clip to redis: %w", err)
	}
	return nil
}

// Get returns the clip stored under key. A miss is not an error.
func (c *AudioCache) Get(ctx context.Context, key string) (domain.AudioClip, bool, error) {
	vals, err := c.client.HMGet(ctx, c.key(key), "data", "mime").Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.AudioClip{}, false, nil
		}
		return domain.AudioClip{}, false, fmt.Errorf("failed to get clip from redis: %w", err)
	}
	data, ok := vals[0].(string)
	if !ok {
		return domain.AudioClip{}, false, nil
	}
	mime, _ := vals[1].(string)
	return domain.AudioClip{Data: []byte(data), MIME: mime}, true, nil
}

// Delete removes a clip.
func (c *AudioCache) Delete(ctx context.Context, key string) error {
	pipe := c.client.Pipeline()
	pipe.Del(ctx, c.key(key))
	pipe.ZRem(ctx, c.indexKey(), key)
	_, err := pipe.Exec(ctx)
	return err
}

// Keys lists the cached clips, pruning expired entries from the index first.
func (c *AudioCache) Keys(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := c.client.ZRemRangeByScore(ctx, c.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired clips: %w", err)
	}

	keys, err := c.client.ZRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}
	return keys, nil
}

// Client exposes the underlying client so a Locker or StreamSink can share it.
func (c *AudioCache) Client() *backend.Client {
	return c.client
}

// Close closes the redis client.
func (c *AudioCache) Close() error {
	return c.client.Close()
}
