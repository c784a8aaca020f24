package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abhisek/quizrag/internal/logger"
)

// ErrCacheMiss is returned by a Cache that has no entry for a key.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores encoded vectors by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte) error
}

// RedisCache is a Cache on a Redis client.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache returns a RedisCache. ttl <= 0 selects 7 days.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte) error {
	return c.rdb.Set(ctx, key, val, c.ttl).Err()
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// CachedEmbedder memoises another Embedder. Cache failures are logged and
// fall through to the wrapped embedder.
type CachedEmbedder struct {
	inner Embedder
	cache Cache
	log   *logger.Logger
}

// NewCachedEmbedder wraps inner with cache.
func NewCachedEmbedder(inner Embedder, cache Cache, log *logger.Logger) *CachedEmbedder {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedEmbedder{inner: inner, cache: cache, log: log}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	b, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		v, derr := decode(b, c.inner.Dimensions())
		if derr == nil {
			return v, nil
		}
		c.log.Warn("discarding corrupt cached embedding", "key", key, "error", derr.Error())
	case !errors.Is(err, ErrCacheMiss):
		c.log.Warn("embedding cache read failed", "error", err.Error())
	}

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, encode(v)); err != nil {
		c.log.Warn("embedding cache write failed", "error", err.Error())
	}
	return v, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbedder) Model() string { return c.inner.Model() }

// Close closes the cache and the wrapped embedder when either holds
// resources.
func (c *CachedEmbedder) Close() error {
	var errs []error
	if cl, ok := c.cache.(io.Closer); ok {
		errs = append(errs, cl.Close())
	}
	if cl, ok := c.inner.(io.Closer); ok {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("quizrag:emb:%s:%d:%s", c.inner.Model(), c.inner.Dimensions(), hex.EncodeToString(sum[:]))
}

func encode(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decode(b []byte, dims int) ([]float32, error) {
	if len(b) != 4*dims {
		return nil, fmt.Errorf("cached vector is %d bytes, want %d", len(b), 4*dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
