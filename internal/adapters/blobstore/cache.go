package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/nudge/pkg/logger"
	"github.com/okian/nudge/pkg/metrics"
)

const (
	defaultCacheTTL    = 5 * time.Minute
	defaultCachePrefix = "nudge:blob:"
)

// RedisClient is the subset of redis commands the cache needs.
// *redis.Client satisfies it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type cachedBlob struct {
	Data  []byte `json:"data"`
	Attrs Attrs  `json:"attrs"`
}

// CachedStore is a read-through redis cache in front of a Store. Only paths
// under the configured prefixes are cached; Put invalidates the entry.
// Redis failures fall back to the backing store.
type CachedStore struct {
	next      Store
	redis     RedisClient
	ttl       time.Duration
	keyPrefix string
	prefixes  []string
	log       logger.Logger
}

// CacheOption configures a CachedStore.
type CacheOption func(*CachedStore)

// WithCacheTTL sets the entry lifetime.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachedStore) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCachePrefixes limits caching to paths under the given prefixes.
func WithCachePrefixes(prefixes ...string) CacheOption {
	return func(c *CachedStore) {
		c.prefixes = append([]string(nil), prefixes...)
	}
}

// WithCacheKeyPrefix sets the redis key namespace.
func WithCacheKeyPrefix(prefix string) CacheOption {
	return func(c *CachedStore) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// WithCacheLogger sets the logger used for degraded-mode warnings.
func WithCacheLogger(l logger.Logger) CacheOption {
	return func(c *CachedStore) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCachedStore wraps next with a redis cache.
func NewCachedStore(next Store, client RedisClient, opts ...CacheOption) *CachedStore {
	c := &CachedStore{
		next:      next,
		redis:     client,
		ttl:       defaultCacheTTL,
		keyPrefix: defaultCachePrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("blobcache")
	}
	return c
}

func (c *CachedStore) cacheable(p string) bool {
	for _, prefix := range c.prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (c *CachedStore) key(p string) string {
	return c.keyPrefix + p
}

// Head implements Store. Metadata is never cached so generations stay fresh.
func (c *CachedStore) Head(ctx context.Context, p string) (Attrs, error) {
	return c.next.Head(ctx, p)
}

// Read implements Store.
func (c *CachedStore) Read(ctx context.Context, p string) ([]byte, Attrs, error) {
	if !c.cacheable(p) {
		return c.next.Read(ctx, p)
	}

	raw, err := c.redis.Get(ctx, c.key(p)).Bytes()
	switch {
	case err == nil:
		var hit cachedBlob
		if jerr := json.Unmarshal(raw, &hit); jerr == nil {
			metrics.RecordCacheHit()
			return hit.Data, hit.Attrs, nil
		}
		metrics.RecordCacheError()
		c.log.Warn(ctx, "discarding undecodable cache entry", logger.String("path", p))
	case errors.Is(err, redis.Nil):
		metrics.RecordCacheMiss()
	default:
		metrics.RecordCacheError()
		c.log.Warn(ctx, "cache read failed, using backing store", logger.String("path", p), logger.Error(err))
	}

	data, attrs, err := c.next.Read(ctx, p)
	if err != nil {
		return nil, Attrs{}, err
	}
	if payload, jerr := json.Marshal(cachedBlob{Data: data, Attrs: attrs}); jerr == nil {
		if serr := c.redis.Set(ctx, c.key(p), payload, c.ttl).Err(); serr != nil {
			metrics.RecordCacheError()
			c.log.Warn(ctx, "cache fill failed", logger.String("path", p), logger.Error(serr))
		}
	}
	return data, attrs, nil
}

// Put implements Store.
func (c *CachedStore) Put(ctx context.Context, p string, data []byte, opts ...PutOption) (Attrs, error) {
	attrs, err := c.next.Put(ctx, p, data, opts...)
	if err != nil {
		return Attrs{}, err
	}
	if c.cacheable(p) {
		if derr := c.redis.Del(ctx, c.key(p)).Err(); derr != nil {
			metrics.RecordCacheError()
			c.log.Warn(ctx, "cache invalidation failed", logger.String("path", p), logger.Error(derr))
		}
	}
	return attrs, nil
}

// List implements Store.
func (c *CachedStore) List(ctx context.Context, prefix string) ([]Attrs, error) {
	return c.next.List(ctx, prefix)
}

// Close closes the backing store and the redis client when it is closable.
func (c *CachedStore) Close() error {
	err := c.next.Close()
	if closer, ok := c.redis.(interface{ Close() error }); ok {
		err = errors.Join(err, closer.Close())
	}
	return err
}
