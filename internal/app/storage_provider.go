package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/nudge/internal/adapters/blobstore"
	"github.com/okian/nudge/internal/adapters/repository"
	"github.com/okian/nudge/internal/config"
	"github.com/okian/nudge/pkg/logger"
)

const redisPingTimeout = 3 * time.Second

// OpenStore builds the blob store selected by cfg, instrumented with
// storage metrics and fronted by the redis cache when redis_addr is set.
// Failures are returned as *StorageError.
func OpenStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	log := logger.Named("storage")

	var (
		store blobstore.Store
		err   error
	)
	switch cfg.StorageBackend {
	case config.BackendMemory:
		store = blobstore.NewMemoryStore()
	case config.BackendGCS, config.BackendGCSEmulator:
		gcsCfg := blobstore.GCSConfig{
			Bucket:          cfg.StorageBucket,
			CredentialsFile: cfg.StorageCredentialsFile,
			PublicBaseURL:   cfg.StoragePublicBaseURL,
		}
		if cfg.StorageBackend == config.BackendGCSEmulator {
			gcsCfg.EmulatorHost = cfg.StorageEmulatorHost
		}
		store, err = blobstore.NewGCSStore(ctx, gcsCfg)
	case config.BackendPostgres:
		store, err = blobstore.OpenSQLStore(ctx, blobstore.DialectPostgres, cfg.StorageDSN, cfg.StorageTable)
	case config.BackendSQLite:
		store, err = blobstore.OpenSQLStore(ctx, blobstore.DialectSQLite, cfg.StorageDSN, cfg.StorageTable)
	case config.BackendMongo:
		store, err = blobstore.OpenMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	default:
		err = fmt.Errorf("unknown backend")
	}
	if err != nil {
		return nil, &StorageError{Backend: cfg.StorageBackend, Err: err}
	}

	store = blobstore.Instrument(store, cfg.StorageBackend)
	log.Info(ctx, "blob store opened", logger.String("backend", cfg.StorageBackend))

	if cfg.RedisAddr == "" {
		return store, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn(ctx, "redis unreachable, continuing without cache",
			logger.String("addr", cfg.RedisAddr), logger.Error(err))
		_ = client.Close()
		return store, nil
	}

	prefixes := CacheablePrefixes(cfg.CachePrefixes)
	log.Info(ctx, "redis cache enabled",
		logger.String("addr", cfg.RedisAddr),
		logger.Strings("prefixes", prefixes),
		logger.Duration("ttl", cfg.CacheTTL()))
	return blobstore.NewCachedStore(store, client,
		blobstore.WithCacheTTL(cfg.CacheTTL()),
		blobstore.WithCachePrefixes(prefixes...),
		blobstore.WithCacheLogger(log.Named("cache")),
	), nil
}

// CacheablePrefixes drops prefixes that would cache the history index.
// Its generation drives compare-and-swap and must always be read fresh.
func CacheablePrefixes(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(repository.IndexPath, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// NewFromConfig opens the configured store and builds a Service over it.
func NewFromConfig(ctx context.Context, cfg *config.Config, log logger.Logger) (*Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(
		WithLogger(log),
		WithStore(store, cfg.StorageBackend),
		WithLocation(loc),
		WithHistoryAttempts(cfg.HistoryMaxAttempts),
		WithFetchConcurrency(cfg.FetchConcurrency),
		WithLegacyLatestMirror(cfg.LegacyLatestMirror),
	), nil
}
