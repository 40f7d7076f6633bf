package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stockroom/internal/logger"
)

const (
	// breadcrumbKeyPrefix is the key prefix for cached breadcrumbs.
	breadcrumbKeyPrefix = "breadcrumb:"

	// versionKey holds the generation counter mixed into every entry key.
	versionKey = breadcrumbKeyPrefix + "version"

	// DefaultBreadcrumbTTL is how long a breadcrumb stays cached.
	DefaultBreadcrumbTTL = 10 * time.Minute
)

// Connect creates a Redis client and verifies the connection with a ping.
func Connect(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Get().Infow("redis connected", "addr", addr, "db", db)
	return client, nil
}

// Redis is a BreadcrumbCache shared between API instances. Invalidation
// bumps a generation counter instead of scanning keys, so a move that
// renames every path below it costs one INCR; stale generations expire
// through the TTL. Set writes under the generation the caller read before
// computing, never the current one, so an instance that computed from the
// old tree cannot publish into the generation another instance just opened.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a breadcrumb cache backed by the given client.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl == 0 {
		ttl = DefaultBreadcrumbTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) version(ctx context.Context) (Generation, error) {
	v, err := r.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return Generation(v), err
}

func (r *Redis) key(gen Generation, categoryID string) string {
	return fmt.Sprintf("%sv%d:%s", breadcrumbKeyPrefix, gen, categoryID)
}

func (r *Redis) Get(ctx context.Context, categoryID string) ([]string, Generation, bool) {
	gen, err := r.version(ctx)
	if err != nil {
		logger.Get().Warnw("breadcrumb cache version error", "error", err)
		return nil, NoGeneration, false
	}
	raw, err := r.client.Get(ctx, r.key(gen, categoryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false
	}
	if err != nil {
		logger.Get().Warnw("breadcrumb cache get error", "category_id", categoryID, "error", err)
		return nil, NoGeneration, false
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		logger.Get().Warnw("breadcrumb cache decode error", "category_id", categoryID, "error", err)
		return nil, gen, false
	}
	return names, gen, true
}

func (r *Redis) Set(ctx context.Context, gen Generation, categoryID string, names []string) {
	if gen < 0 {
		return
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, r.key(gen, categoryID), raw, r.ttl).Err(); err != nil {
		logger.Get().Warnw("breadcrumb cache set error", "category_id", categoryID, "error", err)
	}
}

func (r *Redis) InvalidateAll(ctx context.Context) {
	version, err := r.client.Incr(ctx, versionKey).Result()
	if err != nil {
		logger.Get().Warnw("breadcrumb cache invalidate error", "error", err)
		return
	}
	logger.Get().Debugw("breadcrumb cache invalidated", "version", version)
}
