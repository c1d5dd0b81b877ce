package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/utils"
)

// ActiveSessionCache is the explicit has-active-session cache for the
// one-active-session-per-case rule. The database stays authoritative;
// entries carry a declared TTL and are invalidated by the session lifecycle
// mutations that would stale them.
type ActiveSessionCache interface {
	GetActive(ctx context.Context, caseID uuid.UUID) (uuid.UUID, bool, error)
	SetActive(ctx context.Context, caseID uuid.UUID, sessionID uuid.UUID) error
	Invalidate(ctx context.Context, caseID uuid.UUID) error
	Close() error
}

type activeSessionCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewActiveSessionCache(log *logger.Logger) (ActiveSessionCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ttlSeconds := utils.GetEnvAsInt("ACTIVE_SESSION_CACHE_TTL_SECONDS", 300, nil)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &activeSessionCache{
		log: log.With("service", "ActiveSessionCache"),
		rdb: rdb,
		ttl: time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func cacheKey(caseID uuid.UUID) string {
	return "casecall:active_session:" + caseID.String()
}

func (c *activeSessionCache) GetActive(ctx context.Context, caseID uuid.UUID) (uuid.UUID, bool, error) {
	val, err := c.rdb.Get(ctx, cacheKey(caseID)).Result()
	if err == goredis.Nil {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		// Corrupt entry; drop it and fall back to the database.
		_ = c.rdb.Del(ctx, cacheKey(caseID)).Err()
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

func (c *activeSessionCache) SetActive(ctx context.Context, caseID uuid.UUID, sessionID uuid.UUID) error {
	return c.rdb.Set(ctx, cacheKey(caseID), sessionID.String(), c.ttl).Err()
}

func (c *activeSessionCache) Invalidate(ctx context.Context, caseID uuid.UUID) error {
	return c.rdb.Del(ctx, cacheKey(caseID)).Err()
}

func (c *activeSessionCache) Close() error {
	return c.rdb.Close()
}
