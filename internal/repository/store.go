package repository

import (
	"errors"
	"fmt"
	"io"
	"time"

	"dontforget/internal/config"
	"dontforget/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Open builds the store selected by cfg.Driver. The closer may be nil.
func Open(cfg config.StoreConfig, ttl time.Duration, redisClient *redis.Client, logger *zerolog.Logger) (domain.Store, io.Closer, error) {
	switch cfg.Driver {
	case "", config.StoreMemory:
		return NewMemoryStore(ttl), nil, nil
	case config.StoreRedis:
		if redisClient == nil {
			return nil, nil, errors.New("redis store selected but redis is unavailable")
		}
		return NewRedisStore(redisClient, ttl), nil, nil
	case config.StoreSQLite:
		store, err := NewSQLiteStore(cfg.SQLitePath, ttl)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.StoreFailover:
		fallback := NewMemoryStore(ttl)
		if redisClient == nil {
			logger.Warn().Msg("redis unavailable, failover store runs on memory only")
			return fallback, nil, nil
		}
		return NewFailoverStore(NewRedisStore(redisClient, ttl), fallback, logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
