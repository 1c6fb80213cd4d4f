package config

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/IvanBrykalov/tagcache/durable"
	"github.com/IvanBrykalov/tagcache/durable/filestore"
	"github.com/IvanBrykalov/tagcache/durable/memstore"
	"github.com/IvanBrykalov/tagcache/durable/redisstore"
	"github.com/IvanBrykalov/tagcache/durable/sqlitestore"
)

// OpenDurable opens the configured backend. It returns (nil, nil) for
// BackendNone. The caller closes the returned store after the cache.
func OpenDurable(ctx context.Context, p PersistenceConfig) (durable.Store, error) {
	switch p.Backend {
	case BackendNone, "":
		return nil, nil
	case BackendMemory:
		return memstore.New(), nil
	case BackendFile:
		s, err := filestore.New(afero.NewOsFs(), p.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		s, err := sqlitestore.Open(ctx, p.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     p.Redis.Addr,
			Password: p.Redis.Password,
			DB:       p.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("config: redis ping %s: %w", p.Redis.Addr, err)
		}
		s, err := redisstore.New(client,
			redisstore.WithPrefix(p.Redis.Prefix),
			redisstore.WithExpiration(p.Redis.Expiration),
		)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalid, p.Backend)
	}
}
