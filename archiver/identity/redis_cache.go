package identity

import (
	"context"
	"fmt"
	"os"
	"time"

	Logger "github.com/chanvault/chanvault/utils/log"
	"github.com/go-redis/redis/v8"
)

const (
	identityKeyPrefix = "chanvault_identity__"
	identityCacheTTL  = 24 * time.Hour
)

// RedisIdentityCache is a cross-run shared cache for resolved display
// names. Cache misses and Redis errors are treated the same, the caller
// falls through to the identity endpoint.
type RedisIdentityCache struct {
	inner *redis.Client
}

func GetRedisIdentityCache() (*RedisIdentityCache, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	return &RedisIdentityCache{inner: redisClient}, nil
}

func (c *RedisIdentityCache) Get(ctx context.Context, authorId string) (string, bool) {
	name, err := c.inner.Get(ctx, identityKeyPrefix+authorId).Result()
	if err != nil {
		return "", false
	}
	return name, true
}

func (c *RedisIdentityCache) Set(ctx context.Context, authorId string, displayName string) {
	if err := c.inner.Set(ctx, identityKeyPrefix+authorId, displayName, identityCacheTTL).Err(); err != nil {
		Logger.Log.Warn("fail to cache identity ", authorId, " : ", err)
	}
}
