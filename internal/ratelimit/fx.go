package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/homekeep/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(ProvideWriteLimiter),
)

// ProvideWriteLimiter uses Redis when a client is available so limits hold
// across replicas.
func ProvideWriteLimiter(cfg config.Config, client *redis.Client) *WriteLimiter {
	rate, burst := limitsFromConfig(cfg)
	if client != nil {
		return NewWriteLimiter(NewRedisBucket(client), rate, burst)
	}
	return NewWriteLimiter(NewLocalBucket(), rate, burst)
}
