// Package redis provides a go-redis client component with pooling,
// lifecycle management and health checks. It backs the shared rate limit
// counters.
//
//	comp := redis.NewComponent(cfg.Redis, log)
//	store := ratelimit.NewRedisStore(comp.Client().Unwrap())
package redis
