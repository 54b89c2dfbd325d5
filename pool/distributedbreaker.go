package pool

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// distributedBreakerState shares circuit-breaker state across pool
// instances in separate processes through Redis, so that when one
// process trips the breaker on a dead backend, sibling processes pointed
// at the same backend stop paying its connect timeout too. It is an
// alternative to circuitBreaker's in-process state, selected with
// WithDistributedCircuitBreaker.
type distributedBreakerState struct {
	client    *redis.Client
	key       string
	threshold int64
	cooldown  time.Duration
}

func newDistributedBreakerState(opt *redis.Options, key string, threshold int, cooldown time.Duration) *distributedBreakerState {
	return &distributedBreakerState{
		client:    redis.NewClient(opt),
		key:       key,
		threshold: int64(threshold),
		cooldown:  cooldown,
	}
}

// allow reports whether a dial attempt should proceed, consulting the
// shared open/closed marker rather than local failure counts.
func (d *distributedBreakerState) allow(ctx context.Context) bool {
	ttl, err := d.client.TTL(ctx, d.openKey()).Result()
	if err != nil {
		return true // fail open -- a dead Redis shouldn't block dialing the real backend
	}
	return ttl <= 0
}

func (d *distributedBreakerState) recordFailure(ctx context.Context) {
	n, err := d.client.Incr(ctx, d.failuresKey()).Result()
	if err != nil {
		return
	}
	d.client.Expire(ctx, d.failuresKey(), d.cooldown)
	if n >= d.threshold {
		d.client.Set(ctx, d.openKey(), 1, d.cooldown)
	}
}

func (d *distributedBreakerState) recordSuccess(ctx context.Context) {
	d.client.Del(ctx, d.failuresKey(), d.openKey())
}

func (d *distributedBreakerState) failuresKey() string { return d.key + ":failures" }
func (d *distributedBreakerState) openKey() string     { return d.key + ":open" }

func (d *distributedBreakerState) close() error {
	return d.client.Close()
}

// WithDistributedCircuitBreaker is like WithCircuitBreaker, but shares
// trip state across pool instances via Redis under key, instead of
// tracking consecutive failures in this process's memory alone.
func WithDistributedCircuitBreaker(redisOpt *redis.Options, key string, consecutiveFailures int, cooldown time.Duration) Option {
	return func(p *ConnectionPool) {
		p.distBreaker = newDistributedBreakerState(redisOpt, key, consecutiveFailures, cooldown)
	}
}
