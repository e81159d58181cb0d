// Package idempotency guards concurrent deliveries of the same webhook with a
// short-lived Redis claim.
package idempotency

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"engagement_backend/platform/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "engagement:delivery:"

// ErrInFlight is returned when another worker holds the claim for a delivery.
var ErrInFlight = errors.New("delivery already in flight")

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Guard claims delivery ids in Redis.
type Guard struct {
	rdb *redis.Client
	ttl time.Duration
}

// Claim is a held delivery claim. Release it when processing ends.
type Claim struct {
	key   string
	token string
}

// NewGuard creates a guard on an existing client.
func NewGuard(rdb *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Guard{rdb: rdb, ttl: ttl}
}

// NewRedisClient builds a go-redis client from the scheduler settings.
func NewRedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}

// Claim takes the delivery for this worker. It returns ErrInFlight when
// another worker already holds it.
func (g *Guard) Claim(ctx context.Context, scope, deliveryID string) (Claim, error) {
	claim := Claim{
		key:   keyPrefix + scope + ":" + deliveryID,
		token: uuid.NewString(),
	}
	ok, err := g.rdb.SetNX(ctx, claim.key, claim.token, g.ttl).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("claim delivery: %w", err)
	}
	if !ok {
		return Claim{}, ErrInFlight
	}
	return claim, nil
}

// Release drops the claim if this worker still owns it.
func (g *Guard) Release(ctx context.Context, claim Claim) error {
	if claim.key == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, g.rdb, []string{claim.key}, claim.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release delivery: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (g *Guard) Ping(ctx context.Context) error {
	return g.rdb.Ping(ctx).Err()
}
