package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	defaultRedisTTL        = 10 * time.Second
	defaultRedisRetryDelay = 20 * time.Millisecond
	redisKeyPrefix         = "ledger:lock:"
	redisReleaseTimeout    = 2 * time.Second
)

// releaseScript удаляет ключ, только если он всё ещё принадлежит владельцу токена.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOption настраивает Redis.
type RedisOption func(*Redis)

// WithTTL задаёт время жизни блокировки. Операция под блокировкой должна
// укладываться в TTL, иначе ключ освободится раньше Unlock.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRetryDelay задаёт паузу между попытками захвата.
func WithRetryDelay(delay time.Duration) RedisOption {
	return func(r *Redis) {
		if delay > 0 {
			r.retryDelay = delay
		}
	}
}

// WithRedisLogger задаёт logger.
func WithRedisLogger(logger *log.Entry) RedisOption {
	return func(r *Redis) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Redis распределённая блокировка на SET NX PX. Подходит, когда несколько
// экземпляров сервиса работают с одним хранилищем.
type Redis struct {
	client     redis.UniversalClient
	ttl        time.Duration
	retryDelay time.Duration
	logger     *log.Entry
}

// NewRedis создаёт Locker поверх клиента go-redis.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:     client,
		ttl:        defaultRedisTTL,
		retryDelay: defaultRedisRetryDelay,
		logger:     log.WithField("component", "redis-lock"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock опрашивает Redis, пока ключ не освободится или не отменится ctx.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire redis lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), redisReleaseTimeout)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil {
				r.logger.WithError(err).WithField("key", key).Warn("failed to release redis lock")
			}
		})
	}, nil
}

// Ping проверяет доступность Redis для health check.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ Locker = (*Redis)(nil)
