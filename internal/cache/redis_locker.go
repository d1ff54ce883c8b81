package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	lockRetryInitialDelay = 50 * time.Millisecond
	lockRetryMaxDelay     = 500 * time.Millisecond
	lockReleaseTimeout    = 2 * time.Second
)

// releaseScript deletes the key only while it still holds our token, so
// a holder whose TTL expired cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errLockHeld = errors.New("lock held by another owner")

// redisLocker implements Locker with SET NX PX and a per-acquire token
type redisLocker struct {
	client redis.UniversalClient
	config *Config
	logger *zap.Logger
}

// NewRedisLocker creates a Redis-backed distributed locker
func NewRedisLocker(client redis.UniversalClient, config *Config, logger *zap.Logger) Locker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisLocker{
		client: client,
		config: config,
		logger: logger,
	}
}

func (l *redisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generate lock token: %w", err)
	}
	token := id.String()
	redisKey := lockKey(l.config.KeyPrefix, key)

	acquireCtx := ctx
	if l.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.config.WaitTimeout)
		defer cancel()
	}

	attempts := 0
	op := func() error {
		attempts++
		ok, err := l.client.SetNX(acquireCtx, redisKey, token, l.config.TTL).Result()
		if err != nil {
			if acquireCtx.Err() != nil {
				return backoff.Permanent(acquireCtx.Err())
			}
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = lockRetryInitialDelay
	b.MaxInterval = lockRetryMaxDelay
	b.MaxElapsedTime = 0

	if err := backoff.Retry(op, backoff.WithContext(b, acquireCtx)); err != nil {
		if errors.Is(err, errLockHeld) || acquireCtx.Err() != nil {
			l.logger.Debug("Lock wait timed out",
				zap.String("key", redisKey),
				zap.Int("attempts", attempts))
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return nil, fmt.Errorf("redis lock acquire: %w", err)
	}

	l.logger.Debug("Lock acquired", zap.String("key", redisKey), zap.Int("attempts", attempts))

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("Lock release failed", zap.String("key", redisKey), zap.Error(err))
			}
		})
	}, nil
}

func (l *redisLocker) Close() error {
	return l.client.Close()
}
