package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"learnhub/internal/config"
)

func newTestRedisLocker(t *testing.T, cfg *Config) (Locker, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, cfg, zap.NewNop()), mr, client
}

func lockers(t *testing.T, cfg *Config) map[string]Locker {
	redisLocker, _, _ := newTestRedisLocker(t, cfg)
	return map[string]Locker{
		"memory": NewMemoryLocker(cfg, zap.NewNop()),
		"redis":  redisLocker,
	}
}

func TestLockerMutualExclusion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WaitTimeout = 5 * time.Second

	for name, locker := range lockers(t, cfg) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var inside, maxInside int32
			var wg sync.WaitGroup

			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := WithLock(ctx, locker, "user-1", func(ctx context.Context) error {
						n := atomic.AddInt32(&inside, 1)
						for {
							m := atomic.LoadInt32(&maxInside)
							if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
								break
							}
						}
						time.Sleep(5 * time.Millisecond)
						atomic.AddInt32(&inside, -1)
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
		})
	}
}

func TestLockerKeysAreIndependent(t *testing.T) {
	for name, locker := range lockers(t, DefaultConfig()) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			releaseA, err := locker.Acquire(ctx, "user-a")
			require.NoError(t, err)
			defer releaseA()

			releaseB, err := locker.Acquire(ctx, "user-b")
			require.NoError(t, err)
			releaseB()
		})
	}
}

func TestLockerTimesOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WaitTimeout = 100 * time.Millisecond

	for name, locker := range lockers(t, cfg) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			release, err := locker.Acquire(ctx, "user-1")
			require.NoError(t, err)

			_, err = locker.Acquire(ctx, "user-1")
			assert.ErrorIs(t, err, ErrLockTimeout)

			release()
			release()

			again, err := locker.Acquire(ctx, "user-1")
			require.NoError(t, err)
			again()
		})
	}
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Second
	cfg.WaitTimeout = 100 * time.Millisecond
	locker, mr, _ := newTestRedisLocker(t, cfg)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "user-1")
	require.NoError(t, err)

	// The holder stalls past its TTL and a second owner takes over.
	mr.FastForward(2 * time.Second)
	releaseOther, err := locker.Acquire(ctx, "user-1")
	require.NoError(t, err)

	release()
	assert.True(t, mr.Exists(lockKey(cfg.KeyPrefix, "user-1")), "stale release must not delete the new owner's key")

	releaseOther()
	assert.False(t, mr.Exists(lockKey(cfg.KeyPrefix, "user-1")))
}

func TestNewLocker(t *testing.T) {
	locker, err := NewLocker(nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &memoryLocker{}, locker)

	mr := miniredis.RunT(t)
	cfg := ConfigFrom(
		config.RedisConfig{Enabled: true, URL: mr.Addr(), PoolSize: 2, KeyPrefix: "test"},
		*config.DefaultProgressionConfig(),
	)
	locker, err = NewLocker(cfg, zap.NewNop())
	require.NoError(t, err)
	defer locker.Close()
	assert.IsType(t, &redisLocker{}, locker)

	release, err := locker.Acquire(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:u1"))
	release()

	_, err = NewLocker(&Config{Provider: "etcd"}, nil)
	assert.Error(t, err)
}
