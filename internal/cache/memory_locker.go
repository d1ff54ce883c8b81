package cache

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// memoryLocker implements Locker for a single process
type memoryLocker struct {
	mu     sync.Mutex
	locks  map[string]*keyLock
	config *Config
	logger *zap.Logger
}

// keyLock is a one-slot semaphore; refs counts holders and waiters so
// idle keys can be dropped from the map.
type keyLock struct {
	slot chan struct{}
	refs int
}

// NewMemoryLocker creates an in-process locker
func NewMemoryLocker(config *Config, logger *zap.Logger) Locker {
	if config == nil {
		config = DefaultConfig()
	}
	return &memoryLocker{
		locks:  make(map[string]*keyLock),
		config: config,
		logger: logger,
	}
}

func (l *memoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	kl := l.ref(key)

	waitCtx := ctx
	if l.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.config.WaitTimeout)
		defer cancel()
	}

	select {
	case kl.slot <- struct{}{}:
	case <-waitCtx.Done():
		l.unref(key, kl)
		l.logger.Debug("Lock wait timed out", zap.String("key", key))
		return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, waitCtx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.slot
			l.unref(key, kl)
		})
	}, nil
}

func (l *memoryLocker) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{slot: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *memoryLocker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *memoryLocker) Close() error {
	return nil
}
