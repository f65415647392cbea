/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrLockNotHeld       = errors.New("lock not held")
	ErrLockAcquireFailed = errors.New("failed to acquire lock")
)

// Locker serializes work on a key, typically one hash chain.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// CustodyKey is the lock key of an owner's custody chain.
func CustodyKey(ownerId int64) string {
	return fmt.Sprintf("custody:%d", ownerId)
}

// AuditKey is the lock key of the global audit chain.
const AuditKey = "audit"

// DealKey is the lock key used while a deal's payouts are created.
func DealKey(dealId int64) string {
	return fmt.Sprintf("deal:%d", dealId)
}

// KeyedMutex is an in-process Locker for single-instance deployments.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (m *KeyedMutex) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-entry.ch }()

	return fn(ctx)
}

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisLock is one holder's claim on a key.
type RedisLock struct {
	client     redis.UniversalClient
	key        string
	value      string
	expiration time.Duration
}

// RedisLocker is a Locker shared by every instance that talks to the same Redis.
type RedisLocker struct {
	client        redis.UniversalClient
	keyPrefix     string
	expiration    time.Duration
	retryInterval time.Duration
}

func NewRedisLocker(client redis.UniversalClient, keyPrefix string, expiration, retryInterval time.Duration) *RedisLocker {
	if expiration == 0 {
		expiration = 30 * time.Second
	}
	if retryInterval == 0 {
		retryInterval = 50 * time.Millisecond
	}
	return &RedisLocker{
		client:        client,
		keyPrefix:     keyPrefix,
		expiration:    expiration,
		retryInterval: retryInterval,
	}
}

func (l *RedisLocker) NewLock(key string) *RedisLock {
	return &RedisLock{
		client:     l.client,
		key:        l.keyPrefix + key,
		value:      uuid.New().String(),
		expiration: l.expiration,
	}
}

// Acquire tries once and reports whether the lock was taken.
func (lock *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := lock.client.SetNX(ctx, lock.key, lock.value, lock.expiration).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock failed: %w", err)
	}
	return ok, nil
}

// AcquireOrWait polls until the lock is taken or ctx is done.
func (lock *RedisLock) AcquireOrWait(ctx context.Context, retryInterval time.Duration) error {
	for {
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrLockAcquireFailed, lock.key, ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}

// Release deletes the key only if this holder still owns it.
func (lock *RedisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.client, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return fmt.Errorf("release lock failed: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock := l.NewLock(key)
	if err := lock.AcquireOrWait(ctx, l.retryInterval); err != nil {
		return err
	}

	defer func() {
		// The lock may have expired under a slow fn
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("Failed to release lock", zap.String("key", lock.key), zap.Error(err))
		}
	}()

	return fn(ctx)
}
