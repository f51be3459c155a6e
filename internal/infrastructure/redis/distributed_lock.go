package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-event-ticketing/internal/pkg/metrics"
)

var (
	ErrLockNotAcquired = errors.New("ロックを取得できませんでした")
	ErrLockNotOwned    = errors.New("ロックの所有者ではありません")
)

// 所有者確認と削除・延長をアトミックに行う
const (
	releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`
	extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`
)

// Lock は取得済みの分散ロック
type Lock interface {
	Release(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) error
}

// Locker は分散ロックを取得するインターフェース
type Locker interface {
	AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (Lock, error)
}

// PurchaseLockKey は同一ユーザーによる同一イベントの購入を直列化するロックキーを返す
func PurchaseLockKey(eventID, userID string) string {
	return "purchase:" + eventID + ":" + userID
}

// DistributedLock は Redis を使用した分散ロック
type DistributedLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// LockManager は分散ロックを管理する
type LockManager struct {
	client   *redis.Client
	newToken func() string
}

var _ Locker = (*LockManager)(nil)

func NewLockManager(client *redis.Client) *LockManager {
	return &LockManager{client: client, newToken: uuid.NewString}
}

// AcquireLock はロックを取得する
func (m *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	start := time.Now()
	lock, err := m.acquire(ctx, key, ttl)
	metrics.Get().ObserveLock("acquire", start, err)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func (m *LockManager) acquire(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error) {
	lockKey := "lock:" + key
	lockValue := m.newToken()

	ok, err := m.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &DistributedLock{client: m.client, key: lockKey, value: lockValue, ttl: ttl}, nil
}

// AcquireLockWithRetry はリトライ付きでロックを取得する
func (m *LockManager) AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (Lock, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		lock, err := m.AcquireLock(ctx, key, ttl)
		if err == nil {
			return lock, nil
		}
		lastErr = err
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		if i == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, lastErr
}

// Release はロックを解放する
func (l *DistributedLock) Release(ctx context.Context) error {
	start := time.Now()
	err := l.eval(ctx, releaseScript, l.value)
	metrics.Get().ObserveLock("release", start, err)
	if err != nil {
		return fmt.Errorf("ロック解放に失敗: %w", err)
	}
	return nil
}

// Extend はロックの有効期限を延長する
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if err := l.eval(ctx, extendScript, l.value, ttl.Milliseconds()); err != nil {
		return fmt.Errorf("ロック延長に失敗: %w", err)
	}
	l.ttl = ttl
	return nil
}

func (l *DistributedLock) eval(ctx context.Context, script string, args ...interface{}) error {
	result, err := l.client.Eval(ctx, script, []string{l.key}, args...).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotOwned
	}
	return nil
}
