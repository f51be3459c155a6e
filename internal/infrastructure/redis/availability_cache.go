package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("キャッシュが見つかりません")

// AvailabilityCache はイベントの残り枚数をキャッシュする。
// 値は表示用であり、販売可否の判定には使わない。
type AvailabilityCache struct {
	client *redis.Client
}

func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

// Get は残り枚数を取得する。未登録の場合は ErrCacheMiss。
func (c *AvailabilityCache) Get(ctx context.Context, eventID string) (int, error) {
	val, err := c.client.Get(ctx, availableKey(eventID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, eventID string, available int, ttl time.Duration) error {
	if err := c.client.Set(ctx, availableKey(eventID), available, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	if err := c.client.Del(ctx, availableKey(eventID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func availableKey(eventID string) string {
	return "tickets:available:" + eventID
}
