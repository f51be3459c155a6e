package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	redisinfra "github.com/sanosuguru/go-event-ticketing/internal/infrastructure/redis"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/logger"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/metrics"
)

const defaultAvailabilityTTL = 30 * time.Second

// InventoryService はイベントの在庫（残り枚数）を扱う。
// 販売枚数の更新は購入・キャンセル処理のトランザクション内でのみ行い、ここでは読み取りと再計算だけを行う。
type InventoryService struct {
	eventRepo event.Repository
	cache     AvailabilityCache
	ttl       time.Duration
}

func NewInventoryService(er event.Repository, cache AvailabilityCache, ttl time.Duration) *InventoryService {
	if ttl <= 0 {
		ttl = defaultAvailabilityTTL
	}
	return &InventoryService{eventRepo: er, cache: cache, ttl: ttl}
}

// Available は公開中イベントの残り枚数を返す。下書きのイベントは存在しない扱い。
func (s *InventoryService) Available(ctx context.Context, eventID string) (int, error) {
	if s.cache != nil {
		n, err := s.cache.Get(ctx, eventID)
		if err == nil {
			logger.Debug("キャッシュヒット", zap.String("event_id", eventID), zap.Int("available", n))
			return n, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.FromContext(ctx).Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	ev, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return 0, classify(err)
	}
	if ev.Status == event.StatusDraft {
		return 0, classify(event.ErrEventNotFound)
	}
	n := ev.Available()

	if s.cache != nil {
		if err := s.cache.Set(ctx, eventID, n, s.ttl); err != nil {
			logger.FromContext(ctx).Warn("キャッシュ保存エラー", zap.Error(err))
		}
	}
	return n, nil
}

// Invalidate は残り枚数のキャッシュを破棄する。失敗してもログに残すだけ。
func (s *InventoryService) Invalidate(ctx context.Context, eventID string) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, eventID); err != nil {
		logger.FromContext(ctx).Warn("キャッシュ無効化エラー", zap.String("event_id", eventID), zap.Error(err))
	}
}

// ReconcileInventory は全イベントの販売枚数をチケットの状態から再計算し、補正したイベント数を返す
func (s *InventoryService) ReconcileInventory(ctx context.Context) (int, error) {
	n, err := s.eventRepo.ReconcileSold(ctx)
	if err != nil {
		return 0, classify(err)
	}
	metrics.Get().ObserveReconciled(n)
	if n > 0 {
		logger.FromContext(ctx).Warn("販売枚数を補正しました", zap.Int("events", n))
	}
	return n, nil
}
