package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	redisinfra "github.com/sanosuguru/go-event-ticketing/internal/infrastructure/redis"
)

func TestInventoryService_Available(t *testing.T) {
	t.Run("キャッシュヒット", func(t *testing.T) {
		repo, cache := new(MockEventRepository), new(MockAvailabilityCache)
		svc := NewInventoryService(repo, cache, time.Minute)
		cache.On("Get", mock.Anything, "event-1").Return(42, nil)

		n, err := svc.Available(context.Background(), "event-1")

		require.NoError(t, err)
		assert.Equal(t, 42, n)
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("キャッシュミスならDBから取得して保存", func(t *testing.T) {
		repo, cache := new(MockEventRepository), new(MockAvailabilityCache)
		svc := NewInventoryService(repo, cache, time.Minute)
		ev := publishedEvent("event-1")
		ev.TicketsSold = 30
		cache.On("Get", mock.Anything, "event-1").Return(0, redisinfra.ErrCacheMiss)
		repo.On("GetByID", mock.Anything, "event-1").Return(ev, nil)
		cache.On("Set", mock.Anything, "event-1", 70, time.Minute).Return(nil)

		n, err := svc.Available(context.Background(), "event-1")

		require.NoError(t, err)
		assert.Equal(t, 70, n)
		cache.AssertExpectations(t)
	})

	t.Run("キャッシュ障害でもDBから返す", func(t *testing.T) {
		repo, cache := new(MockEventRepository), new(MockAvailabilityCache)
		svc := NewInventoryService(repo, cache, time.Minute)
		cache.On("Get", mock.Anything, "event-1").Return(0, errors.New("connection refused"))
		cache.On("Set", mock.Anything, "event-1", 100, time.Minute).Return(errors.New("connection refused"))
		repo.On("GetByID", mock.Anything, "event-1").Return(publishedEvent("event-1"), nil)

		n, err := svc.Available(context.Background(), "event-1")

		require.NoError(t, err)
		assert.Equal(t, 100, n)
	})

	t.Run("下書きは存在しない扱い", func(t *testing.T) {
		repo := new(MockEventRepository)
		svc := NewInventoryService(repo, nil, 0)
		ev := publishedEvent("event-1")
		ev.Status = event.StatusDraft
		repo.On("GetByID", mock.Anything, "event-1").Return(ev, nil)

		_, err := svc.Available(context.Background(), "event-1")

		assert.Equal(t, KindNotFound, KindOf(err))
	})
}

func TestInventoryService_Invalidate(t *testing.T) {
	var nilSvc *InventoryService
	assert.NotPanics(t, func() { nilSvc.Invalidate(context.Background(), "event-1") })

	cache := new(MockAvailabilityCache)
	svc := NewInventoryService(new(MockEventRepository), cache, 0)
	cache.On("Invalidate", mock.Anything, "event-1").Return(errors.New("timeout")).Once()

	assert.NotPanics(t, func() { svc.Invalidate(context.Background(), "event-1") })
	cache.AssertExpectations(t)
}

func TestInventoryService_ReconcileInventory(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seedEvent(10, time.Now().Add(24*time.Hour))
	purchaseOne(t, env, ev.ID, "user-1")
	purchaseOne(t, env, ev.ID, "user-2")

	// 販売枚数がずれた状態を作る
	drifted := *ev
	drifted.TicketsSold = 7
	env.store.putEvent(&drifted)

	n, err := env.inventory.ReconcileInventory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, env.store.sold(ev.ID))

	n, err = env.inventory.ReconcileInventory(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInventoryService_ReconcileInventory_Error(t *testing.T) {
	repo := new(MockEventRepository)
	svc := NewInventoryService(repo, nil, 0)
	repo.On("ReconcileSold", mock.Anything).Return(0, errors.New("db down"))

	_, err := svc.ReconcileInventory(context.Background())

	assert.Equal(t, KindUnavailable, KindOf(err))
}
