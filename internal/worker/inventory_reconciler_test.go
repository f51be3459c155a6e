package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockInventoryService は InventoryReconcilerService のモック
type MockInventoryService struct {
	mock.Mock
}

func (m *MockInventoryService) ReconcileInventory(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestNewInventoryReconciler(t *testing.T) {
	mockService := new(MockInventoryService)

	r := NewInventoryReconciler(mockService, 5*time.Minute)

	assert.NotNil(t, r)
	assert.Equal(t, 5*time.Minute, r.interval)
	assert.NotNil(t, r.stopCh)
	assert.NotNil(t, r.doneCh)
}

func TestInventoryReconciler_Reconcile(t *testing.T) {
	tests := []struct {
		name string
		n    int
		err  error
	}{
		{"補正したイベントがある", 2, nil},
		{"ずれがない", 0, nil},
		{"補正に失敗してもパニックしない", 0, errors.New("database error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockInventoryService)
			mockService.On("ReconcileInventory", mock.Anything).Return(tt.n, tt.err)

			r := NewInventoryReconciler(mockService, time.Minute)
			r.reconcile(context.Background())

			mockService.AssertExpectations(t)
		})
	}
}

func TestInventoryReconciler_StartStop(t *testing.T) {
	t.Run("起動直後に1回補正し、Stop で止まる", func(t *testing.T) {
		called := make(chan struct{}, 10)
		mockService := new(MockInventoryService)
		mockService.On("ReconcileInventory", mock.Anything).
			Run(func(mock.Arguments) { called <- struct{}{} }).
			Return(0, nil)

		r := NewInventoryReconciler(mockService, time.Hour)
		go r.Start(context.Background())

		select {
		case <-called:
		case <-time.After(time.Second):
			t.Fatal("起動直後の補正が実行されていない")
		}

		r.Stop()
		mockService.AssertNumberOfCalls(t, "ReconcileInventory", 1)
	})

	t.Run("コンテキストのキャンセルで止まる", func(t *testing.T) {
		mockService := new(MockInventoryService)
		mockService.On("ReconcileInventory", mock.Anything).Return(0, nil)

		r := NewInventoryReconciler(mockService, 10*time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		go r.Start(ctx)

		time.Sleep(35 * time.Millisecond)
		cancel()

		select {
		case <-r.doneCh:
		case <-time.After(time.Second):
			t.Fatal("ワーカーが停止していない")
		}
		// 起動直後の1回とティッカーによる実行
		assert.GreaterOrEqual(t, len(mockService.Calls), 2)
	})
}
