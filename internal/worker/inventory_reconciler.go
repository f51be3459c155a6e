package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/pkg/logger"
)

// InventoryReconcilerService は販売枚数をチケットの集計と突き合わせるインターフェース
type InventoryReconcilerService interface {
	ReconcileInventory(ctx context.Context) (int, error)
}

// InventoryReconciler は販売枚数のずれを定期的に補正するワーカー
type InventoryReconciler struct {
	inventory InventoryReconcilerService
	interval  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewInventoryReconciler(inventory InventoryReconcilerService, interval time.Duration) *InventoryReconciler {
	return &InventoryReconciler{
		inventory: inventory,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start は ctx がキャンセルされるか Stop が呼ばれるまで補正を繰り返す。起動直後にも1回実行する。
func (r *InventoryReconciler) Start(ctx context.Context) {
	logger.Info("在庫補正ワーカー開始", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)

	r.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("在庫補正ワーカー停止（コンテキストキャンセル）")
			return
		case <-r.stopCh:
			logger.Info("在庫補正ワーカー停止（シグナル受信）")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// Stop はワーカーを停止し、実行中の補正が終わるまで待つ
func (r *InventoryReconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *InventoryReconciler) reconcile(ctx context.Context) {
	log := logger.Get()
	log.Debug("在庫補正開始")

	n, err := r.inventory.ReconcileInventory(ctx)
	if err != nil {
		log.Error("在庫補正失敗", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("在庫補正完了", zap.Int("corrected_events", n))
	}
}
