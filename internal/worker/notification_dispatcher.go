package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/notification"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/logger"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/metrics"
)

var (
	ErrQueueFull         = errors.New("通知の送信待ちが満杯です")
	ErrDispatcherStopped = errors.New("通知ワーカーは停止しています")
)

// DispatcherConfig は通知ワーカーの設定
type DispatcherConfig struct {
	Workers      int
	QueueSize    int
	MaxRetries   int
	RetryBackoff time.Duration
}

// NotificationDispatcher は購入通知を送信待ちに受け付け、複数のワーカーで Publisher に送る。
// 送信に失敗した通知は指数バックオフで再送し、上限を超えたら破棄する。
type NotificationDispatcher struct {
	publisher notification.Publisher
	queue     chan notification.PurchaseNotification
	cfg       DispatcherConfig

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewNotificationDispatcher(publisher notification.Publisher, cfg DispatcherConfig) *NotificationDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &NotificationDispatcher{
		publisher: publisher,
		queue:     make(chan notification.PurchaseNotification, cfg.QueueSize),
		cfg:       cfg,
	}
}

// Enqueue は通知を送信待ちに積む。満杯の場合は待たずに ErrQueueFull を返す。
func (d *NotificationDispatcher) Enqueue(n notification.PurchaseNotification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start はワーカーを起動する
func (d *NotificationDispatcher) Start(ctx context.Context) {
	logger.Info("通知ワーカー開始",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("queue_size", d.cfg.QueueSize),
	)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
}

// Stop は受け付けを止め、送信待ちの通知を送り終えるまで待つ
func (d *NotificationDispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
	logger.Info("通知ワーカー停止")
}

func (d *NotificationDispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(ctx, n)
	}
}

func (d *NotificationDispatcher) deliver(ctx context.Context, n notification.PurchaseNotification) {
	log := logger.With(zap.String("purchase_reference", n.PurchaseReference))
	backoff := d.cfg.RetryBackoff

	var err error
	for attempt := 1; ; attempt++ {
		if err = d.publisher.Publish(ctx, n); err == nil {
			metrics.Get().ObserveNotification("sent")
			log.Debug("購入通知を送信しました", zap.Int("attempt", attempt))
			return
		}
		if attempt > d.cfg.MaxRetries {
			break
		}
		log.Warn("購入通知の送信に失敗、再送します", zap.Int("attempt", attempt), zap.Error(err))
		if !sleep(ctx, backoff) {
			break
		}
		backoff *= 2
	}
	metrics.Get().ObserveNotification("failed")
	log.Error("購入通知を送信できませんでした", zap.Error(err))
}

// sleep は d だけ待つ。ctx が先に終了した場合は false を返す。
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
