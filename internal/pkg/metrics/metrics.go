package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する。
// nil レシーバでも記録メソッドは何もせずに戻る。
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 購入の総数（result: success, validation, not_on_sale, capacity_exceeded, duplicate_holding, error）
	PurchasesTotal *prometheus.CounterVec

	// 発行したチケットの総数
	TicketsIssuedTotal prometheus.Counter

	// 入場処理の総数（result: success, already_used, forbidden, not_found, rejected, error）
	CheckInsTotal *prometheus.CounterVec

	// チケットの状態遷移数（to: used, cancelled, refunded）
	TicketTransitionsTotal *prometheus.CounterVec

	// 購入通知の総数（result: queued, dropped, sent, failed）
	NotificationsTotal *prometheus.CounterVec

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec

	// 再計算で補正した販売枚数のイベント数
	InventoryReconciledTotal prometheus.Counter
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		PurchasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_purchases_total",
				Help: "Total number of ticket purchase attempts",
			},
			[]string{"result"},
		),
		TicketsIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tickets_issued_total",
				Help: "Total number of tickets issued",
			},
		),
		CheckInsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_checkins_total",
				Help: "Total number of check-in attempts",
			},
			[]string{"result"},
		),
		TicketTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_transitions_total",
				Help: "Total number of ticket status transitions",
			},
			[]string{"to"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purchase_notifications_total",
				Help: "Total number of purchase notifications by outcome",
			},
			[]string{"result"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		InventoryReconciledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "inventory_reconciled_total",
				Help: "Total number of events whose sold count was corrected",
			},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PurchasesTotal,
		m.TicketsIssuedTotal,
		m.CheckInsTotal,
		m.TicketTransitionsTotal,
		m.NotificationsTotal,
		m.DistributedLockDuration,
		m.InventoryReconciledTotal,
	)

	return m
}

// ObservePurchase は購入の結果と発行枚数を記録する
func (m *Metrics) ObservePurchase(result string, issued int) {
	if m == nil {
		return
	}
	m.PurchasesTotal.WithLabelValues(result).Inc()
	if issued > 0 {
		m.TicketsIssuedTotal.Add(float64(issued))
		m.TicketTransitionsTotal.WithLabelValues("valid").Add(float64(issued))
	}
}

// ObserveCheckIn は入場処理の結果を記録する
func (m *Metrics) ObserveCheckIn(result string) {
	if m == nil {
		return
	}
	m.CheckInsTotal.WithLabelValues(result).Inc()
	if result == "success" {
		m.TicketTransitionsTotal.WithLabelValues("used").Inc()
	}
}

// ObserveTransition はチケットの状態遷移を記録する
func (m *Metrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.TicketTransitionsTotal.WithLabelValues(to).Inc()
}

// ObserveNotification は購入通知の結果を記録する
func (m *Metrics) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(result).Inc()
}

// ObserveLock は分散ロック操作の所要時間を記録する
func (m *Metrics) ObserveLock(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.DistributedLockDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

// ObserveReconciled は販売枚数を補正したイベント数を記録する
func (m *Metrics) ObserveReconciled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.InventoryReconciledTotal.Add(float64(n))
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す。Init 前は nil。
func Get() *Metrics {
	return defaultMetrics
}
