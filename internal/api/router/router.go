package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanosuguru/go-event-ticketing/internal/api"
	"github.com/sanosuguru/go-event-ticketing/internal/api/handler"
	"github.com/sanosuguru/go-event-ticketing/internal/api/middleware"
	"github.com/sanosuguru/go-event-ticketing/internal/config"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/metrics"
)

// Handlers はルーティングするハンドラー一式
type Handlers struct {
	Event   *handler.EventHandler
	Ticket  *handler.TicketHandler
	CheckIn *handler.CheckInHandler
	Health  *handler.HealthHandler
}

// Options はルーター全体の設定
type Options struct {
	Metrics     *metrics.Metrics // nil なら /metrics を公開しない
	MetricsAuth config.MetricsConfig
	HideBanner  bool
}

// New はミドルウェアとルートを設定したEchoインスタンスを作成する
func New(h Handlers, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = opts.HideBanner
	e.HidePort = opts.HideBanner
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e, opts.Metrics)

	e.GET("/health", h.Health.Check)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(opts.MetricsAuth))
	}

	authenticated := middleware.RequireRole()
	organizer := middleware.RequireRole(middleware.RoleOrganizer)
	admin := middleware.RequireRole(middleware.RoleAdmin)

	v1 := e.Group("/api/v1")

	// イベント
	v1.GET("/events", h.Event.List)
	v1.GET("/events/:id", h.Event.GetByID)
	v1.GET("/events/:id/availability", h.Event.Availability)
	v1.POST("/events", h.Event.Create, organizer)
	v1.PUT("/events/:id", h.Event.Update, organizer)
	v1.DELETE("/events/:id", h.Event.Delete, organizer)
	v1.POST("/events/:id/publish", h.Event.Publish, organizer)
	v1.POST("/events/:id/cancel", h.Event.Cancel, organizer)
	v1.GET("/events/:id/tickets", h.Ticket.ListByEvent, organizer)
	v1.GET("/organizer/events", h.Event.ListMine, organizer)

	// チケット
	v1.POST("/tickets/purchase", h.Ticket.Purchase, authenticated)
	v1.GET("/tickets/mine", h.Ticket.ListMine, authenticated)
	v1.GET("/tickets/:id", h.Ticket.GetByID, authenticated)
	v1.GET("/tickets/:id/payload", h.Ticket.Payload, authenticated)
	v1.POST("/tickets/:id/cancel", h.Ticket.Cancel, authenticated)
	v1.POST("/tickets/:id/refund", h.Ticket.Refund, admin)

	// 入場
	v1.POST("/tickets/check-in", h.CheckIn.CheckIn, organizer)
	v1.POST("/tickets/validate", h.CheckIn.Validate, organizer)

	return e
}
