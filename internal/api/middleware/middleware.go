package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sanosuguru/go-event-ticketing/internal/pkg/metrics"
)

// SetupMiddleware は共通ミドルウェアを設定する。m が nil の場合はHTTPメトリクスを記録しない。
func SetupMiddleware(e *echo.Echo, m *metrics.Metrics) {
	e.Use(RequestIDMiddleware())

	// 構造化リクエストログ（zap）
	e.Use(RequestLogger())

	e.Use(middleware.Recover())
	e.Use(PrometheusMiddleware(m))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.PUT, echo.PATCH, echo.POST, echo.DELETE},
		AllowHeaders: []string{
			echo.HeaderContentType, echo.HeaderXRequestID,
			HeaderUserID, HeaderUserRole, HeaderUserEmail, HeaderUserName,
		},
	}))

	e.Use(Authenticate())
}
