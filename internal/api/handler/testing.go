package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-event-ticketing/internal/api"
	"github.com/sanosuguru/go-event-ticketing/internal/api/middleware"
)

// NewTestEcho はテスト用のEchoインスタンスを作成する。
// 本番と同じエラーハンドラーとバリデーター、ヘッダー認証を設定する。
func NewTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Use(middleware.Authenticate())
	return e
}
