package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/application"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Available *int   `json:"available,omitempty"`
}

var kindStatus = map[application.Kind]int{
	application.KindNotFound:         http.StatusNotFound,
	application.KindInvalidState:     http.StatusConflict,
	application.KindCapacityExceeded: http.StatusConflict,
	application.KindDuplicateHolding: http.StatusConflict,
	application.KindForbidden:        http.StatusForbidden,
	application.KindValidation:       http.StatusBadRequest,
	application.KindUnavailable:      http.StatusServiceUnavailable,
}

// StatusOf はサービスのエラー種別に対応するHTTPステータスを返す
func StatusOf(kind application.Kind) int {
	if code, ok := kindStatus[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	resp := ErrorResponse{
		Error: "内部サーバーエラー",
		Code:  http.StatusInternalServerError,
	}

	var (
		appErr  *application.Error
		httpErr *echo.HTTPError
	)
	switch {
	case errors.As(err, &appErr):
		// Error() は Unavailable のとき内部エラーを含むため Message を返す
		resp.Code = StatusOf(appErr.Kind)
		resp.Error = appErr.Message
		resp.Kind = string(appErr.Kind)
		resp.Available = appErr.Available
	case errors.As(err, &httpErr):
		resp.Code = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			resp.Error = m
		} else {
			resp.Error = http.StatusText(httpErr.Code)
		}
	}

	if resp.Code >= 500 {
		logger.FromContext(c.Request().Context()).Error("サーバーエラー",
			zap.Int("status", resp.Code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	var sendErr error
	if c.Request().Method == http.MethodHead {
		sendErr = c.NoContent(resp.Code)
	} else {
		sendErr = c.JSON(resp.Code, resp)
	}
	if sendErr != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(sendErr))
	}
}
