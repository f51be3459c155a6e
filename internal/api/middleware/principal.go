package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/pkg/logger"
)

// Role は呼び出し元の役割
type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// 認証基盤（ゲートウェイ）が付与するヘッダー
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

const principalKey = "principal"

// Principal は認証済みの呼び出し元
type Principal struct {
	UserID string
	Role   Role
	Email  string
	Name   string
}

// Authenticate はヘッダーから呼び出し元を読み取る。
// X-User-ID がなければ匿名のまま通し、ロールが不正な場合は 401 を返す。
// ロールの指定がない場合は attendee とする。
func Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			userID := strings.TrimSpace(req.Header.Get(HeaderUserID))
			if userID == "" {
				return next(c)
			}

			role := Role(strings.ToLower(strings.TrimSpace(req.Header.Get(HeaderUserRole))))
			switch role {
			case "":
				role = RoleAttendee
			case RoleAttendee, RoleOrganizer, RoleAdmin:
			default:
				return echo.NewHTTPError(http.StatusUnauthorized, "ロールが不正です")
			}

			p := &Principal{
				UserID: userID,
				Role:   role,
				Email:  strings.TrimSpace(req.Header.Get(HeaderUserEmail)),
				Name:   strings.TrimSpace(req.Header.Get(HeaderUserName)),
			}
			c.Set(principalKey, p)

			ctx := req.Context()
			l := logger.FromContext(ctx).With(zap.String("user_id", p.UserID), zap.String("role", string(p.Role)))
			c.SetRequest(req.WithContext(logger.NewContext(ctx, l)))
			return next(c)
		}
	}
}

// RequireRole は認証済みで、いずれかのロールを持つ呼び出し元だけを通す。
// roles を省略した場合は認証済みであればよい。
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "認証が必要です")
			}
			if len(roles) == 0 {
				return next(c)
			}
			for _, r := range roles {
				if p.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "この操作を行う権限がありません")
		}
	}
}

// PrincipalFrom はリクエストの呼び出し元を返す。匿名の場合は nil。
func PrincipalFrom(c echo.Context) *Principal {
	p, _ := c.Get(principalKey).(*Principal)
	return p
}

// UserIDFrom は呼び出し元のユーザーIDを返す。匿名の場合は空文字。
func UserIDFrom(c echo.Context) string {
	if p := PrincipalFrom(c); p != nil {
		return p.UserID
	}
	return ""
}
