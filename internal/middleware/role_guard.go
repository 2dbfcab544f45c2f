package middleware

import (
	"net/http"

	"marketplace/internal/domain/model"

	"github.com/labstack/echo/v4"
)

// contextに入っているroleがADMIN/MANAGERかどうかを確認します。
func ElevatedRoleGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxUserRoleKey).(string)
			if !ok || role == "" {
				return unauthorized(c)
			}

			if !model.Role(role).Elevated() {
				return failJSON(c, http.StatusForbidden, "forbidden")
			}

			return next(c)
		}
	}
}
