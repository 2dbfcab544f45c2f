package middleware

import (
	"marketplace/internal/domain/model"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

// AuthJWTが入れた値からActorを作る
func ActorFrom(c echo.Context) (usecase.Actor, bool) {
	userID, ok := c.Get(CtxUserIDKey).(int64)
	if !ok || userID <= 0 {
		return usecase.Actor{}, false
	}
	role, ok := c.Get(CtxUserRoleKey).(string)
	if !ok || role == "" {
		return usecase.Actor{}, false
	}
	return usecase.Actor{UserID: userID, Role: model.Role(role)}, true
}
