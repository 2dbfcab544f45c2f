package handler

import (
	"net/http"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 管理者の上書き履歴
type AuditHandler struct {
	uc *usecase.AuditUsecase
}

func NewAuditHandler(uc *usecase.AuditUsecase) *AuditHandler {
	return &AuditHandler{uc: uc}
}

func (h *AuditHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	e.GET("/audit-logs", h.list,
		middleware.AuthJWT(cfg.JWTSecret),
		middleware.TokenVersionGuard(userRepo),
		middleware.ElevatedRoleGuard(),
	)
}

func (h *AuditHandler) list(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}

	q := usecase.AuditLogQuery{ResourceType: c.QueryParam("resource_type")}
	if q.ActorUserID, err = queryID(c, "actor_user_id"); err != nil {
		return writeError(c, err)
	}
	if q.ResourceID, err = queryID(c, "resource_id"); err != nil {
		return writeError(c, err)
	}
	if q.Limit, err = queryInt(c, "limit", 100); err != nil {
		return writeError(c, err)
	}
	if v := c.QueryParam("since"); v != "" {
		tm, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid since")
		}
		q.Since = &tm
	}

	out, err := h.uc.List(c.Request().Context(), a, q)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}
