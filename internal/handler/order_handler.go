package handler

import (
	"net/http"
	"strings"

	"marketplace/internal/config"
	"marketplace/internal/domain/model"
	"marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status"`
}

type UpdateOrderRequest struct {
	Status           *string          `json:"order_status"`
	PaymentReference *string          `json:"payment_reference"`
	ShippingFee      *decimal.Decimal `json:"shipping_fee"`
	Tax              *decimal.Decimal `json:"tax"`
	Country          *string          `json:"country"`
	City             *string          `json:"city"`
	StreetAddress    *string          `json:"street_address"`
	PostalCode       *string          `json:"postal_code"`
	PhoneNumber      *string          `json:"phone_number"`
	Email            *string          `json:"email"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/orders")
	g.Use(middleware.AuthJWT(cfg.JWTSecret))
	g.Use(middleware.TokenVersionGuard(userRepo))

	elevated := middleware.ElevatedRoleGuard()

	g.GET("", h.list, elevated)
	g.GET("/user/:userId", h.listByUser)
	g.GET("/status/:status", h.listByStatus, elevated)
	g.GET("/cart/:cartId", h.listByCart)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update, elevated)
	g.PATCH("/:id/status", h.updateStatus, elevated)
	g.DELETE("/:id", h.delete, elevated)
}

func (h *OrderHandler) list(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}

	page, err := queryInt(c, "page", 1)
	if err != nil {
		return writeError(c, err)
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return writeError(c, err)
	}
	userID, err := queryID(c, "user_id")
	if err != nil {
		return writeError(c, err)
	}
	cartID, err := queryID(c, "cart_id")
	if err != nil {
		return writeError(c, err)
	}

	f := repository.OrderListFilter{Page: page, Limit: limit, UserID: userID, CartID: cartID}
	if v := c.QueryParam("status"); v != "" {
		st := model.OrderStatus(strings.ToUpper(v))
		if !st.Valid() {
			return fail(c, http.StatusBadRequest, "invalid status")
		}
		f.Status = &st
	}

	out, err := h.uc.List(c.Request().Context(), a, f)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *OrderHandler) listByUser(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	userID, err := pathID(c, "userId")
	if err != nil {
		return writeError(c, err)
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return writeError(c, err)
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.ListByUser(c.Request().Context(), a, userID, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *OrderHandler) listByStatus(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return writeError(c, err)
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.ListByStatus(c.Request().Context(), a, c.Param("status"), page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *OrderHandler) listByCart(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	cartID, err := pathID(c, "cartId")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.ListByCart(c.Request().Context(), a, cartID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *OrderHandler) get(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	orderID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.Get(c.Request().Context(), a, orderID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *OrderHandler) update(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	orderID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req UpdateOrderRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.Update(c.Request().Context(), a, orderID, usecase.UpdateOrderInput{
		Status:           req.Status,
		PaymentReference: req.PaymentReference,
		ShippingFee:      req.ShippingFee,
		Tax:              req.Tax,
		Country:          req.Country,
		City:             req.City,
		StreetAddress:    req.StreetAddress,
		PostalCode:       req.PostalCode,
		PhoneNumber:      req.PhoneNumber,
		Email:            req.Email,
	})
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *OrderHandler) updateStatus(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	orderID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req OrderStatusUpdateRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	if req.Status == "" {
		return fail(c, http.StatusBadRequest, "status is required")
	}

	out, err := h.uc.UpdateStatus(c.Request().Context(), a, orderID, req.Status)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *OrderHandler) delete(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	orderID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	if err := h.uc.Delete(c.Request().Context(), a, orderID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
