package handler

import (
	"net/http"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type InvoiceHandler struct {
	uc *usecase.InvoiceUsecase
}

func NewInvoiceHandler(uc *usecase.InvoiceUsecase) *InvoiceHandler {
	return &InvoiceHandler{uc: uc}
}

type UpdateInvoiceRequest struct {
	Amount        *decimal.Decimal `json:"amount"`
	Status        *string          `json:"status"`
	PaymentMethod *string          `json:"payment_method"`
	PaymentDate   *time.Time       `json:"payment_date"`
}

type PaymentStatusRequest struct {
	Status string `json:"status"`
}

func (h *InvoiceHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/invoices")
	g.Use(middleware.AuthJWT(cfg.JWTSecret))
	g.Use(middleware.TokenVersionGuard(userRepo))

	elevated := middleware.ElevatedRoleGuard()

	g.GET("", h.list, elevated)
	g.GET("/user/:userId", h.listByUser)
	g.GET("/seller/:sellerId", h.listBySeller)
	g.GET("/order/:orderId", h.getByOrder)
	g.GET("/cart/:cartId", h.listByCart)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update, elevated)
	g.PATCH("/:id/payment-status", h.updatePaymentStatus, elevated)
	g.DELETE("/:id", h.delete, elevated)
}

func (h *InvoiceHandler) list(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.List(c.Request().Context(), a, c.QueryParam("status"))
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *InvoiceHandler) listByUser(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	userID, err := pathID(c, "userId")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.ListByUser(c.Request().Context(), a, userID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *InvoiceHandler) listBySeller(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	sellerID, err := pathID(c, "sellerId")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.ListBySeller(c.Request().Context(), a, sellerID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *InvoiceHandler) getByOrder(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	orderID, err := pathID(c, "orderId")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.GetByOrder(c.Request().Context(), a, orderID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *InvoiceHandler) listByCart(c echo.Context) error {
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

func (h *InvoiceHandler) get(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	invoiceID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.Get(c.Request().Context(), a, invoiceID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *InvoiceHandler) update(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	invoiceID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req UpdateInvoiceRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.Update(c.Request().Context(), a, invoiceID, usecase.UpdateInvoiceInput{
		Amount:        req.Amount,
		Status:        req.Status,
		PaymentMethod: req.PaymentMethod,
		PaymentDate:   req.PaymentDate,
	})
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *InvoiceHandler) updatePaymentStatus(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	invoiceID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req PaymentStatusRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	if req.Status == "" {
		return fail(c, http.StatusBadRequest, "status is required")
	}

	out, err := h.uc.UpdatePaymentStatus(c.Request().Context(), a, invoiceID, req.Status)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *InvoiceHandler) delete(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	invoiceID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	if err := h.uc.Delete(c.Request().Context(), a, invoiceID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
