package handler

import (
	"io"
	"net/http"

	"marketplace/internal/config"
	"marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type CheckoutHandler struct {
	checkout *usecase.CheckoutUsecase
	payment  *usecase.PaymentUsecase
}

func NewCheckoutHandler(checkout *usecase.CheckoutUsecase, payment *usecase.PaymentUsecase) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, payment: payment}
}

type CheckoutRequest struct {
	ShippingFee   decimal.Decimal `json:"shipping_fee"`
	Tax           decimal.Decimal `json:"tax"`
	Country       string          `json:"country"`
	City          string          `json:"city"`
	StreetAddress string          `json:"street_address"`
	PostalCode    string          `json:"postal_code"`
	PhoneNumber   string          `json:"phone_number"`
	Email         string          `json:"email"`
}

// webhook本文の上限
const maxWebhookBody = 64 << 10

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	e.POST("/carts/:id/checkout", h.createSession,
		middleware.AuthJWT(cfg.JWTSecret),
		middleware.TokenVersionGuard(userRepo),
		middleware.CheckoutRateLimiter(cfg.CheckoutRatePerMin),
	)

	// 署名で認証するのでJWTは見ない
	e.POST("/stripe/webhook", h.webhook)
}

func (h *CheckoutHandler) createSession(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	cartID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req CheckoutRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.checkout.Checkout(c.Request().Context(), a, cartID, usecase.CheckoutInput{
		ShippingFee:   req.ShippingFee,
		Tax:           req.Tax,
		Country:       req.Country,
		City:          req.City,
		StreetAddress: req.StreetAddress,
		PostalCode:    req.PostalCode,
		PhoneNumber:   req.PhoneNumber,
		Email:         req.Email,
	})
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusCreated, out)
}

// 署名検証には生のbodyが要る
func (h *CheckoutHandler) webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if len(body) > maxWebhookBody {
		return fail(c, http.StatusRequestEntityTooLarge, "payload too large")
	}

	res, err := h.payment.HandleWebhook(c.Request().Context(), body, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, res)
}
