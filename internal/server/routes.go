package server

import (
	"marketplace/internal/config"
	"marketplace/internal/handler"
	"marketplace/internal/repository"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Cart     *handler.CartHandler
	Checkout *handler.CheckoutHandler
	Order    *handler.OrderHandler
	Invoice  *handler.InvoiceHandler
	Audit    *handler.AuditHandler
	Health   *handler.HealthHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository, h Handlers) {
	h.Health.RegisterRoutes(e)
	h.Auth.RegisterRoutes(e, cfg, userRepo)
	h.Cart.RegisterRoutes(e, cfg, userRepo)
	h.Checkout.RegisterRoutes(e, cfg, userRepo)
	h.Order.RegisterRoutes(e, cfg, userRepo)
	h.Invoice.RegisterRoutes(e, cfg, userRepo)
	h.Audit.RegisterRoutes(e, cfg, userRepo)
}
