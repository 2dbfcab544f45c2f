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

// /cartsのHTTP
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type AddCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
	// ADMIN/MANAGERのみ
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type UpdateCartItemRequest struct {
	Quantity *int64          `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
}

type UpdateCartRequest struct {
	Total  *decimal.Decimal `json:"total"`
	Status *string          `json:"status"`
}

func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/carts")
	g.Use(middleware.AuthJWT(cfg.JWTSecret))
	g.Use(middleware.TokenVersionGuard(userRepo))

	g.POST("", h.create)
	g.GET("", h.list, middleware.ElevatedRoleGuard())
	g.GET("/user/:userId", h.activeByUser)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update, middleware.ElevatedRoleGuard())
	g.DELETE("/:id", h.delete)

	g.GET("/:id/items", h.listItems)
	g.POST("/:id/items", h.addItem)
	g.DELETE("/:id/items", h.emptyCart)
	g.PATCH("/:id/items/:itemId", h.updateItem)
	g.DELETE("/:id/items/:itemId", h.removeItem)
}

func (h *CartHandler) create(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}

	out, created, err := h.uc.CreateCart(c.Request().Context(), a)
	if err != nil {
		return writeError(c, err)
	}
	if created {
		return success(c, http.StatusCreated, out)
	}
	return success(c, http.StatusOK, out)
}

func (h *CartHandler) list(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}

	var status *model.CartStatus
	if v := c.QueryParam("status"); v != "" {
		st := model.CartStatus(strings.ToLower(v))
		if !st.Valid() {
			return fail(c, http.StatusBadRequest, "invalid status")
		}
		status = &st
	}

	out, err := h.uc.ListCarts(c.Request().Context(), a, status)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *CartHandler) activeByUser(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	userID, err := pathID(c, "userId")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.GetActiveCart(c.Request().Context(), a, userID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *CartHandler) get(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	cartID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.GetCart(c.Request().Context(), a, cartID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *CartHandler) update(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	cartID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req UpdateCartRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	in := usecase.AdminUpdateCartInput{Total: req.Total}
	if req.Status != nil {
		st := model.CartStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		if !st.Valid() {
			return fail(c, http.StatusBadRequest, "invalid status")
		}
		in.Status = &st
	}

	out, err := h.uc.AdminUpdateCart(c.Request().Context(), a, cartID, in)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *CartHandler) delete(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	cartID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	if err := h.uc.DeleteCart(c.Request().Context(), a, cartID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHandler) listItems(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	cartID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.ListItems(c.Request().Context(), a, cartID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *CartHandler) addItem(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	cartID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req AddCartItemRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.AddItem(c.Request().Context(), a, cartID, usecase.AddItemInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *CartHandler) emptyCart(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	cartID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.EmptyCart(c.Request().Context(), a, cartID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *CartHandler) updateItem(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	cartID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		return writeError(c, err)
	}

	var req UpdateCartItemRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.UpdateItem(c.Request().Context(), a, cartID, itemID, usecase.UpdateItemInput{
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}

func (h *CartHandler) removeItem(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	cartID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.RemoveItem(c.Request().Context(), a, cartID, itemID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, http.StatusOK, out)
}
