package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type CheckoutConfig struct {
	FrontendURL    string
	GatewayTimeout time.Duration
}

// CheckoutUsecase はカートを決済セッションに変えて、PENDINGの注文と請求を作る。
type CheckoutUsecase struct {
	tx      repo.TransactionManager
	gateway PaymentGateway
	cfg     CheckoutConfig
	tracer  trace.Tracer
}

func NewCheckoutUsecase(tx repo.TransactionManager, gateway PaymentGateway, cfg CheckoutConfig) *CheckoutUsecase {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	return &CheckoutUsecase{
		tx:      tx,
		gateway: gateway,
		cfg:     cfg,
		tracer:  otel.Tracer("checkout"),
	}
}

// 配送先と送料・税
type CheckoutInput struct {
	ShippingFee   decimal.Decimal
	Tax           decimal.Decimal
	Country       string
	City          string
	StreetAddress string
	PostalCode    string
	PhoneNumber   string
	Email         string
}

type CheckoutOutput struct {
	SessionID   string      `json:"session_id"`
	RedirectURL string      `json:"redirect_url"`
	Order       OrderOutput `json:"order"`
}

// 1回目の読み取りで確定した内容
type checkoutSnapshot struct {
	cart     model.Cart
	user     model.User
	items    []model.CartItem
	products map[int64]model.Product
}

func (u *CheckoutUsecase) Checkout(ctx context.Context, a Actor, cartID int64, in CheckoutInput) (CheckoutOutput, error) {
	ctx, span := u.tracer.Start(ctx, "Checkout")
	defer span.End()

	out, err := u.checkout(ctx, a, cartID, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (u *CheckoutUsecase) checkout(ctx context.Context, a Actor, cartID int64, in CheckoutInput) (CheckoutOutput, error) {
	if in.ShippingFee.IsNegative() || in.Tax.IsNegative() {
		return CheckoutOutput{}, newError(ErrValidation, "shipping_fee and tax must not be negative")
	}
	log := zerolog.Ctx(ctx).With().Int64("cart_id", cartID).Int64("user_id", a.UserID).Logger()

	snap, err := u.load(ctx, a, cartID)
	if err != nil {
		return CheckoutOutput{}, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		email = snap.user.Email
	}

	// ゲートウェイ呼び出しはTxの外（失敗したら何も書かない）
	params := u.sessionParams(snap, in, email)
	gctx, cancel := context.WithTimeout(ctx, u.cfg.GatewayTimeout)
	session, err := u.gateway.CreateCheckoutSession(gctx, params)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("checkout session creation failed")
		return CheckoutOutput{}, newError(ErrUpstream, "payment gateway unavailable, try again")
	}

	var out OrderOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindByIDForUpdate(ctx, cartID)
		if err != nil {
			return fromRepo(ctx, err, "cart")
		}
		// セッション作成中に変わっていないか
		if cart.Status != model.CartStatusActive || !cart.OwnedBy(a.UserID) ||
			!cart.Total.Equal(snap.cart.Total) || !cart.UpdatedAt.Equal(snap.cart.UpdatedAt) {
			return newError(ErrConflict, "cart changed during checkout")
		}

		order := model.Order{
			OrderNumber:      newOrderNumber(time.Now()),
			Status:           model.OrderStatusPending,
			OrderDate:        time.Now(),
			CartID:           cart.ID,
			UserID:           a.UserID,
			GatewaySessionID: session.ID,
			TotalAmount:      cart.Total,
			ShippingFee:      in.ShippingFee.Round(2),
			Tax:              in.Tax.Round(2),
			Country:          in.Country,
			City:             in.City,
			StreetAddress:    in.StreetAddress,
			PostalCode:       in.PostalCode,
			PhoneNumber:      in.PhoneNumber,
			Email:            email,
		}
		if err := r.Orders().Create(ctx, &order); err != nil {
			return fromRepo(ctx, err, "order")
		}

		lines := orderLines(snap)
		if err := r.OrderItems().CreateBulk(ctx, order.ID, lines); err != nil {
			return fromRepo(ctx, err, "order item")
		}

		inv := model.Invoice{
			OrderID:       order.ID,
			UserID:        a.UserID,
			SellerID:      commonSeller(lines),
			Amount:        order.GrandTotal(),
			Status:        model.InvoiceStatusPending,
			PaymentMethod: "card",
		}
		if err := r.Invoices().Create(ctx, &inv); err != nil {
			return fromRepo(ctx, err, "invoice")
		}

		ok, err := r.Carts().MarkCheckedOut(ctx, cart.ID, a.UserID)
		if err != nil {
			return fromRepo(ctx, err, "cart")
		}
		if !ok {
			return newError(ErrConflict, "cart already checked out")
		}

		if _, err := provisionCart(ctx, r, a.UserID); err != nil {
			return err
		}

		if err := enqueueOrderEvent(ctx, r, model.EventOrderCreated, order); err != nil {
			return internalError(ctx, err, "enqueue order.created")
		}

		out = toOrderOutput(order, lines)
		return nil
	})
	if err != nil {
		// セッションは作ってしまったので失効させる（失敗してもログだけ）
		u.expire(ctx, session.ID)
		return CheckoutOutput{}, txError(ctx, err)
	}

	log.Info().Str("order_number", out.OrderNumber).Str("session_id", session.ID).Msg("checkout session created")

	return CheckoutOutput{
		SessionID:   session.ID,
		RedirectURL: session.URL,
		Order:       out,
	}, nil
}

// カート・明細・商品を読んで検証する
func (u *CheckoutUsecase) load(ctx context.Context, a Actor, cartID int64) (checkoutSnapshot, error) {
	var snap checkoutSnapshot
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindByID(ctx, cartID)
		if err != nil {
			return fromRepo(ctx, err, "cart")
		}
		if !cart.OwnedBy(a.UserID) {
			if cart.BelongsTo(a.UserID) {
				return newError(ErrConflict, "cart already checked out")
			}
			return newError(ErrForbidden, "not your cart")
		}
		if cart.Status != model.CartStatusActive {
			return newError(ErrConflict, "cart is not active")
		}

		user, err := r.Users().FindByID(ctx, a.UserID)
		if err != nil {
			return fromRepo(ctx, err, "user")
		}

		items, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return fromRepo(ctx, err, "cart item")
		}
		if len(items) == 0 {
			return newError(ErrEmptyCart, "cart is empty")
		}

		ids := make([]int64, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ProductID)
		}
		ps, err := r.Products().FindByIDs(ctx, ids)
		if err != nil {
			return fromRepo(ctx, err, "product")
		}
		products := make(map[int64]model.Product, len(ps))
		for _, p := range ps {
			products[p.ID] = p
		}
		for _, it := range items {
			p, ok := products[it.ProductID]
			if !ok {
				return newError(ErrInvalidProduct, fmt.Sprintf("product %d not found", it.ProductID))
			}
			if err := checkPurchasable(p); err != nil {
				return err
			}
		}

		snap = checkoutSnapshot{cart: cart, user: *user, items: items, products: products}
		return nil
	})
	if err != nil {
		return checkoutSnapshot{}, txError(ctx, err)
	}
	return snap, nil
}

func (u *CheckoutUsecase) sessionParams(snap checkoutSnapshot, in CheckoutInput, email string) CheckoutSessionParams {
	lines := make([]CheckoutLine, 0, len(snap.items)+2)
	for _, it := range snap.items {
		p := snap.products[it.ProductID]
		lines = append(lines, CheckoutLine{
			Name:        p.Name,
			Description: p.Description,
			ImageURL:    p.ImageURL,
			UnitAmount:  toMinorUnits(it.Price.Div(decimal.NewFromInt(it.Quantity))),
			Quantity:    it.Quantity,
		})
	}
	if in.ShippingFee.IsPositive() {
		lines = append(lines, CheckoutLine{Name: "Shipping Fee", UnitAmount: toMinorUnits(in.ShippingFee), Quantity: 1})
	}
	if in.Tax.IsPositive() {
		lines = append(lines, CheckoutLine{Name: "Tax", UnitAmount: toMinorUnits(in.Tax), Quantity: 1})
	}

	cartID := strconv.FormatInt(snap.cart.ID, 10)
	return CheckoutSessionParams{
		Lines:         lines,
		CustomerEmail: email,
		SuccessURL:    u.cfg.FrontendURL + "/checkout/confirmation?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     u.cfg.FrontendURL + "/checkout/details",
		Metadata: map[string]string{
			"cartId": cartID,
			"userId": strconv.FormatInt(snap.user.ID, 10),
		},
		// 試行ごとに別キー。同じカートの並行チェックアウトでセッションを共有しない
		IdempotencyKey: fmt.Sprintf("checkout-%s-%s", cartID, uuid.NewString()),
	}
}

func (u *CheckoutUsecase) expire(ctx context.Context, sessionID string) {
	log := zerolog.Ctx(ctx).With().Str("session_id", sessionID).Logger()

	// 他の注文が使っているセッションは失効させない
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Orders().FindByGatewaySessionIDForUpdate(ctx, sessionID)
		return err
	})
	switch {
	case err == nil:
		log.Warn().Msg("checkout session is used by an order, not expiring")
		return
	case !errors.Is(err, repo.ErrNotFound):
		log.Warn().Err(err).Msg("checkout session lookup failed, not expiring")
		return
	}

	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cfg.GatewayTimeout)
	defer cancel()
	if err := u.gateway.ExpireCheckoutSession(ectx, sessionID); err != nil {
		log.Warn().Err(err).Msg("expire checkout session failed")
	}
}

func orderLines(snap checkoutSnapshot) []model.OrderItem {
	lines := make([]model.OrderItem, 0, len(snap.items))
	for _, it := range snap.items {
		p := snap.products[it.ProductID]
		lines = append(lines, model.OrderItem{
			ProductID:           it.ProductID,
			ProductNameSnapshot: p.Name,
			UnitPriceSnapshot:   it.UnitPrice,
			Quantity:            it.Quantity,
			LineTotal:           it.Price,
			SellerID:            p.SellerID,
		})
	}
	return lines
}

// 全明細が同じ出品者ならそのID
func commonSeller(lines []model.OrderItem) *int64 {
	var seller *int64
	for _, l := range lines {
		if l.SellerID == nil {
			return nil
		}
		if seller == nil {
			s := *l.SellerID
			seller = &s
			continue
		}
		if *seller != *l.SellerID {
			return nil
		}
	}
	return seller
}

// 金額を最小通貨単位（セント）へ。四捨五入
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// ORD-20260101-1A2B3C4D
func newOrderNumber(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(id[:8]))
}
