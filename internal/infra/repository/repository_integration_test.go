//go:build integration

package repository_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/db"
	gormrepo "marketplace/internal/infra/repository"
	repo "marketplace/internal/repository"
	"marketplace/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// go test -tags integration ./internal/infra/repository/...
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("marketplace"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	gdb, err := db.Connect(dsn, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func TestGorm_CartInvariants(t *testing.T) {
	gdb := setupDB(t)
	tm := gormrepo.NewTxManagerGorm(gdb)
	ctx := context.Background()

	var user model.User
	var cart model.Cart
	require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error {
		user = model.User{Email: "a@example.com", PasswordHash: "x", Role: model.RoleUser, IsActive: true}
		if err := r.Users().Create(ctx, &user); err != nil {
			return err
		}
		cart = model.Cart{OwnerUserID: &user.ID, Status: model.CartStatusActive, Total: decimal.Zero}
		return r.Carts().Create(ctx, &cart)
	}))

	t.Run("duplicate email", func(t *testing.T) {
		err := tm.WithinTx(ctx, func(r repo.TxRepos) error {
			return r.Users().Create(ctx, &model.User{Email: "a@example.com", PasswordHash: "x", Role: model.RoleUser})
		})
		assert.ErrorIs(t, err, repo.ErrConflict)
	})

	t.Run("second active cart", func(t *testing.T) {
		err := tm.WithinTx(ctx, func(r repo.TxRepos) error {
			return r.Carts().Create(ctx, &model.Cart{OwnerUserID: &user.ID, Status: model.CartStatusActive, Total: decimal.Zero})
		})
		assert.ErrorIs(t, err, repo.ErrConflict)
	})

	t.Run("checked out once", func(t *testing.T) {
		var first, second bool
		require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error {
			var err error
			if first, err = r.Carts().MarkCheckedOut(ctx, cart.ID, user.ID); err != nil {
				return err
			}
			second, err = r.Carts().MarkCheckedOut(ctx, cart.ID, user.ID)
			return err
		}))
		assert.True(t, first)
		assert.False(t, second)

		// 外れたので新しいactiveカートを作れる
		require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error {
			return r.Carts().Create(ctx, &model.Cart{OwnerUserID: &user.ID, Status: model.CartStatusActive, Total: decimal.Zero})
		}))
	})

	t.Run("webhook event recorded once", func(t *testing.T) {
		ev := model.ProcessedWebhookEvent{EventID: "evt_1", EventType: "checkout.session.completed", OrderID: 1, ProcessedAt: time.Now()}
		var first, second bool
		require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error {
			var err error
			first, err = r.WebhookEvents().Record(ctx, ev)
			return err
		}))
		require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error {
			var err error
			second, err = r.WebhookEvents().Record(ctx, ev)
			return err
		}))
		assert.True(t, first)
		assert.False(t, second)
	})
}

type gateway struct {
	mu      sync.Mutex
	n       int
	expired []string
	// 作成後に呼ぶ（並行テストの足並みそろえ用）
	onCreate func()
}

func (g *gateway) CreateCheckoutSession(ctx context.Context, p usecase.CheckoutSessionParams) (usecase.CheckoutSession, error) {
	g.mu.Lock()
	g.n++
	id := fmt.Sprintf("cs_it_%d", g.n)
	hook := g.onCreate
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	return usecase.CheckoutSession{ID: id, URL: "https://pay.example/" + id}, nil
}

func (g *gateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = append(g.expired, sessionID)
	return nil
}

type verifier struct{}

func (verifier) Verify(payload []byte, signature string) (usecase.GatewayEvent, error) {
	var ev usecase.GatewayEvent
	err := json.Unmarshal(payload, &ev)
	return ev, err
}

func TestGorm_CheckoutAndWebhook(t *testing.T) {
	gdb := setupDB(t)
	tm := gormrepo.NewTxManagerGorm(gdb)
	outbox := gormrepo.NewOutboxGormRepository(gdb)
	ctx := context.Background()

	auth := usecase.NewAuthUsecase("secret", tm, passValidator{})
	reg, err := auth.Register(ctx, usecase.AuthRegisterRequest{Email: "buyer@example.com", Password: "password123"})
	require.NoError(t, err)
	a := usecase.Actor{UserID: reg.User.ID, Role: model.RoleUser}
	cartID := *reg.User.CurrentCartID

	p := model.Product{Name: "Widget", Price: decimal.RequireFromString("10.00"), Quantity: 5, IsActive: true}
	require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error { return r.Products().Create(ctx, &p) }))

	carts := usecase.NewCartUsecase(tm)
	_, err = carts.AddItem(ctx, a, cartID, usecase.AddItemInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = carts.AddItem(ctx, a, cartID, usecase.AddItemInput{ProductID: p.ID, Quantity: 4})
	require.ErrorIs(t, err, usecase.ErrInsufficientStock)

	checkout := usecase.NewCheckoutUsecase(tm, &gateway{}, usecase.CheckoutConfig{FrontendURL: "http://fe.example"})
	co, err := checkout.Checkout(ctx, a, cartID, usecase.CheckoutInput{Tax: decimal.RequireFromString("1.50")})
	require.NoError(t, err)

	payload, err := json.Marshal(usecase.GatewayEvent{
		ID:        "evt_it_1",
		Type:      usecase.EventCheckoutSessionCompleted,
		SessionID: co.SessionID,
		Metadata:  map[string]string{"cartId": fmt.Sprint(cartID), "userId": fmt.Sprint(reg.User.ID)},
	})
	require.NoError(t, err)

	pay := usecase.NewPaymentUsecase(tm, verifier{}, nil)
	res, err := pay.HandleWebhook(ctx, payload, "sig")
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	res, err = pay.HandleWebhook(ctx, payload, "sig")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	order, err := usecase.NewOrderUsecase(tm).Get(ctx, a, co.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, order.Status)
	assert.Equal(t, co.SessionID, order.PaymentReference)

	inv, err := usecase.NewInvoiceUsecase(tm).GetByOrder(ctx, a, co.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, inv.Status)
	assert.True(t, inv.Amount.Equal(decimal.RequireFromString("21.50")), inv.Amount.String())

	events, err := outbox.LockBatch(ctx, "it", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventOrderCreated, events[0].Type)
	assert.Equal(t, model.EventOrderPaid, events[1].Type)

	require.NoError(t, outbox.MarkSent(ctx, []int64{events[0].ID, events[1].ID}))
	rest, err := outbox.LockBatch(ctx, "it", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

type passValidator struct{}

func (passValidator) ValidateRegister(ctx context.Context, email, password string) error { return nil }
func (passValidator) ValidateLogin(ctx context.Context, email, password string) error    { return nil }
