//go:build integration

package repository_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"marketplace/internal/domain/model"
	gormrepo "marketplace/internal/infra/repository"
	repo "marketplace/internal/repository"
	"marketplace/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parallel(n int, fn func(i int)) {
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(i)
		}()
	}
	wg.Wait()
}

// 登録済みユーザーと在庫付き商品
func buyerWithProduct(t *testing.T, tm *gormrepo.TxManagerGorm, email string, stock int64) (usecase.Actor, int64, model.Product) {
	t.Helper()
	ctx := context.Background()

	reg, err := usecase.NewAuthUsecase("secret", tm, passValidator{}).
		Register(ctx, usecase.AuthRegisterRequest{Email: email, Password: "password123"})
	require.NoError(t, err)

	p := model.Product{Name: "Widget " + email, Price: decimal.RequireFromString("10.00"), Quantity: stock, IsActive: true}
	require.NoError(t, tm.WithinTx(ctx, func(r repo.TxRepos) error { return r.Products().Create(ctx, &p) }))

	return usecase.Actor{UserID: reg.User.ID, Role: model.RoleUser}, *reg.User.CurrentCartID, p
}

func TestGorm_Concurrency(t *testing.T) {
	gdb := setupDB(t)
	tm := gormrepo.NewTxManagerGorm(gdb)
	ctx := context.Background()

	t.Run("parallel add item keeps total", func(t *testing.T) {
		a, cartID, p := buyerWithProduct(t, tm, "add@example.com", 100)
		carts := usecase.NewCartUsecase(tm)
		const n = 10

		errs := make([]error, n)
		parallel(n, func(i int) {
			_, errs[i] = carts.AddItem(ctx, a, cartID, usecase.AddItemInput{ProductID: p.ID, Quantity: 1})
		})
		for _, err := range errs {
			require.NoError(t, err)
		}

		cart, err := carts.GetCart(ctx, a, cartID)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, int64(n), cart.Items[0].Quantity)
		assert.True(t, cart.Total.Equal(cart.Items[0].Price), cart.Total.String())
		assert.True(t, cart.Total.Equal(decimal.RequireFromString("100")), cart.Total.String())
	})

	t.Run("parallel checkout creates one order", func(t *testing.T) {
		a, cartID, p := buyerWithProduct(t, tm, "checkout@example.com", 10)
		_, err := usecase.NewCartUsecase(tm).AddItem(ctx, a, cartID, usecase.AddItemInput{ProductID: p.ID, Quantity: 1})
		require.NoError(t, err)

		var arrived sync.WaitGroup
		arrived.Add(2)
		gw := &gateway{onCreate: func() {
			arrived.Done()
			arrived.Wait()
		}}
		checkout := usecase.NewCheckoutUsecase(tm, gw, usecase.CheckoutConfig{FrontendURL: "http://fe.example"})

		outs := make([]usecase.CheckoutOutput, 2)
		errs := make([]error, 2)
		parallel(2, func(i int) {
			outs[i], errs[i] = checkout.Checkout(ctx, a, cartID, usecase.CheckoutInput{})
		})

		winner := -1
		for i, err := range errs {
			if err == nil {
				require.Equal(t, -1, winner, "both checkouts succeeded")
				winner = i
				continue
			}
			require.ErrorIs(t, err, usecase.ErrConflict)
		}
		require.NotEqual(t, -1, winner)

		list, err := usecase.NewOrderUsecase(tm).ListByCart(ctx, a, cartID)
		require.NoError(t, err)
		require.Len(t, list.Items, 1)
		assert.Equal(t, outs[winner].SessionID, list.Items[0].GatewaySessionID)

		require.Len(t, gw.expired, 1)
		assert.NotEqual(t, outs[winner].SessionID, gw.expired[0])
	})

	t.Run("parallel webhook deliveries pay once", func(t *testing.T) {
		a, cartID, p := buyerWithProduct(t, tm, "webhook@example.com", 10)
		_, err := usecase.NewCartUsecase(tm).AddItem(ctx, a, cartID, usecase.AddItemInput{ProductID: p.ID, Quantity: 2})
		require.NoError(t, err)
		co, err := usecase.NewCheckoutUsecase(tm, &gateway{}, usecase.CheckoutConfig{FrontendURL: "http://fe.example"}).
			Checkout(ctx, a, cartID, usecase.CheckoutInput{})
		require.NoError(t, err)

		payload, err := json.Marshal(usecase.GatewayEvent{
			ID:        "evt_parallel",
			Type:      usecase.EventCheckoutSessionCompleted,
			SessionID: co.SessionID,
			Metadata:  map[string]string{"cartId": fmt.Sprint(cartID), "userId": fmt.Sprint(a.UserID)},
		})
		require.NoError(t, err)

		pay := usecase.NewPaymentUsecase(tm, verifier{}, nil)
		const n = 6
		results := make([]usecase.WebhookResult, n)
		errs := make([]error, n)
		parallel(n, func(i int) {
			results[i], errs[i] = pay.HandleWebhook(ctx, payload, "sig")
		})

		processed := 0
		for i, err := range errs {
			require.NoError(t, err)
			if !results[i].Duplicate {
				processed++
			}
		}
		assert.Equal(t, 1, processed)

		inv, err := usecase.NewInvoiceUsecase(tm).GetByOrder(ctx, a, co.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, model.InvoiceStatusPaid, inv.Status)

		invs, err := usecase.NewInvoiceUsecase(tm).ListByUser(ctx, a, a.UserID)
		require.NoError(t, err)
		assert.Len(t, invs, 1)
	})
}
