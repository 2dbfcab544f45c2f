package usecase

import (
	"context"
	"sync"
	"testing"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// n本のgoroutineで同時にfnを走らせる
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

func TestCartUsecase_ConcurrentAddItem(t *testing.T) {
	f := newCheckoutFixture(t)
	a := seedProduct(t, f.store, "A", "10.00", 100, nil)
	b := seedProduct(t, f.store, "B", "2.50", 100, nil)
	const n = 20

	errs := make([]error, n)
	parallel(n, func(i int) {
		p := a
		if i%2 == 1 {
			p = b
		}
		_, errs[i] = f.carts.AddItem(context.Background(), f.a, f.cart.ID, AddItemInput{ProductID: p.ID, Quantity: 1})
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	cart, err := f.carts.GetCart(context.Background(), f.a, f.cart.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)

	sum := decimal.Zero
	for _, it := range cart.Items {
		assert.Equal(t, int64(n/2), it.Quantity)
		sum = sum.Add(it.Price)
	}
	assert.True(t, cart.Total.Equal(sum), "total=%s sum=%s", cart.Total, sum)
	assert.True(t, cart.Total.Equal(dec("125")), cart.Total.String())
}

func TestCheckout_ConcurrentOnSameCart(t *testing.T) {
	tests := []struct {
		name  string
		setup func(g *fakeGateway)
	}{
		{name: "idempotent gateway", setup: func(g *fakeGateway) { g.byKey = true }},
		{name: "gateway returns the same session", setup: func(g *fakeGateway) { g.fixedID = "cs_shared" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(t)
			tt.setup(f.gateway)
			p := seedProduct(t, f.store, "A", "10.00", 10, nil)
			f.add(t, p, 2)

			// 両方がセッションを作り終えてからTxに入る
			var arrived sync.WaitGroup
			arrived.Add(2)
			f.gateway.onCreate = func() {
				arrived.Done()
				arrived.Wait()
			}

			outs := make([]CheckoutOutput, 2)
			errs := make([]error, 2)
			parallel(2, func(i int) {
				outs[i], errs[i] = f.checkout.Checkout(context.Background(), f.a, f.cart.ID, CheckoutInput{})
			})

			winner := -1
			for i, err := range errs {
				if err == nil {
					require.Equal(t, -1, winner, "both checkouts succeeded")
					winner = i
					continue
				}
				require.ErrorIs(t, err, ErrConflict)
			}
			require.NotEqual(t, -1, winner, "no checkout succeeded")

			orders := read(t, f.store, func(r repo.TxRepos) ([]model.Order, error) {
				cartID := f.cart.ID
				list, _, err := r.Orders().List(context.Background(), repo.OrderListFilter{CartID: &cartID})
				return list, err
			})
			require.Len(t, orders, 1)
			assert.Equal(t, outs[winner].SessionID, orders[0].GatewaySessionID)

			// 注文が使っているセッションは失効させない
			require.Len(t, f.gateway.params, 2)
			assert.NotEqual(t, f.gateway.params[0].IdempotencyKey, f.gateway.params[1].IdempotencyKey)
			assert.NotContains(t, f.gateway.expired, outs[winner].SessionID)
			if f.gateway.fixedID == "" {
				assert.Len(t, f.gateway.expired, 1)
			} else {
				assert.Empty(t, f.gateway.expired)
			}
		})
	}
}

func TestHandleWebhook_ConcurrentDeliveries(t *testing.T) {
	tests := []struct {
		name   string
		claims func() EventClaimer
	}{
		{name: "db only", claims: func() EventClaimer { return nil }},
		{name: "with claimer", claims: func() EventClaimer { return newFakeClaimer() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, co := paidFixture(t)
			pay := NewPaymentUsecase(f.store, fakeVerifier{}, tt.claims())
			payload := completedEvent(t, "evt_1", co.SessionID, f.cart.ID, f.user.ID)
			const n = 8

			results := make([]WebhookResult, n)
			errs := make([]error, n)
			parallel(n, func(i int) {
				results[i], errs[i] = pay.HandleWebhook(context.Background(), payload, goodSig)
			})

			processed := 0
			for i, err := range errs {
				if err != nil {
					// 処理中の先取りに当たったものは再送待ち
					require.ErrorIs(t, err, ErrInternal)
					continue
				}
				if !results[i].Duplicate {
					processed++
				}
			}
			assert.Equal(t, 1, processed)

			order := read(t, f.store, func(r repo.TxRepos) (model.Order, error) {
				return r.Orders().FindByID(context.Background(), co.Order.ID)
			})
			assert.Equal(t, model.OrderStatusPaid, order.Status)

			invs := invoicesOf(t, f, co.Order.ID)
			require.Len(t, invs, 1)
			assert.Equal(t, model.InvoiceStatusPaid, invs[0].Status)

			assert.Equal(t, []string{model.EventOrderCreated, model.EventOrderPaid}, outboxTypes(t, f.store))
		})
	}
}

// 決済確定とチェックアウトのcommitがどちらの順でも、最後は1件だけPAID
func TestHandleWebhook_RacesCheckoutCommit(t *testing.T) {
	f := newCheckoutFixture(t)
	p := seedProduct(t, f.store, "A", "10.00", 10, nil)
	f.add(t, p, 1)
	pay := NewPaymentUsecase(f.store, fakeVerifier{}, newFakeClaimer())

	// セッションができたら即webhookを投げる（checkoutのTxより先に届く）
	var (
		webhookErr error
		sessionID  string
	)
	f.gateway.onCreate = func() {
		f.gateway.onCreate = nil
		sessionID = "cs_test_1"
		_, webhookErr = pay.HandleWebhook(context.Background(), completedEvent(t, "evt_1", sessionID, f.cart.ID, f.user.ID), goodSig)
	}

	co, err := f.checkout.Checkout(context.Background(), f.a, f.cart.ID, CheckoutInput{})
	require.NoError(t, err)
	require.Equal(t, sessionID, co.SessionID)
	require.ErrorIs(t, webhookErr, ErrInternal)

	// ゲートウェイの再送
	res, err := pay.HandleWebhook(context.Background(), completedEvent(t, "evt_1", sessionID, f.cart.ID, f.user.ID), goodSig)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	invs := invoicesOf(t, f, co.Order.ID)
	require.Len(t, invs, 1)
	assert.Equal(t, model.InvoiceStatusPaid, invs[0].Status)
}
