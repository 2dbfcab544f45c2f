package usecase

import (
	"context"
	"testing"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 出品者付き商品で注文を1つ作る
func sellerOrderFixture(t *testing.T) (*checkoutFixture, CheckoutOutput, model.User) {
	t.Helper()
	f := newCheckoutFixture(t)
	seller, _ := seedUser(t, f.store, "seller@example.com", model.RoleUser)
	sid := seller.ID
	p := seedProduct(t, f.store, "A", "12.50", 10, &sid)
	f.add(t, p, 2)
	out, err := f.checkout.Checkout(context.Background(), f.a, f.cart.ID, CheckoutInput{ShippingFee: dec("5")})
	require.NoError(t, err)
	return f, out, seller
}

func TestOrderUsecase_Access(t *testing.T) {
	f, co, seller := sellerOrderFixture(t)
	orders := NewOrderUsecase(f.store)
	ctx := context.Background()

	got, err := orders.Get(ctx, f.a, co.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, co.Order.OrderNumber, got.OrderNumber)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "A", got.Items[0].Name)
	assert.True(t, got.Items[0].LineTotal.Equal(dec("25")))

	_, err = orders.Get(ctx, userActor(seller.ID), co.Order.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = orders.Get(ctx, adminActor(999), co.Order.ID)
	require.NoError(t, err)

	_, err = orders.Get(ctx, f.a, 424242)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = orders.List(ctx, f.a, repo.OrderListFilter{})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = orders.ListByUser(ctx, userActor(seller.ID), f.user.ID, 1, 10)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestOrderUsecase_Lists(t *testing.T) {
	f, co, seller := sellerOrderFixture(t)
	orders := NewOrderUsecase(f.store)
	ctx := context.Background()

	mine, err := orders.ListByUser(ctx, f.a, f.user.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), mine.Total)
	assert.Equal(t, 1, mine.Page)
	assert.Equal(t, 50, mine.Limit)

	_, err = orders.ListByUser(ctx, f.a, f.user.ID, 1, 101)
	require.ErrorIs(t, err, ErrValidation)

	pending, err := orders.ListByStatus(ctx, adminActor(1), "pending", 1, 10)
	require.NoError(t, err)
	require.Len(t, pending.Items, 1)
	assert.Equal(t, co.Order.ID, pending.Items[0].ID)

	_, err = orders.ListByStatus(ctx, adminActor(1), "LOST", 1, 10)
	require.ErrorIs(t, err, ErrValidation)

	byCart, err := orders.ListByCart(ctx, f.a, f.cart.ID)
	require.NoError(t, err)
	assert.Len(t, byCart.Items, 1)

	// 他人のカートIDを指定しても自分の注文しか出ない
	other, err := orders.ListByCart(ctx, userActor(seller.ID), f.cart.ID)
	require.NoError(t, err)
	assert.Empty(t, other.Items)
}

func TestOrderUsecase_UpdateStatus(t *testing.T) {
	f, co, _ := sellerOrderFixture(t)
	orders := NewOrderUsecase(f.store)
	audit := NewAuditUsecase(f.store)
	admin := adminActor(1)
	ctx := context.Background()

	_, err := orders.UpdateStatus(ctx, f.a, co.Order.ID, "SHIPPED")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = orders.UpdateStatus(ctx, admin, co.Order.ID, "teleported")
	require.ErrorIs(t, err, ErrValidation)

	out, err := orders.UpdateStatus(ctx, admin, co.Order.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusShipped, out.Status)

	// 同じ値なら書かない
	_, err = orders.UpdateStatus(ctx, admin, co.Order.ID, "SHIPPED")
	require.NoError(t, err)

	logs, err := audit.List(ctx, admin, AuditLogQuery{ResourceType: "order"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionUpdateOrderStatus, logs[0].Action)
	assert.Equal(t, co.Order.ID, logs[0].ResourceID)
	assert.JSONEq(t, `{"status":"PENDING"}`, logs[0].BeforeJSON)
	assert.JSONEq(t, `{"status":"SHIPPED"}`, logs[0].AfterJSON)
}

func TestOrderUsecase_UpdateAndDelete(t *testing.T) {
	f, co, _ := sellerOrderFixture(t)
	orders := NewOrderUsecase(f.store)
	audit := NewAuditUsecase(f.store)
	admin := adminActor(1)
	ctx := context.Background()

	neg := dec("-1")
	_, err := orders.Update(ctx, admin, co.Order.ID, UpdateOrderInput{Tax: &neg})
	require.ErrorIs(t, err, ErrValidation)

	city := "Osaka"
	fee := dec("7.005")
	out, err := orders.Update(ctx, admin, co.Order.ID, UpdateOrderInput{City: &city, ShippingFee: &fee})
	require.NoError(t, err)
	assert.Equal(t, "Osaka", out.City)
	assert.True(t, out.ShippingFee.Equal(dec("7.01")), out.ShippingFee.String())
	assert.Equal(t, model.OrderStatusPending, out.Status)

	require.NoError(t, orders.Delete(ctx, admin, co.Order.ID))
	_, err = orders.Get(ctx, admin, co.Order.ID)
	require.ErrorIs(t, err, ErrNotFound)

	items := read(t, f.store, func(r repo.TxRepos) ([]model.OrderItem, error) {
		return r.OrderItems().ListByOrderID(ctx, co.Order.ID)
	})
	assert.Empty(t, items)

	// 請求も残らない
	err = f.store.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Invoices().FindByOrderID(ctx, co.Order.ID)
		return err
	})
	require.ErrorIs(t, err, repo.ErrNotFound)

	logs, err := audit.List(ctx, admin, AuditLogQuery{ResourceType: "order"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	// 新しい順
	assert.Equal(t, model.AuditActionDeleteOrder, logs[0].Action)
	assert.Equal(t, model.AuditActionUpdateOrder, logs[1].Action)

	invLogs, err := audit.List(ctx, admin, AuditLogQuery{ResourceType: "invoice"})
	require.NoError(t, err)
	require.Len(t, invLogs, 1)
	assert.Equal(t, model.AuditActionDeleteInvoice, invLogs[0].Action)
}

func TestOrderUsecase_UpdatePaidOrder(t *testing.T) {
	f, co, _ := sellerOrderFixture(t)
	_, err := NewPaymentUsecase(f.store, fakeVerifier{}, nil).
		HandleWebhook(context.Background(), completedEvent(t, "evt_1", co.SessionID, f.cart.ID, f.user.ID), goodSig)
	require.NoError(t, err)

	orders := NewOrderUsecase(f.store)
	admin := adminActor(1)
	ctx := context.Background()

	ref := "pi_other"
	_, err = orders.Update(ctx, admin, co.Order.ID, UpdateOrderInput{PaymentReference: &ref})
	require.ErrorIs(t, err, ErrConflict)

	city := "Osaka"
	_, err = orders.Update(ctx, admin, co.Order.ID, UpdateOrderInput{City: &city})
	require.ErrorIs(t, err, ErrConflict)

	// 同じ値とステータスだけなら通る
	same := "pi_evt_1"
	shipped := "SHIPPED"
	out, err := orders.Update(ctx, admin, co.Order.ID, UpdateOrderInput{PaymentReference: &same, Status: &shipped})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusShipped, out.Status)
	assert.Equal(t, "pi_evt_1", out.PaymentReference)
	assert.Empty(t, out.City)
}

func TestInvoiceUsecase_Access(t *testing.T) {
	f, co, seller := sellerOrderFixture(t)
	invoices := NewInvoiceUsecase(f.store)
	ctx := context.Background()

	inv, err := invoices.GetByOrder(ctx, f.a, co.Order.ID)
	require.NoError(t, err)
	assert.True(t, inv.Amount.Equal(dec("30")), inv.Amount.String())
	require.NotNil(t, inv.SellerID)
	assert.Equal(t, seller.ID, *inv.SellerID)

	// 出品者も読める
	_, err = invoices.Get(ctx, userActor(seller.ID), inv.ID)
	require.NoError(t, err)
	bySeller, err := invoices.ListBySeller(ctx, userActor(seller.ID), seller.ID)
	require.NoError(t, err)
	assert.Len(t, bySeller, 1)

	stranger, _ := seedUser(t, f.store, "stranger@example.com", model.RoleUser)
	_, err = invoices.Get(ctx, userActor(stranger.ID), inv.ID)
	require.ErrorIs(t, err, ErrForbidden)

	byCart, err := invoices.ListByCart(ctx, userActor(stranger.ID), f.cart.ID)
	require.NoError(t, err)
	assert.Empty(t, byCart)

	_, err = invoices.List(ctx, f.a, "")
	require.ErrorIs(t, err, ErrForbidden)

	pending, err := invoices.List(ctx, adminActor(1), "pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = invoices.List(ctx, adminActor(1), "REFUNDED")
	require.ErrorIs(t, err, ErrValidation)
}

func TestInvoiceUsecase_Overrides(t *testing.T) {
	f, co, _ := sellerOrderFixture(t)
	invoices := NewInvoiceUsecase(f.store)
	audit := NewAuditUsecase(f.store)
	admin := adminActor(1)
	ctx := context.Background()

	inv, err := invoices.GetByOrder(ctx, admin, co.Order.ID)
	require.NoError(t, err)

	_, err = invoices.UpdatePaymentStatus(ctx, f.a, inv.ID, "PAID")
	require.ErrorIs(t, err, ErrForbidden)

	paid, err := invoices.UpdatePaymentStatus(ctx, admin, inv.ID, "paid")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaymentDate)

	amount := dec("29.999")
	method := " bank_transfer "
	updated, err := invoices.Update(ctx, admin, inv.ID, UpdateInvoiceInput{Amount: &amount, PaymentMethod: &method})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(dec("30.00")))
	assert.Equal(t, "bank_transfer", updated.PaymentMethod)
	// 支払日はそのまま
	assert.True(t, paid.PaymentDate.Equal(*updated.PaymentDate))

	neg := dec("-5")
	_, err = invoices.Update(ctx, admin, inv.ID, UpdateInvoiceInput{Amount: &neg})
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, invoices.Delete(ctx, admin, inv.ID))
	_, err = invoices.Get(ctx, admin, inv.ID)
	require.ErrorIs(t, err, ErrNotFound)

	logs, err := audit.List(ctx, admin, AuditLogQuery{ResourceType: "INVOICE"})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, model.AuditActionDeleteInvoice, logs[0].Action)
	assert.Equal(t, model.AuditActionUpdateInvoice, logs[1].Action)
	assert.Equal(t, model.AuditActionUpdateInvoiceStatus, logs[2].Action)
	assert.Equal(t, int64(1), logs[0].ActorUserID)
}

func TestAuditUsecase_List(t *testing.T) {
	s := newCheckoutFixture(t).store
	audit := NewAuditUsecase(s)
	ctx := context.Background()

	_, err := audit.List(ctx, userActor(1), AuditLogQuery{})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = audit.List(ctx, adminActor(1), AuditLogQuery{Limit: 500})
	require.ErrorIs(t, err, ErrValidation)

	_, err = audit.List(ctx, adminActor(1), AuditLogQuery{ResourceType: "user"})
	require.ErrorIs(t, err, ErrValidation)

	logs, err := audit.List(ctx, Actor{UserID: 2, Role: model.RoleManager}, AuditLogQuery{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}
