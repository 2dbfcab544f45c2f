package memory

import (
	"context"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

// users

type userRepo struct{ st *state }

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	for _, u := range r.st.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repo.ErrConflict
		}
	}
	now := time.Now()
	user.ID = r.st.nextID()
	user.CreatedAt, user.UpdatedAt = now, now
	r.st.users[user.ID] = *user
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	u, ok := r.st.users[userID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &u, nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range r.st.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *userRepo) Update(ctx context.Context, user *model.User) error {
	if _, ok := r.st.users[user.ID]; !ok {
		return repo.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	r.st.users[user.ID] = *user
	return nil
}

func (r *userRepo) SetCurrentCart(ctx context.Context, userID int64, cartID int64) error {
	u, ok := r.st.users[userID]
	if !ok {
		return repo.ErrNotFound
	}
	u.CurrentCartID = &cartID
	u.UpdatedAt = time.Now()
	r.st.users[userID] = u
	return nil
}

// products

type productRepo struct{ st *state }

func (r *productRepo) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r *productRepo) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	out := []model.Product{}
	for _, id := range ids {
		if p, ok := r.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *productRepo) Create(ctx context.Context, p *model.Product) error {
	now := time.Now()
	p.ID = r.st.nextID()
	p.CreatedAt, p.UpdatedAt = now, now
	r.st.products[p.ID] = *p
	return nil
}

func (r *productRepo) SetActive(ctx context.Context, id int64, active bool) error {
	p, ok := r.st.products[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.IsActive = active
	p.UpdatedAt = time.Now()
	r.st.products[id] = p
	return nil
}

// carts

type cartRepo struct{ st *state }

func (r *cartRepo) Create(ctx context.Context, cart *model.Cart) error {
	if cart.Status == "" {
		cart.Status = model.CartStatusActive
	}
	if cart.Status == model.CartStatusActive && cart.OwnerUserID != nil {
		if _, err := r.FindActiveByUserID(ctx, *cart.OwnerUserID); err == nil {
			return repo.ErrConflict
		}
	}
	now := time.Now()
	cart.ID = r.st.nextID()
	cart.CreatedAt, cart.UpdatedAt = now, now
	r.st.carts[cart.ID] = *cart
	return nil
}

func (r *cartRepo) FindByID(ctx context.Context, cartID int64) (model.Cart, error) {
	c, ok := r.st.carts[cartID]
	if !ok {
		return model.Cart{}, repo.ErrNotFound
	}
	return c, nil
}

// Txがストア全体を直列化しているのでロックは取れている扱い
func (r *cartRepo) FindByIDForUpdate(ctx context.Context, cartID int64) (model.Cart, error) {
	return r.FindByID(ctx, cartID)
}

func (r *cartRepo) FindActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	for _, c := range r.st.carts {
		if c.Status == model.CartStatusActive && c.OwnedBy(userID) {
			return c, nil
		}
	}
	return model.Cart{}, repo.ErrNotFound
}

func (r *cartRepo) List(ctx context.Context, status *model.CartStatus) ([]model.Cart, error) {
	out := []model.Cart{}
	for _, c := range sortedValues(r.st.carts, true) {
		if status != nil && c.Status != *status {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *cartRepo) UpdateTotal(ctx context.Context, cartID int64, total decimal.Decimal) error {
	c, ok := r.st.carts[cartID]
	if !ok {
		return repo.ErrNotFound
	}
	c.Total = total
	c.UpdatedAt = time.Now()
	r.st.carts[cartID] = c
	return nil
}

func (r *cartRepo) Update(ctx context.Context, cart model.Cart) error {
	c, ok := r.st.carts[cart.ID]
	if !ok {
		return repo.ErrNotFound
	}
	c.Total = cart.Total
	c.Status = cart.Status
	c.OwnerUserID = cart.OwnerUserID
	c.UpdatedAt = time.Now()
	r.st.carts[cart.ID] = c
	return nil
}

func (r *cartRepo) MarkCheckedOut(ctx context.Context, cartID int64, userID int64) (bool, error) {
	c, ok := r.st.carts[cartID]
	if !ok || c.Status != model.CartStatusActive {
		return false, nil
	}
	uid := userID
	c.Status = model.CartStatusCheckedOut
	c.OwnerUserID = nil
	c.CheckedOutByUserID = &uid
	c.UpdatedAt = time.Now()
	r.st.carts[cartID] = c
	return true, nil
}

func (r *cartRepo) Delete(ctx context.Context, cartID int64) error {
	if _, ok := r.st.carts[cartID]; !ok {
		return repo.ErrNotFound
	}
	for id, it := range r.st.cartItems {
		if it.CartID == cartID {
			delete(r.st.cartItems, id)
		}
	}
	delete(r.st.carts, cartID)
	return nil
}

// cart items

type cartItemRepo struct{ st *state }

func (r *cartItemRepo) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	out := []model.CartItem{}
	for _, it := range sortedValues(r.st.cartItems, false) {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *cartItemRepo) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	it, ok := r.st.cartItems[cartItemID]
	if !ok {
		return model.CartItem{}, repo.ErrNotFound
	}
	return it, nil
}

func (r *cartItemRepo) FindByCartAndProduct(ctx context.Context, cartID int64, productID int64) (model.CartItem, error) {
	for _, it := range r.st.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			return it, nil
		}
	}
	return model.CartItem{}, repo.ErrNotFound
}

func (r *cartItemRepo) Create(ctx context.Context, item *model.CartItem) error {
	if _, err := r.FindByCartAndProduct(ctx, item.CartID, item.ProductID); err == nil {
		return repo.ErrConflict
	}
	now := time.Now()
	item.ID = r.st.nextID()
	item.CreatedAt, item.UpdatedAt = now, now
	r.st.cartItems[item.ID] = *item
	return nil
}

func (r *cartItemRepo) Update(ctx context.Context, item model.CartItem) error {
	it, ok := r.st.cartItems[item.ID]
	if !ok {
		return repo.ErrNotFound
	}
	it.Quantity = item.Quantity
	it.UnitPrice = item.UnitPrice
	it.Price = item.Price
	it.UpdatedAt = time.Now()
	r.st.cartItems[item.ID] = it
	return nil
}

func (r *cartItemRepo) DeleteByID(ctx context.Context, cartItemID int64) error {
	if _, ok := r.st.cartItems[cartItemID]; !ok {
		return repo.ErrNotFound
	}
	delete(r.st.cartItems, cartItemID)
	return nil
}

func (r *cartItemRepo) DeleteByCartID(ctx context.Context, cartID int64) (int64, error) {
	var n int64
	for id, it := range r.st.cartItems {
		if it.CartID == cartID {
			delete(r.st.cartItems, id)
			n++
		}
	}
	return n, nil
}

// orders

type orderRepo struct{ st *state }

func (r *orderRepo) Create(ctx context.Context, order *model.Order) error {
	for _, o := range r.st.orders {
		if o.OrderNumber == order.OrderNumber || o.GatewaySessionID == order.GatewaySessionID {
			return repo.ErrConflict
		}
	}
	now := time.Now()
	order.ID = r.st.nextID()
	order.CreatedAt, order.UpdatedAt = now, now
	r.st.orders[order.ID] = *order
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	o, ok := r.st.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r *orderRepo) FindByGatewaySessionIDForUpdate(ctx context.Context, sessionID string) (model.Order, error) {
	for _, o := range r.st.orders {
		if o.GatewaySessionID == sessionID {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (r *orderRepo) List(ctx context.Context, f repo.OrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	matched := []model.Order{}
	for _, o := range sortedValues(r.st.orders, true) {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.CartID != nil && o.CartID != *f.CartID {
			continue
		}
		matched = append(matched, o)
	}

	total := int64(len(matched))
	start := (f.Page - 1) * f.Limit
	if start >= len(matched) {
		return []model.Order{}, total, nil
	}
	end := start + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *orderRepo) Update(ctx context.Context, order model.Order) error {
	o, ok := r.st.orders[order.ID]
	if !ok {
		return repo.ErrNotFound
	}
	order.CreatedAt = o.CreatedAt
	order.UpdatedAt = time.Now()
	r.st.orders[order.ID] = order
	return nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	o, ok := r.st.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	r.st.orders[orderID] = o
	return nil
}

func (r *orderRepo) MarkPaid(ctx context.Context, orderID int64, c repo.PaymentConfirmation) (bool, error) {
	o, ok := r.st.orders[orderID]
	if !ok || o.Status != model.OrderStatusPending {
		return false, nil
	}
	o.Status = model.OrderStatusPaid
	o.PaymentReference = c.PaymentReference
	if o.Email == "" {
		o.Email = c.Email
	}
	if o.PhoneNumber == "" {
		o.PhoneNumber = c.PhoneNumber
	}
	o.UpdatedAt = time.Now()
	r.st.orders[orderID] = o
	return true, nil
}

func (r *orderRepo) Delete(ctx context.Context, orderID int64) error {
	if _, ok := r.st.orders[orderID]; !ok {
		return repo.ErrNotFound
	}
	delete(r.st.orders, orderID)
	return nil
}

// order items

type orderItemRepo struct{ st *state }

func (r *orderItemRepo) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	now := time.Now()
	for i := range items {
		items[i].ID = r.st.nextID()
		items[i].OrderID = orderID
		items[i].CreatedAt = now
		r.st.orderItems[items[i].ID] = items[i]
	}
	return nil
}

func (r *orderItemRepo) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	out := []model.OrderItem{}
	for _, it := range sortedValues(r.st.orderItems, false) {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *orderItemRepo) DeleteByOrderID(ctx context.Context, orderID int64) error {
	for id, it := range r.st.orderItems {
		if it.OrderID == orderID {
			delete(r.st.orderItems, id)
		}
	}
	return nil
}

// invoices

type invoiceRepo struct{ st *state }

func (r *invoiceRepo) Create(ctx context.Context, inv *model.Invoice) error {
	for _, v := range r.st.invoices {
		if v.OrderID == inv.OrderID {
			return repo.ErrConflict
		}
	}
	if inv.PaymentMethod == "" {
		inv.PaymentMethod = "card"
	}
	now := time.Now()
	inv.ID = r.st.nextID()
	inv.CreatedAt, inv.UpdatedAt = now, now
	r.st.invoices[inv.ID] = *inv
	return nil
}

func (r *invoiceRepo) FindByID(ctx context.Context, invoiceID int64) (model.Invoice, error) {
	v, ok := r.st.invoices[invoiceID]
	if !ok {
		return model.Invoice{}, repo.ErrNotFound
	}
	return v, nil
}

func (r *invoiceRepo) FindByOrderID(ctx context.Context, orderID int64) (model.Invoice, error) {
	for _, v := range r.st.invoices {
		if v.OrderID == orderID {
			return v, nil
		}
	}
	return model.Invoice{}, repo.ErrNotFound
}

func (r *invoiceRepo) List(ctx context.Context, f repo.InvoiceListFilter) ([]model.Invoice, error) {
	out := []model.Invoice{}
	for _, v := range sortedValues(r.st.invoices, true) {
		if f.Status != nil && v.Status != *f.Status {
			continue
		}
		if f.UserID != nil && v.UserID != *f.UserID {
			continue
		}
		if f.SellerID != nil && (v.SellerID == nil || *v.SellerID != *f.SellerID) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *invoiceRepo) ListByCartID(ctx context.Context, cartID int64) ([]model.Invoice, error) {
	out := []model.Invoice{}
	for _, v := range sortedValues(r.st.invoices, true) {
		if o, ok := r.st.orders[v.OrderID]; ok && o.CartID == cartID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *invoiceRepo) Update(ctx context.Context, inv model.Invoice) error {
	v, ok := r.st.invoices[inv.ID]
	if !ok {
		return repo.ErrNotFound
	}
	inv.OrderID = v.OrderID
	inv.CreatedAt = v.CreatedAt
	inv.UpdatedAt = time.Now()
	r.st.invoices[inv.ID] = inv
	return nil
}

func (r *invoiceRepo) Delete(ctx context.Context, invoiceID int64) error {
	if _, ok := r.st.invoices[invoiceID]; !ok {
		return repo.ErrNotFound
	}
	delete(r.st.invoices, invoiceID)
	return nil
}

// webhook events

type webhookEventRepo struct{ st *state }

func (r *webhookEventRepo) Record(ctx context.Context, ev model.ProcessedWebhookEvent) (bool, error) {
	if _, ok := r.st.webhookEvents[ev.EventID]; ok {
		return false, nil
	}
	r.st.webhookEvents[ev.EventID] = ev
	return true, nil
}

// outbox

type outboxRepo struct{ st *state }

func (r *outboxRepo) Enqueue(ctx context.Context, ev *model.OutboxEvent) error {
	if ev.Status == "" {
		ev.Status = model.OutboxStatusPending
	}
	ev.ID = r.st.nextID()
	ev.CreatedAt = time.Now()
	r.st.outbox[ev.ID] = *ev
	return nil
}

// audit logs

type auditLogRepo struct{ st *state }

func (r *auditLogRepo) Create(ctx context.Context, log model.AuditLog) error {
	log.ID = r.st.nextID()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	r.st.auditLogs = append(r.st.auditLogs, log)
	return nil
}

func (r *auditLogRepo) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	out := []model.AuditLog{}
	for i := len(r.st.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		l := r.st.auditLogs[i]
		if filter.ActorUserID != nil && l.ActorUserID != *filter.ActorUserID {
			continue
		}
		if filter.ResourceType != nil && l.ResourceType != *filter.ResourceType {
			continue
		}
		if filter.ResourceID != nil && l.ResourceID != *filter.ResourceID {
			continue
		}
		if filter.CreatedFrom != nil && l.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
