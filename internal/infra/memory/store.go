// Package memory はDBなしで動かすためのインメモリ実装。
// Txはストア全体のロックで直列化し、エラー時はスナップショットへ戻す。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

type state struct {
	seq           int64
	users         map[int64]model.User
	products      map[int64]model.Product
	carts         map[int64]model.Cart
	cartItems     map[int64]model.CartItem
	orders        map[int64]model.Order
	orderItems    map[int64]model.OrderItem
	invoices      map[int64]model.Invoice
	webhookEvents map[string]model.ProcessedWebhookEvent
	outbox        map[int64]model.OutboxEvent
	auditLogs     []model.AuditLog
}

func newState() *state {
	return &state{
		users:         map[int64]model.User{},
		products:      map[int64]model.Product{},
		carts:         map[int64]model.Cart{},
		cartItems:     map[int64]model.CartItem{},
		orders:        map[int64]model.Order{},
		orderItems:    map[int64]model.OrderItem{},
		invoices:      map[int64]model.Invoice{},
		webhookEvents: map[string]model.ProcessedWebhookEvent{},
		outbox:        map[int64]model.OutboxEvent{},
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *state) clone() *state {
	c := &state{
		seq:           s.seq,
		users:         copyMap(s.users),
		products:      copyMap(s.products),
		carts:         copyMap(s.carts),
		cartItems:     copyMap(s.cartItems),
		orders:        copyMap(s.orders),
		orderItems:    copyMap(s.orderItems),
		invoices:      copyMap(s.invoices),
		webhookEvents: copyMap(s.webhookEvents),
		outbox:        copyMap(s.outbox),
		auditLogs:     append([]model.AuditLog(nil), s.auditLogs...),
	}
	return c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mapの値をID順に並べる
func sortedValues[V any](m map[int64]V, desc bool) []V {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if desc {
			return keys[i] > keys[j]
		}
		return keys[i] < keys[j]
	})
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&txRepos{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Tx外から使うUserRepository（middleware用）
func (s *Store) Users() repo.UserRepository {
	return &lockedUsers{s: s}
}

type lockedUsers struct {
	s *Store
}

func (l *lockedUsers) run(ctx context.Context, fn func(r repo.UserRepository) error) error {
	return l.s.WithinTx(ctx, func(r repo.TxRepos) error {
		return fn(r.Users())
	})
}

func (l *lockedUsers) Create(ctx context.Context, user *model.User) error {
	return l.run(ctx, func(r repo.UserRepository) error { return r.Create(ctx, user) })
}

func (l *lockedUsers) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	var u *model.User
	err := l.run(ctx, func(r repo.UserRepository) error {
		var err error
		u, err = r.FindByID(ctx, userID)
		return err
	})
	return u, err
}

func (l *lockedUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u *model.User
	err := l.run(ctx, func(r repo.UserRepository) error {
		var err error
		u, err = r.FindByEmail(ctx, email)
		return err
	})
	return u, err
}

func (l *lockedUsers) Update(ctx context.Context, user *model.User) error {
	return l.run(ctx, func(r repo.UserRepository) error { return r.Update(ctx, user) })
}

func (l *lockedUsers) SetCurrentCart(ctx context.Context, userID int64, cartID int64) error {
	return l.run(ctx, func(r repo.UserRepository) error { return r.SetCurrentCart(ctx, userID, cartID) })
}

// relay用（outbox.Store）

const outboxMaxRetry = 10

func (s *Store) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := []model.OutboxEvent{}
	for _, ev := range sortedValues(s.st.outbox, false) {
		if len(out) >= batchSize {
			break
		}
		if ev.Status == model.OutboxStatusSent || ev.RetryCount >= outboxMaxRetry {
			continue
		}
		if ev.LockedUntil != nil && ev.LockedUntil.After(now) {
			continue
		}
		until := now.Add(lease)
		ev.Status = model.OutboxStatusInProgress
		ev.LockedBy = relayID
		ev.LockedUntil = &until
		s.st.outbox[ev.ID] = ev
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) MarkSent(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if ev, ok := s.st.outbox[id]; ok {
			ev.Status = model.OutboxStatusSent
			ev.LockedUntil = nil
			s.st.outbox[id] = ev
		}
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.st.outbox[id]
	if !ok {
		return repo.ErrNotFound
	}
	ev.Status = model.OutboxStatusFailed
	ev.RetryCount++
	ev.LastError = &errMsg
	ev.LockedUntil = nil
	s.st.outbox[id] = ev
	return nil
}

type txRepos struct {
	st *state
}

func (r *txRepos) Users() repo.UserRepository                 { return &userRepo{st: r.st} }
func (r *txRepos) Products() repo.ProductRepository           { return &productRepo{st: r.st} }
func (r *txRepos) Carts() repo.CartRepository                 { return &cartRepo{st: r.st} }
func (r *txRepos) CartItems() repo.CartItemRepository         { return &cartItemRepo{st: r.st} }
func (r *txRepos) Orders() repo.OrderRepository               { return &orderRepo{st: r.st} }
func (r *txRepos) OrderItems() repo.OrderItemRepository       { return &orderItemRepo{st: r.st} }
func (r *txRepos) Invoices() repo.InvoiceRepository           { return &invoiceRepo{st: r.st} }
func (r *txRepos) WebhookEvents() repo.WebhookEventRepository { return &webhookEventRepo{st: r.st} }
func (r *txRepos) Outbox() repo.OutboxRepository              { return &outboxRepo{st: r.st} }
func (r *txRepos) AuditLogs() repo.AuditLogRepository         { return &auditLogRepo{st: r.st} }
