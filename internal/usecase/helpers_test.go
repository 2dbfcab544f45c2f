package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/memory"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func userActor(id int64) Actor  { return Actor{UserID: id, Role: model.RoleUser} }
func adminActor(id int64) Actor { return Actor{UserID: id, Role: model.RoleAdmin} }

// ユーザーとactiveカートを作る
func seedUser(t *testing.T, s *memory.Store, email string, role model.Role) (model.User, model.Cart) {
	t.Helper()
	var (
		user model.User
		cart model.Cart
	)
	err := s.WithinTx(context.Background(), func(r repo.TxRepos) error {
		user = model.User{Email: email, PasswordHash: "x", Role: role, IsActive: true}
		if err := r.Users().Create(context.Background(), &user); err != nil {
			return err
		}
		var err error
		cart, err = provisionCart(context.Background(), r, user.ID)
		return err
	})
	require.NoError(t, err)
	return user, cart
}

func seedProduct(t *testing.T, s *memory.Store, name, price string, stock int64, seller *int64) model.Product {
	t.Helper()
	p := model.Product{
		Name:     name,
		Price:    dec(price),
		Quantity: stock,
		SellerID: seller,
		IsActive: true,
	}
	err := s.WithinTx(context.Background(), func(r repo.TxRepos) error {
		return r.Products().Create(context.Background(), &p)
	})
	require.NoError(t, err)
	return p
}

// ストアの中身を読む
func read[T any](t *testing.T, s *memory.Store, fn func(r repo.TxRepos) (T, error)) T {
	t.Helper()
	var out T
	err := s.WithinTx(context.Background(), func(r repo.TxRepos) error {
		v, err := fn(r)
		out = v
		return err
	})
	require.NoError(t, err)
	return out
}

func outboxTypes(t *testing.T, s *memory.Store) []string {
	t.Helper()
	events, err := s.LockBatch(context.Background(), "test", 100, 0)
	require.NoError(t, err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

// 決済ゲートウェイの偽物
type fakeGateway struct {
	mu       sync.Mutex
	seq      int
	fail     bool
	params   []CheckoutSessionParams
	expired  []string
	onCreate func()
	// trueなら同じIdempotencyKeyに同じセッションを返す
	byKey    bool
	sessions map[string]string
	// 空でなければ常にこのセッションIDを返す
	fixedID string
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (CheckoutSession, error) {
	g.mu.Lock()
	if g.fail {
		g.mu.Unlock()
		return CheckoutSession{}, errors.New("gateway down")
	}
	g.seq++
	id := fmt.Sprintf("cs_test_%d", g.seq)
	if g.fixedID != "" {
		id = g.fixedID
	}
	if g.byKey {
		if g.sessions == nil {
			g.sessions = map[string]string{}
		}
		if prev, ok := g.sessions[p.IdempotencyKey]; ok {
			id = prev
		} else {
			g.sessions[p.IdempotencyKey] = id
		}
	}
	g.params = append(g.params, p)
	hook := g.onCreate
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	return CheckoutSession{ID: id, URL: "https://pay.example/" + id}, nil
}

func (g *fakeGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = append(g.expired, sessionID)
	return nil
}

// 署名が "sig-ok" ならpayloadのJSONをそのままイベントにする
type fakeVerifier struct{}

const goodSig = "sig-ok"

func (fakeVerifier) Verify(payload []byte, signature string) (GatewayEvent, error) {
	if signature != goodSig {
		return GatewayEvent{}, errors.New("bad signature")
	}
	var ev GatewayEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return GatewayEvent{}, err
	}
	return ev, nil
}

func completedEvent(t *testing.T, eventID, sessionID string, cartID, userID int64) []byte {
	t.Helper()
	b, err := json.Marshal(GatewayEvent{
		ID:               eventID,
		Type:             EventCheckoutSessionCompleted,
		SessionID:        sessionID,
		PaymentReference: "pi_" + eventID,
		CustomerEmail:    "payer@example.com",
		CustomerPhone:    "+15550100",
		Metadata: map[string]string{
			"cartId": fmt.Sprint(cartID),
			"userId": fmt.Sprint(userID),
		},
	})
	require.NoError(t, err)
	return b
}

type fakeClaimer struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
	err      error
}

func newFakeClaimer() *fakeClaimer {
	return &fakeClaimer{claimed: map[string]bool{}}
}

func (c *fakeClaimer) Claim(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.claimed[id] {
		return false, nil
	}
	c.claimed[id] = true
	return true, nil
}

func (c *fakeClaimer) Release(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claimed, id)
	c.released = append(c.released, id)
	return nil
}

// カートに商品を入れてチェックアウトまで進める
type checkoutFixture struct {
	store    *memory.Store
	gateway  *fakeGateway
	carts    *CartUsecase
	checkout *CheckoutUsecase
	user     model.User
	cart     model.Cart
	a        Actor
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	s := memory.NewStore()
	g := &fakeGateway{}
	user, cart := seedUser(t, s, "buyer@example.com", model.RoleUser)
	return &checkoutFixture{
		store:    s,
		gateway:  g,
		carts:    NewCartUsecase(s),
		checkout: NewCheckoutUsecase(s, g, CheckoutConfig{FrontendURL: "http://fe.example"}),
		user:     user,
		cart:     cart,
		a:        userActor(user.ID),
	}
}

func (f *checkoutFixture) add(t *testing.T, p model.Product, qty int64) CartOutput {
	t.Helper()
	out, err := f.carts.AddItem(context.Background(), f.a, f.cart.ID, AddItemInput{ProductID: p.ID, Quantity: qty})
	require.NoError(t, err)
	return out
}
