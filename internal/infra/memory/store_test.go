package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinTx_RollbackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Users().Create(ctx, &model.User{Email: "a@example.com", Role: model.RoleUser, IsActive: true}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Users().FindByEmail(ctx, "a@example.com")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestWithinTx_Commit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	u := &model.User{Email: "a@example.com", Role: model.RoleUser, IsActive: true}
	require.NoError(t, s.Users().Create(ctx, u))

	got, err := s.Users().FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)

	err = s.Users().Create(ctx, &model.User{Email: "A@example.com"})
	assert.ErrorIs(t, err, repo.ErrConflict)
}

func TestWithinTx_CanceledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestCartRepo_OneActivePerUser(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	uid := int64(10)

	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		first := model.Cart{OwnerUserID: &uid, Total: decimal.Zero}
		if err := r.Carts().Create(ctx, &first); err != nil {
			return err
		}
		second := model.Cart{OwnerUserID: &uid, Total: decimal.Zero}
		return r.Carts().Create(ctx, &second)
	})
	assert.ErrorIs(t, err, repo.ErrConflict)
}

func TestCartRepo_MarkCheckedOutOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	uid := int64(10)

	var cart model.Cart
	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		cart = model.Cart{OwnerUserID: &uid, Total: decimal.Zero}
		return r.Carts().Create(ctx, &cart)
	}))

	var first, second bool
	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		if first, err = r.Carts().MarkCheckedOut(ctx, cart.ID, uid); err != nil {
			return err
		}
		second, err = r.Carts().MarkCheckedOut(ctx, cart.ID, uid)
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)
}

func TestWebhookEventRepo_RecordOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var first, second bool
	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		ev := model.ProcessedWebhookEvent{EventID: "evt_1", EventType: "checkout.session.completed", OrderID: 1, ProcessedAt: time.Now()}
		if first, err = r.WebhookEvents().Record(ctx, ev); err != nil {
			return err
		}
		second, err = r.WebhookEvents().Record(ctx, ev)
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)
}

func TestOutbox_LockSentFailed(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		for _, typ := range []string{model.EventOrderCreated, model.EventOrderPaid} {
			if err := r.Outbox().Enqueue(ctx, &model.OutboxEvent{AggregateType: "order", AggregateID: "1", Type: typ, Payload: []byte(`{}`)}); err != nil {
				return err
			}
		}
		return nil
	}))

	batch, err := s.LockBatch(ctx, "r1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	// リース中は他のrelayに渡さない
	again, err := s.LockBatch(ctx, "r2", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, s.MarkSent(ctx, []int64{batch[0].ID}))
	require.NoError(t, s.MarkFailed(ctx, batch[1].ID, "broker down"))

	retry, err := s.LockBatch(ctx, "r2", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, batch[1].ID, retry[0].ID)
	assert.Equal(t, 1, retry[0].RetryCount)
	require.NotNil(t, retry[0].LastError)
	assert.Equal(t, "broker down", *retry[0].LastError)
}
