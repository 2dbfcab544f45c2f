package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/memory"
	repo "marketplace/internal/repository"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail bool
}

func (p *mockProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func enqueue(t *testing.T, s *memory.Store, aggID, typ string) {
	t.Helper()
	err := s.WithinTx(context.Background(), func(r repo.TxRepos) error {
		return r.Outbox().Enqueue(context.Background(), &model.OutboxEvent{
			AggregateType: "order",
			AggregateID:   aggID,
			Type:          typ,
			Payload:       []byte(`{"order_id":1}`),
			Traceparent:   "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01",
			Status:        model.OutboxStatusPending,
		})
	})
	require.NoError(t, err)
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestRelay_DispatchesPending(t *testing.T) {
	s := memory.NewStore()
	enqueue(t, s, "1", model.EventOrderCreated)
	enqueue(t, s, "1", model.EventOrderPaid)

	p := &mockProducer{}
	r := NewRelay(zerolog.Nop(), s, NewDispatcher(zerolog.Nop(), p, "order-events"), "relay-1")

	assert.Equal(t, 2, r.tick(context.Background()))
	require.Len(t, p.msgs, 2)

	assert.Equal(t, "order-events", p.msgs[0].Topic)
	assert.Equal(t, "1", string(p.msgs[0].Key))
	assert.Equal(t, model.EventOrderCreated, header(p.msgs[0], "event_type"))
	assert.Equal(t, model.EventOrderPaid, header(p.msgs[1], "event_type"))
	assert.NotEmpty(t, header(p.msgs[0], "traceparent"))

	// 送信済みは二度と拾わない
	assert.Equal(t, 0, r.tick(context.Background()))
	assert.Len(t, p.msgs, 2)
}

func TestRelay_FailureIsRetried(t *testing.T) {
	s := memory.NewStore()
	enqueue(t, s, "5", model.EventOrderCreated)

	p := &mockProducer{fail: true}
	r := NewRelay(zerolog.Nop(), s, NewDispatcher(zerolog.Nop(), p, "order-events"), "relay-1")

	assert.Equal(t, 0, r.tick(context.Background()))

	p.fail = false
	assert.Equal(t, 1, r.tick(context.Background()))
	assert.Len(t, p.msgs, 1)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	s := memory.NewStore()
	enqueue(t, s, "9", model.EventOrderPaid)

	p := &mockProducer{}
	r := NewRelay(zerolog.Nop(), s, NewDispatcher(zerolog.Nop(), p, "order-events"), "relay-1")
	r.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.msgs) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestLogProducer(t *testing.T) {
	p := NewLogProducer(zerolog.Nop())
	require.NoError(t, p.WriteMessages(context.Background(), kafka.Message{Topic: "t", Key: []byte("1"), Value: []byte(`{}`)}))
}
