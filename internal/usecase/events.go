package usecase

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type orderEventPayload struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	CartID      int64           `json:"cart_id"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// 注文イベントをoutboxに積む（呼び出し側のTx内）
func enqueueOrderEvent(ctx context.Context, r repo.TxRepos, eventType string, o model.Order) error {
	payload, err := json.Marshal(orderEventPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		CartID:      o.CartID,
		Status:      string(o.Status),
		Amount:      o.GrandTotal(),
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	// relayが別goroutineで送るのでtrace contextも一緒に保存
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return r.Outbox().Enqueue(ctx, &model.OutboxEvent{
		AggregateType: "order",
		AggregateID:   strconv.FormatInt(o.ID, 10),
		Type:          eventType,
		Payload:       payload,
		Traceparent:   carrier.Get("traceparent"),
		Status:        model.OutboxStatusPending,
	})
}

// 管理者の上書きを監査ログへ
func writeAudit(ctx context.Context, r repo.TxRepos, a Actor, action model.AuditAction, rt model.AuditResourceType, id int64, before, after any) error {
	b, err := json.Marshal(before)
	if err != nil {
		return err
	}
	af, err := json.Marshal(after)
	if err != nil {
		return err
	}

	return r.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  a.UserID,
		Action:       action,
		ResourceType: rt,
		ResourceID:   id,
		BeforeJSON:   string(b),
		AfterJSON:    string(af),
		CreatedAt:    time.Now(),
	})
}
