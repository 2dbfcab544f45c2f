package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

type OrderListFilter struct {
	Page   int
	Limit  int
	Status *model.OrderStatus
	UserID *int64
	CartID *int64
}

// webhookで決済確定したときに書く内容
type PaymentConfirmation struct {
	PaymentReference string
	Email            string
	PhoneNumber      string
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	// SELECT ... FOR UPDATE（Tx内で使う）
	FindByGatewaySessionIDForUpdate(ctx context.Context, sessionID string) (model.Order, error)
	List(ctx context.Context, f OrderListFilter) ([]model.Order, int64, error)
	Update(ctx context.Context, order model.Order) error
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	// status=PENDINGのときだけPAIDへ。連絡先は空のときだけ埋める。
	MarkPaid(ctx context.Context, orderID int64, c PaymentConfirmation) (bool, error)
	Delete(ctx context.Context, orderID int64) error
}
