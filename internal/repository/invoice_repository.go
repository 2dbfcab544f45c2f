package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

type InvoiceListFilter struct {
	Status   *model.InvoiceStatus
	UserID   *int64
	SellerID *int64
}

type InvoiceRepository interface {
	Create(ctx context.Context, inv *model.Invoice) error
	FindByID(ctx context.Context, invoiceID int64) (model.Invoice, error)
	FindByOrderID(ctx context.Context, orderID int64) (model.Invoice, error)
	List(ctx context.Context, f InvoiceListFilter) ([]model.Invoice, error)
	// orders経由でcartに紐づく請求を探す
	ListByCartID(ctx context.Context, cartID int64) ([]model.Invoice, error)
	Update(ctx context.Context, inv model.Invoice) error
	Delete(ctx context.Context, invoiceID int64) error
}
