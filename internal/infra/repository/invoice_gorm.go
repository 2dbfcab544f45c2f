package repository

import (
	"context"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

type InvoiceGormRepository struct {
	db *gorm.DB
}

func NewInvoiceGormRepository(db *gorm.DB) *InvoiceGormRepository {
	return &InvoiceGormRepository{db: db}
}

func (r *InvoiceGormRepository) Create(ctx context.Context, inv *model.Invoice) error {
	return translate(r.db.WithContext(ctx).Create(inv).Error)
}

func (r *InvoiceGormRepository) FindByID(ctx context.Context, invoiceID int64) (model.Invoice, error) {
	var inv model.Invoice
	if err := r.db.WithContext(ctx).Where("id = ?", invoiceID).First(&inv).Error; err != nil {
		return model.Invoice{}, translate(err)
	}
	return inv, nil
}

func (r *InvoiceGormRepository) FindByOrderID(ctx context.Context, orderID int64) (model.Invoice, error) {
	var inv model.Invoice
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&inv).Error; err != nil {
		return model.Invoice{}, translate(err)
	}
	return inv, nil
}

func (r *InvoiceGormRepository) List(ctx context.Context, f repo.InvoiceListFilter) ([]model.Invoice, error) {
	q := r.db.WithContext(ctx).Model(&model.Invoice{})
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.SellerID != nil {
		q = q.Where("seller_id = ?", *f.SellerID)
	}

	var invs []model.Invoice
	if err := q.Order("id desc").Find(&invs).Error; err != nil {
		return []model.Invoice{}, err
	}
	return invs, nil
}

func (r *InvoiceGormRepository) ListByCartID(ctx context.Context, cartID int64) ([]model.Invoice, error) {
	var invs []model.Invoice
	err := r.db.WithContext(ctx).
		Model(&model.Invoice{}).
		Joins("join orders on orders.id = invoices.order_id").
		Where("orders.cart_id = ?", cartID).
		Order("invoices.id desc").
		Find(&invs).Error
	if err != nil {
		return []model.Invoice{}, err
	}
	return invs, nil
}

func (r *InvoiceGormRepository) Update(ctx context.Context, inv model.Invoice) error {
	res := r.db.WithContext(ctx).
		Model(&model.Invoice{}).
		Where("id = ?", inv.ID).
		Select("*").
		Omit("id", "order_id", "created_at").
		Updates(&inv)

	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *InvoiceGormRepository) Delete(ctx context.Context, invoiceID int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Invoice{}, invoiceID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
