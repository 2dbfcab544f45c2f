package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

// 商品は読むだけ（在庫は減らさない）
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)
	FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
	Create(ctx context.Context, p *model.Product) error
	// 販売停止・再開
	SetActive(ctx context.Context, id int64, active bool) error
}
