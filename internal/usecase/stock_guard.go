package usecase

import (
	"fmt"

	"marketplace/internal/domain/model"
)

// 明細の数量が在庫を超えないか（在庫は減らさない）
func checkStock(p model.Product, qty int64) error {
	if qty > p.Quantity {
		return newError(ErrInsufficientStock, fmt.Sprintf("only %d of %q in stock", p.Quantity, p.Name))
	}
	return nil
}

// 購入できる商品か
func checkPurchasable(p model.Product) error {
	if !p.IsActive || p.Name == "" || !p.Price.IsPositive() {
		return newError(ErrInvalidProduct, fmt.Sprintf("product %d is not available", p.ID))
	}
	return nil
}
