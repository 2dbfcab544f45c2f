package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// カートの明細
// Priceは行合計（UnitPrice × Quantity）。
type CartItem struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID    int64           `gorm:"not null;uniqueIndex:ux_cart_items_cart_product" json:"cart_id"`
	ProductID int64           `gorm:"not null;uniqueIndex:ux_cart_items_cart_product;index" json:"product_id"`
	Quantity  int64           `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	CreatedAt time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 行合計を計算し直す
func (i *CartItem) Reprice() {
	i.Price = i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity)).Round(2)
}
