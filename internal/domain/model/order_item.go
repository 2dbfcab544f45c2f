package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// チェックアウト時点の明細スナップショット
// 決済確定でカート明細は消えるので、注文側に残しておく。
type OrderItem struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64           `gorm:"not null;index" json:"order_id"`
	ProductID           int64           `gorm:"not null;index" json:"product_id"`
	ProductNameSnapshot string          `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	UnitPriceSnapshot   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price_snapshot"`
	Quantity            int64           `gorm:"not null" json:"quantity"`
	LineTotal           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"line_total"`
	SellerID            *int64          `gorm:"index" json:"seller_id"`
	CreatedAt           time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}
