package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled:
		return true
	}
	return false
}

// PENDING = 決済待ち, PAID = webhookで決済確定
type Order struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber      string          `gorm:"type:varchar(40);not null;uniqueIndex" json:"order_number"`
	Status           OrderStatus     `gorm:"type:varchar(20);not null;index" json:"order_status"`
	OrderDate        time.Time       `gorm:"not null" json:"order_date"`
	CartID           int64           `gorm:"not null;index" json:"cart_id"`
	UserID           int64           `gorm:"not null;index" json:"user_id"`
	GatewaySessionID string          `gorm:"type:varchar(255);not null;uniqueIndex" json:"gateway_session_id"`
	PaymentReference string          `gorm:"type:varchar(255)" json:"payment_reference"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	ShippingFee      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"shipping_fee"`
	Tax              decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"tax"`
	Country          string          `gorm:"type:varchar(100)" json:"country"`
	City             string          `gorm:"type:varchar(255)" json:"city"`
	StreetAddress    string          `gorm:"type:varchar(255)" json:"street_address"`
	PostalCode       string          `gorm:"type:varchar(20)" json:"postal_code"`
	PhoneNumber      string          `gorm:"type:varchar(30)" json:"phone_number"`
	Email            string          `gorm:"type:varchar(255)" json:"email"`
	CreatedAt        time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 請求額（商品合計 + 送料 + 税）
func (o Order) GrandTotal() decimal.Decimal {
	return o.TotalAmount.Add(o.ShippingFee).Add(o.Tax)
}
