package model

import "time"

// 管理者による上書き操作の種類
type AuditAction string

const (
	AuditActionUpdateCart          AuditAction = "UPDATE_CART"
	AuditActionUpdateOrder         AuditAction = "UPDATE_ORDER"
	AuditActionUpdateOrderStatus   AuditAction = "UPDATE_ORDER_STATUS"
	AuditActionDeleteOrder         AuditAction = "DELETE_ORDER"
	AuditActionUpdateInvoice       AuditAction = "UPDATE_INVOICE"
	AuditActionUpdateInvoiceStatus AuditAction = "UPDATE_INVOICE_STATUS"
	AuditActionDeleteInvoice       AuditAction = "DELETE_INVOICE"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceCart    AuditResourceType = "cart"
	AuditResourceOrder   AuditResourceType = "order"
	AuditResourceInvoice AuditResourceType = "invoice"
)

// 監査ログ。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したユーザー（ADMIN/MANAGER）
	ActorUserID int64 `gorm:"not null;index" json:"actor_user_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	ResourceID int64 `gorm:"not null;index" json:"resource_id"`

	//変更前後はJSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// AutoMigrate対象
func All() []any {
	return []any{
		&User{},
		&Product{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&Invoice{},
		&ProcessedWebhookEvent{},
		&OutboxEvent{},
		&AuditLog{},
	}
}
