package model

import "time"

// 処理済みの決済webhookイベント（再送の重複排除用）
type ProcessedWebhookEvent struct {
	EventID     string    `gorm:"primaryKey;type:varchar(255)" json:"event_id"`
	EventType   string    `gorm:"type:varchar(100);not null" json:"event_type"`
	OrderID     int64     `gorm:"not null;index" json:"order_id"`
	ProcessedAt time.Time `gorm:"not null" json:"processed_at"`
}
