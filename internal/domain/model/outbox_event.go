package model

import "time"

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusInProgress OutboxStatus = "in_progress"
	OutboxStatusSent       OutboxStatus = "sent"
	OutboxStatusFailed     OutboxStatus = "failed"
)

const (
	EventOrderCreated = "order.created"
	EventOrderPaid    = "order.paid"
)

// 状態変更と同じTxで書き、relayがkafkaへ流す
type OutboxEvent struct {
	ID            int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	AggregateType string       `gorm:"type:varchar(50);not null" json:"aggregate_type"`
	AggregateID   string       `gorm:"type:varchar(64);not null;index" json:"aggregate_id"`
	Type          string       `gorm:"type:varchar(100);not null" json:"type"`
	Payload       []byte       `gorm:"type:jsonb;not null" json:"payload"`
	Traceparent   string       `gorm:"type:varchar(128)" json:"traceparent,omitempty"`
	Status        OutboxStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	RetryCount    int          `gorm:"not null;default:0" json:"retry_count"`
	LastError     *string      `gorm:"type:text" json:"last_error"`
	LockedBy      string       `gorm:"type:varchar(64)" json:"-"`
	LockedUntil   *time.Time   `json:"-"`
	CreatedAt     time.Time    `gorm:"not null;autoCreateTime;index" json:"created_at"`
}
