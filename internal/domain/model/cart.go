package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartStatus string

const (
	CartStatusActive     CartStatus = "active"
	CartStatusCheckedOut CartStatus = "checked_out"
	CartStatusInactive   CartStatus = "inactive"
)

func (s CartStatus) Valid() bool {
	switch s {
	case CartStatusActive, CartStatusCheckedOut, CartStatusInactive:
		return true
	}
	return false
}

// 1ユーザーにつきactiveは1つ（部分ユニークインデックス）
// チェックアウト後はOwnerUserIDを外してCheckedOutByUserIDに残す
type Cart struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerUserID        *int64          `gorm:"uniqueIndex:ux_carts_owner_active,where:status = 'active'" json:"owner_user_id"`
	CheckedOutByUserID *int64          `gorm:"index" json:"checked_out_by_user_id"`
	Total              decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total"`
	Status             CartStatus      `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt          time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// userIDがこのカートの現在の持ち主か
func (c Cart) OwnedBy(userID int64) bool {
	return c.OwnerUserID != nil && *c.OwnerUserID == userID
}

// 持ち主、またはチェックアウトしたユーザーか
func (c Cart) BelongsTo(userID int64) bool {
	if c.OwnedBy(userID) {
		return true
	}
	return c.CheckedOutByUserID != nil && *c.CheckedOutByUserID == userID
}
