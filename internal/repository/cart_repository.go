package repository

import (
	"context"

	"marketplace/internal/domain/model"

	"github.com/shopspring/decimal"
)

type CartRepository interface {
	Create(ctx context.Context, cart *model.Cart) error
	FindByID(ctx context.Context, cartID int64) (model.Cart, error)
	// SELECT ... FOR UPDATE（Tx内で使う）
	FindByIDForUpdate(ctx context.Context, cartID int64) (model.Cart, error)
	FindActiveByUserID(ctx context.Context, userID int64) (model.Cart, error)
	List(ctx context.Context, status *model.CartStatus) ([]model.Cart, error)
	UpdateTotal(ctx context.Context, cartID int64, total decimal.Decimal) error
	// 管理者による上書き（total/status）
	Update(ctx context.Context, cart model.Cart) error
	// status=activeのときだけchecked_outへ。持ち主を外してcheckedOutByに移す。
	// 更新できなかったらfalse
	MarkCheckedOut(ctx context.Context, cartID int64, userID int64) (bool, error)
	Delete(ctx context.Context, cartID int64) error
}
