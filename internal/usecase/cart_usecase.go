package usecase

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /carts の業務ロジックです。
// カートの変更は全部 Tx + カート行ロックの中で行い、最後に合計を計算し直す。
type CartUsecase struct {
	tx repo.TransactionManager
}

func NewCartUsecase(tx repo.TransactionManager) *CartUsecase {
	return &CartUsecase{tx: tx}
}

type CartItemOutput struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Price     decimal.Decimal `json:"price"`
}

type CartOutput struct {
	ID                 int64            `json:"id"`
	OwnerUserID        *int64           `json:"owner_user_id"`
	CheckedOutByUserID *int64           `json:"checked_out_by_user_id,omitempty"`
	Status             model.CartStatus `json:"status"`
	Total              decimal.Decimal  `json:"total"`
	Items              []CartItemOutput `json:"items"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

type AddItemInput struct {
	ProductID int64
	Quantity  int64
	// ADMIN/MANAGERだけ指定できる
	UnitPrice *decimal.Decimal
}

type UpdateItemInput struct {
	Quantity *int64
	// 行合計の上書き（ADMIN/MANAGERのみ）
	Price *decimal.Decimal
}

type AdminUpdateCartInput struct {
	Total  *decimal.Decimal
	Status *model.CartStatus
}

// 自分のactiveカートを返す。無ければ作る（createdで区別）
func (u *CartUsecase) CreateCart(ctx context.Context, a Actor) (CartOutput, bool, error) {
	if a.UserID <= 0 {
		return CartOutput{}, false, newError(ErrUnauthorized, "unauthorized")
	}

	var (
		out     CartOutput
		created bool
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindActiveByUserID(ctx, a.UserID)
		if err == nil {
			out, err = buildCart(ctx, r, cart)
			return err
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return fromRepo(ctx, err, "cart")
		}

		cart, err = provisionCart(ctx, r, a.UserID)
		if err != nil {
			return err
		}
		created = true
		out, err = buildCart(ctx, r, cart)
		return err
	})
	if err != nil {
		return CartOutput{}, false, txError(ctx, err)
	}
	return out, created, nil
}

// 一覧（ADMIN/MANAGER）
func (u *CartUsecase) ListCarts(ctx context.Context, a Actor, status *model.CartStatus) ([]CartOutput, error) {
	if err := requireElevated(a); err != nil {
		return nil, err
	}
	if status != nil && !status.Valid() {
		return nil, newError(ErrValidation, "invalid status")
	}

	var outs []CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		carts, err := r.Carts().List(ctx, status)
		if err != nil {
			return fromRepo(ctx, err, "cart")
		}
		outs = make([]CartOutput, 0, len(carts))
		for _, c := range carts {
			o, err := buildCart(ctx, r, c)
			if err != nil {
				return err
			}
			outs = append(outs, o)
		}
		return nil
	})
	if err != nil {
		return nil, txError(ctx, err)
	}
	return outs, nil
}

func (u *CartUsecase) GetCart(ctx context.Context, a Actor, cartID int64) (CartOutput, error) {
	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindByID(ctx, cartID)
		if err != nil {
			return fromRepo(ctx, err, "cart")
		}
		if !cart.BelongsTo(a.UserID) && !a.Elevated() {
			return newError(ErrForbidden, "not your cart")
		}
		out, err = buildCart(ctx, r, cart)
		return err
	})
	if err != nil {
		return CartOutput{}, txError(ctx, err)
	}
	return out, nil
}

// userIDのactiveカート。無ければNotFound
func (u *CartUsecase) GetActiveCart(ctx context.Context, a Actor, userID int64) (CartOutput, error) {
	if !a.CanAccessUser(userID) {
		return CartOutput{}, newError(ErrForbidden, "forbidden")
	}

	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindActiveByUserID(ctx, userID)
		if err != nil {
			return fromRepo(ctx, err, "active cart")
		}
		out, err = buildCart(ctx, r, cart)
		return err
	})
	if err != nil {
		return CartOutput{}, txError(ctx, err)
	}
	return out, nil
}

func (u *CartUsecase) ListItems(ctx context.Context, a Actor, cartID int64) ([]CartItemOutput, error) {
	out, err := u.GetCart(ctx, a, cartID)
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

// カートに追加（同一商品は数量加算して行合計を計算し直す）
func (u *CartUsecase) AddItem(ctx context.Context, a Actor, cartID int64, in AddItemInput) (CartOutput, error) {
	if in.ProductID <= 0 {
		return CartOutput{}, newError(ErrValidation, "invalid product_id")
	}
	if in.Quantity < 1 {
		return CartOutput{}, newError(ErrValidation, "quantity must be at least 1")
	}
	if in.UnitPrice != nil {
		if !a.Elevated() {
			return CartOutput{}, newError(ErrForbidden, "price override not allowed")
		}
		if in.UnitPrice.IsNegative() {
			return CartOutput{}, newError(ErrValidation, "invalid unit_price")
		}
	}

	return u.mutate(ctx, a, cartID, func(r repo.TxRepos, cart model.Cart) error {
		p, err := r.Products().FindByID(ctx, in.ProductID)
		if err != nil {
			return fromRepo(ctx, err, "product")
		}
		if err := checkPurchasable(p); err != nil {
			return err
		}

		item, err := r.CartItems().FindByCartAndProduct(ctx, cart.ID, in.ProductID)
		exists := err == nil
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return fromRepo(ctx, err, "cart item")
		}

		newQty := in.Quantity
		if exists {
			newQty += item.Quantity
		}
		if err := checkStock(p, newQty); err != nil {
			return err
		}

		unit := p.Price
		if in.UnitPrice != nil {
			unit = *in.UnitPrice
		}

		item.CartID = cart.ID
		item.ProductID = p.ID
		item.Quantity = newQty
		item.UnitPrice = unit
		item.Reprice()

		if exists {
			err = r.CartItems().Update(ctx, item)
		} else {
			err = r.CartItems().Create(ctx, &item)
		}
		if err != nil {
			return fromRepo(ctx, err, "cart item")
		}
		return nil
	})
}

// 数量変更（在庫チェック）または行合計の上書き（ADMIN/MANAGER）
func (u *CartUsecase) UpdateItem(ctx context.Context, a Actor, cartID, itemID int64, in UpdateItemInput) (CartOutput, error) {
	if in.Quantity == nil && in.Price == nil {
		return CartOutput{}, newError(ErrValidation, "nothing to update")
	}
	if in.Quantity != nil && *in.Quantity < 1 {
		return CartOutput{}, newError(ErrValidation, "quantity must be at least 1")
	}
	if in.Price != nil {
		if !a.Elevated() {
			return CartOutput{}, newError(ErrForbidden, "price override not allowed")
		}
		if in.Price.IsNegative() {
			return CartOutput{}, newError(ErrValidation, "invalid price")
		}
	}

	return u.mutate(ctx, a, cartID, func(r repo.TxRepos, cart model.Cart) error {
		item, err := findItemInCart(ctx, r, cart.ID, itemID)
		if err != nil {
			return err
		}

		if in.Quantity != nil {
			p, err := r.Products().FindByID(ctx, item.ProductID)
			if err != nil {
				return fromRepo(ctx, err, "product")
			}
			if err := checkStock(p, *in.Quantity); err != nil {
				return err
			}
			item.Quantity = *in.Quantity
			item.Reprice()
		}
		if in.Price != nil {
			item.Price = in.Price.Round(2)
			item.UnitPrice = item.Price.Div(decimal.NewFromInt(item.Quantity)).Round(2)
		}

		if err := r.CartItems().Update(ctx, item); err != nil {
			return fromRepo(ctx, err, "cart item")
		}
		return nil
	})
}

func (u *CartUsecase) RemoveItem(ctx context.Context, a Actor, cartID, itemID int64) (CartOutput, error) {
	return u.mutate(ctx, a, cartID, func(r repo.TxRepos, cart model.Cart) error {
		if _, err := findItemInCart(ctx, r, cart.ID, itemID); err != nil {
			return err
		}
		if err := r.CartItems().DeleteByID(ctx, itemID); err != nil {
			return fromRepo(ctx, err, "cart item")
		}
		return nil
	})
}

// 明細を全部消してtotalを0にする
func (u *CartUsecase) EmptyCart(ctx context.Context, a Actor, cartID int64) (CartOutput, error) {
	return u.mutate(ctx, a, cartID, func(r repo.TxRepos, cart model.Cart) error {
		if _, err := r.CartItems().DeleteByCartID(ctx, cart.ID); err != nil {
			return fromRepo(ctx, err, "cart item")
		}
		return nil
	})
}

// 管理者によるtotal/statusの上書き（監査ログ付き）
func (u *CartUsecase) AdminUpdateCart(ctx context.Context, a Actor, cartID int64, in AdminUpdateCartInput) (CartOutput, error) {
	if err := requireElevated(a); err != nil {
		return CartOutput{}, err
	}
	if in.Total == nil && in.Status == nil {
		return CartOutput{}, newError(ErrValidation, "nothing to update")
	}
	if in.Total != nil && in.Total.IsNegative() {
		return CartOutput{}, newError(ErrValidation, "invalid total")
	}
	// active/checked_outへの変更はチェックアウトの流れを通す
	if in.Status != nil && *in.Status != model.CartStatusInactive {
		return CartOutput{}, newError(ErrValidation, "status can only be set to inactive")
	}

	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Carts().FindByIDForUpdate(ctx, cartID)
		if err != nil {
			return fromRepo(ctx, err, "cart")
		}

		after := before
		if in.Total != nil {
			after.Total = in.Total.Round(2)
		}
		if in.Status != nil {
			after.Status = *in.Status
		}
		if err := r.Carts().Update(ctx, after); err != nil {
			return fromRepo(ctx, err, "cart")
		}
		if err := writeAudit(ctx, r, a, model.AuditActionUpdateCart, model.AuditResourceCart, cartID, before, after); err != nil {
			return internalError(ctx, err, "audit log")
		}

		cart, err := r.Carts().FindByID(ctx, cartID)
		if err != nil {
			return fromRepo(ctx, err, "cart")
		}
		out, err = buildCart(ctx, r, cart)
		return err
	})
	if err != nil {
		return CartOutput{}, txError(ctx, err)
	}
	return out, nil
}

func (u *CartUsecase) DeleteCart(ctx context.Context, a Actor, cartID int64) error {
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindByIDForUpdate(ctx, cartID)
		if err != nil {
			return fromRepo(ctx, err, "cart")
		}
		if !cart.OwnedBy(a.UserID) && !a.Elevated() {
			return newError(ErrForbidden, "not your cart")
		}
		if err := r.Carts().Delete(ctx, cartID); err != nil {
			return fromRepo(ctx, err, "cart")
		}
		return nil
	})
	return txError(ctx, err)
}

// 行ロック→持ち主チェック→変更→合計の再計算、を1Txで
func (u *CartUsecase) mutate(ctx context.Context, a Actor, cartID int64, fn func(r repo.TxRepos, cart model.Cart) error) (CartOutput, error) {
	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindByIDForUpdate(ctx, cartID)
		if err != nil {
			return fromRepo(ctx, err, "cart")
		}
		if !cart.OwnedBy(a.UserID) && !a.Elevated() {
			return newError(ErrForbidden, "not your cart")
		}
		if cart.Status != model.CartStatusActive {
			return newError(ErrConflict, "cart is not active")
		}

		if err := fn(r, cart); err != nil {
			return err
		}

		if _, err := recomputeTotal(ctx, r, cart.ID); err != nil {
			return err
		}

		cart, err = r.Carts().FindByID(ctx, cartID)
		if err != nil {
			return fromRepo(ctx, err, "cart")
		}
		out, err = buildCart(ctx, r, cart)
		return err
	})
	if err != nil {
		return CartOutput{}, txError(ctx, err)
	}
	return out, nil
}

// total = 明細の行合計の和
func recomputeTotal(ctx context.Context, r repo.TxRepos, cartID int64) (decimal.Decimal, error) {
	items, err := r.CartItems().ListByCartID(ctx, cartID)
	if err != nil {
		return decimal.Zero, fromRepo(ctx, err, "cart item")
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price)
	}
	if err := r.Carts().UpdateTotal(ctx, cartID, total); err != nil {
		return decimal.Zero, fromRepo(ctx, err, "cart")
	}
	return total, nil
}

func findItemInCart(ctx context.Context, r repo.TxRepos, cartID, itemID int64) (model.CartItem, error) {
	item, err := r.CartItems().FindByID(ctx, itemID)
	if err != nil {
		return model.CartItem{}, fromRepo(ctx, err, "cart item")
	}
	if item.CartID != cartID {
		return model.CartItem{}, newError(ErrNotFound, "cart item not found")
	}
	return item, nil
}

// 新しいactiveカートを作ってユーザーの現在のカートにする
func provisionCart(ctx context.Context, r repo.TxRepos, userID int64) (model.Cart, error) {
	uid := userID
	cart := model.Cart{
		OwnerUserID: &uid,
		Status:      model.CartStatusActive,
		Total:       decimal.Zero,
	}
	if err := r.Carts().Create(ctx, &cart); err != nil {
		return model.Cart{}, fromRepo(ctx, err, "cart")
	}
	if err := r.Users().SetCurrentCart(ctx, userID, cart.ID); err != nil {
		return model.Cart{}, fromRepo(ctx, err, "user")
	}
	return cart, nil
}

// cartIDの明細と商品名をまとめてCartOutputを作る。
func buildCart(ctx context.Context, r repo.TxRepos, cart model.Cart) (CartOutput, error) {
	items, err := r.CartItems().ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartOutput{}, fromRepo(ctx, err, "cart item")
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := r.Products().FindByIDs(ctx, ids)
	if err != nil {
		return CartOutput{}, fromRepo(ctx, err, "product")
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	outItems := make([]CartItemOutput, 0, len(items))
	for _, it := range items {
		p := byID[it.ProductID]
		outItems = append(outItems, CartItemOutput{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      p.Name,
			ImageURL:  p.ImageURL,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Price:     it.Price,
		})
	}

	return CartOutput{
		ID:                 cart.ID,
		OwnerUserID:        cart.OwnerUserID,
		CheckedOutByUserID: cart.CheckedOutByUserID,
		Status:             cart.Status,
		Total:              cart.Total,
		Items:              outItems,
		CreatedAt:          cart.CreatedAt,
		UpdatedAt:          cart.UpdatedAt,
	}, nil
}
