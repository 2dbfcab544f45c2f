package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

// OrderUsecase は注文の参照と、管理者による上書き。
// 上書きはステータスの値チェックだけで遷移の制約は掛けない（監査ログに残す）。
type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderOutput struct {
	ID               int64             `json:"id"`
	OrderNumber      string            `json:"order_number"`
	Status           model.OrderStatus `json:"order_status"`
	OrderDate        time.Time         `json:"order_date"`
	CartID           int64             `json:"cart_id"`
	UserID           int64             `json:"user_id"`
	GatewaySessionID string            `json:"gateway_session_id"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	TotalAmount      decimal.Decimal   `json:"total_amount"`
	ShippingFee      decimal.Decimal   `json:"shipping_fee"`
	Tax              decimal.Decimal   `json:"tax"`
	Country          string            `json:"country,omitempty"`
	City             string            `json:"city,omitempty"`
	StreetAddress    string            `json:"street_address,omitempty"`
	PostalCode       string            `json:"postal_code,omitempty"`
	PhoneNumber      string            `json:"phone_number,omitempty"`
	Email            string            `json:"email,omitempty"`
	Items            []OrderItemOutput `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// nilの項目は変更しない
type UpdateOrderInput struct {
	Status           *string
	PaymentReference *string
	ShippingFee      *decimal.Decimal
	Tax              *decimal.Decimal
	Country          *string
	City             *string
	StreetAddress    *string
	PostalCode       *string
	PhoneNumber      *string
	Email            *string
}

func (u *OrderUsecase) Get(ctx context.Context, a Actor, orderID int64) (OrderOutput, error) {
	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return fromRepo(ctx, err, "order")
		}
		if !a.CanAccessUser(o.UserID) {
			return newError(ErrForbidden, "forbidden")
		}
		out, err = loadOrderOutput(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, txError(ctx, err)
	}
	return out, nil
}

// 注文一覧（ADMIN/MANAGER）
func (u *OrderUsecase) List(ctx context.Context, a Actor, f repo.OrderListFilter) (OrderListOutput, error) {
	if err := requireElevated(a); err != nil {
		return OrderListOutput{}, err
	}
	return u.list(ctx, f)
}

func (u *OrderUsecase) ListByUser(ctx context.Context, a Actor, userID int64, page, limit int) (OrderListOutput, error) {
	if !a.CanAccessUser(userID) {
		return OrderListOutput{}, newError(ErrForbidden, "forbidden")
	}
	return u.list(ctx, repo.OrderListFilter{Page: page, Limit: limit, UserID: &userID})
}

func (u *OrderUsecase) ListByStatus(ctx context.Context, a Actor, status string, page, limit int) (OrderListOutput, error) {
	if err := requireElevated(a); err != nil {
		return OrderListOutput{}, err
	}
	st, err := parseOrderStatus(status)
	if err != nil {
		return OrderListOutput{}, err
	}
	return u.list(ctx, repo.OrderListFilter{Page: page, Limit: limit, Status: &st})
}

// 一般ユーザーは自分の注文だけ見える
func (u *OrderUsecase) ListByCart(ctx context.Context, a Actor, cartID int64) (OrderListOutput, error) {
	f := repo.OrderListFilter{Page: 1, Limit: 100, CartID: &cartID}
	if !a.Elevated() {
		uid := a.UserID
		f.UserID = &uid
	}
	return u.list(ctx, f)
}

func (u *OrderUsecase) list(ctx context.Context, f repo.OrderListFilter) (OrderListOutput, error) {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	// page/limitの最低限チェック
	if f.Page < 1 {
		return OrderListOutput{}, newError(ErrValidation, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, newError(ErrValidation, "invalid limit")
	}

	var out OrderListOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().List(ctx, f)
		if err != nil {
			return fromRepo(ctx, err, "order")
		}

		items := make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			oo, err := loadOrderOutput(ctx, r, o)
			if err != nil {
				return err
			}
			items = append(items, oo)
		}
		out = OrderListOutput{Items: items, Total: total, Page: f.Page, Limit: f.Limit}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, txError(ctx, err)
	}
	return out, nil
}

// 管理者の上書き
func (u *OrderUsecase) Update(ctx context.Context, a Actor, orderID int64, in UpdateOrderInput) (OrderOutput, error) {
	if err := requireElevated(a); err != nil {
		return OrderOutput{}, err
	}

	var status *model.OrderStatus
	if in.Status != nil {
		st, err := parseOrderStatus(*in.Status)
		if err != nil {
			return OrderOutput{}, err
		}
		status = &st
	}
	if (in.ShippingFee != nil && in.ShippingFee.IsNegative()) || (in.Tax != nil && in.Tax.IsNegative()) {
		return OrderOutput{}, newError(ErrValidation, "shipping_fee and tax must not be negative")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return fromRepo(ctx, err, "order")
		}

		after := before
		if status != nil {
			after.Status = *status
		}
		setString(&after.PaymentReference, in.PaymentReference)
		setString(&after.Country, in.Country)
		setString(&after.City, in.City)
		setString(&after.StreetAddress, in.StreetAddress)
		setString(&after.PostalCode, in.PostalCode)
		setString(&after.PhoneNumber, in.PhoneNumber)
		setString(&after.Email, in.Email)
		if in.ShippingFee != nil {
			after.ShippingFee = in.ShippingFee.Round(2)
		}
		if in.Tax != nil {
			after.Tax = in.Tax.Round(2)
		}

		// 決済確定後はステータス以外を変えない
		if before.PaymentReference != "" && detailsChanged(before, after) {
			return newError(ErrConflict, "order is paid, only status can be changed")
		}

		if err := r.Orders().Update(ctx, after); err != nil {
			return fromRepo(ctx, err, "order")
		}
		if err := writeAudit(ctx, r, a, model.AuditActionUpdateOrder, model.AuditResourceOrder, orderID, before, after); err != nil {
			return internalError(ctx, err, "audit log")
		}

		out, err = loadOrderOutput(ctx, r, after)
		return err
	})
	if err != nil {
		return OrderOutput{}, txError(ctx, err)
	}
	return out, nil
}

// ステータス更新（値のチェックのみ）
func (u *OrderUsecase) UpdateStatus(ctx context.Context, a Actor, orderID int64, status string) (OrderOutput, error) {
	if err := requireElevated(a); err != nil {
		return OrderOutput{}, err
	}
	newStatus, err := parseOrderStatus(status)
	if err != nil {
		return OrderOutput{}, err
	}

	var out OrderOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return fromRepo(ctx, err, "order")
		}

		beforeStatus := o.Status
		if beforeStatus != newStatus {
			if err := r.Orders().UpdateStatus(ctx, orderID, newStatus); err != nil {
				return fromRepo(ctx, err, "order")
			}
			// ★監査ログ（UPDATE_ORDER_STATUS）
			if err := writeAudit(ctx, r, a, model.AuditActionUpdateOrderStatus, model.AuditResourceOrder, orderID,
				map[string]string{"status": string(beforeStatus)},
				map[string]string{"status": string(newStatus)},
			); err != nil {
				return internalError(ctx, err, "audit log")
			}
		}

		o.Status = newStatus
		out, err = loadOrderOutput(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, txError(ctx, err)
	}
	return out, nil
}

func (u *OrderUsecase) Delete(ctx context.Context, a Actor, orderID int64) error {
	if err := requireElevated(a); err != nil {
		return err
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return fromRepo(ctx, err, "order")
		}
		// 請求も一緒に消す（order_idはunique）
		inv, err := r.Invoices().FindByOrderID(ctx, orderID)
		switch {
		case err == nil:
			if err := r.Invoices().Delete(ctx, inv.ID); err != nil {
				return fromRepo(ctx, err, "invoice")
			}
			if err := writeAudit(ctx, r, a, model.AuditActionDeleteInvoice, model.AuditResourceInvoice, inv.ID, inv, nil); err != nil {
				return internalError(ctx, err, "audit log")
			}
		case !errors.Is(err, repo.ErrNotFound):
			return fromRepo(ctx, err, "invoice")
		}

		if err := r.OrderItems().DeleteByOrderID(ctx, orderID); err != nil {
			return fromRepo(ctx, err, "order item")
		}
		if err := r.Orders().Delete(ctx, orderID); err != nil {
			return fromRepo(ctx, err, "order")
		}
		if err := writeAudit(ctx, r, a, model.AuditActionDeleteOrder, model.AuditResourceOrder, orderID, o, nil); err != nil {
			return internalError(ctx, err, "audit log")
		}
		return nil
	})
	return txError(ctx, err)
}

func detailsChanged(before, after model.Order) bool {
	return before.PaymentReference != after.PaymentReference ||
		before.Country != after.Country ||
		before.City != after.City ||
		before.StreetAddress != after.StreetAddress ||
		before.PostalCode != after.PostalCode ||
		before.PhoneNumber != after.PhoneNumber ||
		before.Email != after.Email ||
		!before.ShippingFee.Equal(after.ShippingFee) ||
		!before.Tax.Equal(after.Tax)
}

func parseOrderStatus(s string) (model.OrderStatus, error) {
	st := model.OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", newError(ErrValidation, "invalid status")
	}
	return st, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func loadOrderOutput(ctx context.Context, r repo.TxRepos, o model.Order) (OrderOutput, error) {
	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, fromRepo(ctx, err, "order item")
	}
	return toOrderOutput(o, items), nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			UnitPrice: it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal,
		})
	}

	return OrderOutput{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		Status:           o.Status,
		OrderDate:        o.OrderDate,
		CartID:           o.CartID,
		UserID:           o.UserID,
		GatewaySessionID: o.GatewaySessionID,
		PaymentReference: o.PaymentReference,
		TotalAmount:      o.TotalAmount,
		ShippingFee:      o.ShippingFee,
		Tax:              o.Tax,
		Country:          o.Country,
		City:             o.City,
		StreetAddress:    o.StreetAddress,
		PostalCode:       o.PostalCode,
		PhoneNumber:      o.PhoneNumber,
		Email:            o.Email,
		Items:            outItems,
	}
}
