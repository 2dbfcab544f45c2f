package usecase

import (
	"context"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

type InvoiceUsecase struct {
	tx repo.TransactionManager
}

func NewInvoiceUsecase(tx repo.TransactionManager) *InvoiceUsecase {
	return &InvoiceUsecase{tx: tx}
}

type UpdateInvoiceInput struct {
	Amount        *decimal.Decimal
	Status        *string
	PaymentMethod *string
	PaymentDate   *time.Time
}

// 本人・出品者・ADMIN/MANAGERが見られる
func canReadInvoice(a Actor, inv model.Invoice) bool {
	if a.CanAccessUser(inv.UserID) {
		return true
	}
	return inv.SellerID != nil && *inv.SellerID == a.UserID
}

func (u *InvoiceUsecase) Get(ctx context.Context, a Actor, invoiceID int64) (model.Invoice, error) {
	var out model.Invoice
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		inv, err := r.Invoices().FindByID(ctx, invoiceID)
		if err != nil {
			return fromRepo(ctx, err, "invoice")
		}
		if !canReadInvoice(a, inv) {
			return newError(ErrForbidden, "forbidden")
		}
		out = inv
		return nil
	})
	if err != nil {
		return model.Invoice{}, txError(ctx, err)
	}
	return out, nil
}

func (u *InvoiceUsecase) List(ctx context.Context, a Actor, status string) ([]model.Invoice, error) {
	if err := requireElevated(a); err != nil {
		return nil, err
	}
	f := repo.InvoiceListFilter{}
	if status != "" {
		st, err := parseInvoiceStatus(status)
		if err != nil {
			return nil, err
		}
		f.Status = &st
	}
	return u.list(ctx, f)
}

func (u *InvoiceUsecase) ListByUser(ctx context.Context, a Actor, userID int64) ([]model.Invoice, error) {
	if !a.CanAccessUser(userID) {
		return nil, newError(ErrForbidden, "forbidden")
	}
	return u.list(ctx, repo.InvoiceListFilter{UserID: &userID})
}

func (u *InvoiceUsecase) ListBySeller(ctx context.Context, a Actor, sellerID int64) ([]model.Invoice, error) {
	if !a.CanAccessUser(sellerID) {
		return nil, newError(ErrForbidden, "forbidden")
	}
	return u.list(ctx, repo.InvoiceListFilter{SellerID: &sellerID})
}

func (u *InvoiceUsecase) GetByOrder(ctx context.Context, a Actor, orderID int64) (model.Invoice, error) {
	var out model.Invoice
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		inv, err := r.Invoices().FindByOrderID(ctx, orderID)
		if err != nil {
			return fromRepo(ctx, err, "invoice")
		}
		if !canReadInvoice(a, inv) {
			return newError(ErrForbidden, "forbidden")
		}
		out = inv
		return nil
	})
	if err != nil {
		return model.Invoice{}, txError(ctx, err)
	}
	return out, nil
}

func (u *InvoiceUsecase) ListByCart(ctx context.Context, a Actor, cartID int64) ([]model.Invoice, error) {
	var out []model.Invoice
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		invs, err := r.Invoices().ListByCartID(ctx, cartID)
		if err != nil {
			return fromRepo(ctx, err, "invoice")
		}
		out = make([]model.Invoice, 0, len(invs))
		for _, inv := range invs {
			if canReadInvoice(a, inv) {
				out = append(out, inv)
			}
		}
		return nil
	})
	if err != nil {
		return nil, txError(ctx, err)
	}
	return out, nil
}

func (u *InvoiceUsecase) list(ctx context.Context, f repo.InvoiceListFilter) ([]model.Invoice, error) {
	var out []model.Invoice
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		invs, err := r.Invoices().List(ctx, f)
		if err != nil {
			return fromRepo(ctx, err, "invoice")
		}
		out = invs
		return nil
	})
	if err != nil {
		return nil, txError(ctx, err)
	}
	return out, nil
}

// 管理者の上書き。PAIDにしたときpaymentDateが無ければ今
func (u *InvoiceUsecase) Update(ctx context.Context, a Actor, invoiceID int64, in UpdateInvoiceInput) (model.Invoice, error) {
	if err := requireElevated(a); err != nil {
		return model.Invoice{}, err
	}
	if in.Amount != nil && in.Amount.IsNegative() {
		return model.Invoice{}, newError(ErrValidation, "invalid amount")
	}
	var status *model.InvoiceStatus
	if in.Status != nil {
		st, err := parseInvoiceStatus(*in.Status)
		if err != nil {
			return model.Invoice{}, err
		}
		status = &st
	}

	return u.override(ctx, a, invoiceID, model.AuditActionUpdateInvoice, func(inv *model.Invoice) {
		if in.Amount != nil {
			inv.Amount = in.Amount.Round(2)
		}
		if in.PaymentMethod != nil {
			inv.PaymentMethod = strings.TrimSpace(*in.PaymentMethod)
		}
		if in.PaymentDate != nil {
			inv.PaymentDate = in.PaymentDate
		}
		if status != nil {
			applyInvoiceStatus(inv, *status)
		}
	})
}

func (u *InvoiceUsecase) UpdatePaymentStatus(ctx context.Context, a Actor, invoiceID int64, status string) (model.Invoice, error) {
	if err := requireElevated(a); err != nil {
		return model.Invoice{}, err
	}
	st, err := parseInvoiceStatus(status)
	if err != nil {
		return model.Invoice{}, err
	}

	return u.override(ctx, a, invoiceID, model.AuditActionUpdateInvoiceStatus, func(inv *model.Invoice) {
		applyInvoiceStatus(inv, st)
	})
}

func (u *InvoiceUsecase) Delete(ctx context.Context, a Actor, invoiceID int64) error {
	if err := requireElevated(a); err != nil {
		return err
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		inv, err := r.Invoices().FindByID(ctx, invoiceID)
		if err != nil {
			return fromRepo(ctx, err, "invoice")
		}
		if err := r.Invoices().Delete(ctx, invoiceID); err != nil {
			return fromRepo(ctx, err, "invoice")
		}
		if err := writeAudit(ctx, r, a, model.AuditActionDeleteInvoice, model.AuditResourceInvoice, invoiceID, inv, nil); err != nil {
			return internalError(ctx, err, "audit log")
		}
		return nil
	})
	return txError(ctx, err)
}

func (u *InvoiceUsecase) override(ctx context.Context, a Actor, invoiceID int64, action model.AuditAction, apply func(inv *model.Invoice)) (model.Invoice, error) {
	var out model.Invoice
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Invoices().FindByID(ctx, invoiceID)
		if err != nil {
			return fromRepo(ctx, err, "invoice")
		}

		after := before
		apply(&after)

		if err := r.Invoices().Update(ctx, after); err != nil {
			return fromRepo(ctx, err, "invoice")
		}
		if err := writeAudit(ctx, r, a, action, model.AuditResourceInvoice, invoiceID, before, after); err != nil {
			return internalError(ctx, err, "audit log")
		}
		out = after
		return nil
	})
	if err != nil {
		return model.Invoice{}, txError(ctx, err)
	}
	return out, nil
}

// PAIDになったら支払日を入れる
func applyInvoiceStatus(inv *model.Invoice, st model.InvoiceStatus) {
	inv.Status = st
	if st == model.InvoiceStatusPaid && inv.PaymentDate == nil {
		now := time.Now()
		inv.PaymentDate = &now
	}
}

func parseInvoiceStatus(s string) (model.InvoiceStatus, error) {
	st := model.InvoiceStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", newError(ErrValidation, "invalid status")
	}
	return st, nil
}
