package usecase

import (
	"context"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

type AuditUsecase struct {
	tx repo.TransactionManager
}

func NewAuditUsecase(tx repo.TransactionManager) *AuditUsecase {
	return &AuditUsecase{tx: tx}
}

type AuditLogQuery struct {
	ActorUserID  *int64
	ResourceType string
	ResourceID   *int64
	Since        *time.Time
	Limit        int
}

// 監査ログの一覧（ADMIN/MANAGER）
func (u *AuditUsecase) List(ctx context.Context, a Actor, q AuditLogQuery) ([]model.AuditLog, error) {
	if err := requireElevated(a); err != nil {
		return nil, err
	}

	f := repo.AuditLogFilter{
		ActorUserID: q.ActorUserID,
		ResourceID:  q.ResourceID,
		CreatedFrom: q.Since,
		Limit:       q.Limit,
	}
	if f.Limit == 0 {
		f.Limit = 100
	}
	if f.Limit < 1 || f.Limit > 200 {
		return nil, newError(ErrValidation, "invalid limit")
	}
	if q.ResourceType != "" {
		rt := model.AuditResourceType(strings.ToLower(strings.TrimSpace(q.ResourceType)))
		switch rt {
		case model.AuditResourceCart, model.AuditResourceOrder, model.AuditResourceInvoice:
		default:
			return nil, newError(ErrValidation, "invalid resource_type")
		}
		f.ResourceType = &rt
	}

	var out []model.AuditLog
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		logs, err := r.AuditLogs().List(ctx, f)
		if err != nil {
			return fromRepo(ctx, err, "audit log")
		}
		out = logs
		return nil
	})
	if err != nil {
		return nil, txError(ctx, err)
	}
	return out, nil
}
