package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 失敗がこの回数を超えたイベントはrelayが拾わない
const outboxMaxRetry = 10

type OutboxGormRepository struct {
	db *gorm.DB
}

func NewOutboxGormRepository(db *gorm.DB) *OutboxGormRepository {
	return &OutboxGormRepository{db: db}
}

func (r *OutboxGormRepository) Enqueue(ctx context.Context, ev *model.OutboxEvent) error {
	if ev.Status == "" {
		ev.Status = model.OutboxStatusPending
	}
	return r.db.WithContext(ctx).Create(ev).Error
}

// 未送信を lease 付きで掴む。FOR UPDATE SKIP LOCKED なので複数relayでも重ならない
func (r *OutboxGormRepository) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ? AND retry_count < ?",
				[]model.OutboxStatus{model.OutboxStatusPending, model.OutboxStatusFailed, model.OutboxStatusInProgress},
				outboxMaxRetry).
			Where("locked_until IS NULL OR locked_until < ?", now).
			Order("id asc").
			Limit(batchSize).
			Find(&events).Error
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		until := now.Add(lease)
		return tx.Model(&model.OutboxEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":       model.OutboxStatusInProgress,
				"locked_by":    relayID,
				"locked_until": until,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *OutboxGormRepository) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":       model.OutboxStatusSent,
			"locked_until": nil,
		}).Error
}

func (r *OutboxGormRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       model.OutboxStatusFailed,
			"retry_count":  gorm.Expr("retry_count + 1"),
			"last_error":   errMsg,
			"locked_until": nil,
		}).Error
}
