package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

// 状態変更と同じTxでイベントを積む
type OutboxRepository interface {
	Enqueue(ctx context.Context, ev *model.OutboxEvent) error
}
