package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

type WebhookEventRepository interface {
	// 初回ならtrue。同じevent_idが既にあればfalse。
	Record(ctx context.Context, ev model.ProcessedWebhookEvent) (bool, error)
}
