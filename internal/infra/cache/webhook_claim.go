package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClaimer はwebhookイベントIDをSETNXで先取りする。
// DBの処理済みテーブルが最終判定で、こちらは再送を早く返すためのもの。
type RedisClaimer struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisClaimer(rdb redis.UniversalClient, ttl time.Duration) *RedisClaimer {
	return &RedisClaimer{rdb: rdb, ttl: ttl, prefix: "webhook:event:"}
}

func (c *RedisClaimer) key(eventID string) string {
	return c.prefix + eventID
}

// 先取りできたらtrue。既に誰かが持っていればfalse
func (c *RedisClaimer) Claim(ctx context.Context, eventID string) (bool, error) {
	return c.rdb.SetNX(ctx, c.key(eventID), "1", c.ttl).Result()
}

func (c *RedisClaimer) Release(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, c.key(eventID)).Err()
}

// Redisを使わないとき
type NopClaimer struct{}

func (NopClaimer) Claim(context.Context, string) (bool, error) { return true, nil }
func (NopClaimer) Release(context.Context, string) error       { return nil }
