package db

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/domain/model"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: &zerologGorm{log: log.With().Str("component", "gorm").Logger(), slow: 200 * time.Millisecond},
	})
}

// テーブルを作る（部分ユニークインデックスもタグから作られる）
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.All()...)
}

// gormのログをzerologに流す。warn以上だけ
type zerologGorm struct {
	log  zerolog.Logger
	slow time.Duration
}

func (l *zerologGorm) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *zerologGorm) Info(ctx context.Context, msg string, args ...interface{}) {
	l.log.Debug().Msgf(msg, args...)
}

func (l *zerologGorm) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.log.Warn().Msgf(msg, args...)
}

func (l *zerologGorm) Error(ctx context.Context, msg string, args ...interface{}) {
	l.log.Error().Msgf(msg, args...)
}

func (l *zerologGorm) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Error().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query failed")
	case elapsed > l.slow:
		sql, rows := fc()
		l.log.Warn().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("slow query")
	}
}
