package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"marketplace/internal/config"
	"marketplace/internal/handler"
	"marketplace/internal/infra/cache"
	"marketplace/internal/infra/db"
	"marketplace/internal/infra/memory"
	"marketplace/internal/infra/payment"
	infraRepo "marketplace/internal/infra/repository"
	"marketplace/internal/logging"
	"marketplace/internal/outbox"
	"marketplace/internal/repository"
	"marketplace/internal/server"
	"marketplace/internal/usecase"
	"marketplace/internal/validator"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	// .envは無くてもよい（本番は環境変数）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, !cfg.IsProd())
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otel.SetTextMapPropagator(propagation.TraceContext{})

	//永続化（postgres or memory）
	var (
		tx       repository.TransactionManager
		userRepo repository.UserRepository
		relayDB  outbox.Store
		health   func(ctx context.Context) error
	)
	switch cfg.Storage {
	case "memory":
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		tx, userRepo, relayDB = store, store.Users(), store
	default:
		gormDB, err := db.Connect(cfg.DSN(), log)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		if err := db.Migrate(gormDB); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		tx = infraRepo.NewTxManagerGorm(gormDB)
		userRepo = infraRepo.NewUserGormRepository(gormDB)
		relayDB = infraRepo.NewOutboxGormRepository(gormDB)
		health = sqlDB.PingContext
	}

	//webhookの先取り（Redisが無ければDBだけで判定）
	var claims usecase.EventClaimer = cache.NopClaimer{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, webhook claims fall back to db")
		}
		claims = cache.NewRedisClaimer(rdb, cfg.WebhookClaimTTL)
	}

	//outbox relay
	var producer outbox.Producer = outbox.NewLogProducer(log)
	if len(cfg.KafkaBrokers) > 0 {
		w := outbox.NewKafkaWriter(cfg.KafkaBrokers)
		defer w.Close()
		producer = w
	}
	relay := outbox.NewRelay(log, relayDB, outbox.NewDispatcher(log, producer, cfg.KafkaTopic), "relay-"+uuid.NewString()[:8])
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		_ = relay.Run(ctx)
	}()

	//決済ゲートウェイ
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.Currency, "", nil, log)
	verifier := payment.NewStripeVerifier(cfg.StripeWebhookSecret)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(cfg.JWTSecret, tx, validator.NewAuthValidator())
	cartUC := usecase.NewCartUsecase(tx)
	checkoutUC := usecase.NewCheckoutUsecase(tx, gateway, usecase.CheckoutConfig{
		FrontendURL:    cfg.FEURL,
		GatewayTimeout: cfg.GatewayTimeout,
	})
	paymentUC := usecase.NewPaymentUsecase(tx, verifier, claims)
	orderUC := usecase.NewOrderUsecase(tx)
	invoiceUC := usecase.NewInvoiceUsecase(tx)
	auditUC := usecase.NewAuditUsecase(tx)

	//Handler生成
	e := server.New(cfg, log)
	server.RegisterRoutes(e, cfg, userRepo, server.Handlers{
		Auth:     handler.NewAuthHandler(authUC),
		Cart:     handler.NewCartHandler(cartUC),
		Checkout: handler.NewCheckoutHandler(checkoutUC, paymentUC),
		Order:    handler.NewOrderHandler(orderUC),
		Invoice:  handler.NewInvoiceHandler(invoiceUC),
		Audit:    handler.NewAuditHandler(auditUC),
		Health:   handler.NewHealthHandler(health),
	})

	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}
	err := server.Start(ctx, e, addr, log)

	stop()
	<-relayDone
	return err
}
