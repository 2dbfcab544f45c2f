package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const EventCheckoutSessionCompleted = "checkout.session.completed"

// 処理済み（再送）なのでロールバックして200を返す
var errAlreadyProcessed = errors.New("already processed")

// PaymentUsecase は決済webhookを受けて注文・請求を確定させる。
type PaymentUsecase struct {
	tx       repo.TransactionManager
	verifier WebhookVerifier
	claims   EventClaimer
	tracer   trace.Tracer
}

func NewPaymentUsecase(tx repo.TransactionManager, verifier WebhookVerifier, claims EventClaimer) *PaymentUsecase {
	return &PaymentUsecase{
		tx:       tx,
		verifier: verifier,
		claims:   claims,
		tracer:   otel.Tracer("payment-webhook"),
	}
}

type WebhookResult struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	OrderID   *int64 `json:"order_id,omitempty"`
}

func (u *PaymentUsecase) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	ctx, span := u.tracer.Start(ctx, "HandleWebhook")
	defer span.End()

	res, err := u.handle(ctx, payload, signature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Bool("webhook.duplicate", res.Duplicate), attribute.Bool("webhook.ignored", res.Ignored))
	return res, err
}

func (u *PaymentUsecase) handle(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	log := zerolog.Ctx(ctx)

	// 署名検証が先。失敗したら何も触らない
	ev, err := u.verifier.Verify(payload, signature)
	if err != nil {
		log.Warn().Err(err).Msg("webhook signature verification failed")
		return WebhookResult{}, newError(ErrInvalidSignature, "invalid signature")
	}

	elog := log.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Logger()

	if ev.Type != EventCheckoutSessionCompleted {
		elog.Debug().Msg("webhook event ignored")
		return WebhookResult{Received: true, Ignored: true}, nil
	}

	cartID, err1 := strconv.ParseInt(ev.Metadata["cartId"], 10, 64)
	userID, err2 := strconv.ParseInt(ev.Metadata["userId"], 10, 64)
	if err1 != nil || err2 != nil || cartID <= 0 || userID <= 0 {
		elog.Warn().Interface("metadata", ev.Metadata).Msg("webhook metadata missing cartId/userId")
		return WebhookResult{Received: true, Ignored: true}, nil
	}
	elog = elog.With().Int64("cart_id", cartID).Int64("user_id", userID).Str("session_id", ev.SessionID).Logger()

	// 高速パス。Redisが落ちていてもDB側の判定で続ける
	claimed := false
	if u.claims != nil {
		ok, err := u.claims.Claim(ctx, ev.ID)
		switch {
		case err != nil:
			elog.Warn().Err(err).Msg("webhook claim failed, falling back to db")
		case !ok:
			// 先取りだけ残って落ちた可能性がある。DBで確定済みのときだけ200
			return u.claimedElsewhere(ctx, elog, ev.SessionID)
		default:
			claimed = true
		}
	}

	var orderID int64
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByGatewaySessionIDForUpdate(ctx, ev.SessionID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				// checkoutのcommitより先に届いた。ゲートウェイに再送させる
				return newError(ErrInternal, "order not ready")
			}
			return fromRepo(ctx, err, "order")
		}
		orderID = order.ID

		if order.CartID != cartID || order.UserID != userID {
			elog.Error().Int64("order_id", order.ID).Msg("webhook metadata does not match order")
			return errAlreadyProcessed
		}
		if order.Status != model.OrderStatusPending {
			if order.Status == model.OrderStatusCanceled && order.PaymentReference == "" {
				// 決済は通っているのに注文は取消済み。返金か復旧が必要
				elog.Error().Int64("order_id", order.ID).Str("payment_reference", paymentReference(ev)).
					Msg("payment captured for canceled order, needs reconciliation")
				return errAlreadyProcessed
			}
			elog.Info().Int64("order_id", order.ID).Str("status", string(order.Status)).Msg("order already finalized")
			return errAlreadyProcessed
		}

		first, err := r.WebhookEvents().Record(ctx, model.ProcessedWebhookEvent{
			EventID:     ev.ID,
			EventType:   ev.Type,
			OrderID:     order.ID,
			ProcessedAt: time.Now(),
		})
		if err != nil {
			return fromRepo(ctx, err, "webhook event")
		}
		if !first {
			return errAlreadyProcessed
		}

		if err := u.finalizeCart(ctx, r, cartID, userID); err != nil {
			return err
		}

		ok, err := r.Orders().MarkPaid(ctx, order.ID, repo.PaymentConfirmation{
			PaymentReference: paymentReference(ev),
			Email:            ev.CustomerEmail,
			PhoneNumber:      ev.CustomerPhone,
		})
		if err != nil {
			return fromRepo(ctx, err, "order")
		}
		if !ok {
			return errAlreadyProcessed
		}

		if err := markInvoicePaid(ctx, r, order); err != nil {
			return err
		}

		paid, err := r.Orders().FindByID(ctx, order.ID)
		if err != nil {
			return fromRepo(ctx, err, "order")
		}
		if err := enqueueOrderEvent(ctx, r, model.EventOrderPaid, paid); err != nil {
			return internalError(ctx, err, "enqueue order.paid")
		}
		return nil
	})

	if errors.Is(err, errAlreadyProcessed) {
		return WebhookResult{Received: true, Duplicate: true, OrderID: optionalID(orderID)}, nil
	}
	if err != nil {
		// 次の再送で処理できるように先取りを戻す
		if claimed {
			if rerr := u.claims.Release(context.WithoutCancel(ctx), ev.ID); rerr != nil {
				elog.Warn().Err(rerr).Msg("webhook claim release failed")
			}
		}
		return WebhookResult{}, txError(ctx, err)
	}

	elog.Info().Int64("order_id", orderID).Msg("payment confirmed")
	return WebhookResult{Received: true, OrderID: optionalID(orderID)}, nil
}

// 他で先取り済みのイベント。注文がまだPENDINGなら再送させる
func (u *PaymentUsecase) claimedElsewhere(ctx context.Context, elog zerolog.Logger, sessionID string) (WebhookResult, error) {
	var order model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		order, err = r.Orders().FindByGatewaySessionIDForUpdate(ctx, sessionID)
		return err
	})
	switch {
	case errors.Is(err, repo.ErrNotFound):
		elog.Warn().Msg("webhook event claimed but order not found, asking for redelivery")
		return WebhookResult{}, newError(ErrInternal, "order not ready")
	case err != nil:
		return WebhookResult{}, txError(ctx, fromRepo(ctx, err, "order"))
	case order.Status == model.OrderStatusPending:
		elog.Warn().Int64("order_id", order.ID).Msg("webhook event claimed but order still pending, asking for redelivery")
		return WebhookResult{}, newError(ErrInternal, "event is being processed")
	}
	elog.Info().Int64("order_id", order.ID).Msg("webhook event already claimed")
	return WebhookResult{Received: true, Duplicate: true, OrderID: optionalID(order.ID)}, nil
}

// checkout側で切り替わっていなければここで切り替え、明細は必ず消す
func (u *PaymentUsecase) finalizeCart(ctx context.Context, r repo.TxRepos, cartID, userID int64) error {
	cart, err := r.Carts().FindByIDForUpdate(ctx, cartID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			zerolog.Ctx(ctx).Warn().Int64("cart_id", cartID).Msg("cart for paid order no longer exists")
			return nil
		}
		return fromRepo(ctx, err, "cart")
	}

	if cart.Status == model.CartStatusActive {
		if _, err := r.Carts().MarkCheckedOut(ctx, cart.ID, userID); err != nil {
			return fromRepo(ctx, err, "cart")
		}
		if _, err := r.Carts().FindActiveByUserID(ctx, userID); err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				return fromRepo(ctx, err, "cart")
			}
			if _, err := provisionCart(ctx, r, userID); err != nil {
				return err
			}
		}
	}

	if _, err := r.CartItems().DeleteByCartID(ctx, cart.ID); err != nil {
		return fromRepo(ctx, err, "cart item")
	}
	return nil
}

// PENDINGの請求をPAIDに。無ければPAIDで作る
func markInvoicePaid(ctx context.Context, r repo.TxRepos, order model.Order) error {
	now := time.Now()
	inv, err := r.Invoices().FindByOrderID(ctx, order.ID)
	if errors.Is(err, repo.ErrNotFound) {
		inv = model.Invoice{
			OrderID:       order.ID,
			UserID:        order.UserID,
			Amount:        order.GrandTotal(),
			Status:        model.InvoiceStatusPaid,
			PaymentMethod: "card",
			PaymentDate:   &now,
		}
		if err := r.Invoices().Create(ctx, &inv); err != nil {
			return fromRepo(ctx, err, "invoice")
		}
		return nil
	}
	if err != nil {
		return fromRepo(ctx, err, "invoice")
	}

	inv.Status = model.InvoiceStatusPaid
	inv.PaymentDate = &now
	if err := r.Invoices().Update(ctx, inv); err != nil {
		return fromRepo(ctx, err, "invoice")
	}
	return nil
}

func paymentReference(ev GatewayEvent) string {
	if ev.PaymentReference != "" {
		return ev.PaymentReference
	}
	return ev.SessionID
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
