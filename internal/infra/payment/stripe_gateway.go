package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"marketplace/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway はCheckout Sessionの作成/失効をStripeへ送る。
type StripeGateway struct {
	sc       *client.API
	currency string
}

// backendURLが空なら本番API。テストではhttptestのURLを渡す
func NewStripeGateway(secretKey, currency, backendURL string, httpClient *http.Client, log zerolog.Logger) *StripeGateway {
	cfg := &stripe.BackendConfig{
		LeveledLogger: stripeLogger{log: log},
	}
	if backendURL != "" {
		cfg.URL = stripe.String(backendURL)
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	// 再試行は呼び出し側のタイムアウトに任せる
	cfg.MaxNetworkRetries = stripe.Int64(0)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	sc := client.New(secretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &StripeGateway{sc: sc, currency: currency}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p usecase.CheckoutSessionParams) (usecase.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
		PhoneNumberCollection: &stripe.CheckoutSessionPhoneNumberCollectionParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	for _, l := range p.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(l.Name),
		}
		if l.Description != "" {
			product.Description = stripe.String(l.Description)
		}
		if l.ImageURL != "" {
			product.Images = stripe.StringSlice([]string{l.ImageURL})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(g.currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(l.UnitAmount),
			},
			Quantity: stripe.Int64(l.Quantity),
		})
	}

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return usecase.CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return usecase.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := g.sc.CheckoutSessions.Expire(sessionID, params); err != nil {
		return fmt.Errorf("stripe: expire checkout session %s: %w", sessionID, err)
	}
	return nil
}

// StripeVerifier はStripe-Signatureヘッダを検証してイベントを取り出す。
type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

var ErrUnexpectedPayload = errors.New("unexpected webhook payload")

func (v *StripeVerifier) Verify(payload []byte, signature string) (usecase.GatewayEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return usecase.GatewayEvent{}, err
	}

	out := usecase.GatewayEvent{
		ID:   ev.ID,
		Type: string(ev.Type),
	}
	// checkout.session.* 以外は中身を見ない
	if ev.Data == nil || ev.Type != stripe.EventTypeCheckoutSessionCompleted {
		return out, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return usecase.GatewayEvent{}, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}

	out.SessionID = cs.ID
	out.Metadata = cs.Metadata
	if cs.PaymentIntent != nil {
		out.PaymentReference = cs.PaymentIntent.ID
	}
	if cs.CustomerDetails != nil {
		out.CustomerEmail = cs.CustomerDetails.Email
		out.CustomerPhone = cs.CustomerDetails.Phone
	}
	return out, nil
}

// stripe-goのログをzerologへ
type stripeLogger struct {
	log zerolog.Logger
}

func (l stripeLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
func (l stripeLogger) Infof(format string, v ...interface{})  { l.log.Debug().Msgf(format, v...) }
func (l stripeLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l stripeLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
