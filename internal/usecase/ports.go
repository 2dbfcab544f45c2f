package usecase

import "context"

// 決済ゲートウェイに渡す1行（金額は最小通貨単位）
type CheckoutLine struct {
	Name        string
	Description string
	ImageURL    string
	UnitAmount  int64
	Quantity    int64
}

type CheckoutSessionParams struct {
	Lines          []CheckoutLine
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

// 署名検証済みのwebhookイベント
type GatewayEvent struct {
	ID               string
	Type             string
	SessionID        string
	PaymentReference string
	CustomerEmail    string
	CustomerPhone    string
	Metadata         map[string]string
}

type WebhookVerifier interface {
	Verify(payload []byte, signature string) (GatewayEvent, error)
}

// webhookイベントIDのTTL付き先取り（再送の早期判定）
type EventClaimer interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}
