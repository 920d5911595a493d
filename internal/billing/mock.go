package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockProvider is a mock billing provider for testing and local development.
// Simulates hosted checkout without calling Stripe API. Webhook payloads are
// plain JSON WebhookEvent values and the signature must equal Secret.
type MockProvider struct {
	// CreateCheckoutSessionFunc allows customizing session creation behavior
	CreateCheckoutSessionFunc func(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)

	// ParseWebhookFunc allows customizing webhook parsing behavior
	ParseWebhookFunc func(payload []byte, signature string) (*WebhookEvent, error)

	// Secret is the signature ParseWebhook accepts by default.
	Secret string

	mu sync.Mutex

	// Sessions stores created sessions by order id
	Sessions map[string]*CheckoutSession

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// NewMockProvider creates a new mock billing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Secret:   "whsec_mock",
		Sessions: make(map[string]*CheckoutSession),
		CallLog:  []string{},
	}
}

// CreateCheckoutSession creates a mock session.
func (m *MockProvider) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateCheckoutSession(%s, %d)", params.OrderID, params.TotalCents))
	m.mu.Unlock()

	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, params)
	}

	id := "cs_test_" + uuid.New().String()
	session := &CheckoutSession{
		ID:        id,
		URL:       "https://checkout.mock.local/pay/" + id,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}

	m.mu.Lock()
	m.Sessions[params.OrderID] = session
	m.mu.Unlock()
	return session, nil
}

// ParseWebhook decodes a JSON WebhookEvent after comparing the signature to Secret.
func (m *MockProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, "ParseWebhook")
	m.mu.Unlock()

	if m.ParseWebhookFunc != nil {
		return m.ParseWebhookFunc(payload, signature)
	}

	if signature != m.Secret {
		return nil, ErrInvalidWebhookSignature
	}
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}
	return &event, nil
}

// Calls returns a copy of the call log.
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}

var (
	_ Provider = (*MockProvider)(nil)
	_ Provider = (*StripeProvider)(nil)
)
