package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"

	domain "github.com/khobz-app/checkout/internal/domain"
)

type fakeProvider struct {
	lastReq SessionRequest
	session Session
	err     error
}

func (f *fakeProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	f.lastReq = req
	return f.session, f.err
}

func (f *fakeProvider) LookupPayment(ctx context.Context, intentID string) (PaymentDetails, error) {
	return PaymentDetails{IntentID: intentID, Status: StatusPending}, nil
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount   float64
		currency string
		want     int64
	}{
		{21.5, "JOD", 21500},
		{21.505, "JOD", 21505},
		{21.5, "USD", 2150},
		{21.5, "JPY", 22},
	}
	for _, tc := range tests {
		if got := MinorUnits(tc.amount, tc.currency); got != tc.want {
			t.Fatalf("MinorUnits(%v, %s) = %d, want %d", tc.amount, tc.currency, got, tc.want)
		}
	}
}

func TestCreatePaymentSession(t *testing.T) {
	provider := &fakeProvider{
		session: Session{ID: "cs_1", RedirectURL: "https://pay.example/cs_1", ExpiresAt: time.Now().Add(30 * time.Minute)},
	}
	manager, err := NewManager(map[string]Provider{"stripe": provider})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	creator, err := NewSessionCreator(SessionCreatorConfig{Manager: manager, Currency: "JOD"})
	if err != nil {
		t.Fatalf("NewSessionCreator: %v", err)
	}

	order := domain.PlacedOrder{ID: "ord-1", Number: "1042", Total: 21.5}
	session, err := creator.CreatePaymentSession(context.Background(), order, domain.PaymentCard)
	if err != nil {
		t.Fatalf("CreatePaymentSession: %v", err)
	}
	if session.Provider != "stripe" {
		t.Fatalf("Provider = %q", session.Provider)
	}
	if session.RedirectURL == "" {
		t.Fatal("expected redirect URL")
	}
	if provider.lastReq.AmountMinor != 21500 {
		t.Fatalf("AmountMinor = %d, want 21500", provider.lastReq.AmountMinor)
	}
	if provider.lastReq.IdempotencyKey != "order-session-ord-1" {
		t.Fatalf("IdempotencyKey = %q", provider.lastReq.IdempotencyKey)
	}
}

func TestCreatePaymentSessionRejectsCash(t *testing.T) {
	manager, err := NewManager(map[string]Provider{"stripe": &fakeProvider{}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	creator, err := NewSessionCreator(SessionCreatorConfig{Manager: manager})
	if err != nil {
		t.Fatalf("NewSessionCreator: %v", err)
	}

	_, err = creator.CreatePaymentSession(context.Background(), domain.PlacedOrder{ID: "ord-1"}, domain.PaymentCash)
	if err == nil {
		t.Fatal("expected rejection for a cash order")
	}
}

func TestManagerResolvesUnknownProvider(t *testing.T) {
	manager, err := NewManager(map[string]Provider{"local": &fakeProvider{}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := manager.CreateSession(context.Background(), "other", SessionRequest{}); err != nil {
		// Single registered provider serves as the fallback.
		t.Fatalf("CreateSession: %v", err)
	}

	multi, err := NewManager(map[string]Provider{"local": &fakeProvider{}, "other": &fakeProvider{}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	multi.defaultProvider = ""
	if _, err := multi.CreateSession(context.Background(), "missing", SessionRequest{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("err = %v, want ErrUnsupportedProvider", err)
	}
}

type stubSessions struct {
	params  *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
}

func (s *stubSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.params = params
	return s.session, nil
}

type stubIntents struct {
	intent *stripe.PaymentIntent
}

func (s *stubIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.intent, nil
}

func TestStripeCreateSession(t *testing.T) {
	sessions := &stubSessions{
		session: &stripe.CheckoutSession{
			ID:  "cs_1",
			URL: "https://checkout.stripe.com/cs_1",
			PaymentIntent: &stripe.PaymentIntent{
				ID: "pi_1",
			},
		},
	}
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clients: &stripeClients{sessions: sessions, intents: &stubIntents{}},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	got, err := provider.CreateSession(context.Background(), SessionRequest{
		OrderID:     "ord-1",
		OrderNumber: "1042",
		AmountMinor: 21500,
		Currency:    "JOD",
		Locale:      "ar",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if got.ID != "cs_1" || got.IntentID != "pi_1" {
		t.Fatalf("session = %+v", got)
	}
	if sessions.params.Metadata["order_id"] != "ord-1" {
		t.Fatalf("metadata = %+v", sessions.params.Metadata)
	}
	if *sessions.params.LineItems[0].PriceData.UnitAmount != 21500 {
		t.Fatalf("unit amount = %d", *sessions.params.LineItems[0].PriceData.UnitAmount)
	}
}

func TestStripeLookupPaymentStatus(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clients: &stripeClients{
			sessions: &stubSessions{},
			intents: &stubIntents{intent: &stripe.PaymentIntent{
				ID:       "pi_1",
				Status:   stripe.PaymentIntentStatusSucceeded,
				Amount:   21500,
				Currency: "jod",
			}},
		},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	details, err := provider.LookupPayment(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("LookupPayment: %v", err)
	}
	if details.Status != StatusSucceeded {
		t.Fatalf("Status = %s", details.Status)
	}
	if details.Currency != "JOD" {
		t.Fatalf("Currency = %s", details.Currency)
	}
}
