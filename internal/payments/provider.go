// Package payments opens out-of-band authorization sessions for orders paid
// with methods that require a redirect. Providers are registered behind a
// small manager so the storefront can add a local PSP next to Stripe without
// touching the checkout flow.
package payments

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnsupportedProvider is returned when the manager cannot resolve a
// provider for a session request.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// SessionRequest captures the payload required to open an authorization
// session for a placed order. AmountMinor is in the currency's minor unit.
type SessionRequest struct {
	OrderID        string
	OrderNumber    string
	AmountMinor    int64
	Currency       string
	Locale         string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	Metadata       map[string]string
}

// Session is the PSP handoff returned to the client.
type Session struct {
	ID           string
	Provider     string
	ClientSecret string
	RedirectURL  string
	IntentID     string
	ExpiresAt    time.Time
}

// PaymentStatus is the normalised provider-side payment state.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSucceeded PaymentStatus = "succeeded"
	StatusFailed    PaymentStatus = "failed"
)

// PaymentDetails normalises provider-specific fields for status lookups.
type PaymentDetails struct {
	Provider    string
	IntentID    string
	Status      PaymentStatus
	AmountMinor int64
	Currency    string
}

// Provider is the contract PSP adapters implement.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	LookupPayment(ctx context.Context, intentID string) (PaymentDetails, error)
}

// Manager routes session requests to a registered provider.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional Manager behaviour.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider key.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.ToLower(strings.TrimSpace(provider))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registry := make(map[string]Provider, len(providers))
	for key, provider := range providers {
		normalized := strings.ToLower(strings.TrimSpace(key))
		if normalized == "" || provider == nil {
			return nil, errors.New("payments: invalid provider registration")
		}
		registry[normalized] = provider
	}
	m := &Manager{providers: registry}
	if _, ok := registry["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

func (m *Manager) resolve(preferred string) (string, Provider, error) {
	if key := strings.ToLower(strings.TrimSpace(preferred)); key != "" {
		if provider, ok := m.providers[key]; ok {
			return key, provider, nil
		}
	}
	if m.defaultProvider != "" {
		if provider, ok := m.providers[m.defaultProvider]; ok {
			return m.defaultProvider, provider, nil
		}
	}
	if len(m.providers) == 1 {
		for key, provider := range m.providers {
			return key, provider, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateSession opens a session with the resolved provider. An empty
// preferred key falls through to the default.
func (m *Manager) CreateSession(ctx context.Context, preferred string, req SessionRequest) (Session, error) {
	key, provider, err := m.resolve(preferred)
	if err != nil {
		return Session{}, err
	}
	session, err := provider.CreateSession(ctx, req)
	if err != nil {
		return Session{}, err
	}
	session.Provider = key
	return session, nil
}

// LookupPayment delegates a status lookup to the resolved provider.
func (m *Manager) LookupPayment(ctx context.Context, preferred, intentID string) (PaymentDetails, error) {
	_, provider, err := m.resolve(preferred)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.LookupPayment(ctx, intentID)
}
