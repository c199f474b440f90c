package payments

import (
	"context"
	"errors"
	"math"
	"strings"

	domain "github.com/khobz-app/checkout/internal/domain"
)

// Zero-decimal and three-decimal currency handling follows the PSP minor
// unit conventions; everything else uses two decimals.
var minorUnitScale = map[string]float64{
	"JOD": 1000,
	"KWD": 1000,
	"BHD": 1000,
	"JPY": 1,
}

// MinorUnits converts a display amount to the currency's minor unit.
func MinorUnits(amount float64, currency string) int64 {
	scale, ok := minorUnitScale[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok {
		scale = 100
	}
	return int64(math.Round(amount * scale))
}

// SessionCreatorConfig configures the checkout-facing session creator.
type SessionCreatorConfig struct {
	Manager    *Manager
	Currency   string
	SuccessURL string
	CancelURL  string
}

// SessionCreator adapts the provider manager to the checkout boundary: it
// opens an authorization session for a placed order.
type SessionCreator struct {
	manager    *Manager
	currency   string
	successURL string
	cancelURL  string
}

// NewSessionCreator builds a SessionCreator.
func NewSessionCreator(cfg SessionCreatorConfig) (*SessionCreator, error) {
	if cfg.Manager == nil {
		return nil, errors.New("payments: manager is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "JOD"
	}
	return &SessionCreator{
		manager:    cfg.Manager,
		currency:   currency,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}, nil
}

// CreatePaymentSession implements the checkout payment boundary. The order
// id doubles as the idempotency key: retrying the handoff for the same
// order must not open a second session.
func (s *SessionCreator) CreatePaymentSession(ctx context.Context, order domain.PlacedOrder, method domain.PaymentMethod) (domain.PaymentSession, error) {
	if !method.RequiresAuthorization() {
		return domain.PaymentSession{}, errors.New("payments: method does not require an authorization session")
	}

	session, err := s.manager.CreateSession(ctx, "", SessionRequest{
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		AmountMinor:    MinorUnits(order.Total, s.currency),
		Currency:       s.currency,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		IdempotencyKey: "order-session-" + order.ID,
	})
	if err != nil {
		return domain.PaymentSession{}, err
	}

	return domain.PaymentSession{
		ID:          session.ID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}
