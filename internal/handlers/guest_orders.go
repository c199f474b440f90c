package handlers

import (
	"context"
	"sync"

	"github.com/khobz-app/checkout/internal/services"
)

// GuestOrderLog keeps the orders placed by guest sessions so a device that
// lost its session can still recover its order references. Entries live as
// long as the process; the backend remains the source of truth.
type GuestOrderLog struct {
	mu     sync.Mutex
	orders map[string][]services.PlacedOrder
}

// NewGuestOrderLog builds an empty log.
func NewGuestOrderLog() *GuestOrderLog {
	return &GuestOrderLog{orders: make(map[string][]services.PlacedOrder)}
}

// SaveGuestOrder records an order under its session id.
func (l *GuestOrderLog) SaveGuestOrder(_ context.Context, sessionID string, order services.PlacedOrder) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders[sessionID] = append(l.orders[sessionID], order)
	return nil
}

// Orders returns the orders recorded for a session, oldest first.
func (l *GuestOrderLog) Orders(sessionID string) []services.PlacedOrder {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]services.PlacedOrder(nil), l.orders[sessionID]...)
}
