package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/khobz-app/checkout/internal/domain"
)

type fakePromotionBackend struct {
	mu        sync.Mutex
	available []Promotion
	listErr   error

	validateErr   error
	validateCalls []string
}

func (f *fakePromotionBackend) ValidatePromotion(_ context.Context, code string, _ float64) (Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls = append(f.validateCalls, code)
	if f.validateErr != nil {
		return Promotion{}, f.validateErr
	}
	for _, promo := range f.available {
		if promo.Normalize().Code == code {
			return promo, nil
		}
	}
	return Promotion{}, errors.New("unknown code")
}

func (f *fakePromotionBackend) ListAvailablePromotions(context.Context) ([]Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.available, nil
}

func TestAutoApplySelector_RanksByComputedDiscount(t *testing.T) {
	backend := &fakePromotionBackend{
		available: []Promotion{
			{Code: "FLAT3", Kind: domain.DiscountFixed, Value: 3},
			{Code: "TEN", Kind: domain.DiscountPercentage, Value: 10},
			{Code: "BIGMIN", Kind: domain.DiscountPercentage, Value: 50, MinOrder: 500},
		},
	}
	selector, err := NewAutoApplySelector(AutoApplySelectorDeps{Promotions: backend})
	if err != nil {
		t.Fatalf("NewAutoApplySelector error: %v", err)
	}

	// Subtotal 40: TEN yields 4.00, FLAT3 yields 3.00, BIGMIN filtered out.
	promo, err := selector.Select(context.Background(), 40)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if promo.Code != "TEN" {
		t.Fatalf("expected TEN selected, got %s", promo.Code)
	}
	if len(backend.validateCalls) != 1 || backend.validateCalls[0] != "TEN" {
		t.Fatalf("expected single validation of TEN, got %v", backend.validateCalls)
	}
}

func TestAutoApplySelector_TieBreakPrefersPercentage(t *testing.T) {
	backend := &fakePromotionBackend{
		available: []Promotion{
			{Code: "FLAT4", Kind: domain.DiscountFixed, Value: 4},
			{Code: "TEN", Kind: domain.DiscountPercentage, Value: 10},
		},
	}
	selector, err := NewAutoApplySelector(AutoApplySelectorDeps{Promotions: backend})
	if err != nil {
		t.Fatalf("NewAutoApplySelector error: %v", err)
	}

	// Subtotal 40: both compute 4.00; percentage wins the tie.
	promo, err := selector.Select(context.Background(), 40)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if promo.Code != "TEN" {
		t.Fatalf("expected percentage tie-break winner TEN, got %s", promo.Code)
	}
}

func TestAutoApplySelector_NoEligible(t *testing.T) {
	backend := &fakePromotionBackend{
		available: []Promotion{
			{Code: "BIGMIN", Kind: domain.DiscountPercentage, Value: 50, MinOrder: 500},
		},
	}
	selector, err := NewAutoApplySelector(AutoApplySelectorDeps{Promotions: backend})
	if err != nil {
		t.Fatalf("NewAutoApplySelector error: %v", err)
	}

	if _, err := selector.Select(context.Background(), 40); !errors.Is(err, ErrNoEligiblePromotion) {
		t.Fatalf("expected ErrNoEligiblePromotion, got %v", err)
	}
}

func TestAutoApplySelector_ScheduleSwallowsFailures(t *testing.T) {
	backend := &fakePromotionBackend{listErr: errors.New("backend down")}
	selector, err := NewAutoApplySelector(AutoApplySelectorDeps{Promotions: backend, Debounce: time.Millisecond})
	if err != nil {
		t.Fatalf("NewAutoApplySelector error: %v", err)
	}

	applied := make(chan struct{}, 1)
	selector.Schedule(context.Background(), 40, func(context.Context, Promotion) {
		applied <- struct{}{}
	})
	select {
	case <-applied:
		t.Fatalf("apply must not run when selection fails")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAutoApplySelector_ScheduleAppliesWinner(t *testing.T) {
	backend := &fakePromotionBackend{
		available: []Promotion{{Code: "TEN", Kind: domain.DiscountPercentage, Value: 10}},
	}
	selector, err := NewAutoApplySelector(AutoApplySelectorDeps{Promotions: backend, Debounce: time.Millisecond})
	if err != nil {
		t.Fatalf("NewAutoApplySelector error: %v", err)
	}

	got := make(chan Promotion, 1)
	selector.Schedule(context.Background(), 40, func(_ context.Context, promo Promotion) {
		got <- promo
	})
	select {
	case promo := <-got:
		if promo.Code != "TEN" {
			t.Fatalf("expected TEN applied, got %q", promo.Code)
		}
	case <-time.After(time.Second):
		t.Fatal("apply did not run before timeout")
	}
}

func TestAutoApplySelector_ZeroDebounceFallsBackToDefault(t *testing.T) {
	backend := &fakePromotionBackend{}
	selector, err := NewAutoApplySelector(AutoApplySelectorDeps{Promotions: backend, Debounce: 0})
	if err != nil {
		t.Fatalf("NewAutoApplySelector error: %v", err)
	}
	if selector.debounce != defaultAutoApplyDebounce {
		t.Fatalf("debounce = %v, want %v", selector.debounce, defaultAutoApplyDebounce)
	}
}

// Apply callbacks re-enter session state guarded by a lock the scheduling
// caller may still hold, so Schedule must hand the work to another goroutine.
func TestAutoApplySelector_ScheduleReturnsWhileCallerHoldsLock(t *testing.T) {
	backend := &fakePromotionBackend{
		available: []Promotion{{Code: "TEN", Kind: domain.DiscountPercentage, Value: 10}},
	}
	selector, err := NewAutoApplySelector(AutoApplySelectorDeps{Promotions: backend, Debounce: time.Millisecond})
	if err != nil {
		t.Fatalf("NewAutoApplySelector error: %v", err)
	}

	var sessionMu sync.Mutex
	applied := make(chan struct{})
	sessionMu.Lock()
	selector.Schedule(context.Background(), 40, func(context.Context, Promotion) {
		sessionMu.Lock()
		close(applied)
		sessionMu.Unlock()
	})
	sessionMu.Unlock()

	select {
	case <-applied:
	case <-time.After(time.Second):
		t.Fatal("apply did not run before timeout")
	}
}

// The debounce window routinely outlives the request that scheduled the
// attempt; cancelation of the caller's context must not starve the attempt.
func TestAutoApplySelector_ScheduleOutlivesCallerContext(t *testing.T) {
	backend := &fakePromotionBackend{
		available: []Promotion{{Code: "TEN", Kind: domain.DiscountPercentage, Value: 10}},
	}
	selector, err := NewAutoApplySelector(AutoApplySelectorDeps{Promotions: backend, Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewAutoApplySelector error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	applied := make(chan error, 1)
	selector.Schedule(ctx, 40, func(applyCtx context.Context, _ Promotion) {
		applied <- applyCtx.Err()
	})
	cancel()

	select {
	case ctxErr := <-applied:
		if ctxErr != nil {
			t.Fatalf("apply context error = %v, want nil", ctxErr)
		}
	case <-time.After(time.Second):
		t.Fatal("apply did not run after the caller context was canceled")
	}
}
