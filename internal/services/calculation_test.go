package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/khobz-app/checkout/internal/domain"
)

type fakeCalculationBackend struct {
	mu      sync.Mutex
	calls   []CalculateOrderRequest
	respond func(req CalculateOrderRequest) (CalculateOrderResponse, error)
}

func (f *fakeCalculationBackend) CalculateOrder(ctx context.Context, req CalculateOrderRequest) (CalculateOrderResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(req)
	}
	return CalculateOrderResponse{}, nil
}

func (f *fakeCalculationBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLines() []CartLine {
	return []CartLine{
		{
			ProductID: "p1",
			VariantID: "v1",
			Quantity:  2,
			UnitPrice: 3.5,
			Title:     domain.Text{En: "Zaatar Manakish", Ar: "مناقيش زعتر"},
		},
		{
			ProductID: "p2",
			Quantity:  1,
			UnitPrice: 12,
			Title:     domain.Text{En: "Date Maamoul Box", Ar: "علبة معمول تمر"},
		},
	}
}

func testAddress() *Address {
	return &Address{
		ID:       "addr-1",
		Name:     "Lina",
		Phone:    "0790000000",
		Location: domain.LatLng{Lat: 31.9539, Lng: 35.9106},
	}
}

func newCalcCheckout(t *testing.T, backend CalculationBackend) *Checkout {
	t.Helper()
	co, err := NewCheckout("sess-1", "user-1", "en", CheckoutDeps{
		Calculation:        backend,
		DefaultDeliveryFee: 2.5,
		Clock:              func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCheckout: %v", err)
	}
	return co
}

func seedDelivery(co *Checkout) {
	co.st.lines = testLines()
	co.st.orderType = domain.OrderTypeDelivery
	co.st.address = testAddress()
	co.st.branches = []Branch{{ID: "b1", Active: true}}
	co.st.branchID = "b1"
}

func TestRecalculateEmptyCartPublishesZeroSnapshot(t *testing.T) {
	backend := &fakeCalculationBackend{}
	co := newCalcCheckout(t, backend)

	co.Recalculate(context.Background())

	if backend.callCount() != 0 {
		t.Fatalf("backend called %d times for empty cart", backend.callCount())
	}
	state := co.State()
	if state.Snapshot == nil {
		t.Fatal("expected zero snapshot to be published")
	}
	if state.Snapshot.Total != 0 || state.Snapshot.Subtotal != 0 {
		t.Fatalf("expected zero totals, got subtotal=%v total=%v", state.Snapshot.Subtotal, state.Snapshot.Total)
	}
	if state.Phase != domain.PhaseIdle {
		t.Fatalf("phase = %s, want %s", state.Phase, domain.PhaseIdle)
	}
}

func TestRecalculateDeliveryWithoutDestinationSkips(t *testing.T) {
	backend := &fakeCalculationBackend{}
	co := newCalcCheckout(t, backend)
	co.st.lines = testLines()
	co.st.branchID = "b1"
	prior := &CalculationSnapshot{Subtotal: 19, Total: 21}
	co.st.snapshot = prior
	co.st.phase = domain.PhaseReady

	co.Recalculate(context.Background())

	if backend.callCount() != 0 {
		t.Fatalf("backend called %d times without a destination", backend.callCount())
	}
	state := co.State()
	if state.Snapshot == nil || state.Snapshot.Total != 21 {
		t.Fatal("prior snapshot should be left untouched")
	}
	if state.Phase != domain.PhaseReady {
		t.Fatalf("phase = %s, want %s", state.Phase, domain.PhaseReady)
	}
}

func TestRecalculateOverlaysLocalDiscount(t *testing.T) {
	backend := &fakeCalculationBackend{
		respond: func(req CalculateOrderRequest) (CalculateOrderResponse, error) {
			return CalculateOrderResponse{
				Subtotal:          40,
				DeliveryFee:       2,
				CalculationMethod: "zone",
				DiscountAmount:    0,
				Total:             42,
			}, nil
		},
	}
	co := newCalcCheckout(t, backend)
	seedDelivery(co)
	co.st.promotion = &Promotion{Code: "SAVE10", Kind: domain.DiscountPercentage, Value: 10}

	co.Recalculate(context.Background())

	snap := co.State().Snapshot
	if snap == nil {
		t.Fatal("expected snapshot")
	}
	if snap.DiscountAmount != 4 {
		t.Fatalf("DiscountAmount = %v, want 4", snap.DiscountAmount)
	}
	if snap.DeliveryFee != 2 {
		t.Fatalf("DeliveryFee = %v, want 2", snap.DeliveryFee)
	}
	if snap.Total != 38 {
		t.Fatalf("Total = %v, want 38", snap.Total)
	}
}

func TestRecalculateFreeShippingWaivesFee(t *testing.T) {
	backend := &fakeCalculationBackend{
		respond: func(req CalculateOrderRequest) (CalculateOrderResponse, error) {
			return CalculateOrderResponse{Subtotal: 40, DeliveryFee: 3, Total: 43}, nil
		},
	}
	co := newCalcCheckout(t, backend)
	seedDelivery(co)
	co.st.promotion = &Promotion{Code: "FREESHIP", Kind: domain.DiscountFreeShipping}

	co.Recalculate(context.Background())

	snap := co.State().Snapshot
	if snap == nil {
		t.Fatal("expected snapshot")
	}
	if snap.DeliveryFee != 0 {
		t.Fatalf("DeliveryFee = %v, want 0", snap.DeliveryFee)
	}
	if snap.DeliveryFeeOriginal != 3 {
		t.Fatalf("DeliveryFeeOriginal = %v, want 3", snap.DeliveryFeeOriginal)
	}
	if snap.WaivedDeliveryFee != 3 {
		t.Fatalf("WaivedDeliveryFee = %v, want 3", snap.WaivedDeliveryFee)
	}
	if snap.DiscountAmount != 0 {
		t.Fatalf("DiscountAmount = %v, want 0 for free shipping", snap.DiscountAmount)
	}
	if snap.Total != 40 {
		t.Fatalf("Total = %v, want 40", snap.Total)
	}
}

func TestRecalculatePickupZeroesDeliveryFields(t *testing.T) {
	backend := &fakeCalculationBackend{
		respond: func(req CalculateOrderRequest) (CalculateOrderResponse, error) {
			return CalculateOrderResponse{Subtotal: 40, Total: 40}, nil
		},
	}
	co := newCalcCheckout(t, backend)
	seedDelivery(co)
	co.st.orderType = domain.OrderTypePickup

	co.Recalculate(context.Background())

	snap := co.State().Snapshot
	if snap == nil {
		t.Fatal("expected snapshot")
	}
	if snap.DeliveryFee != 0 || snap.DeliveryFeeOriginal != 0 || snap.ShippingDiscount != 0 || snap.WaivedDeliveryFee != 0 {
		t.Fatalf("pickup snapshot carries delivery fields: %+v", snap)
	}
	if snap.Total != 40 {
		t.Fatalf("Total = %v, want 40", snap.Total)
	}
}

func TestResolveDeliveryFeePrecedence(t *testing.T) {
	address := &Address{AreaDeliveryFee: 1.75}
	branch := &Branch{DeliveryFee: 1.25}

	tests := []struct {
		name    string
		resp    CalculateOrderResponse
		address *Address
		branch  *Branch
		want    float64
	}{
		{
			name: "explicit method wins even at zero",
			resp: CalculateOrderResponse{DeliveryFee: 0, CalculationMethod: "zone", MetadataFee: 9},
			want: 0,
		},
		{
			name: "backend fee first",
			resp: CalculateOrderResponse{DeliveryFee: 3, MetadataFee: 4},
			want: 3,
		},
		{
			name: "metadata before fallback",
			resp: CalculateOrderResponse{MetadataFee: 4, FallbackFee: 5},
			want: 4,
		},
		{
			name: "fallback before default",
			resp: CalculateOrderResponse{FallbackFee: 5, DefaultFee: 6},
			want: 5,
		},
		{
			name:    "address area fee after backend fields",
			resp:    CalculateOrderResponse{},
			address: address,
			branch:  branch,
			want:    1.75,
		},
		{
			name:   "branch fee after address",
			resp:   CalculateOrderResponse{},
			branch: branch,
			want:   1.25,
		},
		{
			name: "configured default last",
			resp: CalculateOrderResponse{},
			want: 2.5,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := resolveDeliveryFee(tc.resp, tc.address, tc.branch, 2.5)
			if got != tc.want {
				t.Fatalf("resolveDeliveryFee = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRecalculateStaleResponseDropped(t *testing.T) {
	firstEntered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	backend := &fakeCalculationBackend{
		respond: func(req CalculateOrderRequest) (CalculateOrderResponse, error) {
			if calls.Add(1) == 1 {
				close(firstEntered)
				<-release
				return CalculateOrderResponse{Subtotal: 10, Total: 10}, nil
			}
			return CalculateOrderResponse{Subtotal: 20, Total: 20}, nil
		},
	}
	co := newCalcCheckout(t, backend)
	seedDelivery(co)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		co.Recalculate(context.Background())
	}()
	<-firstEntered

	// A newer cycle is issued and completes while the first is in flight.
	co.Recalculate(context.Background())

	// Now let the older response land; it must be discarded.
	close(release)
	wg.Wait()

	snap := co.State().Snapshot
	if snap == nil {
		t.Fatal("expected snapshot")
	}
	if snap.Subtotal != 20 {
		t.Fatalf("Subtotal = %v, want 20 (newer request must win)", snap.Subtotal)
	}
}

func TestRecalculateStockFailure(t *testing.T) {
	backend := &fakeCalculationBackend{
		respond: func(req CalculateOrderRequest) (CalculateOrderResponse, error) {
			return CalculateOrderResponse{}, &BackendError{
				Code:    CodeInsufficientStock,
				Message: "insufficient stock for variant v1",
			}
		},
	}
	co := newCalcCheckout(t, backend)
	seedDelivery(co)
	co.st.snapshot = &CalculationSnapshot{Subtotal: 19, Total: 21}

	co.Recalculate(context.Background())

	state := co.State()
	if len(state.StockWarnings) != 1 {
		t.Fatalf("StockWarnings = %d, want 1", len(state.StockWarnings))
	}
	if state.StockWarnings[0].ProductTitle != "Zaatar Manakish" {
		t.Fatalf("ProductTitle = %q", state.StockWarnings[0].ProductTitle)
	}
	if state.Phase != domain.PhaseBlocked {
		t.Fatalf("phase = %s, want %s", state.Phase, domain.PhaseBlocked)
	}
	if state.Snapshot == nil || state.Snapshot.Total != 21 {
		t.Fatal("stock failures must not clobber the last good snapshot")
	}
}

func TestRecalculateZoneFailure(t *testing.T) {
	backend := &fakeCalculationBackend{
		respond: func(req CalculateOrderRequest) (CalculateOrderResponse, error) {
			return CalculateOrderResponse{}, &BackendError{Code: CodeZoneRestricted, Message: "delivery area restricted"}
		},
	}
	co := newCalcCheckout(t, backend)
	seedDelivery(co)

	co.Recalculate(context.Background())

	state := co.State()
	if state.ZoneNotice == "" {
		t.Fatal("expected zone notice")
	}
	if state.Failure != domain.FailureZone {
		t.Fatalf("failure = %s, want %s", state.Failure, domain.FailureZone)
	}
}

func TestRecalculateGenericFailureFallsBack(t *testing.T) {
	backend := &fakeCalculationBackend{
		respond: func(req CalculateOrderRequest) (CalculateOrderResponse, error) {
			return CalculateOrderResponse{}, errors.New("connection reset by peer")
		},
	}
	co := newCalcCheckout(t, backend)
	seedDelivery(co)
	co.st.promotion = &Promotion{Code: "SAVE10", Kind: domain.DiscountPercentage, Value: 10}

	co.Recalculate(context.Background())

	state := co.State()
	snap := state.Snapshot
	if snap == nil {
		t.Fatal("expected fallback snapshot")
	}
	if !snap.Estimated {
		t.Fatal("fallback snapshot must be marked estimated")
	}
	// 2*3.50 + 12 = 19, minus 10%, plus the configured default fee 2.50.
	if snap.Subtotal != 19 {
		t.Fatalf("Subtotal = %v, want 19", snap.Subtotal)
	}
	if snap.DiscountAmount != 1.9 {
		t.Fatalf("DiscountAmount = %v, want 1.9", snap.DiscountAmount)
	}
	if snap.DeliveryFee != 2.5 {
		t.Fatalf("DeliveryFee = %v, want 2.5", snap.DeliveryFee)
	}
	if snap.Total != 19.6 {
		t.Fatalf("Total = %v, want 19.6", snap.Total)
	}
	if state.Phase != domain.PhaseFailed {
		t.Fatalf("phase = %s, want %s", state.Phase, domain.PhaseFailed)
	}
}

func TestRemovePromotionSuppressesAutoApply(t *testing.T) {
	backend := &fakeCalculationBackend{
		respond: func(req CalculateOrderRequest) (CalculateOrderResponse, error) {
			return CalculateOrderResponse{Subtotal: 19, Total: 21.5, DeliveryFee: 2.5}, nil
		},
	}
	co := newCalcCheckout(t, backend)
	seedDelivery(co)
	co.st.promotion = &Promotion{Code: "SAVE10", Kind: domain.DiscountPercentage, Value: 10}

	co.RemovePromotion(context.Background())

	state := co.State()
	if state.Promotion != nil {
		t.Fatal("promotion should be cleared")
	}

	// An auto-apply result arriving afterwards must be ignored.
	co.applyValidatedPromotion(context.Background(), Promotion{Code: "AUTO", Kind: domain.DiscountFixed, Value: 2}, true)
	if co.State().Promotion != nil {
		t.Fatal("auto-apply must not override an explicit removal")
	}
}

// Recalculate schedules auto-apply while holding session state, and the apply
// callback takes that state again. The cycle must return promptly and the
// winning promotion must still land on the session afterwards.
func TestRecalculateAutoAppliesBestPromotion(t *testing.T) {
	backend := &fakeCalculationBackend{
		respond: func(req CalculateOrderRequest) (CalculateOrderResponse, error) {
			resp := CalculateOrderResponse{Subtotal: 19, Total: 21.5, DeliveryFee: 2.5}
			if req.PromoCode == "TEN" {
				resp.DiscountAmount = 1.9
				resp.Total = 19.6
			}
			return resp, nil
		},
	}
	promos := &fakePromotionBackend{
		available: []Promotion{{Code: "TEN", Kind: domain.DiscountPercentage, Value: 10}},
	}
	selector, err := NewAutoApplySelector(AutoApplySelectorDeps{Promotions: promos, Debounce: time.Millisecond})
	if err != nil {
		t.Fatalf("NewAutoApplySelector error: %v", err)
	}
	co, err := NewCheckout("sess-1", "user-1", "en", CheckoutDeps{
		Calculation:        backend,
		Promotions:         promos,
		AutoApply:          selector,
		DefaultDeliveryFee: 2.5,
	})
	if err != nil {
		t.Fatalf("NewCheckout: %v", err)
	}
	seedDelivery(co)

	returned := make(chan struct{})
	go func() {
		co.Recalculate(context.Background())
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Recalculate did not return")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if promo := co.State().Promotion; promo != nil {
			if promo.Code != "TEN" {
				t.Fatalf("auto-applied promotion = %q, want TEN", promo.Code)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("auto-applied promotion never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecalculateGuestUsesConfirmedLocation(t *testing.T) {
	backend := &fakeCalculationBackend{
		respond: func(req CalculateOrderRequest) (CalculateOrderResponse, error) {
			return CalculateOrderResponse{Subtotal: 19, Total: 21.5, DeliveryFee: 2.5}, nil
		},
	}
	co, err := NewCheckout("sess-guest", "", "en", CheckoutDeps{
		Calculation:        backend,
		DefaultDeliveryFee: 2.5,
	})
	if err != nil {
		t.Fatalf("NewCheckout: %v", err)
	}
	co.st.lines = testLines()
	co.st.branchID = "b1"
	co.st.branches = []Branch{{ID: "b1", Active: true}}
	co.st.guest = GuestContact{Name: "Omar", Phone: "0791111111", AddressText: "Jabal Amman, Rainbow St 12"}
	co.st.guestLocation = GuestLocation{Coordinate: domain.LatLng{Lat: 31.95, Lng: 35.92}, Confirmed: true}

	co.Recalculate(context.Background())

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.calls) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(backend.calls))
	}
	req := backend.calls[0]
	if req.Coordinate == nil || req.Coordinate.Lat != 31.95 {
		t.Fatalf("Coordinate = %+v, want confirmed guest fix", req.Coordinate)
	}
	if req.GuestAddress == "" {
		t.Fatal("guest address text should be forwarded")
	}
}
