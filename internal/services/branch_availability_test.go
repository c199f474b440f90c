package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/khobz-app/checkout/internal/domain"
)

type fakeAvailabilityBackend struct {
	reports []BranchStockReport
	err     error
	calls   int
}

func (f *fakeAvailabilityBackend) CheckBranchStock(context.Context, []CartLine, []string) ([]BranchStockReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.reports, nil
}

func intPtr(v int) *int { return &v }

func availabilityLines() []CartLine {
	return []CartLine{
		{ProductID: "p-croissant", Quantity: 2},
		{ProductID: "p-knafeh", VariantID: "v-large", Quantity: 1},
	}
}

func TestAvailabilityResolver_ToneMapping(t *testing.T) {
	backend := &fakeAvailabilityBackend{
		reports: []BranchStockReport{
			{BranchID: "b1", Status: "available", MinAvailable: intPtr(10)},
			{BranchID: "b2", Status: "available", MinAvailable: intPtr(2)},
			{BranchID: "b3", Status: "available", MinAvailable: intPtr(0)},
			{BranchID: "b4", Status: "unavailable", Issues: []string{"out of stock: p-knafeh"}},
			{BranchID: "b5", Status: "inactive"},
			{BranchID: "b6", Status: "error", Message: "stock service timeout"},
			{BranchID: "b7", Status: "available"},
		},
	}
	resolver, err := NewAvailabilityResolver(AvailabilityResolverDeps{Backend: backend, LowStockThreshold: 3})
	if err != nil {
		t.Fatalf("NewAvailabilityResolver error: %v", err)
	}

	branchIDs := []string{"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8"}
	statuses, err := resolver.Resolve(context.Background(), availabilityLines(), branchIDs)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(statuses) != len(branchIDs) {
		t.Fatalf("expected one status per branch, got %d", len(statuses))
	}

	want := map[string]AvailabilityTone{
		"b1": domain.ToneAvailable,
		"b2": domain.ToneLimited,
		"b3": domain.ToneWarning,
		"b4": domain.ToneUnavailable,
		"b5": domain.ToneInactive,
		"b6": domain.ToneError,
		"b7": domain.ToneAvailable,
		"b8": domain.ToneUnknown,
	}
	for _, status := range statuses {
		if status.Tone != want[status.BranchID] {
			t.Fatalf("branch %s tone = %s, want %s", status.BranchID, status.Tone, want[status.BranchID])
		}
	}
}

func TestAvailabilityResolver_SignatureDeduplication(t *testing.T) {
	backend := &fakeAvailabilityBackend{
		reports: []BranchStockReport{{BranchID: "b1", Status: "available", MinAvailable: intPtr(9)}},
	}
	resolver, err := NewAvailabilityResolver(AvailabilityResolverDeps{Backend: backend})
	if err != nil {
		t.Fatalf("NewAvailabilityResolver error: %v", err)
	}

	lines := availabilityLines()
	if _, err := resolver.Resolve(context.Background(), lines, []string{"b1", "b2"}); err != nil {
		t.Fatalf("first Resolve error: %v", err)
	}
	// Same cart and branch set with different ordering hits the cache.
	reordered := []CartLine{lines[1], lines[0]}
	if _, err := resolver.Resolve(context.Background(), reordered, []string{"b2", "b1"}); err != nil {
		t.Fatalf("second Resolve error: %v", err)
	}
	if backend.calls != 1 {
		t.Fatalf("expected one backend call for identical signature, got %d", backend.calls)
	}

	// Changing a quantity changes the signature.
	changed := append([]CartLine(nil), lines...)
	changed[0].Quantity = 5
	if _, err := resolver.Resolve(context.Background(), changed, []string{"b1", "b2"}); err != nil {
		t.Fatalf("third Resolve error: %v", err)
	}
	if backend.calls != 2 {
		t.Fatalf("expected refetch for changed cart signature, got %d calls", backend.calls)
	}
}

func TestAvailabilityResolver_CacheExpiry(t *testing.T) {
	backend := &fakeAvailabilityBackend{
		reports: []BranchStockReport{{BranchID: "b1", Status: "available", MinAvailable: intPtr(9)}},
	}
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	resolver, err := NewAvailabilityResolver(AvailabilityResolverDeps{
		Backend:  backend,
		CacheTTL: time.Minute,
		Clock:    func() time.Time { return current },
	})
	if err != nil {
		t.Fatalf("NewAvailabilityResolver error: %v", err)
	}

	lines := availabilityLines()
	if _, err := resolver.Resolve(context.Background(), lines, []string{"b1"}); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if _, err := resolver.Resolve(context.Background(), lines, []string{"b1"}); err != nil {
		t.Fatalf("Resolve after expiry error: %v", err)
	}
	if backend.calls != 2 {
		t.Fatalf("expected refetch after TTL expiry, got %d calls", backend.calls)
	}
}

func TestAvailabilityResolver_BackendFailure(t *testing.T) {
	backend := &fakeAvailabilityBackend{err: errors.New("boom")}
	resolver, err := NewAvailabilityResolver(AvailabilityResolverDeps{Backend: backend})
	if err != nil {
		t.Fatalf("NewAvailabilityResolver error: %v", err)
	}

	_, err = resolver.Resolve(context.Background(), availabilityLines(), []string{"b1"})
	if !errors.Is(err, ErrAvailabilityUnavailable) {
		t.Fatalf("expected ErrAvailabilityUnavailable, got %v", err)
	}
}
