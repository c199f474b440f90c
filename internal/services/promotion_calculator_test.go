package services

import (
	"testing"

	domain "github.com/khobz-app/checkout/internal/domain"
)

func TestComputeDiscount(t *testing.T) {
	cases := []struct {
		name     string
		promo    *Promotion
		subtotal float64
		want     float64
	}{
		{
			name:     "ten percent of forty",
			promo:    &Promotion{Code: "TEN", Kind: domain.DiscountPercentage, Value: 10},
			subtotal: 40,
			want:     4,
		},
		{
			name:     "fixed amount",
			promo:    &Promotion{Code: "FLAT2", Kind: domain.DiscountFixed, Value: 2},
			subtotal: 25,
			want:     2,
		},
		{
			name:     "fixed_amount alias",
			promo:    &Promotion{Code: "FLAT3", Kind: domain.DiscountFixedAmount, Value: 3},
			subtotal: 25,
			want:     3,
		},
		{
			name:     "free shipping yields zero line discount",
			promo:    &Promotion{Code: "SHIPFREE", Kind: domain.DiscountFreeShipping, Value: 100},
			subtotal: 500,
			want:     0,
		},
		{
			name:     "below minimum order",
			promo:    &Promotion{Code: "TEN", Kind: domain.DiscountPercentage, Value: 10, MinOrder: 50},
			subtotal: 40,
			want:     0,
		},
		{
			name:     "at minimum order",
			promo:    &Promotion{Code: "TEN", Kind: domain.DiscountPercentage, Value: 10, MinOrder: 40},
			subtotal: 40,
			want:     4,
		},
		{
			name:     "capped by max discount",
			promo:    &Promotion{Code: "BIG", Kind: domain.DiscountPercentage, Value: 50, MaxDiscount: 5},
			subtotal: 100,
			want:     5,
		},
		{
			name:     "capped by subtotal",
			promo:    &Promotion{Code: "HUGE", Kind: domain.DiscountFixed, Value: 30},
			subtotal: 12,
			want:     12,
		},
		{
			name:     "bxgy with value",
			promo:    &Promotion{Code: "BUNDLE", Kind: domain.DiscountBuyXGetY, Value: 6},
			subtotal: 50,
			want:     6,
		},
		{
			name:     "bxgy fallback",
			promo:    &Promotion{Code: "BUNDLE", Kind: domain.DiscountBuyXGetY},
			subtotal: 50,
			want:     10,
		},
		{
			name:     "unknown kind",
			promo:    &Promotion{Code: "ODD", Kind: "mystery", Value: 9},
			subtotal: 50,
			want:     0,
		},
		{
			name:     "negative value clamps to zero",
			promo:    &Promotion{Code: "NEG", Kind: domain.DiscountFixed, Value: -4},
			subtotal: 50,
			want:     0,
		},
		{
			name:     "nil promotion",
			promo:    nil,
			subtotal: 50,
			want:     0,
		},
		{
			name:     "zero subtotal",
			promo:    &Promotion{Code: "TEN", Kind: domain.DiscountPercentage, Value: 10},
			subtotal: 0,
			want:     0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeDiscount(tc.promo, tc.subtotal)
			if got != tc.want {
				t.Fatalf("ComputeDiscount = %v, want %v", got, tc.want)
			}
			// Idempotent: recomputing changes nothing.
			if again := ComputeDiscount(tc.promo, tc.subtotal); again != got {
				t.Fatalf("ComputeDiscount not idempotent: %v then %v", got, again)
			}
		})
	}
}

func TestComputeDiscount_MonotoneAndBounded(t *testing.T) {
	promo := &Promotion{Code: "TEN", Kind: domain.DiscountPercentage, Value: 10, MaxDiscount: 8}

	prev := 0.0
	for subtotal := 1.0; subtotal <= 200; subtotal += 7 {
		got := ComputeDiscount(promo, subtotal)
		if got < prev {
			t.Fatalf("discount decreased from %v to %v at subtotal %v", prev, got, subtotal)
		}
		if got > subtotal {
			t.Fatalf("discount %v exceeds subtotal %v", got, subtotal)
		}
		if got > promo.MaxDiscount {
			t.Fatalf("discount %v exceeds cap %v", got, promo.MaxDiscount)
		}
		prev = got
	}
}

func TestComputeDiscount_FreeShippingAlwaysZero(t *testing.T) {
	promo := &Promotion{Code: "SHIP", Kind: domain.DiscountFreeShipping, Value: 50}
	for _, subtotal := range []float64{0, 1, 10, 99.99, 1000} {
		if got := ComputeDiscount(promo, subtotal); got != 0 {
			t.Fatalf("free shipping discount at subtotal %v = %v, want 0", subtotal, got)
		}
	}
}
