package services

import (
	domain "github.com/khobz-app/checkout/internal/domain"
)

// bxgyFallbackDiscount is the flat amount assumed for bundle promotions that
// arrive without a value. Matches observed backend behaviour; see DESIGN.md.
const bxgyFallbackDiscount = 10.0

// ComputeDiscount returns the monetary discount a promotion yields against a
// subtotal. It is pure: the same inputs always produce the same output, and
// it serves both as the client-side fallback when the backend reports a zero
// discount and as the ranking function for auto-apply selection.
//
// Free-shipping promotions always yield zero here; their effect is on the
// delivery fee and is handled by the calculation orchestrator.
func ComputeDiscount(promo *Promotion, subtotal float64) float64 {
	if promo == nil || subtotal <= 0 {
		return 0
	}

	p := promo.Normalize()
	if p.IsFreeShipping() {
		return 0
	}
	if p.MinOrder > 0 && subtotal < p.MinOrder {
		return 0
	}

	var discount float64
	switch p.Kind {
	case domain.DiscountPercentage:
		discount = p.Value / 100 * subtotal
	case domain.DiscountFixed, domain.DiscountFixedAmount:
		discount = p.Value
	case domain.DiscountBuyXGetY:
		discount = p.Value
		if discount <= 0 {
			discount = bxgyFallbackDiscount
		}
	default:
		discount = 0
	}

	if discount < 0 {
		discount = 0
	}
	if p.MaxDiscount > 0 && discount > p.MaxDiscount {
		discount = p.MaxDiscount
	}
	if discount > subtotal {
		discount = subtotal
	}
	return domain.Round2(discount)
}

// MeetsMinimum reports whether the subtotal satisfies the promotion's
// minimum order amount.
func MeetsMinimum(promo *Promotion, subtotal float64) bool {
	if promo == nil {
		return false
	}
	return promo.MinOrder <= 0 || subtotal >= promo.MinOrder
}
