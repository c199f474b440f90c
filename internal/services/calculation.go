package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/khobz-app/checkout/internal/domain"
	"github.com/khobz-app/checkout/internal/platform/observability"
)

// Recalculate runs one calculation cycle: capture a fresh request token,
// check preconditions, call the backend with a bounded timeout, and publish
// the reconciled snapshot only if no newer cycle was issued meanwhile. Safe
// to call concurrently; the last issued request wins regardless of response
// arrival order.
func (c *Checkout) Recalculate(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, "checkout.recalculate",
		attribute.String("checkout.session_id", c.id))
	var calcErr error
	defer func() { observability.EndSpan(span, calcErr) }()

	c.mu.Lock()
	token := c.token.Add(1)

	if len(c.st.lines) == 0 {
		c.publishEmptySnapshotLocked()
		c.mu.Unlock()
		return
	}
	req, ok := c.buildRequestLocked()
	if !ok {
		// Missing address or branch: not an error, the session simply is
		// not ready to price yet. Prior state stays untouched.
		c.mu.Unlock()
		return
	}
	promo := c.st.promotion
	address := c.st.address
	branch := c.branchLocked()
	c.st.phase = domain.PhaseCalculating
	c.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, c.calcTimeout)
	start := c.now()
	resp, err := c.calculation.CalculateOrder(callCtx, req)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.token.Load() {
		c.log(ctx, "calculation_stale_dropped", map[string]any{
			"session_id": c.id,
			"token":      token,
			"current":    c.token.Load(),
		})
		return
	}

	if err != nil {
		calcErr = err
		c.applyFailureLocked(ctx, err, req, promo, address, branch)
		return
	}

	snapshot := reconcileSnapshot(resp, reconcileInput{
		OrderType:  req.OrderType,
		Promotion:  promo,
		Address:    address,
		Branch:     branch,
		DefaultFee: c.defaultFee,
		Now:        c.now(),
	})
	c.st.snapshot = &snapshot
	c.st.stockWarnings = nil
	c.st.zoneNotice = ""
	c.st.failure = ""
	c.st.lastError = ""
	c.settlePhaseLocked()
	c.log(ctx, "calculation_published", map[string]any{
		"session_id": c.id,
		"token":      token,
		"total":      snapshot.Total,
		"elapsed_ms": c.now().Sub(start).Milliseconds(),
	})

	c.maybeAutoApplyLocked(ctx, snapshot.Subtotal)
}

// buildRequestLocked assembles the backend request from current state. ok is
// false when a required input (delivery destination, branch) is missing.
func (c *Checkout) buildRequestLocked() (CalculateOrderRequest, bool) {
	st := c.st
	req := CalculateOrderRequest{
		Lines:        append([]CartLine(nil), st.lines...),
		OrderType:    st.orderType,
		BranchID:     st.branchID,
		DeliveryZone: st.deliveryZone,
	}
	if st.promotion != nil {
		req.PromoCode = st.promotion.Code
	}
	if st.branchID == "" {
		return CalculateOrderRequest{}, false
	}
	if st.orderType == domain.OrderTypeDelivery {
		switch {
		case st.address != nil:
			req.AddressID = st.address.ID
			if st.address.Location.Valid() {
				loc := st.address.Location
				req.Coordinate = &loc
			}
		case st.guestLocation.Confirmed && st.guestLocation.Coordinate.Valid():
			loc := st.guestLocation.Coordinate
			req.Coordinate = &loc
			req.GuestAddress = st.guest.AddressText
		case st.guest.AddressText != "":
			req.GuestAddress = st.guest.AddressText
		default:
			return CalculateOrderRequest{}, false
		}
	}
	return req, true
}

func (c *Checkout) branchLocked() *Branch {
	for i := range c.st.branches {
		if c.st.branches[i].ID == c.st.branchID {
			branch := c.st.branches[i]
			return &branch
		}
	}
	return nil
}

// publishEmptySnapshotLocked resets totals for an empty cart without a
// backend round trip.
func (c *Checkout) publishEmptySnapshotLocked() {
	c.st.snapshot = &CalculationSnapshot{CalculatedAt: c.now()}
	c.st.stockWarnings = nil
	c.st.zoneNotice = ""
	c.st.failure = ""
	c.st.lastError = ""
	c.st.phase = domain.PhaseIdle
}

// settlePhaseLocked moves the session to Ready or Blocked from a freshly
// published snapshot.
func (c *Checkout) settlePhaseLocked() {
	c.st.phase = domain.PhaseBlocked
	if EvaluateReadiness(c.readinessInputLocked(), c.locale).CanPlaceOrder {
		c.st.phase = domain.PhaseReady
	}
}

// maybeAutoApplyLocked schedules a debounced best-promotion pass when the
// session has a positive subtotal, no promotion applied, and the user has
// not explicitly removed one.
func (c *Checkout) maybeAutoApplyLocked(ctx context.Context, subtotal float64) {
	if c.autoApply == nil || subtotal <= 0 {
		return
	}
	if c.st.promotion != nil || c.st.promotionRemoved {
		return
	}
	c.autoApply.Schedule(ctx, subtotal, func(applyCtx context.Context, promo Promotion) {
		c.applyValidatedPromotion(applyCtx, promo, true)
	})
}

// applyFailureLocked classifies a backend failure and updates state: stock
// shortages become dismissible warnings, zone rejections become a notice,
// and everything else falls back to a locally estimated snapshot so totals
// never silently disappear.
func (c *Checkout) applyFailureLocked(ctx context.Context, err error, req CalculateOrderRequest, promo *Promotion, address *Address, branch *Branch) {
	kind := ClassifyCalculationFailure(err)
	c.st.failure = kind
	c.st.lastError = err.Error()
	c.log(ctx, "calculation_failed", map[string]any{
		"session_id": c.id,
		"kind":       string(kind),
		"error":      err.Error(),
	})

	switch kind {
	case domain.FailureStock:
		c.st.stockWarnings = []StockWarning{FriendlyStockMessage(err.Error(), req.Lines, c.locale)}
		c.st.phase = domain.PhaseBlocked
	case domain.FailureZone:
		c.st.zoneNotice = reasonMessages[ReasonZoneRestricted].Resolve(c.locale)
		c.st.phase = domain.PhaseBlocked
	default:
		snapshot := fallbackSnapshot(req, fallbackInput{
			Promotion:  promo,
			Address:    address,
			Branch:     branch,
			DefaultFee: c.defaultFee,
			Now:        c.now(),
		})
		c.st.snapshot = &snapshot
		c.st.phase = domain.PhaseFailed
	}
}

// reconcileInput carries the session context a backend response is
// reconciled against.
type reconcileInput struct {
	OrderType  OrderType
	Promotion  *Promotion
	Address    *Address
	Branch     *Branch
	DefaultFee float64
	Now        time.Time
}

// reconcileSnapshot turns a raw backend response into the authoritative
// snapshot: local promo fallback when the backend reported zero discount,
// the delivery-fee precedence chain, waived-fee accounting, and pickup
// zeroing. The snapshot is built whole and replaces the previous one.
func reconcileSnapshot(resp CalculateOrderResponse, in reconcileInput) CalculationSnapshot {
	subtotal := domain.Round2(resp.Subtotal)
	discount := domain.Round2(resp.DiscountAmount)
	total := domain.Round2(resp.Total)

	// Backends occasionally echo an applied promotion with a zero discount.
	// Overlay the locally computed amount so the user sees the promised
	// saving; free-shipping promos discount the fee, never the subtotal.
	if in.Promotion != nil && discount == 0 && !in.Promotion.IsFreeShipping() {
		local := ComputeDiscount(in.Promotion, subtotal)
		if local > 0 {
			discount = local
			total = domain.Round2(total - local)
		}
	}

	snapshot := CalculationSnapshot{
		Subtotal:       subtotal,
		Tax:            domain.Round2(resp.Tax),
		DiscountAmount: discount,
		Total:          total,
		PointsEarned:   resp.PointsEarned,
		Promotion:      in.Promotion,
		Lines:          append([]SnapshotLine(nil), resp.Lines...),
		CalculatedAt:   in.Now,
	}

	if in.OrderType != domain.OrderTypeDelivery {
		// Pickup carries no delivery fields at all.
		if snapshot.Total < 0 {
			snapshot.Total = 0
		}
		return snapshot
	}

	fee := resolveDeliveryFee(resp, in.Address, in.Branch, in.DefaultFee)
	original := fee
	shippingDiscount := domain.Round2(resp.ShippingDiscount)
	switch {
	case in.Promotion != nil && in.Promotion.IsFreeShipping():
		if shippingDiscount <= 0 {
			shippingDiscount = original
		}
		fee = domain.Round2(original - shippingDiscount)
	case shippingDiscount > 0:
		fee = domain.Round2(original - shippingDiscount)
	}
	if fee < 0 {
		fee = 0
	}

	snapshot.DeliveryFee = fee
	snapshot.DeliveryFeeOriginal = original
	snapshot.ShippingDiscount = shippingDiscount
	if waived := domain.Round2(original - fee); waived > 0 {
		snapshot.WaivedDeliveryFee = waived
	}

	// The backend's total assumed its own reported fee; adjust by the delta
	// to the fee we actually resolved.
	snapshot.Total = domain.Round2(snapshot.Total + fee - domain.Round2(resp.DeliveryFee))
	if snapshot.Total < 0 {
		snapshot.Total = 0
	}
	return snapshot
}

// resolveDeliveryFee walks the precedence chain. A backend fee computed with
// an explicit method is authoritative even when zero; otherwise the first
// strictly positive candidate wins, ending at the configured default.
func resolveDeliveryFee(resp CalculateOrderResponse, address *Address, branch *Branch, defaultFee float64) float64 {
	if resp.CalculationMethod != "" {
		return domain.Round2(resp.DeliveryFee)
	}
	candidates := []float64{
		resp.DeliveryFee,
		resp.MetadataFee,
		resp.FallbackFee,
		resp.DefaultFee,
	}
	if address != nil {
		candidates = append(candidates, address.AreaDeliveryFee)
	}
	if branch != nil {
		candidates = append(candidates, branch.DeliveryFee)
	}
	candidates = append(candidates, defaultFee)
	for _, candidate := range candidates {
		if candidate > 0 {
			return domain.Round2(candidate)
		}
	}
	return 0
}

type fallbackInput struct {
	Promotion  *Promotion
	Address    *Address
	Branch     *Branch
	DefaultFee float64
	Now        time.Time
}

// fallbackSnapshot estimates totals from cached unit prices after a generic
// backend failure. Marked Estimated so the UI can qualify the numbers.
func fallbackSnapshot(req CalculateOrderRequest, in fallbackInput) CalculationSnapshot {
	subtotal := cachedSubtotal(req.Lines)
	discount := ComputeDiscount(in.Promotion, subtotal)

	snapshot := CalculationSnapshot{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		Promotion:      in.Promotion,
		Estimated:      true,
		CalculatedAt:   in.Now,
	}

	lines := make([]SnapshotLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, SnapshotLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: domain.Round2(line.UnitPrice * float64(line.Quantity)),
		})
	}
	snapshot.Lines = lines

	if req.OrderType == domain.OrderTypeDelivery {
		fee := resolveDeliveryFee(CalculateOrderResponse{}, in.Address, in.Branch, in.DefaultFee)
		original := fee
		if in.Promotion != nil && in.Promotion.IsFreeShipping() {
			snapshot.ShippingDiscount = original
			fee = 0
		}
		snapshot.DeliveryFee = fee
		snapshot.DeliveryFeeOriginal = original
		if waived := domain.Round2(original - fee); waived > 0 {
			snapshot.WaivedDeliveryFee = waived
		}
	}

	snapshot.Total = domain.Round2(snapshot.Subtotal - snapshot.DiscountAmount + snapshot.DeliveryFee)
	if snapshot.Total < 0 {
		snapshot.Total = 0
	}
	return snapshot
}
