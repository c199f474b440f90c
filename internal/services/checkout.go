package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/khobz-app/checkout/internal/domain"
)

// Defaults applied when a CheckoutDeps field is left zero.
const (
	defaultCalculationTimeout = 12 * time.Second
)

var (
	// ErrUnknownBranch is returned when a selection names a branch that is
	// not in the session's branch list.
	ErrUnknownBranch = errors.New("checkout: unknown branch")
	// ErrPromotionRejected wraps a backend promotion validation failure.
	ErrPromotionRejected = errors.New("checkout: promotion rejected")
	// ErrEmptyPromoCode is returned for a blank promo code submission.
	ErrEmptyPromoCode = errors.New("checkout: empty promo code")
)

// CheckoutDeps wires a checkout session's collaborators.
type CheckoutDeps struct {
	Calculation CalculationBackend
	Promotions  PromotionBackend
	AutoApply   *AutoApplySelector

	CalculationTimeout time.Duration
	// DefaultDeliveryFee is the configured flat fee, the last resort of the
	// delivery-fee precedence chain.
	DefaultDeliveryFee float64

	Clock  Clock
	Logger EventLogger
}

// Checkout is one checkout session: the single owner of order type, address,
// branch, promotion, and the calculation snapshot. All reads go through
// State(); all writes go through the mutators, each of which triggers a
// recalculation cycle guarded by the session's request token.
type Checkout struct {
	id          string
	userID      string
	locale      string
	calculation CalculationBackend
	promotions  PromotionBackend
	autoApply   *AutoApplySelector
	calcTimeout time.Duration
	defaultFee  float64
	now         Clock
	log         EventLogger

	// token is the monotonically increasing recalculation counter. A cycle
	// captures its value at issue time and publishes only if the value is
	// still current when the response lands.
	token atomic.Uint64

	mu sync.Mutex
	st checkoutState
}

type checkoutState struct {
	orderType      OrderType
	lines          []CartLine
	address        *Address
	guest          GuestContact
	guestLocation  GuestLocation
	deliveryZone   DeliveryZone
	branches       []Branch
	branchID       string
	branchExplicit bool
	branchNotice   *BranchSelectionNotice
	promotion      *Promotion
	// promotionRemoved suppresses auto-apply after an explicit removal.
	promotionRemoved bool
	snapshot         *CalculationSnapshot
	stockWarnings    []StockWarning
	zoneNotice       string
	phase            Phase
	failure          FailureKind
	lastError        string
}

// CheckoutState is the read-only view handed to callers.
type CheckoutState struct {
	ID            string
	UserID        string
	OrderType     OrderType
	Lines         []CartLine
	Address       *Address
	Guest         GuestContact
	GuestLocation GuestLocation
	DeliveryZone  DeliveryZone
	Branches      []Branch
	BranchID      string
	BranchNotice  *BranchSelectionNotice
	Promotion     *Promotion
	Snapshot      *CalculationSnapshot
	StockWarnings []StockWarning
	ZoneNotice    string
	Phase         Phase
	Failure       FailureKind
	LastError     string
	Readiness     Readiness
}

// NewCheckout builds a checkout session. id identifies the session, userID is
// empty for guests.
func NewCheckout(id, userID, locale string, deps CheckoutDeps) (*Checkout, error) {
	if id == "" {
		return nil, errors.New("checkout: id is required")
	}
	if deps.Calculation == nil {
		return nil, errors.New("checkout: calculation backend is required")
	}
	if deps.CalculationTimeout <= 0 {
		deps.CalculationTimeout = defaultCalculationTimeout
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = nopEventLogger
	}
	if locale == "" {
		locale = "en"
	}
	return &Checkout{
		id:          id,
		userID:      userID,
		locale:      locale,
		calculation: deps.Calculation,
		promotions:  deps.Promotions,
		autoApply:   deps.AutoApply,
		calcTimeout: deps.CalculationTimeout,
		defaultFee:  deps.DefaultDeliveryFee,
		now:         deps.Clock,
		log:         deps.Logger,
		st: checkoutState{
			orderType:    domain.OrderTypeDelivery,
			deliveryZone: domain.ZoneInside,
			phase:        domain.PhaseIdle,
		},
	}, nil
}

// ID returns the session identifier.
func (c *Checkout) ID() string { return c.id }

// State returns a deep-enough copy of the session for read-only use. The
// readiness gate is evaluated on every call so it can never drift from the
// state it describes.
func (c *Checkout) State() CheckoutState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Checkout) stateLocked() CheckoutState {
	st := c.st
	view := CheckoutState{
		ID:            c.id,
		UserID:        c.userID,
		OrderType:     st.orderType,
		Lines:         append([]CartLine(nil), st.lines...),
		Guest:         st.guest,
		GuestLocation: st.guestLocation,
		DeliveryZone:  st.deliveryZone,
		Branches:      append([]Branch(nil), st.branches...),
		BranchID:      st.branchID,
		BranchNotice:  st.branchNotice,
		Promotion:     st.promotion,
		StockWarnings: append([]StockWarning(nil), st.stockWarnings...),
		ZoneNotice:    st.zoneNotice,
		Phase:         st.phase,
		Failure:       st.failure,
		LastError:     st.lastError,
	}
	if st.address != nil {
		addr := *st.address
		view.Address = &addr
	}
	if st.snapshot != nil {
		snap := *st.snapshot
		view.Snapshot = &snap
	}
	view.Readiness = EvaluateReadiness(c.readinessInputLocked(), c.locale)
	return view
}

func (c *Checkout) readinessInputLocked() ReadinessInput {
	return ReadinessInput{
		Lines:         c.st.lines,
		OrderType:     c.st.orderType,
		IsGuest:       c.userID == "",
		Address:       c.st.address,
		Guest:         c.st.guest,
		GuestLocation: c.st.guestLocation,
		BranchID:      c.st.branchID,
		Snapshot:      c.st.snapshot,
		StockWarnings: c.st.stockWarnings,
		DeliveryZone:  c.st.deliveryZone,
		Calculating:   c.st.phase == domain.PhaseCalculating,
	}
}

// SetCart replaces the cart lines and recalculates.
func (c *Checkout) SetCart(ctx context.Context, lines []CartLine) {
	c.mu.Lock()
	c.st.lines = append([]CartLine(nil), lines...)
	c.st.stockWarnings = nil
	c.mu.Unlock()
	c.Recalculate(ctx)
}

// SetOrderType switches between delivery and pickup and recalculates. A
// switch to pickup clears the zone notice; zone restrictions only apply to
// delivery.
func (c *Checkout) SetOrderType(ctx context.Context, orderType OrderType) {
	c.mu.Lock()
	if c.st.orderType == orderType {
		c.mu.Unlock()
		return
	}
	c.st.orderType = orderType
	if orderType == domain.OrderTypePickup {
		c.st.zoneNotice = ""
	}
	c.mu.Unlock()
	c.Recalculate(ctx)
}

// SelectAddress sets the delivery address and recalculates.
func (c *Checkout) SelectAddress(ctx context.Context, address *Address) {
	c.mu.Lock()
	c.st.address = address
	c.mu.Unlock()
	c.Recalculate(ctx)
}

// SetGuestContact updates the guest's name, phone, and free-text address,
// then recalculates.
func (c *Checkout) SetGuestContact(ctx context.Context, contact GuestContact) {
	c.mu.Lock()
	c.st.guest = contact
	c.mu.Unlock()
	c.Recalculate(ctx)
}

// SetGuestLocation records a device GPS fix for the guest and recalculates
// once the fix is confirmed.
func (c *Checkout) SetGuestLocation(ctx context.Context, location GuestLocation) {
	c.mu.Lock()
	c.st.guestLocation = location
	c.mu.Unlock()
	if location.Confirmed {
		c.Recalculate(ctx)
	}
}

// SetDeliveryZone updates the zone flag and recalculates.
func (c *Checkout) SetDeliveryZone(ctx context.Context, zone DeliveryZone) {
	c.mu.Lock()
	c.st.deliveryZone = zone
	c.mu.Unlock()
	c.Recalculate(ctx)
}

// SetBranches installs the branch list. When no branch is selected yet the
// nearest candidate is picked automatically with a one-time notice; an
// explicit prior selection is never overridden. The first non-empty list
// triggers the session's first recalculation.
func (c *Checkout) SetBranches(ctx context.Context, branches []Branch, location LatLng) {
	c.mu.Lock()
	c.st.branches = append([]Branch(nil), branches...)
	outcome := SelectBranch(c.st.branches, c.st.branchID, location)
	if outcome.Changed {
		c.st.branchID = outcome.SelectedID
		c.st.branchNotice = outcome.Notice
	}
	c.mu.Unlock()
	c.Recalculate(ctx)
}

// SelectBranch records an explicit branch choice. Explicit selections are
// sticky: later automatic passes never override them.
func (c *Checkout) SelectBranch(ctx context.Context, branchID string) error {
	c.mu.Lock()
	found := false
	for _, branch := range c.st.branches {
		if branch.ID == branchID {
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return ErrUnknownBranch
	}
	c.st.branchID = branchID
	c.st.branchExplicit = true
	c.st.branchNotice = nil
	c.mu.Unlock()
	c.Recalculate(ctx)
	return nil
}

// AckBranchNotice clears the one-time automatic selection notice.
func (c *Checkout) AckBranchNotice() {
	c.mu.Lock()
	c.st.branchNotice = nil
	c.mu.Unlock()
}

// DismissStockWarnings clears the dismissible stock warning state.
func (c *Checkout) DismissStockWarnings() {
	c.mu.Lock()
	c.st.stockWarnings = nil
	c.mu.Unlock()
}

// ApplyPromotion validates a promo code against the current subtotal and, on
// success, applies it and recalculates.
func (c *Checkout) ApplyPromotion(ctx context.Context, code string) (Promotion, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Promotion{}, ErrEmptyPromoCode
	}
	if c.promotions == nil {
		return Promotion{}, ErrPromotionRejected
	}

	c.mu.Lock()
	subtotal := c.subtotalLocked()
	c.mu.Unlock()

	promo, err := c.promotions.ValidatePromotion(ctx, code, subtotal)
	if err != nil {
		c.log(ctx, "promotion_rejected", map[string]any{"code": code, "error": err.Error()})
		return Promotion{}, errors.Join(ErrPromotionRejected, err)
	}
	promo = promo.Normalize()

	c.applyValidatedPromotion(ctx, promo, false)
	return promo, nil
}

// RemovePromotion clears the applied promotion and suppresses auto-apply for
// the rest of the session, then recalculates.
func (c *Checkout) RemovePromotion(ctx context.Context) {
	c.mu.Lock()
	c.st.promotion = nil
	c.st.promotionRemoved = true
	c.mu.Unlock()
	c.Recalculate(ctx)
}

// applyValidatedPromotion installs an already validated promotion. auto marks
// auto-applied promotions, which never override an explicit removal.
func (c *Checkout) applyValidatedPromotion(ctx context.Context, promo Promotion, auto bool) {
	c.mu.Lock()
	if auto && (c.st.promotionRemoved || c.st.promotion != nil) {
		c.mu.Unlock()
		return
	}
	c.st.promotion = &promo
	if !auto {
		c.st.promotionRemoved = false
	}
	c.mu.Unlock()
	c.Recalculate(ctx)
}

// subtotalLocked reads the best known subtotal: the published snapshot when
// present, otherwise the sum of cached unit prices.
func (c *Checkout) subtotalLocked() float64 {
	if c.st.snapshot != nil && c.st.snapshot.Subtotal > 0 {
		return c.st.snapshot.Subtotal
	}
	return cachedSubtotal(c.st.lines)
}

func cachedSubtotal(lines []CartLine) float64 {
	var total float64
	for _, line := range lines {
		if line.UnitPrice > 0 && line.Quantity > 0 {
			total += line.UnitPrice * float64(line.Quantity)
		}
	}
	return domain.Round2(total)
}
