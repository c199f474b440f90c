package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	domain "github.com/khobz-app/checkout/internal/domain"
	"github.com/khobz-app/checkout/internal/platform/observability"
)

// Defaults applied when an OrderPlacerDeps field is left zero.
const (
	defaultPlacementAttempts = 3
	defaultPlacementDelay    = 500 * time.Millisecond
	defaultAttemptTimeout    = 15 * time.Second
)

// Placement precondition failures, checked in a fixed order so the caller
// always sees the most actionable obstacle first.
var (
	ErrStoreClosed        = errors.New("placement: store is not accepting orders")
	ErrGuestInfoInvalid   = errors.New("placement: guest contact details are incomplete")
	ErrCartInvalid        = errors.New("placement: cart is empty or malformed")
	ErrAddressRequired    = errors.New("placement: delivery destination is missing")
	ErrCalculationMissing = errors.New("placement: no valid calculation snapshot")
	ErrStockBlocked       = errors.New("placement: unresolved stock warnings")
	ErrOrderCreateFailed  = errors.New("placement: order creation failed")
)

var placementMessages = map[error]domain.Text{
	ErrStoreClosed: {
		En: "We are not accepting orders right now. Please try again later.",
		Ar: "لا نستقبل الطلبات حالياً. يرجى المحاولة لاحقاً.",
	},
	ErrGuestInfoInvalid: {
		En: "Add your name, a valid phone number, and a delivery address to continue.",
		Ar: "أضف اسمك ورقم هاتف صحيح وعنوان التوصيل للمتابعة.",
	},
	ErrCartInvalid: {
		En: "Your cart is empty. Add items before placing an order.",
		Ar: "سلتك فارغة. أضف منتجات قبل إتمام الطلب.",
	},
	ErrAddressRequired: {
		En: "Select a delivery address or confirm your location to continue.",
		Ar: "اختر عنوان التوصيل أو أكّد موقعك للمتابعة.",
	},
	ErrCalculationMissing: {
		En: "Order totals are still being calculated. Please wait a moment.",
		Ar: "ما زال يتم احتساب قيمة الطلب. يرجى الانتظار قليلاً.",
	},
	ErrStockBlocked: {
		En: "Some items are out of stock. Review the warnings before placing your order.",
		Ar: "بعض المنتجات غير متوفرة. راجع التنبيهات قبل إتمام الطلب.",
	},
	ErrOrderCreateFailed: {
		En: "We could not place your order. Please try again.",
		Ar: "تعذر إتمام طلبك. يرجى المحاولة مرة أخرى.",
	},
}

// PlacementMessage maps a placement error to its user-facing message.
func PlacementMessage(err error, locale string) string {
	for sentinel, text := range placementMessages {
		if errors.Is(err, sentinel) {
			return text.Resolve(locale)
		}
	}
	return placementMessages[ErrOrderCreateFailed].Resolve(locale)
}

// jordanPhonePattern accepts Jordanian mobile numbers with or without the
// country prefix.
var jordanPhonePattern = regexp.MustCompile(`^(\+?962|0)?7[789]\d{7}$`)

// ValidPhone reports whether the input is a plausible Jordanian mobile
// number. Spaces and dashes are ignored.
func ValidPhone(raw string) bool {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
	return jordanPhonePattern.MatchString(cleaned)
}

// PlaceOptions carries the submission inputs that live outside session state.
type PlaceOptions struct {
	PaymentMethod PaymentMethod
	Notes         string
}

// PlacementResult reports a successful placement. PaymentError is set when
// the order was created but the card authorization session could not be
// opened; the order itself stands.
type PlacementResult struct {
	Order        PlacedOrder
	Payment      *PaymentSession
	PaymentError string
}

// OrderPlacerDeps wires the placement orchestrator's collaborators.
type OrderPlacerDeps struct {
	Orders      OrderBackend
	Payments    PaymentSessionCreator
	GuestOrders GuestOrderStore

	Attempts       int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration

	Clock  Clock
	Logger EventLogger
	// Sleep is the retry backoff hook, injectable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// OrderPlacer runs the final submission: ordered precondition checks, the
// bounded retry loop, and post-success cleanup.
type OrderPlacer struct {
	orders         OrderBackend
	payments       PaymentSessionCreator
	guestOrders    GuestOrderStore
	attempts       int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	now            Clock
	log            EventLogger
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewOrderPlacer builds an OrderPlacer.
func NewOrderPlacer(deps OrderPlacerDeps) (*OrderPlacer, error) {
	if deps.Orders == nil {
		return nil, errors.New("placement: order backend is required")
	}
	if deps.Attempts <= 0 {
		deps.Attempts = defaultPlacementAttempts
	}
	if deps.BaseDelay <= 0 {
		deps.BaseDelay = defaultPlacementDelay
	}
	if deps.AttemptTimeout <= 0 {
		deps.AttemptTimeout = defaultAttemptTimeout
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = nopEventLogger
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	return &OrderPlacer{
		orders:         deps.Orders,
		payments:       deps.Payments,
		guestOrders:    deps.GuestOrders,
		attempts:       deps.Attempts,
		baseDelay:      deps.BaseDelay,
		attemptTimeout: deps.AttemptTimeout,
		now:            deps.Clock,
		log:            deps.Logger,
		sleep:          deps.Sleep,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Place submits the session's order. On success the cart is cleared, guest
// orders are persisted for later recovery, and card orders get a payment
// authorization session whose failure is reported but never voids the order.
func (p *OrderPlacer) Place(ctx context.Context, session *Checkout, opts PlaceOptions) (PlacementResult, error) {
	ctx, span := observability.StartSpan(ctx, "checkout.place_order",
		attribute.String("checkout.session_id", session.ID()))
	result, err := p.place(ctx, session, opts)
	observability.EndSpan(span, err)
	return result, err
}

func (p *OrderPlacer) place(ctx context.Context, session *Checkout, opts PlaceOptions) (PlacementResult, error) {
	state := session.State()

	if err := p.checkPreconditions(ctx, state); err != nil {
		return PlacementResult{}, err
	}

	req := buildPlaceRequest(state, opts)
	req.IdempotencyKey = ulid.Make().String()
	session.beginSubmit()

	order, err := p.submitWithRetry(ctx, req)
	if err != nil {
		session.failSubmit(err)
		return PlacementResult{}, err
	}

	session.finishSubmit()
	p.log(ctx, "order_placed", map[string]any{
		"session_id": session.ID(),
		"order_id":   order.ID,
		"total":      order.Total,
		"guest":      order.Guest,
	})

	if state.UserID == "" && p.guestOrders != nil {
		if err := p.guestOrders.SaveGuestOrder(ctx, session.ID(), order); err != nil {
			// Recovery bookkeeping only; the order stands.
			p.log(ctx, "guest_order_save_failed", map[string]any{
				"session_id": session.ID(),
				"order_id":   order.ID,
				"error":      err.Error(),
			})
		}
	}

	result := PlacementResult{Order: order}
	if opts.PaymentMethod.RequiresAuthorization() && p.payments != nil {
		payment, err := p.payments.CreatePaymentSession(ctx, order, opts.PaymentMethod)
		if err != nil {
			p.log(ctx, "payment_session_failed", map[string]any{
				"order_id": order.ID,
				"error":    err.Error(),
			})
			result.PaymentError = err.Error()
		} else {
			result.Payment = &payment
		}
	}
	return result, nil
}

// checkPreconditions walks the fixed gate order. The store-hours check fails
// open: an unreachable hours endpoint must not block checkout.
func (p *OrderPlacer) checkPreconditions(ctx context.Context, state CheckoutState) error {
	accepting, err := p.orders.StoreAcceptingOrders(ctx)
	if err != nil {
		p.log(ctx, "store_hours_check_failed", map[string]any{"error": err.Error()})
	} else if !accepting {
		return ErrStoreClosed
	}

	if state.UserID == "" {
		if !guestContactComplete(state) {
			return ErrGuestInfoInvalid
		}
	}

	if len(state.Lines) == 0 {
		return ErrCartInvalid
	}
	for _, line := range state.Lines {
		if line.ProductID == "" || line.Quantity <= 0 {
			return ErrCartInvalid
		}
	}

	if state.OrderType == domain.OrderTypeDelivery && !deliveryDestinationKnown(state) {
		return ErrAddressRequired
	}

	if !state.Snapshot.Valid() {
		return ErrCalculationMissing
	}

	if len(state.StockWarnings) > 0 {
		return ErrStockBlocked
	}
	return nil
}

func guestContactComplete(state CheckoutState) bool {
	if strings.TrimSpace(state.Guest.Name) == "" || !ValidPhone(state.Guest.Phone) {
		return false
	}
	if state.OrderType != domain.OrderTypeDelivery {
		return true
	}
	if strings.TrimSpace(state.Guest.AddressText) == "" {
		return false
	}
	return state.GuestLocation.Confirmed && state.GuestLocation.Coordinate.Valid()
}

func deliveryDestinationKnown(state CheckoutState) bool {
	if state.Address != nil {
		return true
	}
	if state.GuestLocation.Confirmed && state.GuestLocation.Coordinate.Valid() {
		return true
	}
	return strings.TrimSpace(state.Guest.AddressText) != ""
}

func buildPlaceRequest(state CheckoutState, opts PlaceOptions) PlaceOrderRequest {
	req := PlaceOrderRequest{
		Lines:         state.Lines,
		OrderType:     state.OrderType,
		BranchID:      state.BranchID,
		UserID:        state.UserID,
		PaymentMethod: opts.PaymentMethod,
		DeliveryZone:  state.DeliveryZone,
		Notes:         opts.Notes,
		Total:         state.Snapshot.Total,
	}
	if state.Promotion != nil {
		req.PromoCode = state.Promotion.Code
	}
	if state.Address != nil {
		req.AddressID = state.Address.ID
		if state.Address.Location.Valid() {
			loc := state.Address.Location
			req.Coordinate = &loc
		}
	} else if state.UserID == "" {
		guest := state.Guest
		req.Guest = &guest
		if state.GuestLocation.Confirmed && state.GuestLocation.Coordinate.Valid() {
			loc := state.GuestLocation.Coordinate
			req.Coordinate = &loc
		}
	}
	return req
}

// submitWithRetry attempts order creation up to the configured limit with an
// exponential backoff between attempts. Terminal rejections stop the loop
// immediately; a success without a usable order id counts as a failure.
func (p *OrderPlacer) submitWithRetry(ctx context.Context, req PlaceOrderRequest) (PlacedOrder, error) {
	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			delay := p.baseDelay * time.Duration(1<<uint(attempt-1))
			if err := p.sleep(ctx, delay); err != nil {
				return PlacedOrder{}, fmt.Errorf("%w: %w", ErrOrderCreateFailed, err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
		order, err := p.orders.CreateOrder(attemptCtx, req)
		cancel()

		if err == nil {
			if order.ID == "" {
				lastErr = errors.New("backend returned no order id")
				continue
			}
			return order, nil
		}

		lastErr = err
		p.log(ctx, "order_attempt_failed", map[string]any{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
		if !IsRetryable(err) {
			break
		}
	}
	return PlacedOrder{}, fmt.Errorf("%w: %w", ErrOrderCreateFailed, lastErr)
}

// beginSubmit marks the session as submitting.
func (c *Checkout) beginSubmit() {
	c.mu.Lock()
	c.st.phase = domain.PhaseSubmitting
	c.mu.Unlock()
}

// failSubmit records a terminal placement failure.
func (c *Checkout) failSubmit(err error) {
	c.mu.Lock()
	c.st.phase = domain.PhaseFailed
	c.st.failure = domain.FailureFatal
	c.st.lastError = err.Error()
	c.mu.Unlock()
}

// finishSubmit clears the cart and resets the session after a placed order.
func (c *Checkout) finishSubmit() {
	c.mu.Lock()
	c.st.lines = nil
	c.st.promotion = nil
	c.st.promotionRemoved = false
	c.st.failure = ""
	c.st.lastError = ""
	c.publishEmptySnapshotLocked()
	c.mu.Unlock()
}
