package domain

import (
	"strings"
	"time"
)

// OrderType distinguishes delivery orders from branch pickup.
type OrderType string

const (
	// OrderTypeDelivery identifies orders delivered to an address or GPS fix.
	OrderTypeDelivery OrderType = "delivery"
	// OrderTypePickup identifies orders collected at a branch.
	OrderTypePickup OrderType = "pickup"
)

// DeliveryZone partitions the delivery area for zone-restricted products.
type DeliveryZone string

const (
	// ZoneInside covers the primary delivery area (Amman).
	ZoneInside DeliveryZone = "inside"
	// ZoneOutside covers areas where zone-restricted products cannot ship.
	ZoneOutside DeliveryZone = "outside"
)

// CartLine is a single cart entry. Owned by the cart collaborator and
// read-only to checkout.
type CartLine struct {
	ProductID    string
	VariantID    string
	VariantIDs   []string
	Quantity     int
	Instructions string
	// UnitPrice is the client-cached price, used only for local fallback
	// snapshots; 0 means unknown.
	UnitPrice          float64
	Title              Text
	VariantLabel       Text
	DeliveryRestricted bool
}

// Address is a saved delivery address.
type Address struct {
	ID        string
	Name      string
	Phone     string
	CityID    string
	CityTitle Text
	AreaID    string
	AreaTitle Text
	StreetID  string
	Street    string
	Building  string
	Floor     string
	Apartment string
	Details   string
	Location  LatLng
	// AreaDeliveryFee is the fee configured for the address's area, used as
	// a late entry in the delivery-fee precedence chain.
	AreaDeliveryFee float64
	IsDefault       bool
}

// GuestContact carries the checkout inputs a guest supplies in place of an
// account: name, phone, and a free-text delivery address.
type GuestContact struct {
	Name        string
	Phone       string
	AddressText string
}

// GuestLocation is a device GPS fix for guest delivery orders. Confirmed is
// set only after the guest has seen and accepted the detected position.
type GuestLocation struct {
	Coordinate LatLng
	Confirmed  bool
}

// DiscountKind enumerates promotion discount semantics.
type DiscountKind string

const (
	// DiscountPercentage applies value as a percentage of the subtotal.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed applies value as a flat amount.
	DiscountFixed DiscountKind = "fixed"
	// DiscountFixedAmount is a legacy alias for DiscountFixed.
	DiscountFixedAmount DiscountKind = "fixed_amount"
	// DiscountFreeShipping waives the delivery fee and never discounts the
	// subtotal line.
	DiscountFreeShipping DiscountKind = "free_shipping"
	// DiscountBuyXGetY applies value as a flat amount for bundle deals.
	DiscountBuyXGetY DiscountKind = "bxgy"
)

// Promotion is an immutable promotion record fetched from the backend. A
// session holds at most one applied promotion at a time.
type Promotion struct {
	Code        string
	Title       Text
	Kind        DiscountKind
	Value       float64
	MinOrder    float64
	MaxDiscount float64
}

// IsFreeShipping reports whether the promotion's effect is on the delivery
// fee rather than the subtotal.
func (p Promotion) IsFreeShipping() bool {
	return p.Kind == DiscountFreeShipping
}

// Normalize trims and lowercases the mutable lookup fields.
func (p Promotion) Normalize() Promotion {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	p.Kind = DiscountKind(strings.ToLower(strings.TrimSpace(string(p.Kind))))
	return p
}

// SnapshotLine echoes a cart line with its backend-resolved unit price.
type SnapshotLine struct {
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice float64
	LineTotal float64
}

// CalculationSnapshot is the single authoritative record of computed order
// totals. It is always replaced wholesale, never patched field by field.
type CalculationSnapshot struct {
	Subtotal            float64
	DeliveryFee         float64
	DeliveryFeeOriginal float64
	Tax                 float64
	DiscountAmount      float64
	ShippingDiscount    float64
	WaivedDeliveryFee   float64
	Total               float64
	PointsEarned        int
	Promotion           *Promotion
	Lines               []SnapshotLine
	// Estimated marks snapshots derived locally from cached unit prices
	// after a backend failure.
	Estimated    bool
	CalculatedAt time.Time
}

// Valid reports whether the snapshot carries a usable total.
func (s *CalculationSnapshot) Valid() bool {
	return s != nil && s.Total >= 0 && (s.Subtotal > 0 || s.Total > 0 || len(s.Lines) > 0)
}

// Branch is a store branch candidate for pickup or delivery dispatch.
type Branch struct {
	ID          string
	Title       Text
	Location    LatLng
	DeliveryFee float64
	Active      bool
}

// AvailabilityTone is the presentation-ready stock status for a branch.
type AvailabilityTone string

const (
	ToneAvailable   AvailabilityTone = "available"
	ToneLimited     AvailabilityTone = "limited"
	ToneWarning     AvailabilityTone = "warning"
	ToneUnavailable AvailabilityTone = "unavailable"
	ToneInactive    AvailabilityTone = "inactive"
	ToneError       AvailabilityTone = "error"
	ToneUnknown     AvailabilityTone = "unknown"
	ToneLoading     AvailabilityTone = "loading"
)

// Selectable reports whether the UI may accept the branch with this tone.
func (t AvailabilityTone) Selectable() bool {
	switch t {
	case ToneUnavailable, ToneInactive, ToneError:
		return false
	default:
		return true
	}
}

// BranchStockReport is the backend's raw per-branch stock-check result.
type BranchStockReport struct {
	BranchID string
	Status   string
	// MinAvailable is the minimum remaining units across all cart lines at
	// the branch; nil when the backend omitted it.
	MinAvailable *int
	Issues       []string
	Message      string
}

// BranchAvailability is the resolved, presentation-ready status per branch.
type BranchAvailability struct {
	BranchID     string
	Tone         AvailabilityTone
	MinAvailable *int
	Issues       []string
	Message      string
}

// StockWarning is a dismissible per-line shortage notice produced by the
// friendly stock-message mapper.
type StockWarning struct {
	Message      string
	ProductTitle string
	VariantLabel string
	Suggestion   string
}

// Phase is the explicit checkout state consumed by the UI collaborator,
// replacing the implicit loading/refreshing/placing flag soup.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCalculating Phase = "calculating"
	PhaseReady       Phase = "ready"
	PhaseBlocked     Phase = "blocked"
	PhaseSubmitting  Phase = "submitting"
	PhaseFailed      Phase = "failed"
)

// FailureKind classifies calculation and placement failures.
type FailureKind string

const (
	// FailureStock marks branch-inventory shortages.
	FailureStock FailureKind = "stock"
	// FailureZone marks delivery-zone restriction rejections.
	FailureZone FailureKind = "zone"
	// FailureTransient marks timeouts and connectivity failures.
	FailureTransient FailureKind = "transient"
	// FailureFatal marks order-creation failures after exhausted retries.
	FailureFatal FailureKind = "fatal"
)

// PaymentMethod identifies how the order will be paid.
type PaymentMethod string

const (
	// PaymentCash is settled on delivery or pickup; no authorization step.
	PaymentCash PaymentMethod = "cash"
	// PaymentCard requires an out-of-band authorization session and a
	// redirect before the flow can declare success.
	PaymentCard PaymentMethod = "card"
)

// RequiresAuthorization reports whether placing an order with this method
// must branch into the payment sub-flow.
func (m PaymentMethod) RequiresAuthorization() bool {
	return m == PaymentCard
}

// PlacedOrder is the backend's echo after successful order creation.
type PlacedOrder struct {
	ID           string
	Number       string
	Total        float64
	PointsEarned int
	CreatedAt    time.Time
	Guest        bool
}

// PaymentSession is the out-of-band authorization handoff for card orders.
type PaymentSession struct {
	ID          string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}
