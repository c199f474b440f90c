package services

import (
	"context"
	"time"

	domain "github.com/khobz-app/checkout/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	OrderType           = domain.OrderType
	DeliveryZone        = domain.DeliveryZone
	CartLine            = domain.CartLine
	Address             = domain.Address
	GuestContact        = domain.GuestContact
	GuestLocation       = domain.GuestLocation
	Promotion           = domain.Promotion
	CalculationSnapshot = domain.CalculationSnapshot
	SnapshotLine        = domain.SnapshotLine
	Branch              = domain.Branch
	BranchAvailability  = domain.BranchAvailability
	BranchStockReport   = domain.BranchStockReport
	AvailabilityTone    = domain.AvailabilityTone
	StockWarning        = domain.StockWarning
	Phase               = domain.Phase
	FailureKind         = domain.FailureKind
	PaymentMethod       = domain.PaymentMethod
	PlacedOrder         = domain.PlacedOrder
	PaymentSession      = domain.PaymentSession
	LatLng              = domain.LatLng
)

// CalculateOrderRequest assembles one recalculation attempt against the backend.
type CalculateOrderRequest struct {
	Lines        []CartLine
	OrderType    OrderType
	BranchID     string
	AddressID    string
	Coordinate   *LatLng
	GuestAddress string
	PromoCode    string
	DeliveryZone DeliveryZone
}

// CalculateOrderResponse is the backend's priced echo of a calculation request.
// Monetary fields are already normalised by the transport layer; the
// CalculationMethod flag signals that the backend computed the delivery fee
// itself rather than echoing a configured default.
type CalculateOrderResponse struct {
	Subtotal          float64
	DeliveryFee       float64
	CalculationMethod string
	MetadataFee       float64
	FallbackFee       float64
	DefaultFee        float64
	Tax               float64
	DiscountAmount    float64
	ShippingDiscount  float64
	Total             float64
	PointsEarned      int
	Lines             []SnapshotLine
}

// CalculationBackend prices a cart against the remote commerce API.
type CalculationBackend interface {
	CalculateOrder(ctx context.Context, req CalculateOrderRequest) (CalculateOrderResponse, error)
}

// PromotionBackend validates and lists promotions.
type PromotionBackend interface {
	ValidatePromotion(ctx context.Context, code string, subtotal float64) (Promotion, error)
	ListAvailablePromotions(ctx context.Context) ([]Promotion, error)
}

// AvailabilityBackend runs the per-branch stock check for a cart.
type AvailabilityBackend interface {
	CheckBranchStock(ctx context.Context, lines []CartLine, branchIDs []string) ([]BranchStockReport, error)
}

// PlaceOrderRequest is the final order submission payload.
type PlaceOrderRequest struct {
	Lines         []CartLine
	OrderType     OrderType
	BranchID      string
	AddressID     string
	Coordinate    *LatLng
	Guest         *GuestContact
	UserID        string
	PromoCode     string
	PaymentMethod PaymentMethod
	DeliveryZone  DeliveryZone
	Notes         string
	Total         float64
	// IdempotencyKey is fixed for the whole submission so backend-side
	// dedupe covers retried attempts.
	IdempotencyKey string
}

// OrderBackend creates orders and reports store availability.
type OrderBackend interface {
	CreateOrder(ctx context.Context, req PlaceOrderRequest) (PlacedOrder, error)
	StoreAcceptingOrders(ctx context.Context) (bool, error)
}

// PaymentSessionCreator opens an out-of-band authorization session for an
// already created order. Implemented by the payments manager.
type PaymentSessionCreator interface {
	CreatePaymentSession(ctx context.Context, order PlacedOrder, method PaymentMethod) (PaymentSession, error)
}

// GuestOrderStore persists guest order references so the device can recover
// order history without an account.
type GuestOrderStore interface {
	SaveGuestOrder(ctx context.Context, sessionID string, order PlacedOrder) error
}

// LocationAccuracy selects the device locator mode.
type LocationAccuracy string

const (
	// AccuracyHigh requests a precise GPS fix.
	AccuracyHigh LocationAccuracy = "high"
	// AccuracyCoarse requests a cell/wifi level fix.
	AccuracyCoarse LocationAccuracy = "coarse"
)

// DeviceLocator is the device location capability at the checkout boundary.
type DeviceLocator interface {
	Locate(ctx context.Context, accuracy LocationAccuracy) (LatLng, error)
}

// EventLogger is the structured logging hook handed to every service.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

func nopEventLogger(context.Context, string, map[string]any) {}

// Clock is the injectable time source used across services.
type Clock func() time.Time
