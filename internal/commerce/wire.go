package commerce

import (
	"time"

	domain "github.com/khobz-app/checkout/internal/domain"
	"github.com/khobz-app/checkout/internal/services"
)

// Wire payloads for the commerce backend. Monetary fields decode through
// FlexAmount because the backend emits numbers, numeric strings, currency
// strings, and null interchangeably.

type linePayload struct {
	ProductID    string   `json:"product_id"`
	VariantID    string   `json:"variant_id,omitempty"`
	VariantIDs   []string `json:"variant_ids,omitempty"`
	Quantity     int      `json:"quantity"`
	Instructions string   `json:"instructions,omitempty"`
}

func linesPayload(lines []services.CartLine) []linePayload {
	out := make([]linePayload, 0, len(lines))
	for _, line := range lines {
		out = append(out, linePayload{
			ProductID:    line.ProductID,
			VariantID:    line.VariantID,
			VariantIDs:   line.VariantIDs,
			Quantity:     line.Quantity,
			Instructions: line.Instructions,
		})
	}
	return out
}

type calculateRequestPayload struct {
	Items        []linePayload  `json:"items"`
	OrderType    string         `json:"order_type"`
	BranchID     string         `json:"branch_id"`
	AddressID    string         `json:"address_id,omitempty"`
	Latitude     *float64       `json:"latitude,omitempty"`
	Longitude    *float64       `json:"longitude,omitempty"`
	GuestAddress string         `json:"guest_address,omitempty"`
	PromoCode    string         `json:"promo_code,omitempty"`
	DeliveryZone string         `json:"delivery_zone,omitempty"`
}

type calculateResponsePayload struct {
	Subtotal          domain.FlexAmount `json:"subtotal"`
	DeliveryFee       domain.FlexAmount `json:"delivery_fee"`
	CalculationMethod string            `json:"delivery_fee_calculation_method"`
	Metadata          struct {
		DeliveryFee domain.FlexAmount `json:"delivery_fee"`
	} `json:"metadata"`
	FallbackDeliveryFee domain.FlexAmount     `json:"fallback_delivery_fee"`
	DefaultDeliveryFee  domain.FlexAmount     `json:"default_delivery_fee"`
	Tax                 domain.FlexAmount     `json:"tax"`
	DiscountAmount      domain.FlexAmount     `json:"discount_amount"`
	ShippingDiscount    domain.FlexAmount     `json:"shipping_discount"`
	Total               domain.FlexAmount     `json:"total"`
	PointsEarned        int                   `json:"points_earned"`
	Items               []snapshotLinePayload `json:"items"`
}

type snapshotLinePayload struct {
	ProductID string            `json:"product_id"`
	VariantID string            `json:"variant_id"`
	Quantity  int               `json:"quantity"`
	UnitPrice domain.FlexAmount `json:"unit_price"`
	LineTotal domain.FlexAmount `json:"line_total"`
}

func (p calculateResponsePayload) toResponse() services.CalculateOrderResponse {
	lines := make([]services.SnapshotLine, 0, len(p.Items))
	for _, item := range p.Items {
		lines = append(lines, services.SnapshotLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.Value(),
			LineTotal: item.LineTotal.Value(),
		})
	}
	return services.CalculateOrderResponse{
		Subtotal:          p.Subtotal.Value(),
		DeliveryFee:       p.DeliveryFee.Value(),
		CalculationMethod: p.CalculationMethod,
		MetadataFee:       p.Metadata.DeliveryFee.Value(),
		FallbackFee:       p.FallbackDeliveryFee.Value(),
		DefaultFee:        p.DefaultDeliveryFee.Value(),
		Tax:               p.Tax.Value(),
		DiscountAmount:    p.DiscountAmount.Value(),
		ShippingDiscount:  p.ShippingDiscount.Value(),
		Total:             p.Total.Value(),
		PointsEarned:      p.PointsEarned,
		Lines:             lines,
	}
}

type promotionPayload struct {
	Code        string            `json:"code"`
	TitleEn     string            `json:"title_en"`
	TitleAr     string            `json:"title_ar"`
	Kind        string            `json:"discount_type"`
	Value       domain.FlexAmount `json:"discount_value"`
	MinOrder    domain.FlexAmount `json:"min_order_amount"`
	MaxDiscount domain.FlexAmount `json:"max_discount_amount"`
}

func (p promotionPayload) toPromotion() services.Promotion {
	promo := domain.Promotion{
		Code:        p.Code,
		Title:       domain.Text{En: p.TitleEn, Ar: p.TitleAr},
		Kind:        domain.DiscountKind(p.Kind),
		Value:       p.Value.Value(),
		MinOrder:    p.MinOrder.Value(),
		MaxDiscount: p.MaxDiscount.Value(),
	}
	return promo.Normalize()
}

type stockCheckRequestPayload struct {
	Items     []linePayload `json:"items"`
	BranchIDs []string      `json:"branch_ids"`
}

type stockCheckResponsePayload struct {
	Branches []stockReportPayload `json:"branches"`
}

type stockReportPayload struct {
	BranchID     string   `json:"branch_id"`
	Status       string   `json:"status"`
	MinAvailable *int     `json:"min_available"`
	Issues       []string `json:"issues"`
	Message      string   `json:"message"`
}

func (p stockReportPayload) toReport() services.BranchStockReport {
	return services.BranchStockReport{
		BranchID:     p.BranchID,
		Status:       p.Status,
		MinAvailable: p.MinAvailable,
		Issues:       p.Issues,
		Message:      p.Message,
	}
}

type createOrderRequestPayload struct {
	Items         []linePayload `json:"items"`
	OrderType     string        `json:"order_type"`
	BranchID      string        `json:"branch_id"`
	AddressID     string        `json:"address_id,omitempty"`
	Latitude      *float64      `json:"latitude,omitempty"`
	Longitude     *float64      `json:"longitude,omitempty"`
	UserID        string        `json:"user_id,omitempty"`
	GuestName     string        `json:"guest_name,omitempty"`
	GuestPhone    string        `json:"guest_phone,omitempty"`
	GuestAddress  string        `json:"guest_address,omitempty"`
	PromoCode     string        `json:"promo_code,omitempty"`
	PaymentMethod string        `json:"payment_method"`
	DeliveryZone  string        `json:"delivery_zone,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	ExpectedTotal float64       `json:"expected_total"`
	// IdempotencyKey lets the backend dedupe retried submissions.
	IdempotencyKey string `json:"idempotency_key"`
}

type createOrderResponsePayload struct {
	ID           string            `json:"id"`
	Number       string            `json:"order_number"`
	Total        domain.FlexAmount `json:"total"`
	PointsEarned int               `json:"points_earned"`
	CreatedAt    time.Time         `json:"created_at"`
	Guest        bool              `json:"guest"`
}

func (p createOrderResponsePayload) toOrder() services.PlacedOrder {
	return services.PlacedOrder{
		ID:           p.ID,
		Number:       p.Number,
		Total:        p.Total.Value(),
		PointsEarned: p.PointsEarned,
		CreatedAt:    p.CreatedAt,
		Guest:        p.Guest,
	}
}

type storeStatusPayload struct {
	AcceptingOrders bool `json:"accepting_orders"`
}

type branchPayload struct {
	ID          string            `json:"id"`
	TitleEn     string            `json:"title_en"`
	TitleAr     string            `json:"title_ar"`
	Latitude    float64           `json:"latitude"`
	Longitude   float64           `json:"longitude"`
	DeliveryFee domain.FlexAmount `json:"delivery_fee"`
	Active      bool              `json:"active"`
}

func (p branchPayload) toBranch() services.Branch {
	return domain.Branch{
		ID:          p.ID,
		Title:       domain.Text{En: p.TitleEn, Ar: p.TitleAr},
		Location:    domain.LatLng{Lat: p.Latitude, Lng: p.Longitude},
		DeliveryFee: p.DeliveryFee.Value(),
		Active:      p.Active,
	}
}

type branchListPayload struct {
	Branches []branchPayload `json:"branches"`
}
