package handlers

import (
	"strings"
	"time"

	domain "github.com/khobz-app/checkout/internal/domain"
	"github.com/khobz-app/checkout/internal/services"
)

// Request payloads.

type cartLinePayload struct {
	ProductID          string   `json:"product_id"`
	VariantID          string   `json:"variant_id,omitempty"`
	VariantIDs         []string `json:"variant_ids,omitempty"`
	Quantity           int      `json:"quantity"`
	Instructions       string   `json:"instructions,omitempty"`
	UnitPrice          float64  `json:"unit_price,omitempty"`
	TitleEn            string   `json:"title_en,omitempty"`
	TitleAr            string   `json:"title_ar,omitempty"`
	VariantLabelEn     string   `json:"variant_label_en,omitempty"`
	VariantLabelAr     string   `json:"variant_label_ar,omitempty"`
	DeliveryRestricted bool     `json:"delivery_restricted,omitempty"`
}

func (p cartLinePayload) toLine() services.CartLine {
	return domain.CartLine{
		ProductID:          strings.TrimSpace(p.ProductID),
		VariantID:          strings.TrimSpace(p.VariantID),
		VariantIDs:         p.VariantIDs,
		Quantity:           p.Quantity,
		Instructions:       p.Instructions,
		UnitPrice:          p.UnitPrice,
		Title:              domain.Text{En: p.TitleEn, Ar: p.TitleAr},
		VariantLabel:       domain.Text{En: p.VariantLabelEn, Ar: p.VariantLabelAr},
		DeliveryRestricted: p.DeliveryRestricted,
	}
}

func toLines(payloads []cartLinePayload) []services.CartLine {
	lines := make([]services.CartLine, 0, len(payloads))
	for _, p := range payloads {
		lines = append(lines, p.toLine())
	}
	return lines
}

type createSessionRequest struct {
	Locale    string            `json:"locale"`
	OrderType string            `json:"order_type"`
	Lines     []cartLinePayload `json:"lines"`
	Latitude  float64           `json:"latitude"`
	Longitude float64           `json:"longitude"`
}

type updateCartRequest struct {
	Lines []cartLinePayload `json:"lines"`
}

type selectAddressRequest struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Phone           string  `json:"phone"`
	Street          string  `json:"street"`
	Building        string  `json:"building"`
	Details         string  `json:"details"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	AreaDeliveryFee float64 `json:"area_delivery_fee"`
}

type orderTypeRequest struct {
	OrderType    string `json:"order_type"`
	DeliveryZone string `json:"delivery_zone"`
}

type guestInfoRequest struct {
	Name        string  `json:"name"`
	Phone       string  `json:"phone"`
	AddressText string  `json:"address_text"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Confirmed   bool    `json:"confirmed"`
}

type paymentDetailsPayload struct {
	Provider    string `json:"provider"`
	IntentID    string `json:"intent_id"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type coordinatePayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// locateRequest carries the device geolocation readings: the precise fix when
// the device produced one, the coarse cell/wifi reading as fallback, and the
// denied flag when the user refused the permission prompt.
type locateRequest struct {
	Precise *coordinatePayload `json:"precise,omitempty"`
	Coarse  *coordinatePayload `json:"coarse,omitempty"`
	Denied  bool               `json:"denied,omitempty"`
}

type selectBranchRequest struct {
	BranchID string `json:"branch_id"`
}

type applyPromotionRequest struct {
	Code string `json:"code"`
}

type placeOrderRequest struct {
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes"`
}

// Response payloads.

type sessionResponse struct {
	ID            string                  `json:"id"`
	Phase         string                  `json:"phase"`
	OrderType     string                  `json:"order_type"`
	BranchID      string                  `json:"branch_id,omitempty"`
	BranchNotice  *branchNoticePayload    `json:"branch_notice,omitempty"`
	Promotion     *promotionPayload       `json:"promotion,omitempty"`
	Snapshot      *snapshotPayload        `json:"snapshot,omitempty"`
	Readiness     readinessPayload        `json:"readiness"`
	StockWarnings []stockWarningPayload   `json:"stock_warnings,omitempty"`
	ZoneNotice    string                  `json:"zone_notice,omitempty"`
	Failure       string                  `json:"failure,omitempty"`
	LastError     string                  `json:"last_error,omitempty"`
}

type branchNoticePayload struct {
	BranchID   string  `json:"branch_id"`
	Title      string  `json:"title"`
	DistanceKm float64 `json:"distance_km"`
}

type promotionPayload struct {
	Code  string  `json:"code"`
	Title string  `json:"title"`
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
}

type snapshotPayload struct {
	Subtotal            float64               `json:"subtotal"`
	DeliveryFee         float64               `json:"delivery_fee"`
	DeliveryFeeOriginal float64               `json:"delivery_fee_original,omitempty"`
	Tax                 float64               `json:"tax"`
	DiscountAmount      float64               `json:"discount_amount"`
	ShippingDiscount    float64               `json:"shipping_discount,omitempty"`
	WaivedDeliveryFee   float64               `json:"waived_delivery_fee,omitempty"`
	Total               float64               `json:"total"`
	PointsEarned        int                   `json:"points_earned,omitempty"`
	Estimated           bool                  `json:"estimated,omitempty"`
	CalculatedAt        time.Time             `json:"calculated_at"`
	Lines               []snapshotLinePayload `json:"lines,omitempty"`
}

type snapshotLinePayload struct {
	ProductID string  `json:"product_id"`
	VariantID string  `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

type readinessPayload struct {
	CanPlaceOrder bool   `json:"can_place_order"`
	Progress      int    `json:"progress"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
}

type stockWarningPayload struct {
	Message      string `json:"message"`
	ProductTitle string `json:"product_title,omitempty"`
	VariantLabel string `json:"variant_label,omitempty"`
	Suggestion   string `json:"suggestion,omitempty"`
}

type branchListingPayload struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	DistanceKm   float64 `json:"distance_km"`
	DeliveryFee  float64 `json:"delivery_fee,omitempty"`
	Availability string  `json:"availability"`
	MinAvailable *int    `json:"min_available,omitempty"`
	Message      string  `json:"message,omitempty"`
	Active       bool    `json:"active"`
}

type placeOrderResponse struct {
	OrderID      string          `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	Total        float64         `json:"total"`
	PointsEarned int             `json:"points_earned,omitempty"`
	Payment      *paymentPayload `json:"payment,omitempty"`
	PaymentError string          `json:"payment_error,omitempty"`
}

type placedOrderPayload struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

type paymentPayload struct {
	SessionID   string    `json:"session_id"`
	Provider    string    `json:"provider"`
	RedirectURL string    `json:"redirect_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func renderSession(state services.CheckoutState, locale string) sessionResponse {
	resp := sessionResponse{
		ID:         state.ID,
		Phase:      string(state.Phase),
		OrderType:  string(state.OrderType),
		BranchID:   state.BranchID,
		ZoneNotice: state.ZoneNotice,
		Failure:    string(state.Failure),
		LastError:  state.LastError,
		Readiness: readinessPayload{
			CanPlaceOrder: state.Readiness.CanPlaceOrder,
			Progress:      state.Readiness.Progress,
			Reason:        string(state.Readiness.Reason),
			Message:       state.Readiness.Message,
		},
	}
	if state.BranchNotice != nil {
		resp.BranchNotice = &branchNoticePayload{
			BranchID:   state.BranchNotice.BranchID,
			Title:      state.BranchNotice.Title.Resolve(locale),
			DistanceKm: state.BranchNotice.DistanceKm,
		}
	}
	if state.Promotion != nil {
		resp.Promotion = &promotionPayload{
			Code:  state.Promotion.Code,
			Title: state.Promotion.Title.Resolve(locale),
			Kind:  string(state.Promotion.Kind),
			Value: state.Promotion.Value,
		}
	}
	if state.Snapshot != nil {
		resp.Snapshot = renderSnapshot(state.Snapshot)
	}
	for _, warning := range state.StockWarnings {
		resp.StockWarnings = append(resp.StockWarnings, stockWarningPayload{
			Message:      warning.Message,
			ProductTitle: warning.ProductTitle,
			VariantLabel: warning.VariantLabel,
			Suggestion:   warning.Suggestion,
		})
	}
	return resp
}

func renderSnapshot(snap *services.CalculationSnapshot) *snapshotPayload {
	out := &snapshotPayload{
		Subtotal:            snap.Subtotal,
		DeliveryFee:         snap.DeliveryFee,
		DeliveryFeeOriginal: snap.DeliveryFeeOriginal,
		Tax:                 snap.Tax,
		DiscountAmount:      snap.DiscountAmount,
		ShippingDiscount:    snap.ShippingDiscount,
		WaivedDeliveryFee:   snap.WaivedDeliveryFee,
		Total:               snap.Total,
		PointsEarned:        snap.PointsEarned,
		Estimated:           snap.Estimated,
		CalculatedAt:        snap.CalculatedAt,
	}
	for _, line := range snap.Lines {
		out.Lines = append(out.Lines, snapshotLinePayload{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return out
}
