package services

import (
	"strings"

	domain "github.com/khobz-app/checkout/internal/domain"
)

// ReadinessInput is the full state the evaluator reads. It is a pure
// function input: the evaluator never mutates session state.
type ReadinessInput struct {
	Lines         []CartLine
	OrderType     OrderType
	IsGuest       bool
	Address       *Address
	Guest         GuestContact
	GuestLocation GuestLocation
	BranchID      string
	Snapshot      *CalculationSnapshot
	StockWarnings []StockWarning
	DeliveryZone  DeliveryZone
	Calculating   bool
}

// BlockingReason identifies the most specific obstacle to placing the order.
type BlockingReason string

const (
	ReasonNone               BlockingReason = ""
	ReasonZoneRestricted     BlockingReason = "zone_restricted"
	ReasonAddressMissing     BlockingReason = "address_missing"
	ReasonGPSRequired        BlockingReason = "gps_required"
	ReasonContactMissing     BlockingReason = "contact_missing"
	ReasonBranchMissing      BlockingReason = "branch_missing"
	ReasonStockShortage      BlockingReason = "stock_shortage"
	ReasonCalculationPending BlockingReason = "calculation_pending"
	ReasonIncomplete         BlockingReason = "incomplete"
)

// Readiness is the gate consumed by the UI collaborator: a boolean flag, a
// 0-100 progress score, and a single blocking reason.
type Readiness struct {
	CanPlaceOrder bool
	Progress      int
	Reason        BlockingReason
	Message       string
}

var reasonMessages = map[BlockingReason]domain.Text{
	ReasonZoneRestricted: {
		En: "Some items in your cart cannot be delivered outside Amman.",
		Ar: "بعض المنتجات في سلتك لا يمكن توصيلها خارج عمّان.",
	},
	ReasonAddressMissing: {
		En: "Select a delivery address to continue.",
		Ar: "اختر عنوان التوصيل للمتابعة.",
	},
	ReasonGPSRequired: {
		En: "GPS required: confirm your location on the map to continue.",
		Ar: "تحديد الموقع مطلوب: أكّد موقعك على الخريطة للمتابعة.",
	},
	ReasonContactMissing: {
		En: "Enter your name and phone number to continue.",
		Ar: "أدخل اسمك ورقم هاتفك للمتابعة.",
	},
	ReasonBranchMissing: {
		En: "Select a branch to continue.",
		Ar: "اختر الفرع للمتابعة.",
	},
	ReasonStockShortage: {
		En: "Some items are not available in the requested quantity.",
		Ar: "بعض المنتجات غير متوفرة بالكمية المطلوبة.",
	},
	ReasonCalculationPending: {
		En: "Calculating your order total…",
		Ar: "جارٍ احتساب قيمة طلبك…",
	},
	ReasonIncomplete: {
		En: "Complete the missing details to place your order.",
		Ar: "أكمل البيانات الناقصة لإتمام طلبك.",
	},
}

// EvaluateReadiness computes the readiness gate from current session state.
// Five equally weighted checks (cart, address, guest info, branch,
// calculation) build the progress score; stock warnings and zone
// restrictions force readiness to false regardless of score.
func EvaluateReadiness(input ReadinessInput, locale string) Readiness {
	cartOK := len(input.Lines) > 0
	addressOK := addressSatisfied(input)
	guestOK := guestInfoSatisfied(input)
	branchOK := strings.TrimSpace(input.BranchID) != ""
	calcOK := input.Snapshot.Valid() && !input.Calculating

	progress := 0
	for _, ok := range []bool{cartOK, addressOK, guestOK, branchOK, calcOK} {
		if ok {
			progress += 20
		}
	}

	zoneBlocked := zoneRestricted(input)
	stockBlocked := len(input.StockWarnings) > 0

	ready := cartOK && addressOK && guestOK && branchOK && calcOK && !zoneBlocked && !stockBlocked

	reason := blockingReason(input, cartOK, addressOK, guestOK, branchOK, calcOK, zoneBlocked, stockBlocked)

	out := Readiness{
		CanPlaceOrder: ready,
		Progress:      progress,
		Reason:        reason,
	}
	if reason != ReasonNone {
		out.Message = reasonMessages[reason].Resolve(locale)
	}
	return out
}

// blockingReason tests conditions in a fixed priority order so the UI always
// shows the most specific obstacle.
func blockingReason(input ReadinessInput, cartOK, addressOK, guestOK, branchOK, calcOK, zoneBlocked, stockBlocked bool) BlockingReason {
	switch {
	case zoneBlocked:
		return ReasonZoneRestricted
	case input.OrderType == domain.OrderTypeDelivery && !addressOK:
		if input.IsGuest {
			if strings.TrimSpace(input.Guest.AddressText) == "" {
				return ReasonAddressMissing
			}
			return ReasonGPSRequired
		}
		return ReasonAddressMissing
	case input.IsGuest && !guestOK:
		return ReasonContactMissing
	case !branchOK:
		return ReasonBranchMissing
	case stockBlocked:
		return ReasonStockShortage
	case cartOK && !calcOK:
		return ReasonCalculationPending
	case !cartOK || !addressOK || !guestOK:
		return ReasonIncomplete
	default:
		return ReasonNone
	}
}

func addressSatisfied(input ReadinessInput) bool {
	if input.OrderType != domain.OrderTypeDelivery {
		return true
	}
	if input.IsGuest {
		// Guests need both the free-text address and a confirmed GPS fix.
		return strings.TrimSpace(input.Guest.AddressText) != "" &&
			input.GuestLocation.Confirmed &&
			input.GuestLocation.Coordinate.Valid()
	}
	return input.Address != nil
}

func guestInfoSatisfied(input ReadinessInput) bool {
	if !input.IsGuest {
		return true
	}
	// Same phone rule the placement preconditions enforce, so the gate never
	// reports ready for an order placement would reject.
	return strings.TrimSpace(input.Guest.Name) != "" && ValidPhone(input.Guest.Phone)
}

func zoneRestricted(input ReadinessInput) bool {
	if input.OrderType != domain.OrderTypeDelivery || input.DeliveryZone != domain.ZoneOutside {
		return false
	}
	for _, line := range input.Lines {
		if line.DeliveryRestricted {
			return true
		}
	}
	return false
}
