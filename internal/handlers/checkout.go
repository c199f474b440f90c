package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/khobz-app/checkout/internal/domain"
	"github.com/khobz-app/checkout/internal/platform/httpx"
	"github.com/khobz-app/checkout/internal/platform/observability"
	"github.com/khobz-app/checkout/internal/platform/requestctx"
	"github.com/khobz-app/checkout/internal/services"
)

const maxBodySize = 64 * 1024

// userIDHeader carries the upstream-verified user id; empty means guest.
const userIDHeader = "X-User-Id"

// BranchLister fetches the branch candidates for new sessions.
type BranchLister interface {
	ListBranches(ctx context.Context) ([]services.Branch, error)
}

// CheckoutFactory builds a checkout session aggregate for a store-issued id.
type CheckoutFactory func(id, userID, locale string) (*services.Checkout, error)

// CheckoutHandlers exposes the session-scoped checkout API.
type CheckoutHandlers struct {
	store        *SessionStore
	newCheckout  CheckoutFactory
	placer       *services.OrderPlacer
	availability *services.AvailabilityResolver
	branches     BranchLister
	guestOrders  *GuestOrderLog
}

// NewCheckoutHandlers constructs the checkout handler set. guestOrders may be
// nil when guest order recovery is not wired.
func NewCheckoutHandlers(store *SessionStore, factory CheckoutFactory, placer *services.OrderPlacer, availability *services.AvailabilityResolver, branches BranchLister, guestOrders *GuestOrderLog) *CheckoutHandlers {
	return &CheckoutHandlers{
		store:        store,
		newCheckout:  factory,
		placer:       placer,
		availability: availability,
		branches:     branches,
		guestOrders:  guestOrders,
	}
}

// Routes wires the /checkout/sessions endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createSession)
	r.Route("/{sessionID}", func(sr chi.Router) {
		sr.Get("/", h.getSession)
		sr.Put("/cart", h.updateCart)
		sr.Put("/address", h.selectAddress)
		sr.Put("/order-type", h.setOrderType)
		sr.Put("/guest", h.setGuestInfo)
		sr.Put("/location", h.setLocation)
		sr.Put("/branch", h.selectBranch)
		sr.Get("/branches", h.listBranches)
		sr.Post("/promotion", h.applyPromotion)
		sr.Delete("/promotion", h.removePromotion)
		sr.Delete("/warnings", h.dismissWarnings)
		sr.Post("/order", h.placeOrder)
		sr.Get("/orders", h.listOrders)
	})
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSessionRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	locale := strings.ToLower(strings.TrimSpace(req.Locale))
	if locale == "" {
		locale = requestctx.Locale(ctx)
	}
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))

	checkout, err := h.newCheckout(h.store.NewID(), userID, locale)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_create_failed", err.Error(), http.StatusInternalServerError))
		return
	}

	if orderType := parseOrderType(req.OrderType); orderType != "" {
		checkout.SetOrderType(ctx, orderType)
	}

	location := domain.LatLng{Lat: req.Latitude, Lng: req.Longitude}
	branches, err := h.branches.ListBranches(ctx)
	if err != nil {
		// A session without branches is still useful; the first branch-list
		// refresh will trigger the initial calculation.
		requestctx.Logger(ctx).Warn("branch listing failed during session create")
	} else {
		checkout.SetBranches(ctx, branches, location)
	}

	checkout.SetCart(ctx, toLines(req.Lines))
	h.store.Put(checkout)

	httpx.WriteJSON(ctx, w, http.StatusCreated, renderSession(checkout.State(), locale))
}

func (h *CheckoutHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, renderSession(checkout.State(), requestctx.Locale(ctx)))
}

func (h *CheckoutHandlers) updateCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	var req updateCartRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	for _, line := range req.Lines {
		if strings.TrimSpace(line.ProductID) == "" || line.Quantity <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_cart_line", "each line needs a product id and a positive quantity", http.StatusBadRequest))
			return
		}
	}
	checkout.SetCart(ctx, toLines(req.Lines))
	httpx.WriteJSON(ctx, w, http.StatusOK, renderSession(checkout.State(), requestctx.Locale(ctx)))
}

func (h *CheckoutHandlers) selectAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	var req selectAddressRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_address", "address id is required", http.StatusBadRequest))
		return
	}
	checkout.SelectAddress(ctx, &domain.Address{
		ID:              req.ID,
		Name:            req.Name,
		Phone:           req.Phone,
		Street:          req.Street,
		Building:        req.Building,
		Details:         req.Details,
		Location:        domain.LatLng{Lat: req.Latitude, Lng: req.Longitude},
		AreaDeliveryFee: req.AreaDeliveryFee,
	})
	httpx.WriteJSON(ctx, w, http.StatusOK, renderSession(checkout.State(), requestctx.Locale(ctx)))
}

func (h *CheckoutHandlers) setOrderType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	var req orderTypeRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	orderType := parseOrderType(req.OrderType)
	if orderType == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_type", "order_type must be delivery or pickup", http.StatusBadRequest))
		return
	}
	if zone := strings.ToLower(strings.TrimSpace(req.DeliveryZone)); zone != "" {
		checkout.SetDeliveryZone(ctx, domain.DeliveryZone(zone))
	}
	checkout.SetOrderType(ctx, orderType)
	httpx.WriteJSON(ctx, w, http.StatusOK, renderSession(checkout.State(), requestctx.Locale(ctx)))
}

func (h *CheckoutHandlers) setGuestInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	var req guestInfoRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	checkout.SetGuestContact(ctx, domain.GuestContact{
		Name:        req.Name,
		Phone:       req.Phone,
		AddressText: req.AddressText,
	})
	if req.Latitude != 0 || req.Longitude != 0 {
		checkout.SetGuestLocation(ctx, domain.GuestLocation{
			Coordinate: domain.LatLng{Lat: req.Latitude, Lng: req.Longitude},
			Confirmed:  req.Confirmed,
		})
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, renderSession(checkout.State(), requestctx.Locale(ctx)))
}

// reportedFixes presents the client-reported geolocation readings at the
// device locator boundary so the resolver can run its precise-then-coarse
// fallback against them.
type reportedFixes struct {
	precise *domain.LatLng
	coarse  *domain.LatLng
	denied  bool
}

func (f reportedFixes) Locate(_ context.Context, accuracy services.LocationAccuracy) (domain.LatLng, error) {
	if f.denied {
		return domain.LatLng{}, services.ErrLocationDenied
	}
	var fix *domain.LatLng
	switch accuracy {
	case services.AccuracyHigh:
		fix = f.precise
	case services.AccuracyCoarse:
		fix = f.coarse
	}
	if fix == nil {
		return domain.LatLng{}, services.ErrPositionUnavailable
	}
	return *fix, nil
}

func (h *CheckoutHandlers) setLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	var req locateRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	locator := reportedFixes{denied: req.Denied}
	if req.Precise != nil {
		locator.precise = &domain.LatLng{Lat: req.Precise.Latitude, Lng: req.Precise.Longitude}
	}
	if req.Coarse != nil {
		locator.coarse = &domain.LatLng{Lat: req.Coarse.Latitude, Lng: req.Coarse.Longitude}
	}
	resolver, err := services.NewLocationResolver(services.LocationResolverDeps{
		Locator: locator,
		Logger:  observability.EventLogger(requestctx.Logger(ctx)),
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("location_failed", err.Error(), http.StatusInternalServerError))
		return
	}

	fix, err := resolver.Resolve(ctx)
	if err != nil {
		if errors.Is(err, services.ErrLocationDenied) {
			httpx.WriteError(ctx, w, httpx.NewError("location_denied", "location permission was denied", http.StatusUnprocessableEntity))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("location_unavailable", "no usable location fix was reported", http.StatusUnprocessableEntity))
		return
	}

	checkout.SetGuestLocation(ctx, domain.GuestLocation{Coordinate: fix, Confirmed: true})
	httpx.WriteJSON(ctx, w, http.StatusOK, renderSession(checkout.State(), requestctx.Locale(ctx)))
}

func (h *CheckoutHandlers) selectBranch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	var req selectBranchRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	state := checkout.State()
	if tone, known := h.branchTone(ctx, state, req.BranchID); known && !tone.Selectable() {
		httpx.WriteError(ctx, w, httpx.NewError("branch_unavailable",
			"the selected branch cannot serve this cart", http.StatusConflict).
			WithDetails(map[string]any{"availability": string(tone)}))
		return
	}

	if err := checkout.SelectBranch(ctx, req.BranchID); err != nil {
		if errors.Is(err, services.ErrUnknownBranch) {
			httpx.WriteError(ctx, w, httpx.NewError("branch_not_found", "unknown branch id", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("branch_select_failed", err.Error(), http.StatusInternalServerError))
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, renderSession(checkout.State(), requestctx.Locale(ctx)))
}

// branchTone resolves the availability tone for one branch. Unknown is
// returned as not-known so resolver outages never block selection.
func (h *CheckoutHandlers) branchTone(ctx context.Context, state services.CheckoutState, branchID string) (services.AvailabilityTone, bool) {
	if h.availability == nil || len(state.Lines) == 0 {
		return domain.ToneUnknown, false
	}
	statuses, err := h.availability.Resolve(ctx, state.Lines, []string{branchID})
	if err != nil {
		return domain.ToneUnknown, false
	}
	for _, status := range statuses {
		if status.BranchID == branchID {
			return status.Tone, true
		}
	}
	return domain.ToneUnknown, false
}

func (h *CheckoutHandlers) listBranches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	locale := requestctx.Locale(ctx)
	state := checkout.State()

	location := domain.LatLng{}
	if state.Address != nil {
		location = state.Address.Location
	} else if state.GuestLocation.Confirmed {
		location = state.GuestLocation.Coordinate
	}

	tones := map[string]services.BranchAvailability{}
	if h.availability != nil && len(state.Lines) > 0 && len(state.Branches) > 0 {
		ids := make([]string, 0, len(state.Branches))
		for _, branch := range state.Branches {
			ids = append(ids, branch.ID)
		}
		if statuses, err := h.availability.Resolve(ctx, state.Lines, ids); err == nil {
			for _, status := range statuses {
				tones[status.BranchID] = status
			}
		}
	}

	listings := make([]branchListingPayload, 0, len(state.Branches))
	for _, entry := range services.BranchDistances(state.Branches, location) {
		listing := branchListingPayload{
			ID:           entry.Branch.ID,
			Title:        entry.Branch.Title.Resolve(locale),
			DistanceKm:   entry.DistanceKm,
			DeliveryFee:  entry.Branch.DeliveryFee,
			Availability: string(domain.ToneUnknown),
			Active:       entry.Branch.Active,
		}
		if status, ok := tones[entry.Branch.ID]; ok {
			listing.Availability = string(status.Tone)
			listing.MinAvailable = status.MinAvailable
			listing.Message = status.Message
		} else if !entry.Branch.Active {
			listing.Availability = string(domain.ToneInactive)
		}
		listings = append(listings, listing)
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"branches": listings})
}

func (h *CheckoutHandlers) applyPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	var req applyPromotionRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if _, err := checkout.ApplyPromotion(ctx, req.Code); err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyPromoCode):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_promo_code", "promo code is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("promo_rejected", "the promo code could not be applied", http.StatusUnprocessableEntity))
		}
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, renderSession(checkout.State(), requestctx.Locale(ctx)))
}

func (h *CheckoutHandlers) removePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	checkout.RemovePromotion(ctx)
	httpx.WriteJSON(ctx, w, http.StatusOK, renderSession(checkout.State(), requestctx.Locale(ctx)))
}

func (h *CheckoutHandlers) dismissWarnings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	checkout.DismissStockWarnings()
	httpx.WriteJSON(ctx, w, http.StatusOK, renderSession(checkout.State(), requestctx.Locale(ctx)))
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod)))
	if method != domain.PaymentCash && method != domain.PaymentCard {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payment_method", "payment_method must be cash or card", http.StatusBadRequest))
		return
	}

	locale := requestctx.Locale(ctx)
	result, err := h.placer.Place(ctx, checkout, services.PlaceOptions{
		PaymentMethod: method,
		Notes:         req.Notes,
	})
	if err != nil {
		httpx.WriteError(ctx, w, placementError(err, locale))
		return
	}

	resp := placeOrderResponse{
		OrderID:      result.Order.ID,
		OrderNumber:  result.Order.Number,
		Total:        result.Order.Total,
		PointsEarned: result.Order.PointsEarned,
		PaymentError: result.PaymentError,
	}
	if result.Payment != nil {
		resp.Payment = &paymentPayload{
			SessionID:   result.Payment.ID,
			Provider:    result.Payment.Provider,
			RedirectURL: result.Payment.RedirectURL,
			ExpiresAt:   result.Payment.ExpiresAt,
		}
	}
	httpx.WriteJSON(ctx, w, http.StatusCreated, resp)
}

func (h *CheckoutHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkout, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	var orders []services.PlacedOrder
	if h.guestOrders != nil {
		orders = h.guestOrders.Orders(checkout.ID())
	}
	payloads := make([]placedOrderPayload, 0, len(orders))
	for _, order := range orders {
		payloads = append(payloads, placedOrderPayload{
			ID:        order.ID,
			Number:    order.Number,
			Total:     order.Total,
			CreatedAt: order.CreatedAt,
		})
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"orders": payloads})
}

// placementError maps placement failures to the error envelope: precondition
// rejections are conflicts with a localized message, exhausted submissions
// are bad gateways.
func placementError(err error, locale string) httpx.Error {
	message := services.PlacementMessage(err, locale)
	switch {
	case errors.Is(err, services.ErrOrderCreateFailed):
		return httpx.NewError("order_create_failed", message, http.StatusBadGateway)
	case errors.Is(err, services.ErrStoreClosed):
		return httpx.NewError("store_closed", message, http.StatusConflict)
	case errors.Is(err, services.ErrGuestInfoInvalid),
		errors.Is(err, services.ErrCartInvalid),
		errors.Is(err, services.ErrAddressRequired),
		errors.Is(err, services.ErrCalculationMissing),
		errors.Is(err, services.ErrStockBlocked):
		return httpx.NewError("order_not_ready", message, http.StatusConflict)
	default:
		return httpx.NewError("order_failed", message, http.StatusInternalServerError)
	}
}

func (h *CheckoutHandlers) session(ctx context.Context, w http.ResponseWriter, r *http.Request) (*services.Checkout, bool) {
	id := chi.URLParam(r, "sessionID")
	checkout, err := h.store.Get(id)
	if err != nil {
		requestctx.Logger(ctx).Debug("unknown checkout session",
			zap.String("session_id", observability.SanitizeSessionID(id)))
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "checkout session not found or expired", http.StatusNotFound))
		return nil, false
	}
	return checkout, true
}

func decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) bool {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := decoder.Decode(out); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func parseOrderType(raw string) domain.OrderType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(domain.OrderTypeDelivery):
		return domain.OrderTypeDelivery
	case string(domain.OrderTypePickup):
		return domain.OrderTypePickup
	default:
		return ""
	}
}
