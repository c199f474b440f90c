package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/khobz-app/checkout/internal/payments"
	"github.com/khobz-app/checkout/internal/platform/httpx"
)

// PaymentHandlers exposes provider-side payment lookups so clients can poll
// the authorization state after the redirect handoff.
type PaymentHandlers struct {
	manager *payments.Manager
}

// NewPaymentHandlers constructs the payment handler set.
func NewPaymentHandlers(manager *payments.Manager) *PaymentHandlers {
	return &PaymentHandlers{manager: manager}
}

// Routes wires the /payments endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{intentID}", h.getPayment)
}

func (h *PaymentHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	intentID := strings.TrimSpace(chi.URLParam(r, "intentID"))
	if intentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_intent", "payment intent id is required", http.StatusBadRequest))
		return
	}

	details, err := h.manager.LookupPayment(ctx, r.URL.Query().Get("provider"), intentID)
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			httpx.WriteError(ctx, w, httpx.NewError("unsupported_provider", "no payment provider for this lookup", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("payment_lookup_failed", "the payment could not be retrieved", http.StatusBadGateway))
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, paymentDetailsPayload{
		Provider:    details.Provider,
		IntentID:    details.IntentID,
		Status:      string(details.Status),
		AmountMinor: details.AmountMinor,
		Currency:    details.Currency,
	})
}
