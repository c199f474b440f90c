package commerce

import (
	"context"
	"net/http"

	"github.com/oklog/ulid/v2"

	domain "github.com/khobz-app/checkout/internal/domain"
	"github.com/khobz-app/checkout/internal/services"
)

// CalculateOrder implements services.CalculationBackend.
func (c *Client) CalculateOrder(ctx context.Context, req services.CalculateOrderRequest) (services.CalculateOrderResponse, error) {
	payload := calculateRequestPayload{
		Items:        linesPayload(req.Lines),
		OrderType:    string(req.OrderType),
		BranchID:     req.BranchID,
		AddressID:    req.AddressID,
		GuestAddress: req.GuestAddress,
		PromoCode:    req.PromoCode,
		DeliveryZone: string(req.DeliveryZone),
	}
	if req.Coordinate != nil {
		payload.Latitude = &req.Coordinate.Lat
		payload.Longitude = &req.Coordinate.Lng
	}

	var resp calculateResponsePayload
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders/calculate", payload, &resp); err != nil {
		return services.CalculateOrderResponse{}, err
	}
	return resp.toResponse(), nil
}

// ValidatePromotion implements services.PromotionBackend.
func (c *Client) ValidatePromotion(ctx context.Context, code string, subtotal float64) (services.Promotion, error) {
	payload := map[string]any{
		"code":     code,
		"subtotal": subtotal,
	}
	var resp promotionPayload
	if err := c.do(ctx, http.MethodPost, "/api/v1/promotions/validate", payload, &resp); err != nil {
		return services.Promotion{}, err
	}
	return resp.toPromotion(), nil
}

// ListAvailablePromotions implements services.PromotionBackend.
func (c *Client) ListAvailablePromotions(ctx context.Context) ([]services.Promotion, error) {
	var resp struct {
		Promotions []promotionPayload `json:"promotions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/promotions", nil, &resp); err != nil {
		return nil, err
	}
	promotions := make([]services.Promotion, 0, len(resp.Promotions))
	for _, p := range resp.Promotions {
		promotions = append(promotions, p.toPromotion())
	}
	return promotions, nil
}

// CheckBranchStock implements services.AvailabilityBackend.
func (c *Client) CheckBranchStock(ctx context.Context, lines []services.CartLine, branchIDs []string) ([]services.BranchStockReport, error) {
	payload := stockCheckRequestPayload{
		Items:     linesPayload(lines),
		BranchIDs: branchIDs,
	}
	var resp stockCheckResponsePayload
	if err := c.do(ctx, http.MethodPost, "/api/v1/branches/stock-check", payload, &resp); err != nil {
		return nil, err
	}
	reports := make([]services.BranchStockReport, 0, len(resp.Branches))
	for _, branch := range resp.Branches {
		reports = append(reports, branch.toReport())
	}
	return reports, nil
}

// ListBranches fetches the branch candidates for the storefront.
func (c *Client) ListBranches(ctx context.Context) ([]services.Branch, error) {
	var resp branchListPayload
	if err := c.do(ctx, http.MethodGet, "/api/v1/branches", nil, &resp); err != nil {
		return nil, err
	}
	branches := make([]services.Branch, 0, len(resp.Branches))
	for _, branch := range resp.Branches {
		branches = append(branches, branch.toBranch())
	}
	return branches, nil
}

// CreateOrder implements services.OrderBackend.
func (c *Client) CreateOrder(ctx context.Context, req services.PlaceOrderRequest) (services.PlacedOrder, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = ulid.Make().String()
	}
	payload := createOrderRequestPayload{
		Items:          linesPayload(req.Lines),
		OrderType:      string(req.OrderType),
		BranchID:       req.BranchID,
		AddressID:      req.AddressID,
		UserID:         req.UserID,
		PromoCode:      req.PromoCode,
		PaymentMethod:  string(req.PaymentMethod),
		DeliveryZone:   string(req.DeliveryZone),
		Notes:          req.Notes,
		ExpectedTotal:  domain.Round2(req.Total),
		IdempotencyKey: key,
	}
	if req.Coordinate != nil {
		payload.Latitude = &req.Coordinate.Lat
		payload.Longitude = &req.Coordinate.Lng
	}
	if req.Guest != nil {
		payload.GuestName = req.Guest.Name
		payload.GuestPhone = req.Guest.Phone
		payload.GuestAddress = req.Guest.AddressText
	}

	var resp createOrderResponsePayload
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders", payload, &resp); err != nil {
		return services.PlacedOrder{}, err
	}
	return resp.toOrder(), nil
}

// StoreAcceptingOrders implements services.OrderBackend.
func (c *Client) StoreAcceptingOrders(ctx context.Context) (bool, error) {
	var resp storeStatusPayload
	if err := c.do(ctx, http.MethodGet, "/api/v1/store/status", nil, &resp); err != nil {
		return false, err
	}
	return resp.AcceptingOrders, nil
}
