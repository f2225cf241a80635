package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mercato/storefront/internal/domain"
	"github.com/mercato/storefront/internal/marketplace"
	"github.com/mercato/storefront/internal/session"
	"github.com/mercato/storefront/internal/store"
)

// SessionAPI is what the handlers need from the session object.
type SessionAPI interface {
	Cart(ctx context.Context) (*domain.Cart, error)
	Pricing(ctx context.Context) (*domain.PricingSnapshot, error)
	AddItem(ctx context.Context, line domain.CartLine) (*domain.Cart, error)
	SetQuantity(ctx context.Context, productID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, productID string) (*domain.Cart, error)
	Clear(ctx context.Context) error
	ApplyCoupon(ctx context.Context, code string) (*domain.PricingSnapshot, error)
	PlaceOrder(ctx context.Context, customer marketplace.Customer) (*marketplace.Order, error)
	VerifyPayment(ctx context.Context, v marketplace.PaymentVerification) (*marketplace.PaymentResult, error)
	TrackOrder(ctx context.Context, ref string) (*marketplace.TrackingInfo, error)
}

type CartHandler struct {
	session SessionAPI
	timeout time.Duration
}

func NewCartHandler(session SessionAPI, timeout time.Duration) *CartHandler {
	return &CartHandler{session: session, timeout: timeout}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CouponRequestDTO struct {
	Code string `json:"code"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CartViewDTO is the merged display view: local lines, the derived local
// subtotal, and the remote snapshot when one exists. GrandTotal prefers the
// remote figure and falls back to the derived subtotal, so the display is
// never blank.
type CartViewDTO struct {
	Cart       *domain.Cart            `json:"cart"`
	Subtotal   decimal.Decimal         `json:"subtotal"`
	Pricing    *domain.PricingSnapshot `json:"pricing,omitempty"`
	GrandTotal decimal.Decimal         `json:"grand_total"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.session.Cart(ctx)
	if err != nil {
		handleSessionError(w, err)
		return
	}
	snap, err := h.session.Pricing(ctx)
	if err != nil {
		log.Printf("failed to load pricing snapshot: %v", err)
		snap = nil
	}

	respondJSON(w, http.StatusOK, cartView(cart, snap))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity < 1 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil || price.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_price", "unit_price must be a non-negative decimal")
		return
	}

	cart, err := h.session.AddItem(ctx, domain.CartLine{
		ProductID: req.ProductID,
		Name:      req.Name,
		Image:     req.Image,
		UnitPrice: price,
		Quantity:  req.Quantity,
	})
	if err != nil {
		handleSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, cart)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	cart, err := h.session.SetQuantity(ctx, productID, req.Quantity)
	if err != nil {
		handleSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	cart, err := h.session.RemoveItem(ctx, productID)
	if err != nil {
		handleSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.session.Clear(ctx); err != nil {
		handleSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, &domain.Cart{})
}

func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "invalid_coupon", "code is required")
		return
	}

	snap, err := h.session.ApplyCoupon(ctx, req.Code)
	if err != nil {
		handleSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

func (h *CartHandler) GetPricing(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.session.Cart(ctx)
	if err != nil {
		handleSessionError(w, err)
		return
	}
	snap, err := h.session.Pricing(ctx)
	if err != nil {
		handleSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cartView(cart, snap))
}

func cartView(cart *domain.Cart, snap *domain.PricingSnapshot) CartViewDTO {
	view := CartViewDTO{
		Cart:       cart,
		Subtotal:   cart.Subtotal(),
		Pricing:    snap,
		GrandTotal: cart.Subtotal(),
	}
	if snap != nil {
		view.GrandTotal = snap.GrandTotal
	}
	return view
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleSessionError maps session and marketplace failures onto HTTP status
// codes the storefront UI understands.
func handleSessionError(w http.ResponseWriter, err error) {
	var apiErr *marketplace.APIError

	switch {
	case errors.Is(err, store.ErrLineNotFound):
		respondError(w, http.StatusNotFound, "not_found", "item not in cart")
	case errors.Is(err, session.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
	case errors.Is(err, marketplace.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthenticated", "marketplace session could not be established")
	case errors.As(err, &apiErr):
		respondError(w, remoteStatus(apiErr.StatusCode), apiErr.Code, apiErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "operation timed out")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// remoteStatus passes through client errors and collapses everything else
// to 502: an upstream 5xx is the marketplace's failure, not ours.
func remoteStatus(upstream int) int {
	if upstream >= 400 && upstream < 500 {
		return upstream
	}
	return http.StatusBadGateway
}
