package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mercato/storefront/internal/marketplace"
)

type CheckoutHandler struct {
	session SessionAPI
	timeout time.Duration
}

func NewCheckoutHandler(session SessionAPI, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{session: session, timeout: timeout}
}

type PlaceOrderRequestDTO struct {
	Customer marketplace.Customer `json:"customer"`
}

func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PlaceOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Customer.Name == "" || req.Customer.Email == "" {
		respondError(w, http.StatusBadRequest, "invalid_customer", "customer name and email are required")
		return
	}

	order, err := h.session.PlaceOrder(ctx, req.Customer)
	if err != nil {
		if order == nil {
			handleSessionError(w, err)
			return
		}
		// The order exists; only the local cleanup failed.
		log.Printf("order %s placed with warning: %v", order.OrderID, err)
	}

	respondJSON(w, http.StatusCreated, order)
}

func (h *CheckoutHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req marketplace.PaymentVerification
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.OrderID == "" || req.PaymentID == "" {
		respondError(w, http.StatusBadRequest, "invalid_payment", "order_id and payment_id are required")
		return
	}

	result, err := h.session.VerifyPayment(ctx, req)
	if err != nil {
		handleSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *CheckoutHandler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ref := chi.URLParam(r, "ref")
	if ref == "" {
		respondError(w, http.StatusBadRequest, "invalid_reference", "order reference is required")
		return
	}

	info, err := h.session.TrackOrder(ctx, ref)
	if err != nil {
		handleSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}
