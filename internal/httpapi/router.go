package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the storefront-facing API.
func NewRouter(session SessionAPI, requestTimeout time.Duration) http.Handler {
	cartHandler := NewCartHandler(session, requestTimeout)
	checkoutHandler := NewCheckoutHandler(session, requestTimeout)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			r.Post("/coupon", cartHandler.ApplyCoupon)
			r.Get("/pricing", cartHandler.GetPricing)
		})
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/order", checkoutHandler.PlaceOrder)
			r.Post("/verify", checkoutHandler.VerifyPayment)
		})
		r.Get("/orders/{ref}/tracking", checkoutHandler.TrackOrder)
	})

	return r
}
