// Package session is the one object a storefront needs: it owns the local
// cart, the remote sync queue, pricing and checkout. It is constructed at
// the entry point and passed down; there is no package-level mutable state.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/mercato/storefront/internal/domain"
	"github.com/mercato/storefront/internal/marketplace"
)

var ErrEmptyCart = errors.New("cart is empty, nothing to checkout")

// CartStorage is the local source of truth for cart contents.
type CartStorage interface {
	Get(ctx context.Context) (*domain.Cart, error)
	AddItem(ctx context.Context, line domain.CartLine) (*domain.Cart, error)
	SetQuantity(ctx context.Context, productID string, quantity int) (int, *domain.Cart, error)
	RemoveItem(ctx context.Context, productID string) (*domain.Cart, *domain.CartLine, error)
	Clear(ctx context.Context) error
	Pricing(ctx context.Context) (*domain.PricingSnapshot, error)
	Coupon(ctx context.Context) (*domain.PricingSnapshot, error)
}

// SyncQueue schedules best-effort remote mirroring of local mutations.
type SyncQueue interface {
	EnqueueUpsert(cartID, productID string, quantity int)
	EnqueueRemove(cartID string, line domain.CartLine)
}

// CouponApplier applies a coupon remotely and persists the result.
type CouponApplier interface {
	ApplyCoupon(ctx context.Context, cartID, code string) (*domain.PricingSnapshot, error)
}

// CheckoutClient covers the order-side marketplace calls.
type CheckoutClient interface {
	CreateOrder(ctx context.Context, cartID string, customer marketplace.Customer) (*marketplace.Order, error)
	VerifyPayment(ctx context.Context, v marketplace.PaymentVerification) (*marketplace.PaymentResult, error)
	TrackOrder(ctx context.Context, ref string) (*marketplace.TrackingInfo, error)
}

type Session struct {
	store    CartStorage
	syncer   SyncQueue
	coupons  CouponApplier
	checkout CheckoutClient
}

func New(store CartStorage, syncer SyncQueue, coupons CouponApplier, checkout CheckoutClient) *Session {
	return &Session{
		store:    store,
		syncer:   syncer,
		coupons:  coupons,
		checkout: checkout,
	}
}

// Cart returns the local cart.
func (s *Session) Cart(ctx context.Context) (*domain.Cart, error) {
	return s.store.Get(ctx)
}

// Pricing returns the last remote snapshot, or nil when none exists yet.
func (s *Session) Pricing(ctx context.Context) (*domain.PricingSnapshot, error) {
	return s.store.Pricing(ctx)
}

// AddItem applies the optimistic local add, then schedules the remote
// mirror with the line's merged quantity.
func (s *Session) AddItem(ctx context.Context, line domain.CartLine) (*domain.Cart, error) {
	cart, err := s.store.AddItem(ctx, line)
	if err != nil {
		return nil, err
	}
	if merged := cart.Find(line.ProductID); merged != nil {
		s.syncer.EnqueueUpsert(cart.CartID, merged.ProductID, merged.Quantity)
	}
	return cart, nil
}

// SetQuantity stores an absolute quantity. A quantity of zero or less
// behaves as RemoveItem; a non-positive quantity is never persisted.
func (s *Session) SetQuantity(ctx context.Context, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, productID)
	}

	stored, cart, err := s.store.SetQuantity(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}
	s.syncer.EnqueueUpsert(cart.CartID, productID, stored)
	return cart, nil
}

// RemoveItem drops the line locally and schedules the remote removal. The
// remote call needs the marketplace's row id, which rides on the removed
// line when the earlier add was confirmed.
func (s *Session) RemoveItem(ctx context.Context, productID string) (*domain.Cart, error) {
	cartID := ""
	if current, err := s.store.Get(ctx); err == nil {
		cartID = current.CartID
	}

	cart, removed, err := s.store.RemoveItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	if cartID != "" {
		s.syncer.EnqueueRemove(cartID, *removed)
	}
	return cart, nil
}

// Clear empties the cart and all correlated state.
func (s *Session) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// ApplyCoupon applies the code against the current cart.
func (s *Session) ApplyCoupon(ctx context.Context, code string) (*domain.PricingSnapshot, error) {
	cart, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cart.Empty() {
		return nil, ErrEmptyCart
	}
	return s.coupons.ApplyCoupon(ctx, cart.CartID, code)
}

// PlaceOrder creates the order remotely and, on success, deletes the local
// cart entirely so the next add starts a fresh cart lifetime.
func (s *Session) PlaceOrder(ctx context.Context, customer marketplace.Customer) (*marketplace.Order, error) {
	cart, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cart.Empty() {
		return nil, ErrEmptyCart
	}

	order, err := s.checkout.CreateOrder(ctx, cart.CartID, customer)
	if err != nil {
		return nil, err
	}

	if errClear := s.store.Clear(ctx); errClear != nil {
		// The order exists remotely; a stale local cart is recoverable.
		return order, fmt.Errorf("order placed but cart not cleared: %w", errClear)
	}
	return order, nil
}

// VerifyPayment confirms a payment provider callback with the marketplace.
func (s *Session) VerifyPayment(ctx context.Context, v marketplace.PaymentVerification) (*marketplace.PaymentResult, error) {
	return s.checkout.VerifyPayment(ctx, v)
}

// TrackOrder fetches shipment tracking by order id or AWB.
func (s *Session) TrackOrder(ctx context.Context, ref string) (*marketplace.TrackingInfo, error) {
	return s.checkout.TrackOrder(ctx, ref)
}
