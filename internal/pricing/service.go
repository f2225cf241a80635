// Package pricing keeps the authoritative totals fresh. Failures never blank
// out the display: the previous snapshot stays visible until a fetch
// succeeds.
package pricing

import (
	"context"
	"log"
	"time"

	"github.com/mercato/storefront/internal/domain"
)

// TaxFetcher is the slice of the marketplace client this service needs.
type TaxFetcher interface {
	GetTax(ctx context.Context, cartID string) (*domain.PricingSnapshot, error)
	ApplyCoupon(ctx context.Context, cartID, code string) (*domain.PricingSnapshot, error)
}

// SnapshotStore persists the fetched snapshots.
type SnapshotStore interface {
	SetPricing(ctx context.Context, snap *domain.PricingSnapshot) error
	SetCoupon(ctx context.Context, snap *domain.PricingSnapshot) error
}

type Service struct {
	remote  TaxFetcher
	store   SnapshotStore
	timeout time.Duration
}

func NewService(remote TaxFetcher, store SnapshotStore, timeout time.Duration) *Service {
	return &Service{remote: remote, store: store, timeout: timeout}
}

// Refresh replaces the pricing snapshot with fresh remote totals. It is
// best effort: on any failure the previous snapshot stays in place and the
// error is only logged. It runs on its own deadline so a cancelled caller
// context cannot abandon a refresh that is already due.
func (s *Service) Refresh(_ context.Context, cartID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	snap, err := s.remote.GetTax(ctx, cartID)
	if err != nil {
		log.Printf("pricing refresh failed for cart %s: %v", cartID, err)
		return
	}
	if errSet := s.store.SetPricing(ctx, snap); errSet != nil {
		log.Printf("failed to store pricing snapshot: %v", errSet)
	}
}

// ApplyCoupon applies the code remotely and stores the discounted totals as
// the coupon snapshot. Unlike Refresh, failures surface: an invalid code is
// a user-visible business error.
func (s *Service) ApplyCoupon(ctx context.Context, cartID, code string) (*domain.PricingSnapshot, error) {
	snap, err := s.remote.ApplyCoupon(ctx, cartID, code)
	if err != nil {
		return nil, err
	}
	if errSet := s.store.SetCoupon(ctx, snap); errSet != nil {
		log.Printf("failed to store coupon snapshot: %v", errSet)
	}
	return snap, nil
}
