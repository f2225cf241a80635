// Package store is the durable, synchronous source of truth for what the
// shopper sees in their cart. Every mutation persists and then broadcasts
// which logical keys changed.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mercato/storefront/internal/bus"
	"github.com/mercato/storefront/internal/domain"
)

// Storage keys. Absence of a key means empty/uninitialized, not an error.
const (
	KeyCart    = "storefront:cart"
	KeyCartID  = "storefront:cart_id"
	KeyPricing = "storefront:pricing"
	KeyCoupon  = "storefront:coupon"
)

var ErrLineNotFound = errors.New("line not found in cart")

// Publisher is the slice of the bus the store needs.
type Publisher interface {
	Publish(ctx context.Context, e bus.Event) error
}

type CartStore struct {
	client *redis.Client
	bus    Publisher
}

func NewCartStore(client *redis.Client, publisher Publisher) *CartStore {
	return &CartStore{client: client, bus: publisher}
}

// Get returns the current cart. A missing key is an empty cart.
func (s *CartStore) Get(ctx context.Context) (*domain.Cart, error) {
	lines, err := s.lines(ctx)
	if err != nil {
		return nil, err
	}
	cartID, err := s.CartID(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.Cart{CartID: cartID, Lines: lines}, nil
}

// CartID returns the current cart identifier, or "" when no cart exists.
func (s *CartStore) CartID(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, KeyCartID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get cart id failed: %w", err)
	}
	return id, nil
}

// AddItem merges the line into the cart: an existing product's quantity is
// incremented, a new product is appended. The first add after a clear mints
// a fresh cart identifier.
func (s *CartStore) AddItem(ctx context.Context, line domain.CartLine) (*domain.Cart, error) {
	if line.Quantity < 1 {
		line.Quantity = 1
	}

	lines, err := s.lines(ctx)
	if err != nil {
		return nil, err
	}

	merged := false
	for i := range lines {
		if lines[i].ProductID == line.ProductID {
			lines[i].Quantity += line.Quantity
			merged = true
			break
		}
	}
	if !merged {
		lines = append(lines, line)
	}

	cartID, err := s.ensureCartID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.saveLines(ctx, lines); err != nil {
		return nil, err
	}

	s.notify(ctx, bus.TopicCartChanged, KeyCart)
	return &domain.Cart{CartID: cartID, Lines: lines}, nil
}

// SetQuantity stores an absolute quantity for the product, floored at 1.
// It returns the quantity actually stored, since callers display it.
// Deleting a line is RemoveItem's job, never SetQuantity's.
func (s *CartStore) SetQuantity(ctx context.Context, productID string, quantity int) (int, *domain.Cart, error) {
	if quantity < 1 {
		quantity = 1
	}

	lines, err := s.lines(ctx)
	if err != nil {
		return 0, nil, err
	}

	found := false
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = quantity
			found = true
			break
		}
	}
	if !found {
		return 0, nil, ErrLineNotFound
	}

	if err := s.saveLines(ctx, lines); err != nil {
		return 0, nil, err
	}

	cartID, err := s.CartID(ctx)
	if err != nil {
		return 0, nil, err
	}

	s.notify(ctx, bus.TopicCartChanged, KeyCart)
	return quantity, &domain.Cart{CartID: cartID, Lines: lines}, nil
}

// RemoveItem drops the line and returns it so callers can mirror the removal
// remotely. Removing the last line deletes the whole cart: contents, cart
// identifier and both snapshots.
func (s *CartStore) RemoveItem(ctx context.Context, productID string) (*domain.Cart, *domain.CartLine, error) {
	lines, err := s.lines(ctx)
	if err != nil {
		return nil, nil, err
	}

	idx := -1
	for i := range lines {
		if lines[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, ErrLineNotFound
	}

	removed := lines[idx]
	lines = append(lines[:idx], lines[idx+1:]...)

	if len(lines) == 0 {
		if err := s.deleteAll(ctx); err != nil {
			return nil, nil, err
		}
		s.notify(ctx, bus.TopicCartChanged, KeyCart, KeyCartID, KeyPricing, KeyCoupon)
		return &domain.Cart{}, &removed, nil
	}

	if err := s.saveLines(ctx, lines); err != nil {
		return nil, nil, err
	}
	cartID, err := s.CartID(ctx)
	if err != nil {
		return nil, nil, err
	}

	s.notify(ctx, bus.TopicCartChanged, KeyCart)
	return &domain.Cart{CartID: cartID, Lines: lines}, &removed, nil
}

// Clear empties the cart and everything correlated with it, then broadcasts
// the distinct cleared signal with the deleted key names.
func (s *CartStore) Clear(ctx context.Context) error {
	if err := s.deleteAll(ctx); err != nil {
		return err
	}
	s.notify(ctx, bus.TopicCartCleared, KeyCart, KeyCartID, KeyPricing, KeyCoupon)
	return nil
}

// SetRowID records the marketplace's row identifier on the line once the
// remote add call has confirmed it. A vanished line is not an error; the
// shopper removed it while the sync was in flight.
func (s *CartStore) SetRowID(ctx context.Context, productID, rowID string) error {
	lines, err := s.lines(ctx)
	if err != nil {
		return err
	}
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].RowID = rowID
			return s.saveLines(ctx, lines)
		}
	}
	return nil
}

// Pricing returns the last snapshot, or nil when none was ever fetched.
func (s *CartStore) Pricing(ctx context.Context) (*domain.PricingSnapshot, error) {
	return s.snapshot(ctx, KeyPricing)
}

// SetPricing replaces the pricing snapshot wholesale.
func (s *CartStore) SetPricing(ctx context.Context, snap *domain.PricingSnapshot) error {
	if err := s.saveSnapshot(ctx, KeyPricing, snap); err != nil {
		return err
	}
	s.notify(ctx, bus.TopicPricingChanged, KeyPricing)
	return nil
}

// Coupon returns the snapshot saved by the last coupon application, or nil.
func (s *CartStore) Coupon(ctx context.Context) (*domain.PricingSnapshot, error) {
	return s.snapshot(ctx, KeyCoupon)
}

func (s *CartStore) SetCoupon(ctx context.Context, snap *domain.PricingSnapshot) error {
	if err := s.saveSnapshot(ctx, KeyCoupon, snap); err != nil {
		return err
	}
	s.notify(ctx, bus.TopicPricingChanged, KeyCoupon)
	return nil
}

func (s *CartStore) lines(ctx context.Context) ([]domain.CartLine, error) {
	data, err := s.client.Get(ctx, KeyCart).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart failed: %w", err)
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return lines, nil
}

func (s *CartStore) saveLines(ctx context.Context, lines []domain.CartLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := s.client.Set(ctx, KeyCart, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set cart failed: %w", err)
	}
	return nil
}

func (s *CartStore) ensureCartID(ctx context.Context) (string, error) {
	id, err := s.CartID(ctx)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.client.Set(ctx, KeyCartID, id, 0).Err(); err != nil {
		return "", fmt.Errorf("redis set cart id failed: %w", err)
	}
	return id, nil
}

func (s *CartStore) snapshot(ctx context.Context, key string) (*domain.PricingSnapshot, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s failed: %w", key, err)
	}
	var snap domain.PricingSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal %s failed: %w", key, err)
	}
	return &snap, nil
}

func (s *CartStore) saveSnapshot(ctx context.Context, key string, snap *domain.PricingSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", key, err)
	}
	return nil
}

func (s *CartStore) deleteAll(ctx context.Context) error {
	if err := s.client.Del(ctx, KeyCart, KeyCartID, KeyPricing, KeyCoupon).Err(); err != nil {
		return fmt.Errorf("redis delete cart keys failed: %w", err)
	}
	return nil
}

func (s *CartStore) notify(ctx context.Context, topic bus.Topic, keys ...string) {
	if err := s.bus.Publish(ctx, bus.Event{Topic: topic, Keys: keys}); err != nil {
		log.Printf("failed to publish %s: %v", topic, err)
	}
}
