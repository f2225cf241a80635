// Package cartsync mirrors local cart mutations to the remote marketplace
// cart, best effort. Mutations for a cart are drained by a single consumer,
// one remote call in flight at a time, so a fast double-click cannot reorder
// quantity updates at the server.
package cartsync

import (
	"context"
	"log"

	"github.com/mercato/storefront/internal/domain"
)

// RemoteCart is the slice of the marketplace client the syncer needs.
type RemoteCart interface {
	AddToCart(ctx context.Context, cartID, productID string, quantity int) (string, error)
	RemoveFromCart(ctx context.Context, cartID, rowID string) error
}

// LineStore records confirmed row ids and resolves them for removals.
type LineStore interface {
	SetRowID(ctx context.Context, productID, rowID string) error
	Pricing(ctx context.Context) (*domain.PricingSnapshot, error)
}

// Refresher re-requests remote totals after a successful mutation.
type Refresher interface {
	Refresh(ctx context.Context, cartID string)
}

type opKind int

const (
	opUpsert opKind = iota
	opRemove
)

type op struct {
	kind      opKind
	cartID    string
	productID string
	rowID     string
	quantity  int
}

type Syncer struct {
	remote  RemoteCart
	store   LineStore
	pricing Refresher
	queue   chan op
}

func NewSyncer(remote RemoteCart, store LineStore, pricing Refresher) *Syncer {
	return &Syncer{
		remote:  remote,
		store:   store,
		pricing: pricing,
		queue:   make(chan op, 256),
	}
}

// Run drains the queue until ctx is cancelled. Callers run it once, in its
// own goroutine.
func (s *Syncer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-s.queue:
			s.process(ctx, o)
		}
	}
}

// EnqueueUpsert schedules a remote add/quantity-set for the line. It never
// blocks the caller; a full queue drops the op and logs.
func (s *Syncer) EnqueueUpsert(cartID, productID string, quantity int) {
	s.enqueue(op{kind: opUpsert, cartID: cartID, productID: productID, quantity: quantity})
}

// EnqueueRemove schedules a remote removal for a line that was already
// dropped locally.
func (s *Syncer) EnqueueRemove(cartID string, line domain.CartLine) {
	s.enqueue(op{kind: opRemove, cartID: cartID, productID: line.ProductID, rowID: line.RowID})
}

func (s *Syncer) enqueue(o op) {
	select {
	case s.queue <- o:
	default:
		log.Printf("sync queue full, dropping %v for product %s", o.kind, o.productID)
	}
}

func (s *Syncer) process(ctx context.Context, o op) {
	switch o.kind {
	case opUpsert:
		s.upsert(ctx, o)
	case opRemove:
		s.remove(ctx, o)
	}
}

func (s *Syncer) upsert(ctx context.Context, o op) {
	rowID, err := s.remote.AddToCart(ctx, o.cartID, o.productID, o.quantity)
	if err != nil {
		log.Printf("remote add failed for product %s: %v", o.productID, err)
		return
	}
	if rowID != "" {
		if errSet := s.store.SetRowID(ctx, o.productID, rowID); errSet != nil {
			log.Printf("failed to record row id for product %s: %v", o.productID, errSet)
		}
	}
	s.pricing.Refresh(ctx, o.cartID)
}

func (s *Syncer) remove(ctx context.Context, o op) {
	rowID := o.rowID
	if rowID == "" {
		rowID = s.resolveRowID(ctx, o.productID)
	}
	if rowID == "" {
		// No way to address the remote row; keep the optimistic local
		// removal and move on. Accepted inconsistency, not an error.
		log.Printf("no remote row id for product %s, skipping remote removal", o.productID)
		return
	}

	if err := s.remote.RemoveFromCart(ctx, o.cartID, rowID); err != nil {
		log.Printf("remote remove failed for product %s: %v", o.productID, err)
		return
	}
	s.pricing.Refresh(ctx, o.cartID)
}

// resolveRowID falls back to the last pricing snapshot's contents when the
// line never received a confirmed row id. The snapshot may be stale.
func (s *Syncer) resolveRowID(ctx context.Context, productID string) string {
	snap, err := s.store.Pricing(ctx)
	if err != nil {
		log.Printf("failed to load pricing snapshot: %v", err)
		return ""
	}
	return snap.FindRow(productID)
}
