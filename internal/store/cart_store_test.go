package store

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercato/storefront/internal/bus"
	"github.com/mercato/storefront/internal/domain"
)

type recordingBus struct {
	m      sync.Mutex
	events []bus.Event
}

func (b *recordingBus) Publish(_ context.Context, e bus.Event) error {
	b.m.Lock()
	defer b.m.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) last() bus.Event {
	b.m.Lock()
	defer b.m.Unlock()
	if len(b.events) == 0 {
		return bus.Event{}
	}
	return b.events[len(b.events)-1]
}

func (b *recordingBus) count() int {
	b.m.Lock()
	defer b.m.Unlock()
	return len(b.events)
}

func setupStore(t *testing.T) (*CartStore, *miniredis.Miniredis, *recordingBus) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rb := &recordingBus{}
	return NewCartStore(client, rb), mr, rb
}

func line(productID string, qty int) domain.CartLine {
	return domain.CartLine{
		ProductID: productID,
		Name:      "Product " + productID,
		UnitPrice: decimal.NewFromInt(100),
		Quantity:  qty,
	}
}

func TestAddItem_MergesByProduct(t *testing.T) {
	sut, _, rb := setupStore(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, line("P1", 2))
	require.NoError(t, err)
	cart, err := sut.AddItem(ctx, line("P1", 3))
	require.NoError(t, err)

	require.Len(t, cart.Lines, 1, "adding the same product twice must never duplicate the line")
	assert.Equal(t, 5, cart.Lines[0].Quantity)
	assert.Equal(t, bus.TopicCartChanged, rb.last().Topic)
}

func TestAddItem_MintsCartIDOnce(t *testing.T) {
	sut, _, _ := setupStore(t)
	ctx := context.Background()

	first, err := sut.AddItem(ctx, line("P1", 1))
	require.NoError(t, err)
	require.NotEmpty(t, first.CartID)

	second, err := sut.AddItem(ctx, line("P2", 1))
	require.NoError(t, err)
	assert.Equal(t, first.CartID, second.CartID, "cart id must be stable while the cart is non-empty")
}

func TestSetQuantity_Floor(t *testing.T) {
	sut, _, _ := setupStore(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, line("P1", 2))
	require.NoError(t, err)

	stored, cart, err := sut.SetQuantity(ctx, "P1", -3)
	require.NoError(t, err)
	assert.Equal(t, 1, stored, "non-positive quantities are never persisted")
	assert.Equal(t, 1, cart.Lines[0].Quantity)
}

func TestSetQuantity_UnknownProduct(t *testing.T) {
	sut, _, _ := setupStore(t)

	_, _, err := sut.SetQuantity(context.Background(), "P404", 3)
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestRemoveItem_LastLineDeletesEverything(t *testing.T) {
	sut, mr, _ := setupStore(t)
	ctx := context.Background()

	first, err := sut.AddItem(ctx, line("P1", 2))
	require.NoError(t, err)
	require.NoError(t, sut.SetPricing(ctx, &domain.PricingSnapshot{GrandTotal: decimal.NewFromInt(200)}))

	cart, removed, err := sut.RemoveItem(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, cart.Empty())
	assert.Equal(t, "P1", removed.ProductID)

	assert.False(t, mr.Exists(KeyCart))
	assert.False(t, mr.Exists(KeyCartID))
	assert.False(t, mr.Exists(KeyPricing))

	// A later add starts a new cart lifetime.
	fresh, err := sut.AddItem(ctx, line("P2", 1))
	require.NoError(t, err)
	require.NotEmpty(t, fresh.CartID)
	assert.NotEqual(t, first.CartID, fresh.CartID)
}

func TestRemoveItem_KeepsRemainingLines(t *testing.T) {
	sut, _, _ := setupStore(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, line("P1", 1))
	require.NoError(t, err)
	_, err = sut.AddItem(ctx, line("P2", 4))
	require.NoError(t, err)

	cart, removed, err := sut.RemoveItem(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "P1", removed.ProductID)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "P2", cart.Lines[0].ProductID)
	assert.NotEmpty(t, cart.CartID)
}

func TestClear_BroadcastsDistinctSignal(t *testing.T) {
	sut, mr, rb := setupStore(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, line("P1", 1))
	require.NoError(t, err)
	require.NoError(t, sut.SetCoupon(ctx, &domain.PricingSnapshot{}))

	require.NoError(t, sut.Clear(ctx))

	e := rb.last()
	assert.Equal(t, bus.TopicCartCleared, e.Topic)
	assert.ElementsMatch(t, []string{KeyCart, KeyCartID, KeyPricing, KeyCoupon}, e.Keys)
	assert.False(t, mr.Exists(KeyCart))
	assert.False(t, mr.Exists(KeyCoupon))
}

func TestSetRowID(t *testing.T) {
	sut, _, _ := setupStore(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, line("P1", 1))
	require.NoError(t, err)

	require.NoError(t, sut.SetRowID(ctx, "P1", "row-55"))

	cart, err := sut.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "row-55", cart.Lines[0].RowID)

	// A line removed mid-flight is not an error.
	require.NoError(t, sut.SetRowID(ctx, "P404", "row-56"))
}

func TestPricingSnapshot_RoundTripAndAbsence(t *testing.T) {
	sut, _, rb := setupStore(t)
	ctx := context.Background()

	snap, err := sut.Pricing(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap, "absence of the key means uninitialized, not an error")

	want := &domain.PricingSnapshot{
		Subtotal:   decimal.NewFromInt(250),
		Shipping:   decimal.NewFromInt(40),
		Tax:        decimal.NewFromInt(45),
		GrandTotal: decimal.NewFromInt(335),
		Contents:   []domain.RemoteLine{{RowID: "r1", ProductID: "P1", Quantity: 2}},
	}
	require.NoError(t, sut.SetPricing(ctx, want))
	assert.Equal(t, bus.TopicPricingChanged, rb.last().Topic)

	got, err := sut.Pricing(ctx)
	require.NoError(t, err)
	assert.True(t, got.GrandTotal.Equal(want.GrandTotal))
	assert.Equal(t, "r1", got.FindRow("P1"))
}

func TestGet_EmptyStoreYieldsEmptyCart(t *testing.T) {
	sut, _, rb := setupStore(t)

	cart, err := sut.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, cart.Empty())
	assert.Empty(t, cart.CartID)
	assert.Equal(t, 0, rb.count(), "reads never notify")
}
