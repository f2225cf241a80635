package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercato/storefront/internal/bus"
	"github.com/mercato/storefront/internal/domain"
	"github.com/mercato/storefront/internal/marketplace"
	"github.com/mercato/storefront/internal/store"
)

type nopBus struct{}

func (nopBus) Publish(context.Context, bus.Event) error { return nil }

type queuedOp struct {
	op        string
	cartID    string
	productID string
	rowID     string
	quantity  int
}

type recordingQueue struct {
	m   sync.Mutex
	ops []queuedOp
}

func (q *recordingQueue) EnqueueUpsert(cartID, productID string, quantity int) {
	q.m.Lock()
	defer q.m.Unlock()
	q.ops = append(q.ops, queuedOp{op: "upsert", cartID: cartID, productID: productID, quantity: quantity})
}

func (q *recordingQueue) EnqueueRemove(cartID string, line domain.CartLine) {
	q.m.Lock()
	defer q.m.Unlock()
	q.ops = append(q.ops, queuedOp{op: "remove", cartID: cartID, productID: line.ProductID, rowID: line.RowID})
}

func (q *recordingQueue) recorded() []queuedOp {
	q.m.Lock()
	defer q.m.Unlock()
	out := make([]queuedOp, len(q.ops))
	copy(out, q.ops)
	return out
}

type mockCoupons struct {
	snap *domain.PricingSnapshot
	err  error
}

func (c *mockCoupons) ApplyCoupon(context.Context, string, string) (*domain.PricingSnapshot, error) {
	return c.snap, c.err
}

type mockCheckout struct {
	order    *marketplace.Order
	result   *marketplace.PaymentResult
	tracking *marketplace.TrackingInfo
	err      error
	orders   int
}

func (c *mockCheckout) CreateOrder(context.Context, string, marketplace.Customer) (*marketplace.Order, error) {
	c.orders++
	if c.err != nil {
		return nil, c.err
	}
	return c.order, nil
}

func (c *mockCheckout) VerifyPayment(context.Context, marketplace.PaymentVerification) (*marketplace.PaymentResult, error) {
	return c.result, c.err
}

func (c *mockCheckout) TrackOrder(context.Context, string) (*marketplace.TrackingInfo, error) {
	return c.tracking, c.err
}

func setupSession(t *testing.T) (*Session, *store.CartStore, *recordingQueue, *mockCheckout) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cartStore := store.NewCartStore(client, nopBus{})
	queue := &recordingQueue{}
	checkout := &mockCheckout{order: &marketplace.Order{OrderID: "ord-1"}}
	sut := New(cartStore, queue, &mockCoupons{snap: &domain.PricingSnapshot{}}, checkout)
	return sut, cartStore, queue, checkout
}

func line(productID string, qty int) domain.CartLine {
	return domain.CartLine{
		ProductID: productID,
		Name:      "Product " + productID,
		UnitPrice: decimal.NewFromInt(100),
		Quantity:  qty,
	}
}

func TestAddItem_SyncsMergedQuantity(t *testing.T) {
	sut, _, queue, _ := setupSession(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, line("P1", 2))
	require.NoError(t, err)
	cart, err := sut.AddItem(ctx, line("P1", 3))
	require.NoError(t, err)

	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 5, cart.Lines[0].Quantity)

	ops := queue.recorded()
	require.Len(t, ops, 2)
	assert.Equal(t, queuedOp{op: "upsert", cartID: cart.CartID, productID: "P1", quantity: 5}, ops[1],
		"the remote mirror carries the merged absolute quantity")
}

func TestSetQuantity_Scenario(t *testing.T) {
	sut, _, queue, _ := setupSession(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, line("P1", 2))
	require.NoError(t, err)

	cart, err := sut.SetQuantity(ctx, "P1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Lines[0].Quantity)
	assert.True(t, cart.Subtotal().Equal(decimal.NewFromInt(500)))

	ops := queue.recorded()
	require.Len(t, ops, 2)
	assert.Equal(t, queuedOp{op: "upsert", cartID: cart.CartID, productID: "P1", quantity: 5}, ops[1])
}

func TestSetQuantity_ZeroBehavesAsRemove(t *testing.T) {
	sut, _, queue, _ := setupSession(t)
	ctx := context.Background()

	added, err := sut.AddItem(ctx, line("P1", 2))
	require.NoError(t, err)

	cart, err := sut.SetQuantity(ctx, "P1", 0)
	require.NoError(t, err)
	assert.True(t, cart.Empty())

	ops := queue.recorded()
	require.Len(t, ops, 2)
	assert.Equal(t, "remove", ops[1].op)
	assert.Equal(t, added.CartID, ops[1].cartID)
}

func TestSetQuantity_NegativeBehavesAsRemove(t *testing.T) {
	sut, _, _, _ := setupSession(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, line("P1", 2))
	require.NoError(t, err)

	cart, err := sut.SetQuantity(ctx, "P1", -3)
	require.NoError(t, err)
	assert.True(t, cart.Empty())
}

func TestRemoveItem_PassesRowIDToQueue(t *testing.T) {
	sut, cartStore, queue, _ := setupSession(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, line("P1", 1))
	require.NoError(t, err)
	require.NoError(t, cartStore.SetRowID(ctx, "P1", "row-12"))

	_, err = sut.RemoveItem(ctx, "P1")
	require.NoError(t, err)

	ops := queue.recorded()
	require.Len(t, ops, 2)
	assert.Equal(t, "remove", ops[1].op)
	assert.Equal(t, "row-12", ops[1].rowID)
}

func TestClear_ResetsEverything(t *testing.T) {
	sut, cartStore, _, _ := setupSession(t)
	ctx := context.Background()

	before, err := sut.AddItem(ctx, line("P1", 2))
	require.NoError(t, err)

	require.NoError(t, sut.Clear(ctx))

	cart, err := sut.Cart(ctx)
	require.NoError(t, err)
	assert.True(t, cart.Empty())
	assert.Empty(t, cart.CartID)

	snap, err := cartStore.Pricing(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	// The next add starts a fresh cart identity.
	after, err := sut.AddItem(ctx, line("P2", 1))
	require.NoError(t, err)
	require.NotEmpty(t, after.CartID)
	assert.NotEqual(t, before.CartID, after.CartID)
}

func TestApplyCoupon_EmptyCart(t *testing.T) {
	sut, _, _, _ := setupSession(t)

	_, err := sut.ApplyCoupon(context.Background(), "SAVE10")
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrder_ClearsCart(t *testing.T) {
	sut, _, _, checkout := setupSession(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, line("P1", 2))
	require.NoError(t, err)

	order, err := sut.PlaceOrder(ctx, marketplace.Customer{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.OrderID)
	assert.Equal(t, 1, checkout.orders)

	cart, err := sut.Cart(ctx)
	require.NoError(t, err)
	assert.True(t, cart.Empty(), "a placed order deletes the cart entirely")
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	sut, _, _, checkout := setupSession(t)

	_, err := sut.PlaceOrder(context.Background(), marketplace.Customer{Name: "Ada", Email: "a@b.c"})
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 0, checkout.orders)
}

func TestPlaceOrder_RemoteFailureKeepsCart(t *testing.T) {
	sut, _, _, checkout := setupSession(t)
	checkout.err = errors.New("marketplace down")
	ctx := context.Background()

	_, err := sut.AddItem(ctx, line("P1", 2))
	require.NoError(t, err)

	_, err = sut.PlaceOrder(ctx, marketplace.Customer{Name: "Ada", Email: "a@b.c"})
	require.Error(t, err)

	cart, err := sut.Cart(ctx)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1, "a failed order must not lose the cart")
}
