package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSubtotal(t *testing.T) {
	cart := &Cart{
		Lines: []CartLine{
			{ProductID: "P1", UnitPrice: decimal.NewFromInt(100), Quantity: 2},
			{ProductID: "P2", UnitPrice: decimal.RequireFromString("19.99"), Quantity: 3},
		},
	}

	assert.True(t, cart.Subtotal().Equal(decimal.RequireFromString("259.97")),
		"got %s", cart.Subtotal())
}

func TestSubtotal_EmptyCart(t *testing.T) {
	cart := &Cart{}
	assert.True(t, cart.Subtotal().IsZero())
	assert.True(t, cart.Empty())
}

func TestFind(t *testing.T) {
	cart := &Cart{
		Lines: []CartLine{
			{ProductID: "P1", Quantity: 2},
			{ProductID: "P2", Quantity: 1},
		},
	}

	line := cart.Find("P2")
	assert.NotNil(t, line)
	assert.Equal(t, 1, line.Quantity)

	// Find returns a pointer into the cart so callers can observe mutations.
	line.Quantity = 7
	assert.Equal(t, 7, cart.Lines[1].Quantity)

	assert.Nil(t, cart.Find("P3"))
}

func TestPricingSnapshot_FindRow(t *testing.T) {
	snap := &PricingSnapshot{
		Contents: []RemoteLine{
			{RowID: "row-9", ProductID: "P1", Quantity: 2},
		},
	}

	assert.Equal(t, "row-9", snap.FindRow("P1"))
	assert.Equal(t, "", snap.FindRow("P2"))

	var nilSnap *PricingSnapshot
	assert.Equal(t, "", nilSnap.FindRow("P1"))
}
