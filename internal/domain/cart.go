package domain

import "github.com/shopspring/decimal"

// CartLine is one product in the cart. Name, Image and UnitPrice are display
// metadata captured at add time; UnitPrice may go stale relative to the
// server price. RowID is the marketplace's own key for this line, filled in
// once the remote add call has confirmed it.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	RowID     string          `json:"row_id,omitempty"`
}

// Cart holds the lines in insertion order. At most one line exists per
// ProductID; CartID correlates all remote operations for this cart's
// lifetime and is regenerated only after the cart is fully cleared.
type Cart struct {
	CartID string     `json:"cart_id,omitempty"`
	Lines  []CartLine `json:"lines"`
}

// Subtotal is always derived from the lines, never stored.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// Find returns the line for productID, or nil.
func (c *Cart) Find(productID string) *CartLine {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i]
		}
	}
	return nil
}

func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}
