package domain

import "github.com/shopspring/decimal"

// RemoteLine is the marketplace's view of one cart row. RowID is the
// marketplace's own key for the row, distinct from the product identifier.
type RemoteLine struct {
	RowID     string `json:"row_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// PricingSnapshot holds the authoritative totals last fetched from the
// marketplace. It is replaced wholesale on every successful tax fetch and
// valid only until the next cart or coupon mutation.
type PricingSnapshot struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Shipping   decimal.Decimal `json:"shipping"`
	Tax        decimal.Decimal `json:"tax"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Contents   []RemoteLine    `json:"contents,omitempty"`
}

// FindRow returns the remote row id for productID, or "" if the snapshot
// does not contain it.
func (p *PricingSnapshot) FindRow(productID string) string {
	if p == nil {
		return ""
	}
	for _, l := range p.Contents {
		if l.ProductID == productID {
			return l.RowID
		}
	}
	return ""
}
