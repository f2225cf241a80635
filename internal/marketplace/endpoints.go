package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/mercato/storefront/internal/domain"
)

type addToCartRequest struct {
	CartID    string `json:"cart_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type addToCartResponse struct {
	RowID string `json:"row_id"`
}

// AddToCart mirrors one local line to the remote cart with its absolute
// quantity and returns the marketplace's row identifier for the line.
func (c *Client) AddToCart(ctx context.Context, cartID, productID string, quantity int) (string, error) {
	var out addToCartResponse
	err := c.do(ctx, http.MethodPost, "/cart/add", addToCartRequest{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.RowID, nil
}

type removeFromCartRequest struct {
	CartID string `json:"cart_id"`
	RowID  string `json:"row_id"`
}

// RemoveFromCart deletes a remote cart row. The row is keyed by the
// marketplace's own row identifier, not the product identifier.
func (c *Client) RemoveFromCart(ctx context.Context, cartID, rowID string) error {
	return c.do(ctx, http.MethodPost, "/cart/remove", removeFromCartRequest{
		CartID: cartID,
		RowID:  rowID,
	}, nil)
}

type applyCouponRequest struct {
	CartID string `json:"cart_id"`
	Code   string `json:"code"`
}

// ApplyCoupon applies a coupon code to the remote cart and returns the
// recomputed totals.
func (c *Client) ApplyCoupon(ctx context.Context, cartID, code string) (*domain.PricingSnapshot, error) {
	var out domain.PricingSnapshot
	err := c.do(ctx, http.MethodPost, "/cart/coupon", applyCouponRequest{
		CartID: cartID,
		Code:   code,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTax fetches the authoritative subtotal, shipping, tax and grand total
// for the cart, along with the server's view of its contents.
func (c *Client) GetTax(ctx context.Context, cartID string) (*domain.PricingSnapshot, error) {
	var out domain.PricingSnapshot
	if err := c.do(ctx, http.MethodGet, "/cart/tax?cart_id="+url.QueryEscape(cartID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Customer is the buyer detail block sent with an order.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
}

type createOrderRequest struct {
	CartID   string   `json:"cart_id"`
	Customer Customer `json:"customer"`
}

// Order is the marketplace's record of a placed order.
type Order struct {
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	PaymentID string          `json:"payment_id,omitempty"`
}

// CreateOrder places an order for the remote cart.
func (c *Client) CreateOrder(ctx context.Context, cartID string, customer Customer) (*Order, error) {
	var out Order
	err := c.do(ctx, http.MethodPost, "/orders", createOrderRequest{
		CartID:   cartID,
		Customer: customer,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PaymentVerification carries the payment provider's callback parameters
// back to the marketplace for signature verification.
type PaymentVerification struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type PaymentResult struct {
	Verified bool   `json:"verified"`
	Status   string `json:"status"`
}

// VerifyPayment confirms a payment with the marketplace.
func (c *Client) VerifyPayment(ctx context.Context, v PaymentVerification) (*PaymentResult, error) {
	var out PaymentResult
	if err := c.do(ctx, http.MethodPost, "/payments/verify", v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackingEvent is one scan point in a shipment's history.
type TrackingEvent struct {
	Status   string `json:"status"`
	Location string `json:"location,omitempty"`
	Time     string `json:"time,omitempty"`
}

type TrackingInfo struct {
	OrderID string          `json:"order_id"`
	AWB     string          `json:"awb,omitempty"`
	Status  string          `json:"status"`
	Events  []TrackingEvent `json:"events,omitempty"`
}

// TrackOrder fetches shipment tracking by order id or air waybill number.
func (c *Client) TrackOrder(ctx context.Context, ref string) (*TrackingInfo, error) {
	var out TrackingInfo
	path := fmt.Sprintf("/orders/tracking?ref=%s", url.QueryEscape(ref))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
