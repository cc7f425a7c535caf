// Package stripe defines the interface for the Stripe calls the checkout
// endpoints make, and the helpers that map cart items onto Stripe params.
package stripe

import (
	"context"
	"strings"

	"github.com/nyashahama/checkout-receipts-backend/internal/money"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

// Currency is the only currency the shop charges in.
const Currency = "usd"

// Defaults applied to cart items that arrive without them.
const (
	DefaultProductName        = "Unnamed Product"
	DefaultProductDescription = "No description"
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// LineItem is one cart entry as sent by the storefront.
type LineItem struct {
	Title       string
	Description string
	Price       decimal.Decimal // dollars
	Quantity    int64           // 0 means 1
}

// CheckoutSessionParams holds the inputs for a hosted Checkout Session.
type CheckoutSessionParams struct {
	Email      string
	Items      []LineItem
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSession is the subset of a Stripe Checkout Session callers need.
type CheckoutSession struct {
	ID  string
	URL string // hosted payment page the browser is redirected to
}

// CreatePaymentIntentParams holds the inputs for creating a Stripe PI.
type CreatePaymentIntentParams struct {
	AmountCents int64
	Currency    string
	Email       string // optional; a Customer is created when set
	Metadata    map[string]string
}

// PaymentIntent is the subset of a Stripe PaymentIntent that callers need.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	CustomerID   string // may be empty if no Customer was created
}

// ─── CLIENT INTERFACE ─────────────────────────────────────────────────────────

// Client is the interface the api package uses for all Stripe calls.
// The concrete implementation wraps the official stripe-go SDK.
// Tests inject a stub.
type Client interface {
	// CreateCheckoutSession creates a hosted, redirect-flow payment page.
	CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (CheckoutSession, error)

	// CreatePaymentIntent creates a new PI and returns its client_secret.
	CreatePaymentIntent(ctx context.Context, p CreatePaymentIntentParams) (PaymentIntent, error)
}

// ─── HELPERS ──────────────────────────────────────────────────────────────────

// ToLineItems maps cart items to Checkout line items, filling in the
// product name, description and quantity defaults. Prices are converted to
// whole cents.
func ToLineItems(items []LineItem) []*stripe.CheckoutSessionLineItemParams {
	out := make([]*stripe.CheckoutSessionLineItemParams, len(items))
	for i, it := range items {
		name := strings.TrimSpace(it.Title)
		if name == "" {
			name = DefaultProductName
		}
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			desc = DefaultProductDescription
		}
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		out[i] = &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(Currency),
				UnitAmount: stripe.Int64(money.Cents(it.Price)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(name),
					Description: stripe.String(desc),
				},
			},
			Quantity: stripe.Int64(qty),
		}
	}
	return out
}
