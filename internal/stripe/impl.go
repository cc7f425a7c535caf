package stripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// stripeClient is the concrete implementation of Client backed by the
// official stripe-go SDK. Each instance carries its own API key, so nothing
// touches the package-level stripe.Key.
type stripeClient struct {
	api *client.API
}

// NewClient returns a Client backed by the Stripe SDK.
// secretKey is your STRIPE_SECRET_KEY env var.
func NewClient(secretKey string) Client {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &stripeClient{api: api}
}

// CreateCheckoutSession creates a card-only, one-off payment Checkout Session.
func (c *stripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:          ToLineItems(p.Items),
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
	}
	if p.Email != "" {
		params.CustomerEmail = stripe.String(p.Email)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	// Propagate context deadline to the Stripe HTTP call.
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	return CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePaymentIntent creates a PaymentIntent, attaching a Customer first
// when an email is supplied so the dashboard groups purchases per customer.
func (c *stripeClient) CreatePaymentIntent(ctx context.Context, p CreatePaymentIntentParams) (PaymentIntent, error) {
	var customerID string
	if p.Email != "" {
		custParams := &stripe.CustomerParams{
			Email: stripe.String(p.Email),
		}
		custParams.Context = ctx
		cust, err := c.api.Customers.New(custParams)
		if err != nil {
			return PaymentIntent{}, fmt.Errorf("stripe: create customer: %w", err)
		}
		customerID = cust.ID
	}

	currency := p.Currency
	if currency == "" {
		currency = Currency
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(currency),
		// Automatically collect payment method details via Stripe.js.
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if customerID != "" {
		piParams.Customer = stripe.String(customerID)
		piParams.ReceiptEmail = stripe.String(p.Email)
	}
	for k, v := range p.Metadata {
		piParams.AddMetadata(k, v)
	}
	piParams.Context = ctx

	pi, err := c.api.PaymentIntents.New(piParams)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	return PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		CustomerID:   customerID,
	}, nil
}
