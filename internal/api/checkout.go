package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nyashahama/checkout-receipts-backend/internal/money"
	stripeinternal "github.com/nyashahama/checkout-receipts-backend/internal/stripe"
	"github.com/shopspring/decimal"
)

// metadataSource tags every Stripe object this service creates.
const metadataSource = "checkout-receipts-backend"

// ─── POST /create-checkout-session ────────────────────────────────────────────

type checkoutItem struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    int64            `json:"quantity"`
}

type createCheckoutRequest struct {
	Items []checkoutItem `json:"items"`
	Email string         `json:"email"`
}

type createCheckoutResponse struct {
	// URL is the hosted Stripe Checkout page the browser redirects to.
	URL string `json:"url"`
}

// handleCreateCheckoutSession creates a hosted Checkout Session for the cart
// and returns its URL. Success and cancel pages live on the storefront.
func (s *Server) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req createCheckoutRequest
	if !decodeCart(w, r, &req) {
		return
	}

	if len(req.Items) == 0 {
		respondErr(w, http.StatusBadRequest, "items are required")
		return
	}

	items := make([]stripeinternal.LineItem, 0, len(req.Items))
	for i, it := range req.Items {
		if it.Price == nil {
			respondErr(w, http.StatusBadRequest, fmt.Sprintf("items[%d].price is required", i))
			return
		}
		if err := money.Check(*it.Price); err != nil {
			respondErr(w, http.StatusBadRequest, fmt.Sprintf("items[%d].price %s", i, err))
			return
		}
		if it.Quantity < 0 {
			respondErr(w, http.StatusBadRequest, fmt.Sprintf("items[%d].quantity must not be negative", i))
			return
		}
		items = append(items, stripeinternal.LineItem{
			Title:       it.Title,
			Description: it.Description,
			Price:       *it.Price,
			Quantity:    it.Quantity,
		})
	}

	sess, err := s.stripe.CreateCheckoutSession(r.Context(), stripeinternal.CheckoutSessionParams{
		Email:      strings.TrimSpace(req.Email),
		Items:      items,
		SuccessURL: s.cfg.FrontendURL + "/success",
		CancelURL:  s.cfg.FrontendURL + "/pricing",
		Metadata:   map[string]string{"source": metadataSource},
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("create checkout session: %w", err), "Checkout session failed")
		return
	}

	s.logger.Info("checkout session created",
		"session_id", sess.ID,
		"items", len(items),
		logField(r),
	)
	respond(w, http.StatusOK, createCheckoutResponse{URL: sess.URL})
}

// ─── POST /create-payment-intent ──────────────────────────────────────────────

type createPaymentIntentRequest struct {
	Amount *decimal.Decimal `json:"amount"` // dollars
	Email  string           `json:"email"`
}

type createPaymentIntentResponse struct {
	// ClientSecret is passed to Stripe.js to render the payment UI and
	// confirm the charge in the browser.
	ClientSecret string `json:"clientSecret"`
}

// handleCreatePaymentIntent creates a PaymentIntent for an embedded payment
// form and returns its client_secret.
func (s *Server) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req createPaymentIntentRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Amount == nil || !req.Amount.IsPositive() {
		respondErr(w, http.StatusBadRequest, "amount must be greater than zero")
		return
	}
	if err := money.Check(*req.Amount); err != nil {
		respondErr(w, http.StatusBadRequest, "amount "+err.Error())
		return
	}

	pi, err := s.stripe.CreatePaymentIntent(r.Context(), stripeinternal.CreatePaymentIntentParams{
		AmountCents: money.Cents(*req.Amount),
		Currency:    stripeinternal.Currency,
		Email:       strings.TrimSpace(req.Email),
		Metadata:    map[string]string{"source": metadataSource},
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("create payment intent: %w", err), "Payment intent failed")
		return
	}

	respond(w, http.StatusOK, createPaymentIntentResponse{ClientSecret: pi.ClientSecret})
}
