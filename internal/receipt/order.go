// Package receipt holds the order model that flows through the receipt
// pipeline and renders it as a PDF purchase receipt.
//
// Dependency rule: receipt imports money only. It never imports email,
// delivery, or api.
package receipt

import (
	"encoding/json"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/nyashahama/checkout-receipts-backend/internal/money"
	"github.com/shopspring/decimal"
)

// DefaultTitle replaces a missing item title.
const DefaultTitle = "Unnamed Product"

// TaxRate is the flat sales-tax rate shown on every receipt. Amounts are
// computed by the caller; the rate is only used for the label.
var TaxRate = decimal.RequireFromString("0.0625")

// TaxLabel returns the tax line label, e.g. "Tax (6.25%)".
func TaxLabel() string {
	return "Tax (" + money.Percent(TaxRate) + ")"
}

// LineItem is one purchased product.
type LineItem struct {
	Title       string
	Description string // optional; empty means no description line
	UnitPrice   decimal.Decimal
}

// Order is a completed purchase. Total is expected to equal Subtotal + Tax,
// but it is displayed exactly as supplied and never recomputed.
type Order struct {
	Recipient string
	Items     []LineItem
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
}

// ValidationError reports a malformed or missing order field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

// Validate checks the invariants every component downstream relies on.
// Items must be non-nil; an empty slice is a valid (empty) order. Every
// amount must pass money.Check.
func (o Order) Validate() error {
	if strings.TrimSpace(o.Recipient) == "" {
		return &ValidationError{Field: "to", Reason: "is required"}
	}
	if _, err := mail.ParseAddress(o.Recipient); err != nil {
		return &ValidationError{Field: "to", Reason: "is not a valid email address"}
	}
	if o.Items == nil {
		return &ValidationError{Field: "items", Reason: "is required"}
	}
	for i, it := range o.Items {
		if it.Title == "" {
			return &ValidationError{Field: fmt.Sprintf("items[%d].title", i), Reason: "is required"}
		}
		if err := money.Check(it.UnitPrice); err != nil {
			return &ValidationError{Field: fmt.Sprintf("items[%d].price", i), Reason: err.Error()}
		}
	}
	amounts := []struct {
		field string
		v     decimal.Decimal
	}{
		{"subtotal", o.Subtotal},
		{"tax", o.Tax},
		{"totalAmount", o.Total},
	}
	for _, a := range amounts {
		if err := money.Check(a.v); err != nil {
			return &ValidationError{Field: a.field, Reason: err.Error()}
		}
	}
	return nil
}

// ─── WIRE SHAPE ───────────────────────────────────────────────────────────────

// OrderRequest is the JSON body accepted by POST /send-receipt and by
// receiptctl. Pointer fields distinguish "absent" from zero.
type OrderRequest struct {
	To          string            `json:"to"`
	Items       []LineItemRequest `json:"items"`
	Subtotal    *decimal.Decimal  `json:"subtotal"`
	Tax         *decimal.Decimal  `json:"tax"`
	TotalAmount *decimal.Decimal  `json:"totalAmount"`
}

// LineItemRequest is one entry of OrderRequest.Items.
type LineItemRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
}

// ToOrder converts the wire shape into an Order, filling the title
// placeholder and rejecting absent amounts. The result is validated.
func (r OrderRequest) ToOrder() (Order, error) {
	if r.Items == nil {
		return Order{}, &ValidationError{Field: "items", Reason: "is required"}
	}
	required := []struct {
		field string
		v     *decimal.Decimal
	}{
		{"subtotal", r.Subtotal},
		{"tax", r.Tax},
		{"totalAmount", r.TotalAmount},
	}
	for _, f := range required {
		if f.v == nil {
			return Order{}, &ValidationError{Field: f.field, Reason: "is required"}
		}
	}

	items := make([]LineItem, len(r.Items))
	for i, it := range r.Items {
		if it.Price == nil {
			return Order{}, &ValidationError{Field: fmt.Sprintf("items[%d].price", i), Reason: "is required"}
		}
		title := strings.TrimSpace(it.Title)
		if title == "" {
			title = DefaultTitle
		}
		items[i] = LineItem{
			Title:       title,
			Description: strings.TrimSpace(it.Description),
			UnitPrice:   *it.Price,
		}
	}

	o := Order{
		Recipient: strings.TrimSpace(r.To),
		Items:     items,
		Subtotal:  *r.Subtotal,
		Tax:       *r.Tax,
		Total:     *r.TotalAmount,
	}
	return o, o.Validate()
}

// ParseOrder decodes an OrderRequest from JSON and converts it. Decoding
// failures (including non-numeric amounts) are reported as ValidationErrors.
func ParseOrder(rd io.Reader) (Order, error) {
	var req OrderRequest
	if err := json.NewDecoder(rd).Decode(&req); err != nil {
		return Order{}, &ValidationError{Field: "body", Reason: "is not valid JSON: " + err.Error()}
	}
	return req.ToOrder()
}
