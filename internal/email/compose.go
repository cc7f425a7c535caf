package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/nyashahama/checkout-receipts-backend/internal/money"
	"github.com/nyashahama/checkout-receipts-backend/internal/receipt"
)

// Content is a composed email: subject line plus HTML body.
type Content struct {
	Subject string
	HTML    string
}

// ReceiptComposer builds the HTML body that accompanies the PDF receipt.
// It performs no I/O. The logo is referenced by absolute URL, not inlined.
type ReceiptComposer struct {
	BrandName    string
	LogoURL      string
	SupportURL   string
	SupportEmail string
}

type receiptLine struct {
	Title string
	Price string
}

type receiptView struct {
	BrandName    string
	LogoURL      string
	SupportURL   string
	SupportEmail string
	Items        []receiptLine
	Subtotal     string
	TaxLabel     string
	Tax          string
	Total        string
}

// Compose validates o and renders the receipt email. Amounts go through
// money.Format, the same formatter the PDF uses.
func (c ReceiptComposer) Compose(o receipt.Order) (Content, error) {
	if err := o.Validate(); err != nil {
		return Content{}, err
	}

	view := receiptView{
		BrandName:    c.BrandName,
		LogoURL:      c.LogoURL,
		SupportURL:   c.SupportURL,
		SupportEmail: c.SupportEmail,
		Items:        make([]receiptLine, len(o.Items)),
		Subtotal:     money.Format(o.Subtotal),
		TaxLabel:     receipt.TaxLabel(),
		Tax:          money.Format(o.Tax),
		Total:        money.Format(o.Total),
	}
	for i, it := range o.Items {
		view.Items[i] = receiptLine{Title: it.Title, Price: money.Format(it.UnitPrice)}
	}

	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, view); err != nil {
		return Content{}, fmt.Errorf("email: render receipt html: %w", err)
	}

	return Content{
		Subject: fmt.Sprintf("Your %s Purchase Receipt", c.BrandName),
		HTML:    buf.String(),
	}, nil
}

// ─── HTML TEMPLATE ────────────────────────────────────────────────────────────

var receiptTmpl = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; color: #1a1a1a; max-width: 560px; margin: 0 auto; padding: 24px;">
  {{- if .LogoURL}}
  <img src="{{.LogoURL}}" alt="{{.BrandName}}" style="max-height: 48px; margin-bottom: 16px;">
  {{- end}}
  <h2 style="margin-bottom: 8px;">Thank you for your purchase!</h2>
  <p>Your receipt is attached as a PDF. Here is a summary of your order:</p>
  <ul style="padding-left: 20px;">
    {{- range .Items}}
    <li>{{.Title}} — {{.Price}}</li>
    {{- end}}
  </ul>
  <p style="margin: 4px 0;">Subtotal: {{.Subtotal}}</p>
  <p style="margin: 4px 0;">{{.TaxLabel}}: {{.Tax}}</p>
  <p style="margin: 4px 0;"><strong>Total: {{.Total}}</strong></p>
  <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 32px 0;">
  <p style="color: #6b7280; font-size: 14px;">
    Need help? Visit <a href="{{.SupportURL}}" style="color: #2563eb;">{{.SupportURL}}</a>
    or email <a href="mailto:{{.SupportEmail}}" style="color: #2563eb;">{{.SupportEmail}}</a>.
  </p>
</body>
</html>`))
