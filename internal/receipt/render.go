package receipt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/nyashahama/checkout-receipts-backend/internal/money"
)

// Layout constants, in millimetres on a US Letter page.
const (
	marginX      = 18.0
	headerHeight = 28.0
	logoHeight   = 18.0
	itemGap      = 4.0
	descIndent   = 6.0
	font         = "Helvetica"
)

var (
	bandColor  = [3]int{15, 23, 42}
	grayColor  = [3]int{107, 114, 128}
	linkColor  = [3]int{37, 99, 235}
	blackColor = [3]int{26, 26, 26}
)

// RendererConfig holds branding and support details printed on every receipt.
type RendererConfig struct {
	BrandName    string
	LogoPath     string // optional local PNG/JPEG, drawn in the header band
	SupportURL   string
	SupportEmail string
}

// Renderer builds PDF purchase receipts. It holds no per-call state and is
// safe for concurrent use.
type Renderer struct {
	cfg      RendererConfig
	now      func() time.Time
	compress bool
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithClock overrides the clock used for the generation timestamp.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// WithoutCompression writes uncompressed page streams so the text can be
// inspected in the raw bytes.
func WithoutCompression() Option {
	return func(r *Renderer) { r.compress = false }
}

// NewRenderer returns a Renderer for the given branding.
func NewRenderer(cfg RendererConfig, opts ...Option) *Renderer {
	r := &Renderer{cfg: cfg, now: time.Now, compress: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderFile writes the receipt for o to a new file at path. The file must
// not already exist. RenderFile returns only after the bytes are synced and
// the file is closed, so the artifact is complete once it returns nil.
func (r *Renderer) RenderFile(path string, o Order) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("receipt: create artifact: %w", err)
	}
	if err := r.Render(f, o); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("receipt: sync artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("receipt: close artifact: %w", err)
	}
	return nil
}

// Render writes the complete receipt document for o to w.
func (r *Renderer) Render(w io.Writer, o Order) error {
	now := r.now()

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetCompression(r.compress)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetTitle("Purchase Receipt", true)
	pdf.SetAuthor(r.cfg.BrandName, true)
	pdf.SetMargins(marginX, headerHeight+10, marginX)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	r.drawHeader(pdf, tr)
	r.drawTitle(pdf, now)
	r.drawItems(pdf, tr, o.Items)
	r.drawTotals(pdf, o)
	r.drawFooter(pdf, tr)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("receipt: write pdf: %w", err)
	}
	return nil
}

// CheckLogo registers the image at path the way Render does and returns the
// error fpdf reports for it. A logo that fails here fails every render.
func CheckLogo(path string) error {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.RegisterImageOptions(path, fpdf.ImageOptions{ReadDpi: true})
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("receipt: logo %s: %w", path, err)
	}
	return nil
}

// ─── SECTIONS ─────────────────────────────────────────────────────────────────

func (r *Renderer) drawHeader(pdf *fpdf.Fpdf, tr func(string) string) {
	pageW, _ := pdf.GetPageSize()

	pdf.SetFillColor(bandColor[0], bandColor[1], bandColor[2])
	pdf.Rect(0, 0, pageW, headerHeight, "F")

	pdf.SetFont(font, "B", 20)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(marginX, 0)
	pdf.CellFormat(pageW/2, headerHeight, tr(r.cfg.BrandName), "", 0, "L", false, 0, "")

	if r.cfg.LogoPath != "" {
		// Zero width keeps the aspect ratio; the image is pinned to the right edge.
		info := pdf.RegisterImageOptions(r.cfg.LogoPath, fpdf.ImageOptions{ReadDpi: true})
		if info != nil {
			w := info.Width() * logoHeight / info.Height()
			pdf.ImageOptions(r.cfg.LogoPath, pageW-marginX-w, (headerHeight-logoHeight)/2,
				w, logoHeight, false, fpdf.ImageOptions{ReadDpi: true}, 0, "")
		}
	}

	pdf.SetTextColor(blackColor[0], blackColor[1], blackColor[2])
	pdf.SetXY(marginX, headerHeight+10)
}

func (r *Renderer) drawTitle(pdf *fpdf.Fpdf, now time.Time) {
	pdf.SetFont(font, "B", 18)
	pdf.CellFormat(0, 10, "Purchase Receipt", "", 1, "L", false, 0, "")

	pdf.SetFont(font, "", 10)
	pdf.SetTextColor(grayColor[0], grayColor[1], grayColor[2])
	pdf.CellFormat(0, 6, "Generated "+now.Format("Jan 2, 2006 3:04 PM MST"), "", 1, "L", false, 0, "")
	pdf.SetTextColor(blackColor[0], blackColor[1], blackColor[2])
	pdf.Ln(6)
}

func (r *Renderer) drawItems(pdf *fpdf.Fpdf, tr func(string) string, items []LineItem) {
	pdf.SetFont(font, "B", 13)
	pdf.CellFormat(0, 8, "Items", "B", 1, "L", false, 0, "")
	pdf.Ln(3)

	left, _, right, _ := pdf.GetMargins()
	pageW, _ := pdf.GetPageSize()
	contentW := pageW - left - right

	for _, it := range items {
		pdf.SetFont(font, "B", 12)
		pdf.CellFormat(0, 7, tr(it.Title), "", 1, "L", false, 0, "")

		if it.Description != "" {
			pdf.SetFont(font, "", 10)
			pdf.SetTextColor(grayColor[0], grayColor[1], grayColor[2])
			pdf.SetX(left + descIndent)
			pdf.MultiCell(contentW-descIndent, 5, tr(it.Description), "", "L", false)
			pdf.SetTextColor(blackColor[0], blackColor[1], blackColor[2])
		}

		pdf.SetFont(font, "", 11)
		pdf.CellFormat(0, 6, money.Format(it.UnitPrice), "", 1, "R", false, 0, "")
		pdf.Ln(itemGap)
	}
}

func (r *Renderer) drawTotals(pdf *fpdf.Fpdf, o Order) {
	left, _, right, _ := pdf.GetMargins()
	pageW, _ := pdf.GetPageSize()
	y := pdf.GetY() + 2
	pdf.SetDrawColor(229, 231, 235)
	pdf.Line(left, y, pageW-right, y)
	pdf.Ln(6)

	pdf.SetFont(font, "", 11)
	pdf.CellFormat(0, 7, "Subtotal: "+money.Format(o.Subtotal), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 7, TaxLabel()+": "+money.Format(o.Tax), "", 1, "R", false, 0, "")
	pdf.SetFont(font, "B", 13)
	pdf.CellFormat(0, 9, "Total: "+money.Format(o.Total), "", 1, "R", false, 0, "")
	pdf.Ln(12)
}

func (r *Renderer) drawFooter(pdf *fpdf.Fpdf, tr func(string) string) {
	pdf.SetFont(font, "B", 12)
	pdf.CellFormat(0, 8, tr("Thank you for your purchase!"), "", 1, "C", false, 0, "")

	const lineH = 6.0
	pdf.SetFont(font, "", 10)

	urlText := strings.TrimPrefix(strings.TrimPrefix(r.cfg.SupportURL, "https://"), "http://")
	parts := []struct {
		text, link string
	}{
		{"Need help? Visit ", ""},
		{urlText, r.cfg.SupportURL},
		{" or email ", ""},
		{r.cfg.SupportEmail, "mailto:" + r.cfg.SupportEmail},
		{".", ""},
	}

	// Measure the whole sentence so it can be centred as one run of text.
	var width float64
	for _, p := range parts {
		width += pdf.GetStringWidth(tr(p.text))
	}
	pageW, _ := pdf.GetPageSize()
	if x := (pageW - width) / 2; x > marginX {
		pdf.SetX(x)
	}

	for _, p := range parts {
		if p.link == "" {
			pdf.SetTextColor(grayColor[0], grayColor[1], grayColor[2])
			pdf.Write(lineH, tr(p.text))
			continue
		}
		pdf.SetTextColor(linkColor[0], linkColor[1], linkColor[2])
		pdf.WriteLinkString(lineH, tr(p.text), p.link)
	}
	pdf.SetTextColor(blackColor[0], blackColor[1], blackColor[2])
	pdf.Ln(lineH)
}
