package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nyashahama/checkout-receipts-backend/internal/api"
	"github.com/nyashahama/checkout-receipts-backend/internal/delivery"
	"github.com/nyashahama/checkout-receipts-backend/internal/email"
	"github.com/nyashahama/checkout-receipts-backend/internal/metrics"
	"github.com/nyashahama/checkout-receipts-backend/internal/receipt"
	stripeinternal "github.com/nyashahama/checkout-receipts-backend/internal/stripe"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

type stubStripe struct {
	session    stripeinternal.CheckoutSession
	pi         stripeinternal.PaymentIntent
	err        error
	sessionArg stripeinternal.CheckoutSessionParams
	intentArg  stripeinternal.CreatePaymentIntentParams
}

func (s *stubStripe) CreateCheckoutSession(_ context.Context, p stripeinternal.CheckoutSessionParams) (stripeinternal.CheckoutSession, error) {
	s.sessionArg = p
	return s.session, s.err
}

func (s *stubStripe) CreatePaymentIntent(_ context.Context, p stripeinternal.CreatePaymentIntentParams) (stripeinternal.PaymentIntent, error) {
	s.intentArg = p
	return s.pi, s.err
}

type stubDeliverer struct {
	mu     sync.Mutex
	orders []receipt.Order
	err    error
}

func (d *stubDeliverer) Deliver(_ context.Context, o receipt.Order) (delivery.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders = append(d.orders, o)
	if d.err != nil {
		return delivery.Result{}, d.err
	}
	return delivery.Result{MessageID: "msg_test", Accepted: []string{o.Recipient}}, nil
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

type testDeps struct {
	stripe    *stubStripe
	deliverer *stubDeliverer
	handler   http.Handler
}

func newTestServer(t *testing.T, cfgOverrides ...func(*api.Config)) *testDeps {
	t.Helper()

	strp := &stubStripe{
		session: stripeinternal.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.test/cs_test"},
		pi:      stripeinternal.PaymentIntent{ID: "pi_test", ClientSecret: "pi_test_secret"},
	}
	dl := &stubDeliverer{}

	cfg := api.Config{
		BrandName:      "StephensCode",
		FrontendURL:    "https://shop.test",
		AllowedOrigins: []string{"https://shop.test"},
		SendTimeout:    5 * time.Second,
	}
	for _, fn := range cfgOverrides {
		fn(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testDeps{
		stripe:    strp,
		deliverer: dl,
		handler:   api.NewServer(strp, dl, metrics.New(), cfg, logger),
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		bodyReader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("decode response body: %v (raw: %s)", err, rr.Body.String())
	}
}

const widgetReceipt = `{
	"to": "buyer@example.com",
	"items": [{"title": "Widget", "price": 10.00}],
	"subtotal": 10.00,
	"tax": 0.63,
	"totalAmount": 10.63
}`

// ─── HEALTH ───────────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRoot_ReportsLive(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Body.String(); got != "StephensCode Checkout API is live." {
		t.Errorf("body = %q", got)
	}
}

func TestMetrics_ExposesHTTPRequests(t *testing.T) {
	deps := newTestServer(t)
	doRequest(t, deps.handler, http.MethodGet, "/healthz", nil, nil)

	rr := doRequest(t, deps.handler, http.MethodGet, "/metrics", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `receipts_http_requests_total{route="/healthz",status="200"} 1`) {
		t.Errorf("healthz request not counted:\n%s", rr.Body.String())
	}
}

// ─── POST /send-receipt ───────────────────────────────────────────────────────

func TestSendReceipt_Success(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/send-receipt", widgetReceipt, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["success"] != true {
		t.Errorf("expected success=true, got %v", resp)
	}

	if len(deps.deliverer.orders) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deps.deliverer.orders))
	}
	o := deps.deliverer.orders[0]
	if o.Recipient != "buyer@example.com" {
		t.Errorf("recipient = %q", o.Recipient)
	}
	if len(o.Items) != 1 || o.Items[0].Title != "Widget" {
		t.Errorf("items = %+v", o.Items)
	}
	if o.Total.String() != "10.63" {
		t.Errorf("total = %s", o.Total)
	}
}

func TestSendReceipt_ToleratesUnknownFields(t *testing.T) {
	deps := newTestServer(t)
	body := `{"to":"buyer@example.com","items":[{"id":7,"title":"Widget","price":10,"image":"w.png"}],
		"subtotal":10,"tax":0.63,"totalAmount":10.63,"shipping":0}`
	rr := doRequest(t, deps.handler, http.MethodPost, "/send-receipt", body, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSendReceipt_InvalidBodyReturns400(t *testing.T) {
	cases := map[string]string{
		"malformed json":     `{bad json`,
		"missing recipient":  `{"items":[],"subtotal":0,"tax":0,"totalAmount":0}`,
		"bad recipient":      `{"to":"not-an-address","items":[],"subtotal":0,"tax":0,"totalAmount":0}`,
		"missing items":      `{"to":"a@b.com","subtotal":0,"tax":0,"totalAmount":0}`,
		"missing total":      `{"to":"a@b.com","items":[],"subtotal":0,"tax":0}`,
		"non-numeric amount": `{"to":"a@b.com","items":[],"subtotal":"ten","tax":0,"totalAmount":0}`,
		"missing item price": `{"to":"a@b.com","items":[{"title":"Widget"}],"subtotal":0,"tax":0,"totalAmount":0}`,
		"extreme exponent":   `{"to":"a@b.com","items":[],"subtotal":1e-50000000,"tax":0,"totalAmount":0}`,
		"fractional cents":   `{"to":"a@b.com","items":[],"subtotal":0.001,"tax":0,"totalAmount":0}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			deps := newTestServer(t)
			rr := doRequest(t, deps.handler, http.MethodPost, "/send-receipt", body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			var resp map[string]string
			decodeJSON(t, rr, &resp)
			if resp["error"] == "" {
				t.Error("expected an error message")
			}
			if len(deps.deliverer.orders) != 0 {
				t.Error("deliverer must not be called for an invalid order")
			}
		})
	}
}

func TestSendReceipt_DeliveryFailureReturns500WithReason(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{"render", fmt.Errorf("%w: disk full", delivery.ErrRender), "receipt_generation"},
		{"transport", fmt.Errorf("%w: %w", delivery.ErrTransport, &email.TransportError{Provider: "smtp", Detail: "550 mailbox unavailable"}), "message_rejected"},
		{"timeout", context.DeadlineExceeded, "cancelled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps := newTestServer(t)
			deps.deliverer.err = tc.err

			rr := doRequest(t, deps.handler, http.MethodPost, "/send-receipt", widgetReceipt, nil)
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rr.Code)
			}
			var resp map[string]string
			decodeJSON(t, rr, &resp)
			if resp["error"] != "Failed to send receipt email." {
				t.Errorf("error = %q", resp["error"])
			}
			if resp["reason"] != tc.reason {
				t.Errorf("reason = %q, want %q", resp["reason"], tc.reason)
			}
		})
	}
}

func TestSendReceipt_ValidationErrorFromDelivererReturns400(t *testing.T) {
	deps := newTestServer(t)
	deps.deliverer.err = &receipt.ValidationError{Field: "to", Reason: "is required"}

	rr := doRequest(t, deps.handler, http.MethodPost, "/send-receipt", widgetReceipt, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

// TestSendReceipt_ThroughCoordinator drives the real delivery pipeline with a
// stub transport and checks the scratch directory is empty afterwards.
func TestSendReceipt_ThroughCoordinator(t *testing.T) {
	scratch := t.TempDir()
	var (
		mu   sync.Mutex
		msgs []email.Message
	)
	sender := senderFunc(func(_ context.Context, msg email.Message) (email.Result, error) {
		if _, err := os.Stat(msg.Attachments[0].Path); err != nil {
			return email.Result{}, err
		}
		mu.Lock()
		msgs = append(msgs, msg)
		mu.Unlock()
		return email.Result{ID: "msg_1", Accepted: msg.To}, nil
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	coord := delivery.NewCoordinator(
		receipt.NewRenderer(receipt.RendererConfig{BrandName: "StephensCode"}),
		&email.ReceiptComposer{BrandName: "StephensCode"},
		sender,
		delivery.Config{ScratchDir: scratch, From: "shop@example.com"},
		m,
		logger,
	)
	handler := api.NewServer(&stubStripe{}, coord, m, api.Config{BrandName: "StephensCode"}, logger)

	rr := doRequest(t, handler, http.MethodPost, "/send-receipt", widgetReceipt, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].HTML, "Widget — $10.00") {
		t.Errorf("body missing item line:\n%s", msgs[0].HTML)
	}

	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch dir not empty: %d entries", len(entries))
	}
}

type senderFunc func(ctx context.Context, msg email.Message) (email.Result, error)

func (f senderFunc) Send(ctx context.Context, msg email.Message) (email.Result, error) {
	return f(ctx, msg)
}

// ─── POST /create-checkout-session ────────────────────────────────────────────

func TestCreateCheckoutSession_ReturnsURL(t *testing.T) {
	deps := newTestServer(t)
	body := `{"email":"buyer@example.com","items":[{"id":1,"title":"Widget","price":19.99,"quantity":2},{"price":5}]}`

	rr := doRequest(t, deps.handler, http.MethodPost, "/create-checkout-session", body, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["url"] != "https://checkout.stripe.test/cs_test" {
		t.Errorf("url = %q", resp["url"])
	}

	p := deps.stripe.sessionArg
	if p.SuccessURL != "https://shop.test/success" || p.CancelURL != "https://shop.test/pricing" {
		t.Errorf("redirect urls = %q, %q", p.SuccessURL, p.CancelURL)
	}
	if p.Email != "buyer@example.com" {
		t.Errorf("email = %q", p.Email)
	}
	if len(p.Items) != 2 || p.Items[0].Quantity != 2 || p.Items[0].Price.String() != "19.99" {
		t.Errorf("items = %+v", p.Items)
	}
}

func TestCreateCheckoutSession_Validation(t *testing.T) {
	cases := map[string]string{
		"no items":         `{"email":"a@b.com","items":[]}`,
		"missing price":    `{"email":"a@b.com","items":[{"title":"Widget"}]}`,
		"negative price":   `{"email":"a@b.com","items":[{"title":"Widget","price":-1}]}`,
		"fractional cents": `{"email":"a@b.com","items":[{"title":"Widget","price":9.999}]}`,
		"extreme exponent": `{"email":"a@b.com","items":[{"title":"Widget","price":1e-50000000}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			deps := newTestServer(t)
			rr := doRequest(t, deps.handler, http.MethodPost, "/create-checkout-session", body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestCreateCheckoutSession_StripeFailureReturns500(t *testing.T) {
	deps := newTestServer(t)
	deps.stripe.err = errors.New("stripe: card_declined")

	rr := doRequest(t, deps.handler, http.MethodPost, "/create-checkout-session",
		`{"items":[{"title":"Widget","price":10}]}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["error"] != "Checkout session failed" {
		t.Errorf("error = %q", resp["error"])
	}
}

// ─── POST /create-payment-intent ──────────────────────────────────────────────

func TestCreatePaymentIntent_ReturnsClientSecret(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/create-payment-intent",
		`{"amount":59.99,"email":"buyer@example.com"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["clientSecret"] != "pi_test_secret" {
		t.Errorf("clientSecret = %q", resp["clientSecret"])
	}
	if deps.stripe.intentArg.AmountCents != 5999 {
		t.Errorf("amount cents = %d, want 5999", deps.stripe.intentArg.AmountCents)
	}
	if deps.stripe.intentArg.Currency != "usd" {
		t.Errorf("currency = %q", deps.stripe.intentArg.Currency)
	}
}

func TestCreatePaymentIntent_RejectsInvalidAmount(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"amount":0}`,
		`{"amount":-5}`,
		`{"amount":10.005}`,
		`{"amount":1e-50000000}`,
		`{"amount":1e50000000}`,
		`{"amount":1000000000.01}`,
	} {
		deps := newTestServer(t)
		rr := doRequest(t, deps.handler, http.MethodPost, "/create-payment-intent", body, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestCreatePaymentIntent_StripeFailureReturns500(t *testing.T) {
	deps := newTestServer(t)
	deps.stripe.err = errors.New("stripe: api_error")

	rr := doRequest(t, deps.handler, http.MethodPost, "/create-payment-intent", `{"amount":10}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["error"] != "Payment intent failed" {
		t.Errorf("error = %q", resp["error"])
	}
}

// ─── CORS ─────────────────────────────────────────────────────────────────────

func TestCORS_PreflightFromAllowedOrigin(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodOptions, "/send-receipt", nil, map[string]string{
		"Origin":                        "https://shop.test",
		"Access-Control-Request-Method": "POST",
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.test" {
		t.Errorf("allow-origin = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("allow-credentials = %q", got)
	}
}

func TestCORS_RejectsUnknownOrigin(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodOptions, "/send-receipt", nil, map[string]string{
		"Origin": "https://evil.test",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow-origin %q", got)
	}

	rr = doRequest(t, deps.handler, http.MethodGet, "/", nil, map[string]string{"Origin": "https://evil.test"})
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow-origin %q on simple request", got)
	}
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/send-receipt", widgetReceipt, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow-origin %q", got)
	}
}
