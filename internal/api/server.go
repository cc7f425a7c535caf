// Package api implements the HTTP layer for the checkout and receipt service.
// Handlers are methods on *Server. Each handler file is responsible for one
// resource group and only imports the dependencies it actually uses.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nyashahama/checkout-receipts-backend/internal/delivery"
	"github.com/nyashahama/checkout-receipts-backend/internal/metrics"
	"github.com/nyashahama/checkout-receipts-backend/internal/receipt"
	stripeinternal "github.com/nyashahama/checkout-receipts-backend/internal/stripe"
)

// Config holds values read from environment variables at startup.
type Config struct {
	// BrandName appears in the root liveness message.
	BrandName string

	// FrontendURL is the storefront origin; checkout redirects back to
	// FrontendURL+"/success" or FrontendURL+"/pricing".
	FrontendURL string

	// AllowedOrigins is the CORS allowlist used in production.
	AllowedOrigins []string

	// SendTimeout bounds one /send-receipt delivery. Zero means no limit.
	SendTimeout time.Duration
}

// Deliverer sends a receipt for a validated order. *delivery.Coordinator
// satisfies it; tests inject a stub.
type Deliverer interface {
	Deliver(ctx context.Context, o receipt.Order) (delivery.Result, error)
}

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	// stripe creates Checkout Sessions and PaymentIntents.
	stripe stripeinternal.Client

	// receipts renders and emails PDF receipts.
	receipts Deliverer

	// metrics may be nil, in which case /metrics is not mounted.
	metrics *metrics.Metrics

	allowedOrigins map[string]bool

	cfg    Config
	logger *slog.Logger
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.Server.
func NewServer(
	stripeClient stripeinternal.Client,
	receipts Deliverer,
	m *metrics.Metrics,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	s := &Server{
		stripe:         stripeClient,
		receipts:       receipts,
		metrics:        m,
		allowedOrigins: make(map[string]bool, len(cfg.AllowedOrigins)),
		cfg:            cfg,
		logger:         logger,
	}
	for _, o := range cfg.AllowedOrigins {
		s.allowedOrigins[o] = true
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(middleware.Timeout(60 * time.Second))

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/", s.handleRoot)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// ── Payments ──────────────────────────────────────────────────────────────
	r.Post("/create-checkout-session", s.handleCreateCheckoutSession)
	r.Post("/create-payment-intent", s.handleCreatePaymentIntent)

	// ── Receipts ──────────────────────────────────────────────────────────────
	r.Post("/send-receipt", s.handleSendReceipt)

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.cfg.BrandName + " Checkout API is live."))
}
