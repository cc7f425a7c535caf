package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nyashahama/checkout-receipts-backend/internal/api"
	"github.com/nyashahama/checkout-receipts-backend/internal/config"
	"github.com/nyashahama/checkout-receipts-backend/internal/delivery"
	"github.com/nyashahama/checkout-receipts-backend/internal/email"
	"github.com/nyashahama/checkout-receipts-backend/internal/metrics"
	"github.com/nyashahama/checkout-receipts-backend/internal/receipt"
	stripeinternal "github.com/nyashahama/checkout-receipts-backend/internal/stripe"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	var logger *slog.Logger
	if os.Getenv("ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port, "mail_provider", cfg.MailProvider)

	// ── Stripe ────────────────────────────────────────────────────────────────
	stripeClient := stripeinternal.NewClient(cfg.StripeSecretKey)

	// ── Email ─────────────────────────────────────────────────────────────────
	mailer, err := newMailer(cfg)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}

	// ── Receipts ──────────────────────────────────────────────────────────────
	logoPath := cfg.LogoPath
	if logoPath != "" {
		if err := receipt.CheckLogo(logoPath); err != nil {
			logger.Warn("receipt logo unavailable, rendering without it", "path", logoPath, "error", err)
			logoPath = ""
		}
	}
	renderer := receipt.NewRenderer(receipt.RendererConfig{
		BrandName:    cfg.BrandName,
		LogoPath:     logoPath,
		SupportURL:   cfg.SupportURL,
		SupportEmail: cfg.SupportEmail,
	})
	composer := email.ReceiptComposer{
		BrandName:    cfg.BrandName,
		LogoURL:      cfg.LogoURL,
		SupportURL:   cfg.SupportURL,
		SupportEmail: cfg.SupportEmail,
	}

	m := metrics.New()
	coordinator := delivery.NewCoordinator(renderer, composer, mailer, delivery.Config{
		ScratchDir: cfg.ScratchDir,
		From:       cfg.EmailUser,
		Bcc:        cfg.ReceiptBcc,
	}, m, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(
		stripeClient,
		coordinator,
		m,
		api.Config{
			BrandName:      cfg.BrandName,
			FrontendURL:    cfg.FrontendURL,
			AllowedOrigins: cfg.AllowedOrigins,
			SendTimeout:    cfg.SendTimeout,
		},
		logger,
	)

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // rendering plus an SMTP round trip
		IdleTimeout:  120 * time.Second,
	}

	// ── gRPC health ───────────────────────────────────────────────────────────
	// Load balancers probe grpc.health.v1 on the same port as the HTTP API.
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// ── Listener ──────────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	mux := cmux.New(lis)
	grpcL := mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := mux.Match(cmux.Any())

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 3)
	go func() {
		if err := grpcSrv.Serve(grpcL); err != nil && !isClosed(err) {
			serverErr <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		if err := srv.Serve(httpL); err != nil && !isClosed(err) {
			serverErr <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("server listening", "addr", lis.Addr().String())
		if err := mux.Serve(); err != nil && !isClosed(err) {
			serverErr <- fmt.Errorf("cmux: %w", err)
		}
	}()

	// Block until either a signal arrives or a server dies unexpectedly.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Stop advertising health first so probes drain traffic away.
	healthSrv.Shutdown()

	// Give in-flight requests (a receipt send can take several seconds) up to
	// 20 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	grpcSrv.GracefulStop()
	mux.Close()

	logger.Info("shutdown complete")
	return nil
}

// newMailer returns the transport selected by MAIL_PROVIDER.
func newMailer(cfg *config.Config) (email.Sender, error) {
	switch cfg.MailProvider {
	case config.MailProviderResend:
		return email.NewResendClient(cfg.ResendAPIKey, cfg.EmailFromName), nil
	default:
		return email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.EmailUser,
			Password: cfg.EmailPass,
			FromName: cfg.EmailFromName,
		})
	}
}

func isClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, cmux.ErrServerClosed) ||
		errors.Is(err, cmux.ErrListenerClosed) ||
		errors.Is(err, grpc.ErrServerStopped) ||
		errors.Is(err, net.ErrClosed)
}
