// Package config loads and validates all environment variables at startup.
// Packages under internal receive typed values and never read os.Getenv directly.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mail providers accepted in MAIL_PROVIDER.
const (
	MailProviderSMTP   = "smtp"
	MailProviderResend = "resend"
)

var defaultAllowedOrigins = []string{
	"https://stephenscode.dev",
	"https://www.stephenscode.dev",
	"https://customer.stephenscode.dev",
}

// Config is the fully-parsed application configuration.
type Config struct {
	// ── Server ────────────────────────────────────────────────────────────────
	Port           string   // default "8080"
	Env            string   // "development" | "staging" | "production"
	BrandName      string   // default "StephensCode"
	FrontendURL    string   // checkout success/cancel redirects are built from this
	AllowedOrigins []string // CORS allowlist

	// ── Stripe ────────────────────────────────────────────────────────────────
	StripeSecretKey string

	// ── Mail ──────────────────────────────────────────────────────────────────
	MailProvider  string // "smtp" (default) | "resend"
	SMTPHost      string // default "smtp.gmail.com"
	SMTPPort      int    // default 587
	EmailUser     string // operator address: sender and SMTP username
	EmailPass     string // SMTP secret
	ResendAPIKey  string
	EmailFromName string // display name, defaults to BrandName
	ReceiptBcc    string // operator inbox copied on every receipt, defaults to EmailUser

	// ── Receipt content ───────────────────────────────────────────────────────
	SupportURL   string
	SupportEmail string
	LogoURL      string // absolute URL used in the email body
	LogoPath     string // local image drawn in the PDF header; optional

	// ── Delivery ──────────────────────────────────────────────────────────────
	ScratchDir  string        // default os.TempDir()
	SendTimeout time.Duration // default 30s, applied per /send-receipt request
}

// Load reads all environment variables and returns a validated Config.
// It loads a .env file from the working directory when present, so plain
// `go run ./cmd/api` works in development without any wrapper. Real
// environment variables always take precedence over .env values.
func Load() (*Config, error) {
	// Missing .env is fine; godotenv never overrides variables already set.
	_ = godotenv.Load()

	brand := getEnv("BRAND_NAME", "StephensCode")
	emailUser := os.Getenv("EMAIL_USER")

	c := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		BrandName:       brand,
		FrontendURL:     strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", defaultAllowedOrigins),
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		MailProvider:    strings.ToLower(getEnv("MAIL_PROVIDER", MailProviderSMTP)),
		SMTPHost:        getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:        getEnvAsInt("SMTP_PORT", 587),
		EmailUser:       emailUser,
		EmailPass:       os.Getenv("EMAIL_PASS"),
		ResendAPIKey:    os.Getenv("RESEND_API_KEY"),
		EmailFromName:   getEnv("EMAIL_FROM_NAME", brand),
		ReceiptBcc:      getEnv("RECEIPT_BCC", emailUser),
		SupportURL:      getEnv("SUPPORT_URL", "https://stephenscode.dev/support"),
		SupportEmail:    getEnv("SUPPORT_EMAIL", "support@stephenscode.dev"),
		LogoURL:         getEnv("LOGO_URL", "https://stephenscode.dev/logo.png"),
		LogoPath:        os.Getenv("LOGO_PATH"),
		ScratchDir:      getEnv("SCRATCH_DIR", os.TempDir()),
		SendTimeout:     getEnvAsDuration("SEND_TIMEOUT", 30*time.Second),
	}

	return c, c.validate()
}

func (c *Config) validate() error {
	var errs []error

	required := map[string]string{
		"STRIPE_SECRET_KEY": c.StripeSecretKey,
		"EMAIL_USER":        c.EmailUser,
	}

	switch c.MailProvider {
	case MailProviderSMTP:
		required["EMAIL_PASS"] = c.EmailPass
	case MailProviderResend:
		required["RESEND_API_KEY"] = c.ResendAPIKey
	default:
		errs = append(errs, fmt.Errorf("MAIL_PROVIDER must be %q or %q, got %q",
			MailProviderSMTP, MailProviderResend, c.MailProvider))
	}

	for name, val := range required {
		if val == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", name))
		}
	}

	if c.SMTPPort <= 0 {
		errs = append(errs, fmt.Errorf("SMTP_PORT must be positive"))
	}

	return errors.Join(errs...)
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	// A plain integer is treated as seconds.
	if value, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(value) * time.Second
	}
	// Fall back to Go duration syntax: "30s", "5m", "1h", etc.
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
}
