// Package delivery turns an order into a sent receipt email: it renders the
// PDF to a per-request scratch file, composes the HTML body, hands both to
// the mail transport, and always removes the scratch file afterwards.
//
// Nothing here retries and nothing imposes a timeout; both are the caller's
// policy. Concurrent Deliver calls share no mutable state because every call
// gets its own uniquely named artifact.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/checkout-receipts-backend/internal/email"
	"github.com/nyashahama/checkout-receipts-backend/internal/metrics"
	"github.com/nyashahama/checkout-receipts-backend/internal/receipt"
)

// AttachmentName is the filename the recipient sees.
const AttachmentName = "receipt.pdf"

var (
	// ErrRender means the receipt could not be generated; nothing was sent.
	ErrRender = errors.New("delivery: could not generate receipt")

	// ErrTransport means the mail service refused or failed to accept the
	// message. The wrapped error carries the transport's detail.
	ErrTransport = errors.New("delivery: message rejected by transport")
)

// Renderer writes a complete receipt document to a new file at path.
type Renderer interface {
	RenderFile(path string, o receipt.Order) error
}

// Composer builds the email subject and HTML body for an order.
type Composer interface {
	Compose(o receipt.Order) (email.Content, error)
}

// Config holds the addresses and scratch location used for every delivery.
type Config struct {
	// ScratchDir holds transient receipt files. Defaults to os.TempDir().
	ScratchDir string

	// From is the operator address receipts are sent from.
	From string

	// Bcc is the operator inbox that receives a copy of every receipt.
	// Empty disables the copy.
	Bcc string
}

// Result reports a successful delivery.
type Result struct {
	MessageID string
	Accepted  []string
}

// Coordinator runs the render → compose → send → cleanup pipeline.
type Coordinator struct {
	renderer Renderer
	composer Composer
	sender   email.Sender
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewCoordinator constructs a Coordinator. m may be nil.
func NewCoordinator(
	renderer Renderer,
	composer Composer,
	sender email.Sender,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Coordinator {
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	return &Coordinator{
		renderer: renderer,
		composer: composer,
		sender:   sender,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Deliver sends the receipt for o:
//
//  1. Validate the order (no I/O on failure).
//  2. Render the PDF to a fresh scratch file.
//  3. Compose the HTML body.
//  4. Send one message with the PDF attached.
//  5. Remove the scratch file, whatever happened above.
//
// Render failures wrap ErrRender and transport failures wrap ErrTransport.
// A validation failure is returned as *receipt.ValidationError.
func (c *Coordinator) Deliver(ctx context.Context, o receipt.Order) (Result, error) {
	start := time.Now()
	outcome := metrics.OutcomeSent
	defer func() { c.metrics.ObserveDelivery(outcome, time.Since(start)) }()

	log := c.logger.With("recipient", o.Recipient, "items", len(o.Items))

	if err := o.Validate(); err != nil {
		outcome = metrics.OutcomeInvalid
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		outcome = metrics.OutcomeCancelled
		return Result{}, fmt.Errorf("delivery: %w", err)
	}

	// ── 1. Scratch artifact, removed on every exit path ───────────────────────
	artifact := filepath.Join(c.cfg.ScratchDir, "receipt-"+uuid.NewString()+".pdf")
	defer c.removeArtifact(artifact, log)

	// ── 2. Render ─────────────────────────────────────────────────────────────
	if err := c.renderer.RenderFile(artifact, o); err != nil {
		outcome = metrics.OutcomeRenderFailed
		log.Error("delivery: render failed", "artifact", artifact, "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrRender, err)
	}

	// ── 3. Compose ────────────────────────────────────────────────────────────
	content, err := c.composer.Compose(o)
	if err != nil {
		outcome = metrics.OutcomeRenderFailed
		log.Error("delivery: compose failed", "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrRender, err)
	}

	// A cancelled request never reaches the transport.
	if err := ctx.Err(); err != nil {
		outcome = metrics.OutcomeCancelled
		return Result{}, fmt.Errorf("delivery: %w", err)
	}

	// ── 4. Send ───────────────────────────────────────────────────────────────
	msg := email.Message{
		From:    c.cfg.From,
		To:      []string{o.Recipient},
		Subject: content.Subject,
		HTML:    content.HTML,
		Attachments: []email.Attachment{{
			Filename:    AttachmentName,
			Path:        artifact,
			ContentType: "application/pdf",
		}},
	}
	if c.cfg.Bcc != "" {
		msg.Bcc = []string{c.cfg.Bcc}
	}

	sent, err := c.sender.Send(ctx, msg)
	if err != nil {
		outcome = metrics.OutcomeTransportFailed
		if ctx.Err() != nil {
			outcome = metrics.OutcomeCancelled
		}
		log.Error("delivery: send failed", "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	log.Info("delivery: receipt sent",
		"message_id", sent.ID,
		"accepted", len(sent.Accepted),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{MessageID: sent.ID, Accepted: sent.Accepted}, nil
}

// removeArtifact deletes the scratch file. A file that was never created is
// not an error. Other failures are logged and counted but never change the
// delivery result.
func (c *Coordinator) removeArtifact(path string, log *slog.Logger) {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	c.metrics.CleanupFailed()
	log.Warn("delivery: could not remove scratch artifact", "artifact", path, "error", err)
}
