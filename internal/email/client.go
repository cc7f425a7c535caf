// Package email defines the mail transport interface used to deliver
// receipts, the HTML receipt composer, and two transports: SMTP (go-mail)
// and Resend.
package email

import (
	"context"
	"fmt"
)

// Attachment references a file on disk. Transports read it at send time,
// so the file must stay in place until Send returns.
type Attachment struct {
	Filename    string // name shown to the recipient, e.g. "receipt.pdf"
	Path        string
	ContentType string // e.g. "application/pdf"
}

// Message is one outbound email. It is built fresh per delivery.
type Message struct {
	From        string // bare address; transports add the display name
	To          []string
	Bcc         []string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Result is what the transport reports after accepting a message.
type Result struct {
	// ID is the provider message id, when the provider returns one.
	ID string
	// Accepted lists every recipient address the transport accepted.
	Accepted []string
}

// Sender is the interface the delivery coordinator uses to send mail.
// Tests inject a stub that records messages without hitting the network.
type Sender interface {
	// Send submits msg once. Implementations must not retry.
	Send(ctx context.Context, msg Message) (Result, error)
}

// TransportError is returned when the mail service refuses or fails to
// accept a message: authentication, network, or recipient rejection.
type TransportError struct {
	Provider   string // "smtp" or "resend"
	StatusCode int    // HTTP status or SMTP reply code when known, else 0
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("email: %s transport error (%d): %s", e.Provider, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("email: %s transport error: %s", e.Provider, e.Detail)
}

func (e *TransportError) Unwrap() error { return e.Err }

func recipients(msg Message) []string {
	out := make([]string, 0, len(msg.To)+len(msg.Bcc))
	out = append(out, msg.To...)
	out = append(out, msg.Bcc...)
	return out
}
