package email

import (
	"context"
	"fmt"
	"time"

	mail "github.com/wneessen/go-mail"
)

// SMTPConfig holds the operator mailbox credentials.
type SMTPConfig struct {
	Host     string // e.g. "smtp.gmail.com"
	Port     int    // 587 for STARTTLS, 465 for implicit TLS
	Username string // operator address
	Password string // app password / secret
	FromName string
}

// smtpSender is a Sender backed by an authenticated SMTP relay.
type smtpSender struct {
	cfg SMTPConfig
}

// NewSMTPSender returns a Sender that relays through cfg.Host. Host and
// credentials are required.
func NewSMTPSender(cfg SMTPConfig) (Sender, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, fmt.Errorf("email: SMTP host and port are required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("email: SMTP username and password are required")
	}
	return &smtpSender{cfg: cfg}, nil
}

// Send dials the relay, submits msg, and hangs up. A fresh client per call
// keeps concurrent deliveries on separate connections.
func (s *smtpSender) Send(ctx context.Context, msg Message) (Result, error) {
	m, err := s.buildMsg(msg)
	if err != nil {
		return Result{}, err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return Result{}, fmt.Errorf("email: smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return Result{}, &TransportError{Provider: "smtp", Detail: err.Error(), Err: err}
	}

	accepted, err := m.GetRecipients()
	if err != nil {
		accepted = recipients(msg)
	}
	var id string
	if ids := m.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
		id = ids[0]
	}
	return Result{ID: id, Accepted: accepted}, nil
}

func (s *smtpSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTimeout(30 * time.Second),
	}
	if s.cfg.Port == 465 {
		return append(opts, mail.WithSSL())
	}
	return append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
}

// buildMsg maps a Message onto a go-mail message. Address errors surface
// here, before any connection is made.
func (s *smtpSender) buildMsg(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(s.cfg.FromName, msg.From); err != nil {
		return nil, fmt.Errorf("email: from address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("email: to address: %w", err)
	}
	if len(msg.Bcc) > 0 {
		if err := m.Bcc(msg.Bcc...); err != nil {
			return nil, fmt.Errorf("email: bcc address: %w", err)
		}
	}
	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetDate()
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	for _, a := range msg.Attachments {
		opts := []mail.FileOption{mail.WithFileName(a.Filename)}
		if a.ContentType != "" {
			opts = append(opts, mail.WithFileContentType(mail.ContentType(a.ContentType)))
		}
		m.AttachFile(a.Path, opts...)
	}
	return m, nil
}
