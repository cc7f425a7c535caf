package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// resendClient is a Sender backed by the Resend API.
type resendClient struct {
	apiKey     string
	fromName   string // e.g. "StephensCode"
	endpoint   string
	httpClient *http.Client
}

// ResendOption customises the Resend transport.
type ResendOption func(*resendClient)

// WithResendEndpoint points the client at a different API URL. Used in tests.
func WithResendEndpoint(url string) ResendOption {
	return func(c *resendClient) { c.endpoint = url }
}

// NewResendClient returns a Sender that delivers email via Resend.
func NewResendClient(apiKey, fromName string, opts ...ResendOption) Sender {
	c := &resendClient{
		apiKey:   apiKey,
		fromName: fromName,
		endpoint: resendEndpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ─── RESEND API SHAPES ────────────────────────────────────────────────────────

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64
}

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Bcc         []string           `json:"bcc,omitempty"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`

	// Error responses are flat: {"statusCode":422,"name":"...","message":"..."}.
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

// ─── SENDER IMPLEMENTATION ────────────────────────────────────────────────────

// Send posts msg to Resend. Attachments are read from disk and base64
// encoded into the request body.
func (c *resendClient) Send(ctx context.Context, msg Message) (Result, error) {
	reqBody := resendRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, msg.From),
		To:      msg.To,
		Bcc:     msg.Bcc,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}
	for _, a := range msg.Attachments {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			return Result{}, fmt.Errorf("email: read attachment %s: %w", a.Filename, err)
		}
		reqBody.Attachments = append(reqBody.Attachments, resendAttachment{
			Filename: a.Filename,
			Content:  base64.StdEncoding.EncodeToString(data),
		})
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("email: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return Result{}, fmt.Errorf("email: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &TransportError{Provider: "resend", Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Result{}, &TransportError{Provider: "resend", StatusCode: resp.StatusCode, Detail: "read response", Err: err}
	}

	var parsed resendResponse
	parseErr := json.Unmarshal(respBytes, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := parsed.Message
		if parsed.Name != "" {
			detail = parsed.Name + ": " + parsed.Message
		}
		if parseErr != nil || detail == "" {
			detail = fmt.Sprintf("%.200s", string(respBytes))
		}
		return Result{}, &TransportError{Provider: "resend", StatusCode: resp.StatusCode, Detail: detail}
	}

	// A 2xx means the message was accepted. An unreadable body leaves ID empty.
	return Result{ID: parsed.ID, Accepted: recipients(msg)}, nil
}
