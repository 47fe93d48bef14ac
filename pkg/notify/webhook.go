package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/olimci/snapraid-runner/pkg/config"
)

const (
	webhookTimeout  = 30 * time.Second
	maxErrorBody    = 4 << 10
	markerAllowance = 64
)

// HTTPError is a non-2xx webhook response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("webhook error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("webhook error (status=%d): %s", e.StatusCode, body)
}

type webhookPayload struct {
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
}

// Webhook posts the report as a Discord-style JSON message.
type Webhook struct {
	cfg  config.Webhook
	http *http.Client
}

// NewWebhook returns a webhook channel. A nil client gets a default with a
// request timeout.
func NewWebhook(cfg config.Webhook, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	return &Webhook{cfg: cfg, http: client}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) SendOn() config.Triggers { return w.cfg.SendOn }

func (w *Webhook) Send(ctx context.Context, r Report) error {
	body, err := json.Marshal(webhookPayload{
		Username: w.cfg.Username,
		Content:  w.Content(r),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.RunID != "" {
		req.Header.Set("X-Snapraid-Runner-Run", r.RunID)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Content is the message text for r, sized to fit webhook.maxsize
// including the preamble and truncation marker.
func (w *Webhook) Content(r Report) string {
	if w.cfg.MaxSize <= 0 {
		return r.Body(r.Log)
	}
	budget := w.cfg.MaxSize - len(r.Body("")) - markerAllowance
	if budget < 1 {
		budget = 1
	}
	return r.Body(Truncate(r.Log, budget))
}
