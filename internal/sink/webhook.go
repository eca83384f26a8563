package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mtf-screener/internal/model"
)

// Webhook POSTs aligned signals, and optionally every signal, as JSON
// envelopes.
type Webhook struct {
	url        string
	allSignals bool
	client     *http.Client
}

// NewWebhook creates a webhook sink with a 10s client timeout.
func NewWebhook(url string, allSignals bool) *Webhook {
	return &Webhook{
		url:        url,
		allSignals: allSignals,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Envelope
	SentAt string `json:"ts"`
}

func (w *Webhook) EmitSignal(ctx context.Context, s model.Signal) error {
	if !w.allSignals {
		return nil
	}
	return w.post(ctx, Envelope{Type: TypeSignal, Data: s})
}

func (w *Webhook) EmitAligned(ctx context.Context, a model.AlignedSignal) error {
	return w.post(ctx, Envelope{Type: TypeAligned, Data: a})
}

func (w *Webhook) post(ctx context.Context, e Envelope) error {
	body, err := json.Marshal(webhookPayload{Envelope: e, SentAt: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
