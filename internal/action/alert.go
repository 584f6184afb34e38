package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"riskscope/internal/model"
)

// AlertSink POSTs each risk event as JSON to a webhook. A non-2xx status
// is a failure; delivery is not retried.
type AlertSink struct {
	url    string
	client *http.Client
}

// NewAlertSink builds the webhook sink. The per-attempt deadline comes
// from the dispatch context, so the client itself carries no timeout.
func NewAlertSink(url string, client *http.Client) *AlertSink {
	if client == nil {
		client = &http.Client{}
	}
	return &AlertSink{url: url, client: client}
}

func (s *AlertSink) Name() string { return "alert" }

// Handle posts the event body.
func (s *AlertSink) Handle(ctx context.Context, ev model.RiskEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal risk event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alert webhook returned %s", resp.Status)
	}
	return nil
}
