package action

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"riskscope/internal/model"
)

func TestAlertSinkPostsRiskEvent(t *testing.T) {
	var received model.RiskEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method mismatch: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type mismatch: %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("body not a risk event: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewAlertSink(server.URL, nil)
	ev := riskEvent(model.LevelCritical)
	if err := sink.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if received.ID != ev.ID || received.Kind != ev.Kind || received.Level != ev.Level {
		t.Fatalf("delivered event mismatch: %+v", received)
	}
}

func TestAlertSinkNon2xxIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewAlertSink(server.URL, nil)
	if err := sink.Handle(context.Background(), riskEvent(model.LevelHigh)); err == nil {
		t.Fatalf("expected failure on 502")
	}
}
