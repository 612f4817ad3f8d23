package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mathwise-quiz-service/internal/app"
	"mathwise-quiz-service/internal/domain"
	"mathwise-quiz-service/internal/platform/logger"
)

func TestAIProxyForwardsUpstreamBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["topic"] != "fractions" {
			t.Errorf("body not forwarded verbatim: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"question":"What is 1/2 + 1/4?"}`))
	}))
	defer upstream.Close()

	proxy := app.NewAIProxy(upstream.URL, time.Second, logger.NewNop())
	resp, err := proxy.Generate(context.Background(), json.RawMessage(`{"topic":"fractions"}`))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(resp) != `{"question":"What is 1/2 + 1/4?"}` {
		t.Fatalf("upstream body not returned verbatim: %s", resp)
	}
}

func TestAIProxyHidesUpstreamErrorDetail(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "secret stack trace", http.StatusBadGateway)
	}))
	defer upstream.Close()

	proxy := app.NewAIProxy(upstream.URL, time.Second, logger.NewNop())
	_, err := proxy.Evaluate(context.Background(), json.RawMessage(`{}`))
	if !errors.Is(err, domain.ErrAIServiceUnavailable) {
		t.Fatalf("expected ErrAIServiceUnavailable, got %v", err)
	}
}

func TestAIProxyTimeoutBecomesGenericFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer upstream.Close()

	proxy := app.NewAIProxy(upstream.URL, 20*time.Millisecond, logger.NewNop())
	_, err := proxy.Generate(context.Background(), json.RawMessage(`{}`))
	if !errors.Is(err, domain.ErrAIServiceUnavailable) {
		t.Fatalf("expected ErrAIServiceUnavailable on timeout, got %v", err)
	}
}
