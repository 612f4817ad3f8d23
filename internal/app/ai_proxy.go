package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mathwise-quiz-service/internal/domain"
	"mathwise-quiz-service/internal/platform/logger"
)

// AIProxy forwards generation and evaluation requests to the external AI
// service and returns the upstream body verbatim. Upstream failure detail is
// logged here and never reaches the caller.
type AIProxy struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func NewAIProxy(baseURL string, timeout time.Duration, log *logger.Logger) *AIProxy {
	return &AIProxy{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Generate proxies a question-generation request body to /generate.
func (p *AIProxy) Generate(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return p.forward(ctx, "/generate", body)
}

// Evaluate proxies an answer-evaluation request body to /evaluate.
func (p *AIProxy) Evaluate(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return p.forward(ctx, "/evaluate", body)
}

func (p *AIProxy) forward(ctx context.Context, path string, body json.RawMessage) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		p.log.Error("ai request build failed", "path", path, "err", err)
		return nil, domain.ErrAIServiceUnavailable
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Error("ai request failed", "path", path, "err", err)
		return nil, domain.ErrAIServiceUnavailable
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		p.log.Error("ai response read failed", "path", path, "err", err)
		return nil, domain.ErrAIServiceUnavailable
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.log.Error("ai upstream error", "path", path, "status", resp.StatusCode, "body", string(data))
		return nil, fmt.Errorf("%w: upstream status %d", domain.ErrAIServiceUnavailable, resp.StatusCode)
	}
	return data, nil
}
