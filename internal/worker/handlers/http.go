package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/queue-worker/internal/worker/domain"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTP delivers the payload to a URL. A 2xx response accepts the job; any
// other status code becomes the outcome.
type HTTP struct {
	logger *slog.Logger
	client *http.Client
	method string
	url    string
}

// NewHTTP creates a handler sending payloads to url with method (POST if empty)
func NewHTTP(method, url string, timeout time.Duration, logger *slog.Logger) *HTTP {
	if method == "" {
		method = http.MethodPost
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTP{
		logger: logger.With(slog.String("handler", "http")),
		client: &http.Client{Timeout: timeout},
		method: method,
		url:    url,
	}
}

// Handle sends the request. Transport failures are faults.
func (h *HTTP) Handle(ctx context.Context, payload domain.Payload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload for http request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, h.method, h.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read max 1KB for logging
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	h.logger.Debug("HTTP handler response",
		slog.String("url", h.url),
		slog.Int("status", resp.StatusCode),
		slog.String("body", string(respBody)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return domain.OutcomeSuccess, nil
	}
	return resp.StatusCode, nil
}
