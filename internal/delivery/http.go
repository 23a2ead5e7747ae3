package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"eventgate/internal/config"
	"eventgate/internal/constants"
	"eventgate/internal/routing"
	"eventgate/pkg/circuitbreaker"
	"eventgate/pkg/models"
	"eventgate/pkg/tracing"
)

const maxResponseBody = 64 << 10

// HTTPHandler POSTs the payload as JSON to a fixed URL. Calls go through a
// circuit breaker owned by the handler, so an open breaker fails fast and
// the router schedules a retry.
type HTTPHandler struct {
	client  *http.Client
	url     string
	method  string
	headers map[string]string
	timeout time.Duration
	cb      *circuitbreaker.Wrapper
}

func NewHTTPHandler(client *http.Client, def models.HandlerDefinition, cbCfg config.CircuitBreakerConfig) *HTTPHandler {
	method := strings.ToUpper(def.Method)
	if method == "" {
		method = http.MethodPost
	}
	timeout := constants.DefaultHTTPTimeout
	if def.TimeoutMs > 0 {
		timeout = time.Duration(def.TimeoutMs) * time.Millisecond
	}

	h := &HTTPHandler{
		client:  client,
		url:     def.URL,
		method:  method,
		headers: def.Headers,
		timeout: timeout,
	}
	if cbCfg.Enabled {
		h.cb = circuitbreaker.NewWrapper(circuitbreaker.FromConfig("http:"+def.URL, cbCfg))
	}
	return h
}

func (h *HTTPHandler) Invoke(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	if h.cb == nil {
		return h.send(ctx, payload)
	}
	return h.cb.Execute(ctx, func() (interface{}, error) {
		return h.send(ctx, payload)
	})
}

func (h *HTTPHandler) send(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, h.method, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	if info, ok := routing.EventInfoFromContext(ctx); ok {
		req.Header.Set("X-Event-ID", info.ID)
		req.Header.Set("X-Event-Type", info.EventType)
		req.Header.Set("X-Event-Source", info.Source)
	}
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return nil, fmt.Errorf("endpoint returned status: %d", resp.StatusCode)
	}

	result := map[string]interface{}{"status_code": resp.StatusCode}
	var decoded interface{}
	if len(respBody) > 0 && json.Unmarshal(respBody, &decoded) == nil {
		result["response"] = decoded
	}
	return result, nil
}
