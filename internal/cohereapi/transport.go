// Package cohereapi speaks the Cohere v2 chat wire format over HTTP.
package cohereapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/bitop-dev/cohere/internal/chat"
	"github.com/bitop-dev/cohere/internal/httpx"
	"github.com/bitop-dev/cohere/internal/sse"
	"github.com/tidwall/gjson"
)

const (
	provider     = "cohere"
	chatEndpoint = "/v2/chat"
)

type Config struct {
	APIKey     string
	BaseURL    string
	Headers    map[string]string
	HTTPClient *http.Client
	Retry      httpx.RetryPolicy
	Logger     *slog.Logger
}

// Transport implements chat.Transport against the /v2/chat endpoint.
type Transport struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transport{cfg: cfg, logger: logger}
}

var _ chat.Transport = (*Transport)(nil)

func (t *Transport) Call(ctx context.Context, req chat.Request) (chat.Response, error) {
	req.Stream = false
	resp, err := t.send(ctx, req)
	if err != nil {
		return chat.Response{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		code, retryable := classifyNetworkErr(err)
		return chat.Response{}, &chat.Error{Provider: provider, Code: code, Message: err.Error(), Retryable: retryable, Cause: err}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		t.logger.Warn("empty response body", "status", resp.StatusCode, "request_id", resp.Request.Header.Get(httpx.RequestIDHeader))
		return chat.Response{}, nil
	}
	return DecodeResponse(b)
}

// Stream opens a streaming exchange. Retries apply to opening it only; the
// returned frames are the raw SSE payloads.
func (t *Transport) Stream(ctx context.Context, req chat.Request) (chat.Frames, error) {
	req.Stream = true
	resp, err := t.send(ctx, req)
	if err != nil {
		return nil, err
	}
	return sse.NewFrames(resp.Body), nil
}

func (t *Transport) send(ctx context.Context, req chat.Request) (*http.Response, error) {
	if t.cfg.APIKey == "" {
		return nil, &chat.Error{Provider: provider, Code: "config_error", Message: "cohere API key is required"}
	}
	body, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	u, err := endpointURL(t.cfg.BaseURL)
	if err != nil {
		return nil, &chat.Error{Provider: provider, Code: "url_error", Message: err.Error(), Cause: err}
	}

	h := make(http.Header)
	h.Set("Authorization", "Bearer "+t.cfg.APIKey)
	if req.Stream {
		h.Set("Accept", "text/event-stream")
	}
	for k, v := range t.cfg.Headers {
		h.Set(k, v)
	}

	resp, err := httpx.DoJSON(ctx, t.cfg.HTTPClient, http.MethodPost, u, body, h, t.cfg.Retry, t.logger)
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) {
			return nil, statusError(se.StatusCode, se.Body)
		}
		code, retryable := classifyNetworkErr(err)
		return nil, &chat.Error{Provider: provider, Code: code, Message: err.Error(), Retryable: retryable, Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, statusError(resp.StatusCode, b)
	}
	return resp, nil
}

func endpointURL(base string) (string, error) {
	if base == "" {
		base = "https://api.cohere.com"
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + chatEndpoint)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// statusError maps a non-2xx reply to a provider error, preferring the JSON
// body's message field.
func statusError(status int, body []byte) *chat.Error {
	msg := strings.TrimSpace(string(body))
	if gjson.ValidBytes(body) {
		if m := gjson.GetBytes(body, "message"); m.Exists() && m.String() != "" {
			msg = m.String()
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	code := "http_error"
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = "auth_error"
	case status == http.StatusTooManyRequests:
		code = "rate_limited"
	}
	return &chat.Error{
		Provider:  provider,
		Code:      code,
		Status:    status,
		Message:   msg,
		Retryable: httpx.ShouldRetry(status),
	}
}

func classifyNetworkErr(err error) (code string, retryable bool) {
	if err == nil {
		return "network_error", false
	}
	if errors.Is(err, context.Canceled) {
		return "canceled", false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout", true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout", true
	}
	return "network_error", true
}
