// Package commerce is the HTTP adapter to the remote commerce backend. It
// implements the service-layer backend interfaces over a JSON API, with a
// circuit breaker around the transport and tolerant decoding of the
// backend's loosely typed numeric fields.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/khobz-app/checkout/internal/services"
)

const (
	defaultRequestTimeout = 15 * time.Second
	tracerName            = "github.com/khobz-app/checkout/internal/commerce"
)

var errBaseURLRequired = errors.New("commerce: base URL is required")

// Client talks to the commerce backend. One breaker guards the whole
// upstream: when the backend is down every endpoint fails fast.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker[*apiResponse]

	breakerWindow  time.Duration
	breakerCooloff time.Duration
}

// Option customises client behaviour.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAPIKey sets the bearer token sent to the backend.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithBreakerSettings tunes the failure-counting window and the cool-off
// period before the breaker probes the backend again.
func WithBreakerSettings(window, cooloff time.Duration) Option {
	return func(c *Client) {
		if window > 0 {
			c.breakerWindow = window
		}
		if cooloff > 0 {
			c.breakerCooloff = cooloff
		}
	}
}

// NewClient constructs a commerce client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: defaultRequestTimeout},
		logger:         zap.NewNop(),
		tracer:         otel.Tracer(tracerName),
		breakerWindow:  60 * time.Second,
		breakerCooloff: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	client.breaker = gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:        "commerce-backend",
		MaxRequests: 3,
		Interval:    client.breakerWindow,
		Timeout:     client.breakerCooloff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			client.logger.Warn("commerce breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return client, nil
}

type apiResponse struct {
	status int
	body   []byte
}

// errorEnvelope covers both error shapes the backend emits: a nested
// {"error": {...}} object and a flat {"code","message"} body.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do executes one JSON round trip. Only transport failures and 5xx
// responses count against the breaker; a 4xx is the backend working as
// intended and must not open the circuit.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	ctx, span := c.tracer.Start(ctx, "commerce."+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
	defer span.End()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("commerce: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("commerce: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.breaker.Execute(func() (*apiResponse, error) {
		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		result := &apiResponse{status: httpResp.StatusCode, body: raw}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return result, fmt.Errorf("commerce: backend returned %d", httpResp.StatusCode)
		}
		return result, nil
	})
	if err != nil {
		span.RecordError(err)
		return c.transportError(path, resp, err)
	}

	if resp.status >= http.StatusBadRequest {
		return c.apiError(resp)
	}

	if out != nil {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return &services.BackendError{
				Message:   fmt.Sprintf("malformed response from %s: %v", path, err),
				Retryable: true,
			}
		}
	}
	return nil
}

// transportError maps breaker and network failures onto retryable backend
// errors.
func (c *Client) transportError(path string, resp *apiResponse, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("commerce request rejected by breaker", zap.String("path", path))
		return &services.BackendError{
			Message:   "commerce backend temporarily unavailable",
			Retryable: true,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if resp != nil && resp.status >= http.StatusInternalServerError {
		if apiErr := decodeErrorEnvelope(resp); apiErr != nil {
			apiErr.Retryable = true
			return apiErr
		}
	}
	c.logger.Warn("commerce request failed", zap.String("path", path), zap.Error(err))
	return &services.BackendError{Message: err.Error(), Retryable: true}
}

// apiError maps a 4xx body onto a structured backend error.
func (c *Client) apiError(resp *apiResponse) error {
	if apiErr := decodeErrorEnvelope(resp); apiErr != nil {
		return apiErr
	}
	return &services.BackendError{
		Message: fmt.Sprintf("commerce backend rejected the request (%d)", resp.status),
	}
}

func decodeErrorEnvelope(resp *apiResponse) *services.BackendError {
	var envelope errorEnvelope
	if err := json.Unmarshal(resp.body, &envelope); err != nil {
		return nil
	}
	code, message := envelope.Code, envelope.Message
	if envelope.Error != nil {
		code, message = envelope.Error.Code, envelope.Error.Message
	}
	if code == "" && message == "" {
		return nil
	}
	if message == "" {
		message = code
	}
	return &services.BackendError{Code: code, Message: message}
}
