// Package ollama talks to a local Ollama server through its chat API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/luna/core/llms"
	"github.com/koscakluka/luna/core/service"
)

const (
	ServiceName = "ollama-llm-service"

	DefaultBaseURL     = "http://localhost:11434"
	DefaultModel       = "llama3"
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3

	healthCheckTimeout = 5 * time.Second
)

type Client struct {
	state service.State

	baseURL     string
	model       string
	temperature float64
	timeout     time.Duration
	maxRetries  uint
	newBackOff  func() backoff.BackOff

	httpClient *http.Client
	breaker    *CircuitBreaker

	metricsMu sync.Mutex
	metrics   Metrics
}

var (
	_ service.Service = (*Client)(nil)
	_ llms.Client     = (*Client)(nil)
)

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func WithTemperature(temperature float64) Option {
	return func(c *Client) { c.temperature = temperature }
}

// WithTimeout bounds a single chat attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithMaxRetries sets how many attempts a chat request gets on transport
// errors and server failures.
func WithMaxRetries(n uint) Option {
	return func(c *Client) { c.maxRetries = max(n, 1) }
}

func WithCircuitBreaker(breaker *CircuitBreaker) Option {
	return func(c *Client) { c.breaker = breaker }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithBackOff replaces the retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = newBackOff }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       DefaultModel,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
		maxRetries:  DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 4 * time.Second
			return b
		},
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
		breaker: NewCircuitBreaker(5, 60*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string           { return ServiceName }
func (c *Client) Status() service.Status { return c.state.Status() }
func (c *Client) Model() string          { return c.model }

// Start never fails because the server is unreachable; the client reports
// Degraded instead and keeps trying on each request.
func (c *Client) Start(ctx context.Context) error {
	if c.ping(ctx) {
		c.state.SetStatus(service.StatusHealthy)
		logger.InfoContext(ctx, "llm service started", "model", c.model, "base_url", c.baseURL)
		return nil
	}
	c.state.SetStatus(service.StatusDegraded)
	logger.WarnContext(ctx, "llm service started but server is unreachable", "base_url", c.baseURL)
	return nil
}

func (c *Client) Stop(ctx context.Context) error {
	c.state.SetStatus(service.StatusShutdown)
	c.httpClient.CloseIdleConnections()
	logger.InfoContext(ctx, "llm service stopped")
	return nil
}

func (c *Client) HealthCheck(ctx context.Context) bool {
	if c.state.Status() == service.StatusShutdown {
		return false
	}
	return c.ping(ctx)
}

func (c *Client) ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.DebugContext(ctx, "llm health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	var tags tagsResponse
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return json.NewDecoder(resp.Body).Decode(&tags) == nil
}

// Chat sends messages and returns the model's reply. Transport errors and 5xx
// responses are retried; the circuit breaker sees one outcome per call.
func (c *Client) Chat(ctx context.Context, messages []llms.Message, opts ...llms.PromptOption) (llms.Response, error) {
	ctx, span := tracer.Start(ctx, "llm chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.messages", len(messages)),
	)

	if !c.breaker.Allow() {
		span.RecordError(ErrCircuitOpen)
		span.SetStatus(codes.Error, ErrCircuitOpen.Error())
		return llms.Response{}, ErrCircuitOpen
	}

	body, err := json.Marshal(c.request(messages, llms.NewPromptOptions(opts...)))
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return llms.Response{}, err
	}

	logger.InfoContext(ctx, "sending request to llm", "model", c.model, "message_count", len(messages))
	start := time.Now()
	resp, err := backoff.Retry(ctx, func() (chatResponse, error) {
		return c.do(ctx, body)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxRetries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.WarnContext(ctx, "llm request failed, retrying", "error", err, "wait", wait)
		}),
	)
	elapsed := time.Since(start)
	if err != nil {
		c.breaker.Failure()
		c.record(elapsed, 0, false)
		err = fmt.Errorf("llm request failed: %w", err)
		logger.ErrorContext(ctx, "llm request failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return llms.Response{}, err
	}
	c.breaker.Success()

	response := toResponse(resp)
	c.record(elapsed, response.Usage.TotalTokens(), true)
	logger.InfoContext(ctx, "received response from llm",
		"response_length", len(response.Content),
		"response_time", elapsed,
	)
	span.SetAttributes(attribute.Int("llm.tokens", response.Usage.TotalTokens()))
	return response, nil
}

func (c *Client) request(messages []llms.Message, options llms.PromptOptions) chatRequest {
	temperature := c.temperature
	if options.Temperature != nil {
		temperature = *options.Temperature
	}

	req := chatRequest{
		Model:    c.model,
		Messages: make([]message, 0, len(messages)),
		Stream:   false,
		Options:  map[string]any{"temperature": temperature},
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, message{Role: string(m.Role), Content: m.Content})
	}

	if len(options.Tools) > 0 {
		var functions []toolFunction
		copier.Copy(&functions, options.Tools)
		for _, function := range functions {
			req.Tools = append(req.Tools, tool{Type: "function", Function: function})
		}
	}
	return req
}

func (c *Client) do(ctx context.Context, body []byte) (chatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return chatResponse{}, backoff.Permanent(fmt.Errorf("error creating HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chatResponse{}, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("non-OK HTTP status %s: %s", resp.Status, strings.TrimSpace(string(detail)))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return chatResponse{}, err
		}
		return chatResponse{}, backoff.Permanent(err)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return chatResponse{}, backoff.Permanent(fmt.Errorf("error decoding response: %w", err))
	}
	if decoded.Error != "" {
		return chatResponse{}, backoff.Permanent(errors.New(decoded.Error))
	}
	return decoded, nil
}

func toResponse(resp chatResponse) llms.Response {
	response := llms.Response{
		Content: resp.Message.Content,
		Usage: llms.Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
			TotalTime:    time.Duration(resp.TotalDuration).Seconds(),
		},
	}
	for _, call := range resp.Message.ToolCalls {
		response.ToolCalls = append(response.ToolCalls, llms.ToolCall{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return response
}
