// Package upstream provides the HTTP client used for every third-party API
// call made by the server: default timeouts, user agent, JSON decoding,
// bounded retries for idempotent requests, tracing spans and a request
// counter.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout applies when the request context carries no deadline.
	DefaultTimeout = 20 * time.Second

	defaultUserAgent   = "frequence-du-vivant/1.0"
	defaultMaxAttempts = 3
	defaultBackoff     = 400 * time.Millisecond
	maxBodyPreview     = 256
	maxBodySize        = 64 << 20
)

// StatusError is returned when an upstream answers with a non-2xx status.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.Code, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Config configures a Client.
type Config struct {
	// Service names the upstream in logs, spans and metrics.
	Service string
	// HTTPClient performs the requests. Defaults to a client using
	// http.DefaultTransport.
	HTTPClient *http.Client
	// Timeout applies when the request context has no deadline.
	Timeout time.Duration
	// UserAgent is set on requests that do not define one.
	UserAgent string
	// MaxAttempts bounds retries of idempotent requests.
	MaxAttempts int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
	// MeterProvider and TracerProvider default to the otel globals.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Client performs HTTP requests against a single upstream service.
// It is safe for concurrent use.
type Client struct {
	service     string
	http        *http.Client
	timeout     time.Duration
	userAgent   string
	maxAttempts int
	backoff     time.Duration
	tracer      trace.Tracer
	requests    metric.Int64Counter
}

// New creates a Client, applying defaults for zero config values.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Transport: http.DefaultTransport}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}

	counter, err := cfg.MeterProvider.Meter("frequence/upstream").Int64Counter("upstream.requests",
		metric.WithDescription("Requests sent to third-party APIs"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return &Client{
		service:     cfg.Service,
		http:        cfg.HTTPClient,
		timeout:     cfg.Timeout,
		userAgent:   cfg.UserAgent,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		tracer:      cfg.TracerProvider.Tracer("frequence/upstream"),
		requests:    counter,
	}
}

// Service returns the configured service name.
func (c *Client) Service() string {
	return c.service
}

// Request describes one upstream call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	// Body is replayed on every attempt.
	Body []byte
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do sends the request and reads the whole body. Non-2xx statuses produce a
// *StatusError. GET and HEAD requests are retried on network errors and
// temporary statuses.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx, span := c.tracer.Start(ctx, c.service+" "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("upstream.service", c.service),
			attribute.String("http.request.method", req.Method),
		),
	)
	defer span.End()

	attempts := 1
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		attempts = c.maxAttempts
	}

	lg := zctx.From(ctx)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.once(ctx, req)
		if err == nil {
			c.record(ctx, "ok")
			span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || attempt == attempts || ctx.Err() != nil {
			break
		}

		delay := time.Duration(attempt) * c.backoff
		lg.Warn("Upstream request failed, retrying",
			zap.String("service", c.service),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(delay):
			continue
		}
		break
	}

	c.record(ctx, "error")
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader = http.NoBody
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: build request", c.service)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: %s", c.service, req.Method)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: read body", c.service)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Service: c.service,
			Code:    resp.StatusCode,
			Body:    preview(data),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *Client) record(ctx context.Context, outcome string) {
	if c.requests == nil {
		return
	}
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", c.service),
		attribute.String("outcome", outcome),
	))
}

// GetJSON performs a GET request and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, v any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, URL: url, Header: header})
	if err != nil {
		return err
	}
	return c.decode(resp.Body, v)
}

// PostJSON encodes in as the request body, sends it and decodes the JSON
// answer into out. A nil out discards the body.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, "%s: encode request", c.service)
	}
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")

	resp, err := c.Do(ctx, Request{Method: http.MethodPost, URL: url, Header: header, Body: data})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return c.decode(resp.Body, out)
}

func (c *Client) decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "%s: decode response (%s)", c.service, preview(data))
	}
	return nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func preview(data []byte) string {
	if len(data) <= maxBodyPreview {
		return string(data)
	}
	return string(data[:maxBodyPreview]) + "..."
}
