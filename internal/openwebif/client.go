// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package openwebif is a read-only client for the OpenWebIF JSON API of
// Enigma2 receivers: bouquets, their services and per-service EPG.
package openwebif

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/metrics"
	"github.com/ManuGH/xg2g-epg/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Options configures the client. Zero values select defaults; a negative
// MaxRetries disables retries.
type Options struct {
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration
	MaxRetries            int
	Backoff               time.Duration
	MaxBackoff            time.Duration
	Username              string
	Password              string
	UserAgent             string
	RateLimit             rate.Limit
	RateLimitBurst        int
	BreakerThreshold      int
	BreakerReset          time.Duration
}

const (
	defaultTimeout          = 5 * time.Second
	defaultRetries          = 2
	defaultBackoff          = 200 * time.Millisecond
	defaultMaxBackoff       = 2 * time.Second
	defaultRateLimit        = 10
	defaultRateLimitBurst   = 20
	defaultBreakerThreshold = 5
	defaultBreakerReset     = 30 * time.Second
	maxResponseSize         = 32 << 20
)

// Client talks to one receiver.
type Client struct {
	base       string
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	tracer     trace.Tracer
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	username   string
	password   string
	userAgent  string

	mu  sync.Mutex
	rnd *rand.Rand
}

// Bouquet is a named service list.
type Bouquet struct {
	Ref  string
	Name string
}

// Service is one channel of a bouquet.
type Service struct {
	Ref  string `json:"servicereference"`
	Name string `json:"servicename"`
}

// EPGEvent is one guide entry as served by /api/epgservice.
type EPGEvent struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"shortdesc"`
	LongDesc    string `json:"longdesc"`
	Genre       string `json:"genre,omitempty"`
	Begin       int64  `json:"begin_timestamp"`
	Duration    int64  `json:"duration_sec"`
	ServiceRef  string `json:"sref,omitempty"`
	ServiceName string `json:"sname,omitempty"`
}

// EPGResponse is the /api/epgservice envelope.
type EPGResponse struct {
	Result bool       `json:"result"`
	Events []EPGEvent `json:"events"`
}

type bouquetsResponse struct {
	Bouquets [][]string `json:"bouquets"`
}

type servicesResponse struct {
	Services []Service `json:"services"`
}

// New creates a client with default options.
func New(baseURL string) *Client {
	return NewWithOptions(baseURL, Options{})
}

// NewWithOptions creates a client. Credentials embedded in baseURL are moved
// to basic auth unless opts carries its own.
func NewWithOptions(baseURL string, opts Options) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if u, err := url.Parse(trimmed); err == nil {
		if u.User != nil && opts.Username == "" {
			opts.Username = u.User.Username()
			if pass, ok := u.User.Password(); ok {
				opts.Password = pass
			}
		}
		u.User = nil
		trimmed = strings.TrimRight(u.String(), "/")
	}

	opts = normalizeOptions(opts)
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		TLSHandshakeTimeout:   5 * time.Second,
	}

	return &Client{
		base:       trimmed,
		http:       &http.Client{Timeout: opts.Timeout, Transport: transport},
		limiter:    rate.NewLimiter(opts.RateLimit, opts.RateLimitBurst),
		breaker:    NewCircuitBreaker("openwebif", opts.BreakerThreshold, opts.BreakerReset),
		tracer:     telemetry.Tracer("xg2g-epg.openwebif"),
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		maxBackoff: opts.MaxBackoff,
		username:   opts.Username,
		password:   opts.Password,
		userAgent:  opts.UserAgent,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ResponseHeaderTimeout <= 0 {
		opts.ResponseHeaderTimeout = opts.Timeout
	}
	switch {
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	case opts.MaxRetries == 0:
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = defaultBreakerThreshold
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = defaultBreakerReset
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "xg2g-epg"
	}
	return opts
}

// BaseURL returns the receiver address without credentials.
func (c *Client) BaseURL() string { return c.base }

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// Bouquets lists the receiver's bouquets in receiver order.
func (c *Client) Bouquets(ctx context.Context) ([]Bouquet, error) {
	var res bouquetsResponse
	if err := c.get(ctx, "bouquets", "/api/bouquets", nil, "", &res); err != nil {
		return nil, err
	}
	out := make([]Bouquet, 0, len(res.Bouquets))
	for _, b := range res.Bouquets {
		if len(b) < 2 || b[0] == "" {
			continue
		}
		out = append(out, Bouquet{Ref: b[0], Name: b[1]})
	}
	return out, nil
}

// Services lists the playable services of a bouquet. Markers are skipped.
func (c *Client) Services(ctx context.Context, bouquetRef string) ([]Service, error) {
	var res servicesResponse
	params := url.Values{"sRef": {bouquetRef}}
	if err := c.get(ctx, "services", "/api/getservices", params, bouquetRef, &res); err != nil {
		return nil, err
	}
	out := res.Services[:0]
	for _, s := range res.Services {
		if s.Ref == "" || isMarker(s.Ref) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// EPG returns the guide events the receiver holds for one service.
func (c *Client) EPG(ctx context.Context, serviceRef string) ([]EPGEvent, error) {
	var res EPGResponse
	params := url.Values{"sRef": {serviceRef}}
	if err := c.get(ctx, "epgservice", "/api/epgservice", params, serviceRef, &res); err != nil {
		return nil, err
	}
	return res.Events, nil
}

// isMarker reports whether ref is a bouquet separator (service type flag 64).
func isMarker(ref string) bool {
	return strings.HasPrefix(ref, "1:64:")
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, sref string, v any) error {
	ctx, span := c.tracer.Start(ctx, "openwebif."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.OpenWebIFAttributes(op, sref)...))

	rawURL := c.base + path
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}

	start := time.Now()
	err := c.breaker.Execute(func() error { return c.fetch(ctx, op, rawURL, v) })
	metrics.ObserveOpenWebIF(op, statusLabel(err), time.Since(start))
	telemetry.EndSpan(span, err)
	return err
}

func (c *Client) fetch(ctx context.Context, op, rawURL string, v any) error {
	attempts := c.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepWithContext(ctx, c.backoffFor(attempt-2)); err != nil {
				return wrapError(op, err, 0, nil)
			}
		}

		body, status, err := c.attempt(ctx, attempt, rawURL)
		if err == nil && status == http.StatusOK {
			if err := json.Unmarshal(body, v); err != nil {
				return wrapError(op, fmt.Errorf("decode: %w", err), status, nil)
			}
			return nil
		}
		lastErr = wrapError(op, err, status, body)
		if !shouldRetry(status, err) || ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, attempt int, rawURL string) ([]byte, int, error) {
	ctx, span := c.tracer.Start(ctx, "openwebif.attempt", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.Int("attempt", attempt),
		attribute.Bool("retry", attempt > 1),
	)

	body, status, err := c.roundTrip(ctx, rawURL)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err == nil && status != http.StatusOK {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	telemetry.EndSpan(span, err)
	return body, status, err
}

func (c *Client) roundTrip(ctx context.Context, rawURL string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	c.applyHeaders(req)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		return true
	}
	return status >= http.StatusInternalServerError
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff * time.Duration(1<<attempt)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	c.mu.Lock()
	jitter := time.Duration(c.rnd.Int63n(int64(wait/5 + 1)))
	c.mu.Unlock()
	return wait + jitter
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
