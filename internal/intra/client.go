// Package intra is the client for the campus-management API.
// Every request goes through one retrying pipeline: a client-side rate limit,
// a cached client-credentials token, a per-attempt timeout and a fixed
// classification of answers (2xx ok, 429 wait, 401 re-auth, other 4xx final,
// 5xx and transport errors retried). Failures never escape as Go errors;
// they come back as a Result.
package intra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"lucky-wheel/internal/config"
	"lucky-wheel/internal/pkg/ids"
	"lucky-wheel/internal/pkg/metrics"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 4 << 20

// Client talks to the campus API. It is safe for concurrent use.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	tokens  *TokenSource
	limiter *rate.Limiter
	headers map[string]string

	maxAttempts         int
	requestTimeout      time.Duration
	retryBackoff        time.Duration
	unauthorizedBackoff time.Duration
	defaultRetryAfter   time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleeper replaces the backoff sleep.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithName sets the name used in log events.
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithHeaders adds headers sent on every request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// Backoffs used when the configuration leaves them at zero.
const (
	DefaultRetryBackoff        = time.Second
	DefaultUnauthorizedBackoff = 500 * time.Millisecond
	DefaultRetryAfter          = time.Second
)

// New creates a Client from configuration.
// An empty ClientID disables authentication, which suits plain webhooks.
// Zero backoffs fall back to the Default* values.
func New(cfg config.IntraConfig, opts ...Option) *Client {
	c := &Client{
		name:                "intra",
		baseURL:             strings.TrimRight(cfg.BaseURL, "/"),
		http:                newPooledHTTPClient(),
		headers:             map[string]string{},
		maxAttempts:         cfg.MaxAttempts,
		requestTimeout:      cfg.RequestTimeout,
		retryBackoff:        cfg.RetryBackoff,
		unauthorizedBackoff: cfg.UnauthorizedBackoff,
		defaultRetryAfter:   cfg.DefaultRetryAfter,
		sleep:               sleepContext,
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = DefaultRetryBackoff
	}
	if c.unauthorizedBackoff <= 0 {
		c.unauthorizedBackoff = DefaultUnauthorizedBackoff
	}
	if c.defaultRetryAfter <= 0 {
		c.defaultRetryAfter = DefaultRetryAfter
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(limit, burst)

	for _, opt := range opts {
		opt(c)
	}

	if cfg.ClientID != "" {
		c.tokens = NewTokenSource(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, c.http, cfg.TokenSafetyMargin, cfg.RequestTimeout)
	}
	return c
}

func newPooledHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	return &http.Client{Transport: transport}
}

// Tokens exposes the token cache.
func (c *Client) Tokens() *TokenSource {
	return c.tokens
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string) Result {
	return c.Do(ctx, http.MethodGet, path, nil, nil)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) Result {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) Result {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do runs one logical request through the retry pipeline.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body any) Result {
	reqID := ids.New()
	url := c.url(path)
	start := time.Now()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			res := failure(ErrClient, 0, fmt.Sprintf("encode request body: %v", err), nil)
			c.logOutcome(reqID, method, url, nil, res, 0)
			return res
		}
	}

	res := c.run(ctx, reqID, method, url, headers, payload)

	outcome := "ok"
	switch {
	case res.IsClientError():
		outcome = "client"
	case !res.OK:
		outcome = "transient"
	}
	metrics.APIRequests.WithLabelValues(method, outcome).Inc()
	metrics.APIRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	return res
}

func (c *Client) run(ctx context.Context, reqID, method, url string, headers map[string]string, payload []byte) Result {
	var last Result
	made := 0

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		made = attempt
		if err := c.limiter.Wait(ctx); err != nil {
			last = failure(ErrTransient, 0, fmt.Sprintf("rate limiter: %v", err), nil)
			break
		}

		wait := c.retryBackoff

		token := ""
		if c.tokens != nil {
			var err error
			token, err = c.tokens.Token(ctx)
			if err != nil {
				last = failure(ErrTransient, 0, fmt.Sprintf("authenticate: %v", err), nil)
				c.logRetry(reqID, method, url, last, attempt)
				if !c.backoff(ctx, attempt, wait) {
					break
				}
				continue
			}
		}

		status, header, raw, err := c.send(ctx, method, url, headers, payload, token)
		metrics.APIAttempts.WithLabelValues(method, attemptLabel(status, err)).Inc()

		switch {
		case err != nil:
			last = failure(ErrTransient, 0, fmt.Sprintf("%s %s: %v", method, url, err), nil)

		case status >= 200 && status < 300:
			res := success(status, parseBody(header.Get("Content-Type"), raw))
			c.logOutcome(reqID, method, url, payload, res, attempt)
			return res

		case status == http.StatusTooManyRequests:
			wait = retryAfter(header.Get("Retry-After"), c.defaultRetryAfter)
			last = failure(ErrTransient, status, fmt.Sprintf("rate limited by %s, retry after %s", url, wait), parseBody(header.Get("Content-Type"), raw))

		case status == http.StatusUnauthorized:
			if c.tokens != nil {
				c.tokens.Invalidate(token)
			}
			wait = c.unauthorizedBackoff
			last = failure(ErrTransient, status, fmt.Sprintf("%s %s: unauthorized", method, url), parseBody(header.Get("Content-Type"), raw))

		case status < 500:
			res := failure(ErrClient, status, fmt.Sprintf("%s %s: %d %s", method, url, status, http.StatusText(status)), parseBody(header.Get("Content-Type"), raw))
			c.logOutcome(reqID, method, url, payload, res, attempt)
			return res

		default:
			last = failure(ErrTransient, status, fmt.Sprintf("%s %s: %d %s", method, url, status, http.StatusText(status)), parseBody(header.Get("Content-Type"), raw))
		}

		c.logRetry(reqID, method, url, last, attempt)
		if !c.backoff(ctx, attempt, wait) {
			break
		}
	}

	if last.Err == nil {
		last = failure(ErrTransient, 0, "no attempt was made", nil)
	}
	last.Message = fmt.Sprintf("%s (after %d attempts)", last.Message, made)
	c.logOutcome(reqID, method, url, payload, last, made)
	return last
}

// backoff sleeps before the next attempt. It returns false when the budget is
// spent or ctx ended.
func (c *Client) backoff(ctx context.Context, attempt int, wait time.Duration) bool {
	if attempt >= c.maxAttempts {
		return false
	}
	return c.sleep(ctx, wait) == nil
}

func (c *Client) send(ctx context.Context, method, url string, headers map[string]string, payload []byte, token string) (int, http.Header, []byte, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, nil, err
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, resp.Header, raw, nil
}

func (c *Client) url(path string) string {
	if path == "" {
		return c.baseURL
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) logRetry(reqID, method, url string, res Result, attempt int) {
	log.Warn().
		Str("client", c.name).
		Str("request_id", reqID).
		Str("method", method).
		Str("url", url).
		Int("status", res.Status).
		Int("attempt", attempt).
		Int("max_attempts", c.maxAttempts).
		Str("result", res.Message).
		Msg("Campus API attempt failed")
}

func (c *Client) logOutcome(reqID, method, url string, payload []byte, res Result, attempt int) {
	ev := log.Info()
	msg := "Campus API request succeeded"
	if !res.OK {
		ev = log.Error().Err(res.Err).Interface("response", res.Body)
		msg = "Campus API request failed"
	}
	if len(payload) > 0 && json.Valid(payload) {
		ev = ev.RawJSON("payload", redact(payload))
	}
	ev.Str("client", c.name).
		Str("request_id", reqID).
		Str("method", method).
		Str("url", url).
		Int("status", res.Status).
		Int("attempt", attempt).
		Str("result", res.Message).
		Msg(msg)
}

// secretKeys are payload fields never written to the audit log.
var secretKeys = map[string]bool{
	"hash":          true,
	"token":         true,
	"secret":        true,
	"client_secret": true,
	"password":      true,
	"access_token":  true,
}

// redact masks secret fields of a top-level JSON object.
func redact(payload []byte) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return payload
	}
	changed := false
	for k := range obj {
		if secretKeys[strings.ToLower(k)] {
			obj[k] = json.RawMessage(`"[REDACTED]"`)
			changed = true
		}
	}
	if !changed {
		return payload
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return payload
	}
	return out
}

func attemptLabel(status int, err error) string {
	if err != nil {
		return "error"
	}
	return strconv.Itoa(status)
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return fallback
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
