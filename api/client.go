package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"chatline/logging"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultRetries      = 3
	defaultRetryInitial = 500 * time.Millisecond
	breakerTripFailures = 5
	breakerOpenTimeout  = 30 * time.Second
)

var (
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrBadRequest   = errors.New("api: bad request")
	ErrServer       = errors.New("api: server error")
	ErrUnavailable  = errors.New("api: service unavailable")
)

// Error is a non-2xx response with the server's error text.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Unwrap maps the status onto the package sentinels.
func (e *Error) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return ErrForbidden
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status >= 500:
		return ErrServer
	case e.Status >= 400:
		return ErrBadRequest
	default:
		return nil
	}
}

// Message returns the server's error text, or fallback when there is none.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	Retries      int
	RetryInitial time.Duration
	HTTPClient   *http.Client
	Logger       *zap.SugaredLogger
}

// Client talks to the chat REST API.
type Client struct {
	baseURL      string
	http         *http.Client
	breaker      *gobreaker.CircuitBreaker
	retries      int
	retryInitial time.Duration
	log          *zap.SugaredLogger

	mu    sync.RWMutex
	token string
}

// New builds a Client from opts.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	retries := opts.Retries
	if retries < 0 {
		retries = defaultRetries
	}
	retryInitial := opts.RetryInitial
	if retryInitial <= 0 {
		retryInitial = defaultRetryInitial
	}

	c := &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		http:         httpClient,
		retries:      retries,
		retryInitial: retryInitial,
		log:          logging.OrNop(opts.Logger),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "chat-api",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warnw("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken replaces the bearer access token. Empty clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current access token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type formFile struct {
	field    string
	filename string
	data     []byte
}

type request struct {
	method string
	path   string
	query  url.Values
	json   any
	form   map[string]string
	file   *formFile
}

// maxRetries caps retries per method. Reads use the configured count, deletes
// get one retry, and creating requests are never repeated.
func (r request) maxRetries(configured int) int {
	switch r.method {
	case http.MethodGet:
		return configured
	case http.MethodDelete:
		return min(configured, 1)
	default:
		return 0
	}
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	retries := req.maxRetries(c.retries)

	attempt := 0
	op := func() error {
		attempt++
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.roundTrip(ctx, req, out)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return backoff.Permanent(err)
		}
		c.log.Debugw("request failed", "method", req.method, "path", req.path, "attempt", attempt, "error", err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, req request, out any) error {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return backoff.Permanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token := c.Token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &Error{Status: resp.StatusCode, Message: errorText(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func encodeBody(req request) (io.Reader, string, error) {
	switch {
	case req.form != nil || req.file != nil:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, v := range req.form {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("write form field %q: %w", k, err)
			}
		}
		if req.file != nil {
			part, err := w.CreateFormFile(req.file.field, req.file.filename)
			if err != nil {
				return nil, "", fmt.Errorf("create form file: %w", err)
			}
			if _, err := part.Write(req.file.data); err != nil {
				return nil, "", fmt.Errorf("write form file: %w", err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("close form: %w", err)
		}
		return &buf, w.FormDataContentType(), nil
	case req.json != nil:
		raw, err := json.Marshal(req.json)
		if err != nil {
			return nil, "", fmt.Errorf("encode request: %w", err)
		}
		return bytes.NewReader(raw), "application/json", nil
	default:
		return nil, "", nil
	}
}

// errorText pulls a readable message out of an error body. The server uses
// {"error": ...}, {"detail": ...} or a field -> messages map.
func errorText(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, key := range []string{"error", "detail", "message"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	for field, v := range body {
		switch val := v.(type) {
		case string:
			return field + ": " + val
		case []any:
			if len(val) > 0 {
				if s, ok := val[0].(string); ok {
					return field + ": " + s
				}
			}
		}
	}
	return ""
}

func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status < 500
	}
	return errors.Is(err, context.Canceled)
}
