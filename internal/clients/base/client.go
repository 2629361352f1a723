package base

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/hsn0918/dentalrag/internal/config"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetryCount = 3
)

// ErrNotConfigured is returned when a service is used without a base URL.
var ErrNotConfigured = errors.New("service endpoint not configured")

// ClientError represents HTTP client operation errors with context.
type ClientError struct {
	Op         string // the operation that failed
	Service    string // the service name
	StatusCode int    // HTTP status code (if applicable)
	Err        error  // the underlying error
}

func (e *ClientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("client: %s %s failed with status %d: %v",
			e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("client: %s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

func NewClientError(service, op string, err error) *ClientError {
	return &ClientError{Op: op, Service: service, Err: err}
}

func NewHTTPError(service, op string, statusCode int, body string) *ClientError {
	return &ClientError{
		Op:         op,
		Service:    service,
		StatusCode: statusCode,
		Err:        fmt.Errorf("HTTP %d: %s", statusCode, body),
	}
}

// Option customizes the underlying resty client.
type Option func(*resty.Client)

// WithRetryCount overrides the number of retries on transient failures.
func WithRetryCount(n int) Option {
	return func(c *resty.Client) { c.SetRetryCount(n) }
}

// WithRetryWait sets the initial and maximum backoff between retries.
func WithRetryWait(wait, maxWait time.Duration) Option {
	return func(c *resty.Client) {
		c.SetRetryWaitTime(wait).SetRetryMaxWaitTime(maxWait)
	}
}

// HTTPClient wraps resty with the service's base URL, bearer auth, timeout,
// retry policy and sonic JSON codec.
type HTTPClient struct {
	client     *resty.Client
	service    string
	configured bool
}

func NewHTTPClient(service string, cfg config.ServiceConfig, timeout time.Duration, opts ...Option) *HTTPClient {
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetRetryCount(DefaultRetryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= 500
	})

	for _, opt := range opts {
		opt(client)
	}

	return &HTTPClient{client: client, service: service, configured: cfg.BaseURL != ""}
}

// Configured reports whether a base URL was supplied.
func (h *HTTPClient) Configured() bool { return h.configured }

func (h *HTTPClient) Post(ctx context.Context, endpoint string, body, result any) error {
	op := "POST " + endpoint
	if !h.configured {
		return NewClientError(h.service, op, ErrNotConfigured)
	}
	resp, err := h.client.R().SetContext(ctx).SetBody(body).SetResult(result).Post(endpoint)
	if err != nil {
		return NewClientError(h.service, op, err)
	}
	if resp.StatusCode() != 200 {
		return NewHTTPError(h.service, op, resp.StatusCode(), resp.String())
	}
	return nil
}

func (h *HTTPClient) Get(ctx context.Context, endpoint string, params map[string]string, result any) error {
	op := "GET " + endpoint
	if !h.configured {
		return NewClientError(h.service, op, ErrNotConfigured)
	}
	resp, err := h.client.R().SetContext(ctx).SetQueryParams(params).SetResult(result).Get(endpoint)
	if err != nil {
		return NewClientError(h.service, op, err)
	}
	if resp.StatusCode() != 200 {
		return NewHTTPError(h.service, op, resp.StatusCode(), resp.String())
	}
	return nil
}

// IsRetryableError reports whether err is a transport failure or a 5xx.
func IsRetryableError(err error) bool {
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return false
	}
	if errors.Is(clientErr.Err, ErrNotConfigured) {
		return false
	}
	return clientErr.StatusCode >= 500 || clientErr.StatusCode == 0
}
