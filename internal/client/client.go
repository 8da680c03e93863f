// Package client provides the HTTP action executor for acceptance test steps.
// Every call is sent to the configured base URL with bearer authentication.
// Failed calls are never retried.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/erp/tools/acctest/internal/config"
)

// UserAgent is sent with every request.
const UserAgent = "ERP-AccTest/1.0"

// Client executes one HTTP verb per call against the API under test.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	headers    map[string]string
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a client for cfg.
func NewClient(cfg config.TargetConfig, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	c := &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		headers:    make(map[string]string),
		log:        zap.NewNop(),
	}

	c.headers["Content-Type"] = "application/json"
	c.headers["Accept"] = "application/json"
	c.headers["User-Agent"] = UserAgent
	for k, v := range cfg.Headers {
		c.headers[k] = v
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Response represents an HTTP response.
type Response struct {
	// URL is the resolved request target, base URL included.
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// IsSuccess reports whether the status is 200 or 201.
func (r *Response) IsSuccess() bool {
	return r != nil && (r.StatusCode == http.StatusOK || r.StatusCode == http.StatusCreated)
}

// Decode unmarshals the body into v, keeping numbers as json.Number.
func (r *Response) Decode(v any) error {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// Perform sends one request. POST and PUT marshal payload as the JSON body;
// GET and DELETE send no body. An unsupported action yields a nil response
// and a nil error.
func (c *Client) Perform(ctx context.Context, action, path string, payload any) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(action))

	var body any
	switch method {
	case http.MethodGet, http.MethodDelete:
	case http.MethodPost, http.MethodPut:
		body = payload
	default:
		c.log.Warn("unsupported action", zap.String("action", action), zap.String("url", path))
		return nil, nil
	}

	return c.do(ctx, method, path, body)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*Response, error) {
	target := c.buildURL(path)

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	c.setHeaders(httpReq)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("url", target),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer httpResp.Body.Close()

	resp := &Response{
		URL:        target,
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Duration:   duration,
	}

	resp.Body, err = io.ReadAll(httpResp.Body)
	if err != nil {
		return resp, fmt.Errorf("reading response body: %w", err)
	}

	c.log.Debug("request completed",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	return resp, nil
}

// buildURL appends path to the base URL verbatim, collapsing a doubled slash.
func (c *Client) buildURL(path string) string {
	if strings.HasSuffix(c.baseURL, "/") && strings.HasPrefix(path, "/") {
		return c.baseURL + path[1:]
	}
	return c.baseURL + path
}

func (c *Client) setHeaders(req *http.Request) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
