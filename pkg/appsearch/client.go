// Package appsearch is a client for the engine configuration API of the
// hosted search service.
//
// The client covers only the surface needed to move an engine between
// clusters: engine CRUD, schema, synonyms, curations, search settings and
// crawler configuration. All methods are safe for concurrent use.
package appsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// APIPrefix is the versioned path prefix for all engine endpoints.
	APIPrefix = "/api/as/v1"

	// DefaultPageSize is the page size used when draining paginated lists.
	DefaultPageSize = 25

	// MaxPageSize is the largest page size the service accepts.
	MaxPageSize = 1000

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 200
)

// Config configures a Client.
type Config struct {
	// Endpoint is the cluster base URL, e.g. https://search.example.com.
	Endpoint string

	// APIKey is a private key with read/write access to engines.
	APIKey string

	// Timeout bounds each request. Zero uses DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Zero means unlimited.
	RateLimit float64

	// PageSize is used when draining paginated endpoints.
	PageSize int

	// HTTPClient overrides the transport (tests use httptest clients).
	HTTPClient *http.Client
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("appsearch config: endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("appsearch config: invalid endpoint %q", c.Endpoint)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("appsearch config: api key is required")
	}
	return nil
}

// Client talks to one cluster.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a Client from configuration.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		pageSize:   pageSize,
		httpClient: httpClient,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// Endpoint returns the cluster base URL.
func (c *Client) Endpoint() string {
	return c.baseURL
}

// PageSize returns the page size used for paginated listings.
func (c *Client) PageSize() int {
	return c.pageSize
}

// pageMeta is the pagination block returned by list endpoints.
type pageMeta struct {
	Page struct {
		Current      int `json:"current"`
		TotalPages   int `json:"total_pages"`
		TotalResults int `json:"total_results"`
		Size         int `json:"size"`
	} `json:"page"`
}

// listEnvelope is the standard paginated response envelope.
type listEnvelope struct {
	Meta    pageMeta          `json:"meta"`
	Results []json.RawMessage `json:"results"`
}

func enginePath(name string, parts ...string) string {
	p := APIPrefix + "/engines/" + url.PathEscape(name)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func pageQuery(page, size int) url.Values {
	q := url.Values{}
	q.Set("page[current]", fmt.Sprint(page))
	q.Set("page[size]", fmt.Sprint(size))
	return q
}

// do performs an authenticated request and decodes a JSON response into out
// (when out is non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &APIError{Op: op, Method: method, Path: path, Err: err}
		}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &APIError{Op: op, Method: method, Path: path, Err: fmt.Errorf("marshal body: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &APIError{Op: op, Method: method, Path: path, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Op: op, Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Op: op, Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := truncate(strings.TrimSpace(string(respBody)), maxErrorBody)
		return &APIError{
			Op:     op,
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   excerpt,
			Err:    classifyStatus(resp.StatusCode, excerpt),
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &APIError{Op: op, Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("parse response: %w", err)}
	}
	return nil
}

// drain fetches every page of a paginated endpoint and hands each raw result
// to fn. It stops when the reported page count is reached or a page is empty.
func (c *Client) drain(ctx context.Context, op, path string, fn func(json.RawMessage) error) error {
	for page := 1; ; page++ {
		var env listEnvelope
		if err := c.do(ctx, op, http.MethodGet, path, pageQuery(page, c.pageSize), nil, &env); err != nil {
			return err
		}
		for _, raw := range env.Results {
			if err := fn(raw); err != nil {
				return &APIError{Op: op, Method: http.MethodGet, Path: path, Err: fmt.Errorf("parse result: %w", err)}
			}
		}
		if len(env.Results) == 0 || page >= env.Meta.Page.TotalPages {
			return nil
		}
	}
}
