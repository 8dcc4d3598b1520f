// Package notion is a thin client for the Notion REST API. Every request
// classifies its failure as transient or permanent; transient failures are
// retried with exponential backoff up to a fixed attempt ceiling, each
// attempt bounded by its own deadline.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pagesmith/pagesmith/internal/telemetry"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 4096

// Client talks to the workspace API over HTTP. Its settings can be
// swapped at runtime with Reconfigure; a request in progress keeps the
// settings it started with.
type Client struct {
	cfg     atomic.Pointer[Config]
	http    *http.Client
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for retry notices.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request and retry counts.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client. cfg is completed with defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.Defaults()
	c := &Client{
		http:   &http.Client{},
		logger: slog.Default(),
	}
	c.cfg.Store(&cfg)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Reconfigure validates cfg and makes it the settings of later requests.
// On error the current settings stay in place.
func (c *Client) Reconfigure(cfg Config) error {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg.Store(&cfg)
	return nil
}

func (c *Client) settings() *Config { return c.cfg.Load() }

// PageSize returns the configured default page size.
func (c *Client) PageSize() int {
	return c.settings().PageSize
}

// request describes one logical API call.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
}

// do runs req with retries and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return permanent(fmt.Errorf("notion: %s: encoding request: %w", req.op, err))
		}
	}

	cfg := c.settings()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := c.attempt(ctx, cfg, req, payload, out)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, ErrTransient):
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.metrics.RemoteRetry(req.op)
			c.logger.Warn("notion: retrying request",
				"op", req.op,
				"attempt", attempts,
				"wait", wait,
				"error", err,
			)
		}),
	)
	if err != nil && errors.Is(err, ErrTransient) {
		return &ExhaustedError{Op: req.op, Attempts: attempts, Last: err}
	}
	return err
}

// attempt performs a single HTTP exchange under its own deadline.
func (c *Client) attempt(ctx context.Context, cfg *Config, req request, payload []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	actx, cancel := context.WithTimeout(ctx, cfg.AttemptTimeout)
	defer cancel()

	u := strings.TrimRight(cfg.BaseURL, "/") + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(actx, req.method, u, body)
	if err != nil {
		return permanent(fmt.Errorf("notion: %s: creating request: %w", req.op, err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.Token)
	httpReq.Header.Set("Notion-Version", cfg.Version)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RemoteRequest(req.op, 0)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transient(fmt.Errorf("notion: %s: sending request: %w", req.op, err))
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.RemoteRequest(req.op, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if actx.Err() != nil && ctx.Err() == nil {
			return transient(fmt.Errorf("notion: %s: reading response: %w", req.op, err))
		}
		return permanent(fmt.Errorf("notion: %s: %w: %w", req.op, ErrMalformedResponse, err))
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(data) > 0 {
		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &body) == nil {
			apiErr.Code = body.Code
			apiErr.Message = body.Message
		}
	}
	return apiErr
}

type listResponse struct {
	Results    []Block `json:"results"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

func pageQuery(cursor string, pageSize, fallback int) url.Values {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = fallback
	}
	q := url.Values{}
	q.Set("page_size", fmt.Sprint(pageSize))
	if cursor != "" {
		q.Set("start_cursor", cursor)
	}
	return q
}

func derefCursor(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListChildren implements API.
func (c *Client) ListChildren(ctx context.Context, blockID, cursor string, pageSize int) (ChildPage, error) {
	var resp listResponse
	err := c.do(ctx, request{
		op:     "list_children",
		method: http.MethodGet,
		path:   "/blocks/" + url.PathEscape(blockID) + "/children",
		query:  pageQuery(cursor, pageSize, c.settings().PageSize),
	}, &resp)
	if err != nil {
		return ChildPage{}, err
	}
	return ChildPage{
		Results:    resp.Results,
		NextCursor: derefCursor(resp.NextCursor),
		HasMore:    resp.HasMore,
	}, nil
}

// AppendChildren implements API. The endpoint is atomic, so on failure the
// committed prefix is always empty.
func (c *Client) AppendChildren(ctx context.Context, parentID string, blocks []Block, after string) (AppendResult, error) {
	body := struct {
		Children []Block `json:"children"`
		After    string  `json:"after,omitempty"`
	}{Children: blocks, After: after}

	var resp listResponse
	err := c.do(ctx, request{
		op:     "append_children",
		method: http.MethodPatch,
		path:   "/blocks/" + url.PathEscape(parentID) + "/children",
		body:   body,
	}, &resp)
	if err != nil {
		return AppendResult{}, err
	}
	ids := make([]string, 0, len(resp.Results))
	for _, b := range resp.Results {
		ids = append(ids, b.ID)
	}
	return AppendResult{IDs: ids}, nil
}

// RetrievePage implements API.
func (c *Client) RetrievePage(ctx context.Context, pageID string, filterProperties []string) (Page, error) {
	q := url.Values{}
	for _, p := range filterProperties {
		q.Add("filter_properties", p)
	}
	var page Page
	err := c.do(ctx, request{
		op:     "retrieve_page",
		method: http.MethodGet,
		path:   "/pages/" + url.PathEscape(pageID),
		query:  q,
	}, &page)
	return page, err
}

// UpdatePage implements API.
func (c *Client) UpdatePage(ctx context.Context, pageID string, update PageUpdate) (Page, error) {
	var page Page
	err := c.do(ctx, request{
		op:     "update_page",
		method: http.MethodPatch,
		path:   "/pages/" + url.PathEscape(pageID),
		body:   update,
	}, &page)
	return page, err
}

// CreatePage implements API.
func (c *Client) CreatePage(ctx context.Context, req PageCreate) (Page, error) {
	var page Page
	err := c.do(ctx, request{
		op:     "create_page",
		method: http.MethodPost,
		path:   "/pages",
		body:   req,
	}, &page)
	return page, err
}

// RetrievePageProperty implements API.
func (c *Client) RetrievePageProperty(ctx context.Context, pageID, propertyID, cursor string, pageSize int) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{
		op:     "retrieve_page_property",
		method: http.MethodGet,
		path:   "/pages/" + url.PathEscape(pageID) + "/properties/" + url.PathEscape(propertyID),
		query:  pageQuery(cursor, pageSize, c.settings().PageSize),
	}, &raw)
	return raw, err
}

// ListUsers implements API.
func (c *Client) ListUsers(ctx context.Context, cursor string, pageSize int) (UserList, error) {
	var resp struct {
		Results    []User  `json:"results"`
		NextCursor *string `json:"next_cursor"`
		HasMore    bool    `json:"has_more"`
	}
	err := c.do(ctx, request{
		op:     "list_users",
		method: http.MethodGet,
		path:   "/users",
		query:  pageQuery(cursor, pageSize, c.settings().PageSize),
	}, &resp)
	if err != nil {
		return UserList{}, err
	}
	return UserList{Results: resp.Results, NextCursor: derefCursor(resp.NextCursor), HasMore: resp.HasMore}, nil
}

// RetrieveUser implements API.
func (c *Client) RetrieveUser(ctx context.Context, userID string) (User, error) {
	var u User
	err := c.do(ctx, request{
		op:     "retrieve_user",
		method: http.MethodGet,
		path:   "/users/" + url.PathEscape(userID),
	}, &u)
	return u, err
}

// Me implements API.
func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, request{
		op:     "get_me",
		method: http.MethodGet,
		path:   "/users/me",
	}, &u)
	return u, err
}

// Search implements API.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	if req.PageSize <= 0 || req.PageSize > MaxPageSize {
		req.PageSize = c.settings().PageSize
	}
	var resp struct {
		Results    []Page  `json:"results"`
		NextCursor *string `json:"next_cursor"`
		HasMore    bool    `json:"has_more"`
	}
	err := c.do(ctx, request{
		op:     "search",
		method: http.MethodPost,
		path:   "/search",
		body:   req,
	}, &resp)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Results: resp.Results, NextCursor: derefCursor(resp.NextCursor), HasMore: resp.HasMore}, nil
}
