// Package boardclient talks to a hirelane server over HTTP. A Client
// satisfies optimistic.Remote, so the coordinator can drive a remote board.
package boardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/hirelane/pkg/ordering"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

// DefaultTimeout bounds requests made with the default HTTP client.
const DefaultTimeout = 30 * time.Second

// Client is safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// New returns a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid server url %q: %v", ordering.ErrBadRequest, baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: server url %q must be http(s)://host[:port]", ordering.ErrBadRequest, baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GroupResponse mirrors the server's group payload.
type GroupResponse struct {
	Kind  pipeline.Kind   `json:"kind"`
	Group string          `json:"group"`
	Items []pipeline.Item `json:"items"`
}

// ListGroup fetches the ordered members of group.
func (c *Client) ListGroup(ctx context.Context, kind pipeline.Kind, group string) ([]pipeline.Item, error) {
	return c.ListGroupFiltered(ctx, kind, group, nil)
}

// ListGroupFiltered is ListGroup with server-side filters such as match,
// exclude, tag, status and name.
func (c *Client) ListGroupFiltered(ctx context.Context, kind pipeline.Kind, group string, query url.Values) ([]pipeline.Item, error) {
	var resp GroupResponse
	err := c.do(ctx, http.MethodGet, c.path(kind, "groups", group), query, nil, &resp)
	return resp.Items, err
}

// Get fetches one item.
func (c *Client) Get(ctx context.Context, kind pipeline.Kind, id string) (pipeline.Item, error) {
	var it pipeline.Item
	err := c.do(ctx, http.MethodGet, c.path(kind, id), nil, nil, &it)
	return it, err
}

// ReorderWithinGroup posts move and returns the persisted group.
func (c *Client) ReorderWithinGroup(ctx context.Context, kind pipeline.Kind, move pipeline.Move) ([]pipeline.Item, error) {
	var resp GroupResponse
	err := c.do(ctx, http.MethodPost, c.path(kind, "reorder"), nil, move, &resp)
	return resp.Items, err
}

// TransferToGroup moves id to the tail of group.
func (c *Client) TransferToGroup(ctx context.Context, kind pipeline.Kind, id, group string) (pipeline.Item, error) {
	var it pipeline.Item
	err := c.do(ctx, http.MethodPatch, c.path(kind, id, "stage"), nil, map[string]string{"stage": group}, &it)
	return it, err
}

// RenumberGroup asks the server to repair group's order values.
func (c *Client) RenumberGroup(ctx context.Context, kind pipeline.Kind, group string) ([]pipeline.Item, error) {
	var resp GroupResponse
	err := c.do(ctx, http.MethodPost, c.path(kind, "groups", group, "renumber"), nil, nil, &resp)
	return resp.Items, err
}

// CreateCandidate creates a candidate at the tail of its stage.
func (c *Client) CreateCandidate(ctx context.Context, in pipeline.NewCandidate) (pipeline.Item, error) {
	var it pipeline.Item
	err := c.do(ctx, http.MethodPost, c.path(pipeline.KindCandidate), nil, in, &it)
	return it, err
}

// CreateJob creates a job at the tail of the global list.
func (c *Client) CreateJob(ctx context.Context, in pipeline.NewJob) (pipeline.Item, error) {
	var it pipeline.Item
	err := c.do(ctx, http.MethodPost, c.path(pipeline.KindJob), nil, in, &it)
	return it, err
}

// UpdateJob patches a job's title, status or tags.
func (c *Client) UpdateJob(ctx context.Context, id string, p pipeline.JobPatch) (pipeline.Item, error) {
	var it pipeline.Item
	err := c.do(ctx, http.MethodPatch, c.path(pipeline.KindJob, id), nil, p, &it)
	return it, err
}

// UpdateCandidate patches a candidate's name, tags or stage.
func (c *Client) UpdateCandidate(ctx context.Context, id string, p pipeline.CandidatePatch) (pipeline.Item, error) {
	var it pipeline.Item
	err := c.do(ctx, http.MethodPatch, c.path(pipeline.KindCandidate, id), nil, p, &it)
	return it, err
}

// List fetches one page of kind. query carries page, limit, q, stage and
// the list filters.
func (c *Client) List(ctx context.Context, kind pipeline.Kind, query url.Values) (pipeline.Page, error) {
	var p pipeline.Page
	err := c.do(ctx, http.MethodGet, c.path(kind), query, nil, &p)
	return p, err
}

// ListAll pages through every item of kind in board order.
func (c *Client) ListAll(ctx context.Context, kind pipeline.Kind) ([]pipeline.Item, error) {
	var out []pipeline.Item
	q := url.Values{"limit": {strconv.Itoa(pipeline.MaxPageSize)}}
	for page := 1; ; page++ {
		q.Set("page", strconv.Itoa(page))
		p, err := c.List(ctx, kind, q)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Data...)
		if len(p.Data) == 0 || len(out) >= p.Total {
			return out, nil
		}
	}
}

// Counts fetches the number of jobs and candidates.
func (c *Client) Counts(ctx context.Context) (pipeline.Counts, error) {
	var counts pipeline.Counts
	err := c.do(ctx, http.MethodGet, "/api/_counts", nil, nil, &counts)
	return counts, err
}

func (c *Client) path(kind pipeline.Kind, segs ...string) string {
	parts := []string{"api", kind.Plural()}
	for _, s := range segs {
		parts = append(parts, url.PathEscape(s))
	}
	return "/" + strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	// path segments are escaped by Client.path.
	target := strings.TrimRight(c.base.String(), "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %w", ordering.ErrTransient, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("Board request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)))

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Error is a non-2xx response from the server.
type Error struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	kind      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (%d %s, request %s)", msg, e.Status, e.Code, e.RequestID)
	}
	return fmt.Sprintf("%s (%d %s)", msg, e.Status, e.Code)
}

// Unwrap maps the status to the matching ordering or pipeline sentinel.
func (e *Error) Unwrap() error {
	return e.kind
}

type envelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func decodeError(resp *http.Response) error {
	e := &Error{Status: resp.StatusCode}
	var env envelope
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil && len(raw) > 0 {
		if json.Unmarshal(raw, &env) == nil {
			e.Code = env.Error.Code
			e.Message = env.Error.Message
			e.RequestID = env.Error.RequestID
		}
	}
	e.kind = sentinelFor(resp.StatusCode)
	return e
}

func sentinelFor(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ordering.ErrNotFound
	case status == http.StatusConflict:
		return pipeline.ErrConflict
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable,
		status == http.StatusBadGateway, status == http.StatusGatewayTimeout:
		return ordering.ErrTransient
	case status >= 400 && status < 500:
		return ordering.ErrBadRequest
	}
	return errServer
}

var errServer = errors.New("server error")
