// Package httpapi implements service.Service and service.Authenticator over
// the task REST API.
package httpapi

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

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/googleapi"

	"taskboard/internal/logging"
	"taskboard/internal/service"
)

const (
	// DefaultTimeout bounds each API call.
	DefaultTimeout = 10 * time.Second

	tasksPath    = "/api/tasks"
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	StatusText string
	// Message is what callers show the user.
	Message string
	// Body is the raw response body.
	Body string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsUnauthorized reports whether err is a 401 or 403 response.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// Client talks to the task API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  oauth2.TokenSource
	timeout time.Duration
	lists   singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sets where the bearer token for task calls comes from.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTasks implements service.Service.
// Concurrent calls for the same filter and token share one request. The
// shared request outlives a caller that gives up; each caller still returns
// as soon as its own ctx is done.
func (c *Client) ListTasks(ctx context.Context, filter service.Filter) ([]service.Task, error) {
	token := c.token()
	key := string(filter) + "\x00" + token
	flight := context.WithoutCancel(ctx)
	ch := c.lists.DoChan(key, func() (any, error) {
		q := url.Values{"status_filter": {string(filter)}}
		var tasks []service.Task
		err := c.do(flight, http.MethodGet, tasksPath+"?"+q.Encode(), token, nil, &tasks, taskErrorMessage)
		if tasks == nil {
			tasks = []service.Task{}
		}
		return tasks, err
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	shared := res.Val.([]service.Task)
	out := make([]service.Task, len(shared))
	copy(out, shared)
	return out, nil
}

// CreateTask implements service.Service.
func (c *Client) CreateTask(ctx context.Context, input service.TaskInput) (service.Task, error) {
	var task service.Task
	if err := c.do(ctx, http.MethodPost, tasksPath, c.token(), input, &task, taskErrorMessage); err != nil {
		return service.Task{}, err
	}
	return task, nil
}

// UpdateTask implements service.Service.
func (c *Client) UpdateTask(ctx context.Context, id int, patch service.TaskPatch) (service.Task, error) {
	var task service.Task
	if err := c.do(ctx, http.MethodPut, taskPath(id), c.token(), patch, &task, taskErrorMessage); err != nil {
		return service.Task{}, err
	}
	return task, nil
}

// DeleteTask implements service.Service.
func (c *Client) DeleteTask(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), c.token(), nil, nil, taskErrorMessage)
}

// Login implements service.Authenticator.
func (c *Client) Login(ctx context.Context, email, password string) (service.AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var resp service.AuthResponse
	err := c.do(ctx, http.MethodPost, loginPath, "", body, &resp, authErrorMessage("Login failed"))
	return resp, err
}

// Register implements service.Authenticator.
func (c *Client) Register(ctx context.Context, email, password, name string) (service.AuthResponse, error) {
	body := map[string]string{"email": email, "password": password, "name": name}
	var resp service.AuthResponse
	err := c.do(ctx, http.MethodPost, registerPath, "", body, &resp, authErrorMessage("Registration failed"))
	return resp, err
}

// Validate implements service.Authenticator. It lists tasks with the given
// token and discards the result.
func (c *Client) Validate(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodGet, tasksPath, token, nil, nil, taskErrorMessage)
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	tok, err := c.tokens.Token()
	if err != nil || tok == nil {
		return ""
	}
	return tok.AccessToken
}

func taskPath(id int) string {
	return tasksPath + "/" + strconv.Itoa(id)
}

// do sends one request. in is encoded as JSON when non-nil; out is decoded
// from a 2xx body when non-nil.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any, message func(*googleapi.Error) string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	logging.Debug(ctx, "api request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		var gerr *googleapi.Error
		if !errors.As(err, &gerr) {
			return err
		}
		logging.Debug(ctx, "api error", "method", method, "path", path, "status", gerr.Code)
		return &APIError{
			StatusCode: gerr.Code,
			StatusText: http.StatusText(gerr.Code),
			Message:    message(gerr),
			Body:       gerr.Body,
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func statusLine(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}

func taskErrorMessage(e *googleapi.Error) string {
	return "API request failed: " + statusLine(e.Code)
}

// authErrorMessage prefers a detail, message or error field from a JSON body,
// then the raw body, then the status line.
func authErrorMessage(prefix string) func(*googleapi.Error) string {
	return func(e *googleapi.Error) string {
		raw := strings.TrimSpace(e.Body)
		if raw == "" {
			return prefix + ": " + statusLine(e.Code)
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return raw
		}
		for _, key := range []string{"detail", "message", "error"} {
			if s, ok := fields[key].(string); ok && s != "" {
				return s
			}
		}
		return raw
	}
}
