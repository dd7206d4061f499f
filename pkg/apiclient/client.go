// Package apiclient provides an HTTP client for the NLPipe REST API.
//
// The client implements the task store interface, so workers and the CLI
// run identically against a local directory or a remote server; only the
// construction differs.
package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultTimeout bounds a single API request, including reading the
// response body.
const defaultTimeout = 60 * time.Second

// Client is the NLPipe API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the authentication token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client, e.g. to configure
// TLS or proxies. It overrides any earlier WithTimeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a new API client for the server at baseURL
// (e.g. "http://localhost:5001").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets the authentication token. The login flow uses this after
// the client already exists.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// modulePath builds the URL path of a module's task collection.
// The trailing slash matters: it is the claim/submit endpoint.
func modulePath(module string) string {
	return "/api/modules/" + url.PathEscape(module) + "/"
}

// taskPath builds the URL path of a single task.
func taskPath(module, id string) string {
	return "/api/modules/" + url.PathEscape(module) + "/" + url.PathEscape(id)
}

// newRequest builds a request with the authorization header set.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}
	return req, nil
}

// do performs the request and returns the response together with its
// fully read body.
func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, body, nil
}
