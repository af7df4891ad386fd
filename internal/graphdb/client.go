package graphdb

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "graphseed/internal/errors"
)

// DefaultUserAgent identifies graphseed requests in server logs.
const DefaultUserAgent = "graphseed/1.0"

const maxErrorBody = 512

// HTTPClient represents the subset of http.Client methods required by the client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one GraphDB server.
type Client struct {
	baseURL   *url.URL
	http      HTTPClient
	username  string
	password  string
	userAgent string
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithBasicAuth enables HTTP basic authentication.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient builds a client for the server at rawURL. timeout bounds each
// request; zero disables the bound.
func NewClient(rawURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(rawURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.New(apperrors.ErrCategoryConfig, apperrors.CodeConfigGeneric, "invalid GraphDB URL", err).
			WithModule("graphdb").
			WithOperation("NewClient").
			WithField("url", rawURL)
	}

	c := &Client{
		baseURL:   u,
		http:      defaultHTTPClient(timeout),
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = defaultHTTPClient(timeout)
	}
	return c, nil
}

// BaseURL returns the server root URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(segments ...string) *url.URL {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(escaped, "/")
	u.RawPath = ""
	return &u
}

func (c *Client) newRequest(ctx context.Context, method string, u *url.URL, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

// do sends req and returns the response for 2xx statuses. Other statuses are
// drained into a *StatusError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &StatusError{
		Method:     req.Method,
		URL:        req.URL.Redacted(),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(excerpt)),
	}
}

func requestError(operation, message string, err error) *apperrors.AppError {
	appErr := apperrors.New(apperrors.ErrCategoryNetwork, apperrors.CodeRequestFailed, message, err).
		WithModule("graphdb").
		WithOperation(operation).
		WithRecoverable(Transient(err))
	var statusErr *StatusError
	if asStatus(err, &statusErr) {
		appErr.WithField("status", statusErr.StatusCode)
	}
	return appErr
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
