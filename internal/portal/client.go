// Package portal is a client for the Maven Central Publisher Portal API.
//
// The client issues exactly one HTTP request per call and never retries;
// retry policy belongs to the caller.
package portal

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"centralpublisher/internal/apperrors"
	"centralpublisher/internal/observability"
)

// DefaultBaseURL is the production Publisher Portal root.
const DefaultBaseURL = "https://central.sonatype.com/"

// Operation names used in errors, logs and metrics.
const (
	OpUpload  = "upload"
	OpStatus  = "status"
	OpPublish = "publish"
)

const (
	uploadPath     = "api/v1/publisher/upload"
	statusPath     = "api/v1/publisher/status"
	deploymentPath = "api/v1/publisher/deployment/"
)

// Credentials is a Publisher Portal user token.
type Credentials struct {
	Username string
	Password string
}

// Token returns the bearer token for the credentials.
func (c Credentials) Token() string {
	return base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
}

// Client talks to one Publisher Portal instance. It is immutable after
// construction and safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	metrics    *observability.Metrics
	progress   io.Writer
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithProgress renders upload progress on w.
func WithProgress(w io.Writer) Option {
	return func(cl *Client) { cl.progress = w }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewHTTPClient creates an HTTP client with standard transport settings.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// NewClient creates a client for the portal rooted at baseURL.
func NewClient(baseURL string, creds Credentials, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, apperrors.Validation("baseURL", fmt.Sprintf("invalid base URL %q: %v", baseURL, err))
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, apperrors.Validation("baseURL", fmt.Sprintf("invalid base URL %q: scheme and host are required", baseURL))
	}
	// Endpoint paths resolve relative to the base, which needs a trailing slash
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, apperrors.Validation("credentials", "username and password are required")
	}

	c := &Client{
		baseURL:    u,
		token:      creds.Token(),
		httpClient: NewHTTPClient(5 * time.Minute),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the portal root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	u := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// do sends req with authentication and checks the response code.
// On success the caller owns the response body.
func (c *Client) do(req *http.Request, op string, wantStatus int) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.metrics.RecordPortalRequest(req.Context(), op, 0, true, elapsed)
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}

	ok := resp.StatusCode == wantStatus
	c.metrics.RecordPortalRequest(req.Context(), op, resp.StatusCode, !ok, elapsed)
	c.logger.Debug("Portal request", "operation", op, "url", req.URL.String(), "status", resp.StatusCode, "duration", time.Since(start))

	if !ok {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, apperrors.Protocol(op, resp.StatusCode, req.URL.String())
	}
	return resp, nil
}

// Publish releases a validated deployment that was uploaded without
// automatic publishing.
func (c *Client) Publish(ctx context.Context, deploymentID string) error {
	endpoint, err := c.endpoint(deploymentPath+url.PathEscape(deploymentID), nil)
	if err != nil {
		return fmt.Errorf("failed to build publish URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req, OpPublish, http.StatusNoContent)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
