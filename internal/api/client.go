package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sqlgym/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// maxRetryDepth is the depth at which a 401 is no longer recovered by refreshing.
const maxRetryDepth = 1

// Session supplies bearer tokens and recovers from an expired access token.
// [session.Manager] implements it.
type Session interface {
	oauth2.TokenSource
	RefreshAccessToken(ctx context.Context) (string, error)
	SetTokens(access, refresh string) error
	ClearTokens() error
}

// Options configures a [Client].
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Session    Session
	Logger     *log.Logger
	RateLimit  float64       // requests per second, 0 disables
	Timeout    time.Duration // per attempt, 0 leaves the transport default
}

// Client performs JSON requests against the REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    Session
	logger     *log.Logger
	limiter    *rate.Limiter
	timeout    time.Duration
}

// NewClient creates a new [Client].
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		session:    opts.Session,
		logger:     shared.WithLogger(opts.Logger, "component", "api"),
		timeout:    opts.Timeout,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return shared.ErrAPIRequest
}

type errorBody struct {
	Message string `json:"message"`
}

// Do sends a request with body encoded as JSON and decodes the response into out.
// Either may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = data
	}
	return c.do(ctx, method, path, payload, out, 0)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any, depth int) error {
	public := IsPublic(method, path)

	status, body, err := c.send(ctx, method, path, payload, !public)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !public && depth < maxRetryDepth && c.session != nil {
		c.logger.Debug("access token rejected, refreshing", "method", method, "path", path)
		if _, err := c.session.RefreshAccessToken(ctx); err != nil {
			return err
		}
		return c.do(ctx, method, path, payload, out, depth+1)
	}

	if status < 200 || status >= 300 {
		return newHTTPError(status, body)
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// send performs one attempt and returns the status code and body.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, authenticate bool) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authenticate && c.session != nil {
		if tok, err := c.session.Token(); err == nil {
			tok.SetAuthHeader(req)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", shared.ErrAPIRequest, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("request complete", "method", method, "path", path, "status", resp.StatusCode)
	return resp.StatusCode, body, nil
}

func newHTTPError(status int, body []byte) *HTTPError {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && strings.TrimSpace(eb.Message) != "" {
		return &HTTPError{Status: status, Message: eb.Message}
	}

	msg := http.StatusText(status)
	if msg == "" {
		msg = "request failed"
	}
	return &HTTPError{Status: status, Message: msg}
}

var publicPaths = map[string]bool{
	"/user/auth/login":    true,
	"/user/auth/register": true,
	"/user/auth/refresh":  true,
}

var publicReads = map[string]bool{
	"/question":    true,
	"/leaderboard": true,
	"/contest":     true,
}

// IsPublic reports whether a request is sent without a bearer token and exempt from 401 recovery.
func IsPublic(method, path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = "/" + strings.Trim(path, "/")

	if publicPaths[path] {
		return true
	}
	if method != http.MethodGet {
		return false
	}
	if publicReads[path] {
		return true
	}

	// GET /question/{id}
	rest, ok := strings.CutPrefix(path, "/question/")
	return ok && rest != "" && !strings.Contains(rest, "/")
}
