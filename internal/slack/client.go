package slack

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxRetries   = 3
	defaultRetryBackoff = time.Second
)

// Client calls the Slack Web API methods the supervisor needs: auth.test
// to resolve a bot token to its team and rtm.connect to obtain a socket
// URL. A Client is safe for concurrent use by every team's dialer.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption tunes a Client at construction.
type ClientOption func(*Client)

// NewClient returns a Client rooted at baseURL, normally
// https://slack.com/api. Tests point it at an httptest server.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       slog.Default(),
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout caps each Web API round trip. It bounds token verification
// through auth.test as well as rtm.connect, so a slow Slack edge fails the
// add or check for that token instead of stalling the command. Retries get
// a fresh timeout each.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets how many times a call is repeated after Slack answers
// 5xx or 429, and the first wait. Waits double with jitter and never drop
// below a Retry-After the rate limiter sent. Zero sends each call once.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if max < 0 {
			max = 0
		}
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger routes retry chatter. Tokens are never logged.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient swaps the transport, for proxies or test servers.
// Apply WithTimeout after it to keep a timeout on the new client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent names the bot manager in Slack's access logs.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}
