package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/habedi/gigsync/auth"
	"github.com/habedi/gigsync/token"
)

const (
	loginPath         = "/login"
	signupPath        = "/signup"
	adminSignupPath   = "/signup/admin"
	verifyEmailPath   = "/verifyEmail"
	refreshPath       = "/auth/refresh"
	findEmailPath     = "/auth/findEmail"
	resetPasswordPath = "/auth/resetPassword"

	// DefaultRefreshCookieName is the cookie the server uses to identify the refreshable session.
	DefaultRefreshCookieName = "refreshToken"
)

// DefaultAuthEndpoints never get a bearer token and never trigger a refresh.
// They are the calls made before or outside a session.
var DefaultAuthEndpoints = []string{
	loginPath, signupPath, adminSignupPath, verifyEmailPath,
	refreshPath, findEmailPath, resetPasswordPath,
}

// Config describes how the client talks to the API.
type Config struct {
	BaseURL           string
	ChatURL           string
	LeadTime          time.Duration
	RefreshTimeout    time.Duration
	RequestTimeout    time.Duration
	RateLimit         float64 // requests per second, 0 disables limiting
	RateBurst         int
	RefreshCookieName string
	AuthEndpoints     []string

	// MaxRetries and RetryBackoff control retries of GET requests on server errors.
	MaxRetries   int
	RetryBackoff time.Duration

	// OnSessionEnded is called when the server refuses to renew the session.
	OnSessionEnded func(reason error)

	// Transport is the underlying round tripper, http.DefaultTransport when nil.
	Transport http.RoundTripper
}

func (cfg Config) withDefaults() Config {
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = token.DefaultLeadTime
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = auth.DefaultRefreshTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = DefaultRefreshCookieName
	}
	if len(cfg.AuthEndpoints) == 0 {
		cfg.AuthEndpoints = DefaultAuthEndpoints
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	return cfg
}

// Client is an API client that keeps its bearer token fresh.
// It owns its refresh coordinator; call Close when done with it.
type Client struct {
	cfg     Config
	baseURL *url.URL
	store   auth.CredentialStore
	clock   *token.Clock
	coord   *auth.Coordinator
	base    http.RoundTripper
	http    *http.Client
}

// New builds a Client around the given credential store.
func New(cfg Config, store auth.CredentialStore) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	cfg = cfg.withDefaults()

	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", cfg.BaseURL)
	}

	c := &Client{
		cfg:     cfg,
		baseURL: baseURL,
		store:   store,
		clock:   token.NewClock(cfg.LeadTime),
		base:    newRateLimitedTransport(cfg.Transport, cfg.RateLimit, cfg.RateBurst),
	}

	// The refresher gets its own http.Client so refresh calls never pass through the auth transport.
	refresher := NewHTTPRefresher(c.endpoint(refreshPath, nil), store, cfg.RefreshCookieName,
		&http.Client{Timeout: cfg.RefreshTimeout, Transport: c.base})
	c.coord = auth.NewCoordinator(store, refresher, auth.CoordinatorOptions{
		RefreshTimeout: cfg.RefreshTimeout,
		OnSessionEnded: cfg.OnSessionEnded,
	})
	c.http = &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: &authTransport{client: c},
	}
	return c, nil
}

// Coordinator exposes the refresh coordinator, mostly for diagnostics.
func (c *Client) Coordinator() *auth.Coordinator {
	return c.coord
}

// Clock returns the staleness clock used by the client.
func (c *Client) Clock() *token.Clock {
	return c.clock
}

// Do sends a request through the interceptors.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// Close stops the refresh coordinator and fails anything still waiting on it.
func (c *Client) Close() {
	c.coord.Close()
	c.http.CloseIdleConnections()
}

// endpoint resolves an API path against the base URL.
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// isAuthEndpoint reports whether u targets login, signup or the refresh endpoint.
func (c *Client) isAuthEndpoint(u *url.URL) bool {
	if u == nil {
		return false
	}
	p := strings.TrimRight(u.Path, "/")
	for _, ep := range c.cfg.AuthEndpoints {
		if strings.HasSuffix(p, strings.TrimRight(ep, "/")) {
			return true
		}
	}
	return false
}
