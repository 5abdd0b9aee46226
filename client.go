// Package changedesk provides the client-side session contract and API surface
// for the bureau de change back office.
//
// The root package defines the session data model (Identity, Role, Status) and
// the collaborators the session guard depends on (TokenStore, Notifier,
// Navigator). Concrete implementations are injected via Option functions:
//
//	client, err := changedesk.NewClient(
//	    changedesk.Config{APIURL: "https://bureau.example.com"},
//	    changedesk.WithTokenStore(store.NewMemory()),
//	    changedesk.WithNotifier(notify.NewLog(logger)),
//	    changedesk.WithNavigator(routes.NewHistory("/")),
//	)
package changedesk

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"
)

// Default values applied by NewClient.
const (
	DefaultAPIURL    = "http://localhost:3000"
	DefaultLoginPath = "/login"
	DefaultHomePath  = "/"
	DefaultTimeout   = 30 * time.Second
)

// Client bundles the configuration and the injected collaborators shared by
// the session guard, the API client and the route gates.
type Client struct {
	config    Config
	logger    *slog.Logger
	store     TokenStore
	notifier  Notifier
	navigator Navigator
}

// Config holds connection and behavior configuration.
type Config struct {
	// APIURL is the base URL of the bureau REST API.
	APIURL string

	// Timeout bounds every API request. Default: 30 seconds.
	Timeout time.Duration

	// LoginPath is the location of the login surface. Default: "/login".
	LoginPath string

	// HomePath is the default landing location. Default: "/".
	HomePath string

	// JWKSUrl, when set, enables signature verification of restored tokens.
	JWKSUrl string
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTokenStore sets the persisted token slot.
func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.store = s }
}

// WithNotifier sets the user notification sink.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithNavigator sets the navigator used for forced redirects.
func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.navigator = n }
}

// NewClient creates a new client with the given configuration and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("changedesk: invalid APIURL %q", cfg.APIURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.HomePath == "" {
		cfg.HomePath = DefaultHomePath
	}

	c := &Client{config: cfg}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the structured logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// TokenStore returns the persisted token slot, or nil if not configured.
func (c *Client) TokenStore() TokenStore { return c.store }

// Notifier returns the notification sink, or nil if not configured.
func (c *Client) Notifier() Notifier { return c.notifier }

// Navigator returns the navigator, or nil if not configured.
func (c *Client) Navigator() Navigator { return c.navigator }

// Close releases all resources held by the client.
// Any injected collaborator that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{c.store, c.notifier, c.navigator}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
