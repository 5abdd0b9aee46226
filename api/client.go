// Package api is the typed client for the bureau REST API.
//
// A single Client carries the bearer credential for every request and reports
// 401 responses to registered AuthFailureObservers. Resource services hang off
// the client (Auth, Currencies, Transactions, CashRegisters, Supplies, Users,
// Reports).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is used when Config.BaseURL is empty.
	DefaultBaseURL = "http://localhost:3000"
	// DefaultTimeout bounds every request.
	DefaultTimeout   = 30 * time.Second
	defaultUserAgent = "changedesk/1"
)

// Config configures the HTTP transport.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// AuthFailure describes a response rejected with 401.
type AuthFailure struct {
	Method  string
	Path    string
	Status  int
	Message string
}

// AuthFailureObserver is called for every 401 response.
type AuthFailureObserver func(f AuthFailure)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Client talks to the bureau API.
type Client struct {
	rc         *resty.Client
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string

	mu    sync.RWMutex
	token string

	obsMu     sync.RWMutex
	observers []AuthFailureObserver

	Auth          *AuthService
	Currencies    *CurrencyService
	Transactions  *TransactionService
	CashRegisters *CashRegisterService
	Supplies      *SupplyService
	Users         *UserService
	Reports       *ReportService
}

// New builds a Client. An empty BaseURL or zero Timeout takes the defaults.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("changedesk/api: invalid base URL %q", cfg.BaseURL)
	}

	c := &Client{logger: slog.Default(), baseURL: cfg.BaseURL}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient != nil {
		c.rc = resty.NewWithClient(c.httpClient)
	} else {
		c.rc = resty.New()
	}
	c.rc.SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent).
		SetLogger(restyLogger{c.logger}).
		OnBeforeRequest(c.applyCredentials).
		OnAfterResponse(c.detectAuthFailure)

	c.Auth = &AuthService{c: c}
	c.Currencies = &CurrencyService{c: c}
	c.Transactions = &TransactionService{c: c}
	c.CashRegisters = &CashRegisterService{c: c}
	c.Supplies = &SupplyService{c: c}
	c.Users = &UserService{c: c}
	c.Reports = &ReportService{c: c}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken installs the bearer credential sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearToken removes the bearer credential.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// HasToken reports whether a credential is installed.
func (c *Client) HasToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// OnAuthFailure registers obs for 401 responses. Observers run synchronously
// on the goroutine that issued the request, in registration order.
func (c *Client) OnAuthFailure(obs AuthFailureObserver) {
	if obs == nil {
		return
	}
	c.obsMu.Lock()
	c.observers = append(c.observers, obs)
	c.obsMu.Unlock()
}

func (c *Client) applyCredentials(_ *resty.Client, r *resty.Request) error {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if tok != "" {
		r.SetHeader("Authorization", "Bearer "+tok)
	}
	return nil
}

func (c *Client) detectAuthFailure(_ *resty.Client, resp *resty.Response) error {
	if resp.StatusCode() != http.StatusUnauthorized {
		return nil
	}
	req := resp.Request
	if exempt, _ := req.Context().Value(exemptKey{}).(bool); exempt {
		return nil
	}

	f := AuthFailure{Method: req.Method, Status: resp.StatusCode(), Message: messageFromBody(resp.Body())}
	if req.RawRequest != nil && req.RawRequest.URL != nil {
		f.Path = req.RawRequest.URL.Path
	}
	c.logger.Warn("request rejected as unauthenticated", "method", f.Method, "path", f.Path)

	c.obsMu.RLock()
	observers := append([]AuthFailureObserver(nil), c.observers...)
	c.obsMu.RUnlock()
	for _, obs := range observers {
		obs(f)
	}
	return nil
}

// exemptKey marks requests whose 401 is an answer, not a session failure.
type exemptKey struct{}

func exemptFromAuthFailure(ctx context.Context) context.Context {
	return context.WithValue(ctx, exemptKey{}, true)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req := c.rc.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("changedesk/api: %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &Error{Status: resp.StatusCode(), Message: messageFromBody(resp.Body())}
	}
	return nil
}

func messageFromBody(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}

type restyLogger struct {
	l *slog.Logger
}

func (r restyLogger) Errorf(format string, v ...any) { r.l.Error(fmt.Sprintf(format, v...)) }
func (r restyLogger) Warnf(format string, v ...any)  { r.l.Warn(fmt.Sprintf(format, v...)) }
func (r restyLogger) Debugf(format string, v ...any) { r.l.Debug(fmt.Sprintf(format, v...)) }
