// Package fake provides an in-memory bureau API for tests and local runs.
//
// The server speaks the same REST surface as the real back office, issues
// HS256 session tokens and keeps its records in memory. It echoes what it is
// given: balances, rates and reports are not business computations.
//
//	srv := fake.New(fake.WithUser(1, "alice", "secret", changedesk.RoleCashier, "Alice"))
//	ts := httptest.NewServer(srv.Handler())
//	defer ts.Close()
package fake

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/chimerakang/changedesk"
	"github.com/chimerakang/changedesk/token"
)

// Option configures the fake server.
type Option func(*Server)

type userEntry struct {
	user     changedesk.User
	password string
}

// Server is the fake bureau API.
type Server struct {
	mu     sync.RWMutex
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	users        map[int64]*userEntry
	currencies   []*currency
	registers    []*register
	transactions []*transaction
	supplies     []*supply
	revoked      map[string]bool
	requests     []string
	nextID       int64

	engine *gin.Engine
}

// WithUser adds an account.
func WithUser(id int64, username, password string, role changedesk.Role, fullName string) Option {
	return func(s *Server) {
		s.users[id] = &userEntry{
			user: changedesk.User{
				ID:        id,
				Username:  username,
				Role:      role,
				FullName:  fullName,
				CreatedAt: s.now().Format(time.RFC3339),
			},
			password: password,
		}
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
}

// WithCurrency adds a currency with its rates.
func WithCurrency(code, name, symbol string, buyRate, sellRate float64, active bool) Option {
	return func(s *Server) {
		s.currencies = append(s.currencies, &currency{
			ID: s.id(), Code: code, Name: name, Symbol: symbol,
			BuyRate: buyRate, SellRate: sellRate, IsActive: active,
		})
	}
}

// WithSecret sets the HS256 signing key.
func WithSecret(secret []byte) Option {
	return func(s *Server) { s.secret = secret }
}

// WithTokenTTL sets the lifetime of issued tokens. Default: 24 hours.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.ttl = d }
}

// WithClock sets the server time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a fake server.
func New(opts ...Option) *Server {
	s := &Server{
		secret:  []byte("changedesk-fake-secret"),
		ttl:     24 * time.Hour,
		now:     time.Now,
		users:   make(map[int64]*userEntry),
		revoked: make(map[string]bool),
		nextID:  1,
	}
	for _, o := range opts {
		o(s)
	}

	gin.SetMode(gin.TestMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.record)
	s.routes()
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.engine }

// Secret returns the HS256 signing key.
func (s *Server) Secret() []byte { return s.secret }

// IssueToken signs a session token for a known user, expiring at exp.
func (s *Server) IssueToken(userID int64, exp time.Time) (string, error) {
	s.mu.RLock()
	entry, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("changedesk/fake: unknown user %d", userID)
	}
	claims := &token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:   entry.user.ID,
		Username: entry.user.Username,
		Role:     entry.user.Role,
		FullName: entry.user.FullName,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Revoke makes the server reject tok with 401 from now on.
func (s *Server) Revoke(tok string) {
	s.mu.Lock()
	s.revoked[tok] = true
	s.mu.Unlock()
}

// Requests returns every request seen, as "METHOD /path".
func (s *Server) Requests() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.requests...)
}

// CountRequests returns how many requests matched "METHOD /path".
func (s *Server) CountRequests(methodPath string) int {
	n := 0
	for _, r := range s.Requests() {
		if r == methodPath {
			n++
		}
	}
	return n
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, c.Request.Method+" "+c.Request.URL.Path)
	s.mu.Unlock()
	c.Next()
}

// id must be called with s.mu held, or during construction.
func (s *Server) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

var errRevoked = errors.New("token revoked")

func (s *Server) verify(raw string) (*token.Claims, error) {
	s.mu.RLock()
	revoked := s.revoked[raw]
	s.mu.RUnlock()
	if revoked {
		return nil, errRevoked
	}
	claims := &token.Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
