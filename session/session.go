// Package session implements the session guard: the single owner of the
// session token and of the identity derived from it.
//
// A Guard restores a persisted token on Initialize, authenticates with Login,
// clears everything on Logout, and watches every API response for 401 so that
// a session rejected by the server is dropped and the user is sent back to the
// login page. Route gates read it through changedesk.SessionState.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chimerakang/changedesk"
	"github.com/chimerakang/changedesk/api"
	"github.com/chimerakang/changedesk/audit"
	"github.com/chimerakang/changedesk/jwks"
	"github.com/chimerakang/changedesk/metrics"
	"github.com/chimerakang/changedesk/store"
	"github.com/chimerakang/changedesk/token"
)

// Default notification texts.
const (
	DefaultSuccessMessage = "Connexion réussie"
	DefaultFailureMessage = "Erreur de connexion"
)

// Guard owns the session token and the derived identity.
type Guard struct {
	api       *api.Client
	store     changedesk.TokenStore
	notifier  changedesk.Notifier
	navigator changedesk.Navigator
	logger    *slog.Logger
	decoder   *token.Decoder
	metrics   *metrics.Metrics
	audit     *audit.Logger
	now       func() time.Time
	loginPath string

	successMsg string
	failureMsg string

	mu       sync.RWMutex
	status   changedesk.Status
	identity *changedesk.Identity
	token    string

	initOnce   sync.Once
	ready      chan struct{}
	submitting atomic.Int32
	logins     singleflight.Group
}

var _ changedesk.SessionState = (*Guard)(nil)

// Option configures a Guard.
type Option func(*Guard)

// WithDecoder replaces the token decoder.
func WithDecoder(d *token.Decoder) Option {
	return func(g *Guard) { g.decoder = d }
}

// WithMetrics records session metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithAudit records session audit events.
func WithAudit(l *audit.Logger) Option {
	return func(g *Guard) { g.audit = l }
}

// WithClock sets the time source for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithMessages overrides the login notification texts. Empty values keep the defaults.
func WithMessages(success, failure string) Option {
	return func(g *Guard) {
		if success != "" {
			g.successMsg = success
		}
		if failure != "" {
			g.failureMsg = failure
		}
	}
}

// New builds a guard over the collaborators held by client and registers its
// authentication failure observer on apiClient. The guard starts unresolved;
// call Initialize to restore a persisted session.
func New(client *changedesk.Client, apiClient *api.Client, opts ...Option) (*Guard, error) {
	if client == nil {
		return nil, errors.New("changedesk/session: client is required")
	}
	if apiClient == nil {
		return nil, errors.New("changedesk/session: api client is required")
	}

	g := &Guard{
		api:        apiClient,
		store:      client.TokenStore(),
		notifier:   client.Notifier(),
		navigator:  client.Navigator(),
		logger:     client.Logger(),
		now:        time.Now,
		loginPath:  client.Config().LoginPath,
		successMsg: DefaultSuccessMessage,
		failureMsg: DefaultFailureMessage,
		status:     changedesk.StatusUnresolved,
		ready:      make(chan struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	if g.store == nil {
		g.store = store.NewMemory()
	}
	if g.decoder == nil {
		decOpts := []token.Option{token.WithClock(g.now)}
		if url := client.Config().JWKSUrl; url != "" {
			decOpts = append(decOpts, token.WithKeySource(jwks.NewVerifier(url)))
		}
		g.decoder = token.NewDecoder(decOpts...)
	}

	apiClient.OnAuthFailure(g.handleAuthFailure)
	return g, nil
}

// Initialize restores the persisted session. Only the first call does any
// work; later calls return immediately.
func (g *Guard) Initialize(ctx context.Context) {
	g.initOnce.Do(func() {
		defer close(g.ready)
		g.restore(ctx)
	})
}

// Ready is closed once Initialize has finished.
func (g *Guard) Ready() <-chan struct{} { return g.ready }

// Wait blocks until Initialize has finished or ctx is done.
func (g *Guard) Wait(ctx context.Context) error {
	select {
	case <-g.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Guard) restore(ctx context.Context) {
	raw, ok, err := g.store.Get(ctx)
	if err != nil {
		g.logger.Warn("session: reading persisted token failed", "error", err)
		g.resolveAbsent(ctx, false)
		g.metrics.RecordRestore(metrics.RestoreError)
		g.audit.LogContext(ctx, audit.Event{Action: audit.ActionRestore, Result: audit.ResultFailure, Error: err.Error()})
		return
	}
	if !ok {
		g.resolveAbsent(ctx, false)
		g.metrics.RecordRestore(metrics.RestoreAbsent)
		return
	}

	claims, err := g.decoder.Decode(ctx, raw)
	if err != nil {
		g.logger.Info("session: discarding persisted token", "error", err)
		g.resolveAbsent(ctx, true)
		g.metrics.RecordRestore(metrics.RestoreInvalid)
		g.audit.LogContext(ctx, audit.Event{Action: audit.ActionRestore, Result: audit.ResultFailure, Error: err.Error()})
		return
	}

	id := claims.Identity()
	g.mu.Lock()
	if g.status != changedesk.StatusUnresolved {
		// A login or logout settled the session while restoring.
		g.mu.Unlock()
		return
	}
	g.token = raw
	g.identity = &id
	g.status = changedesk.StatusPresent
	g.api.SetToken(raw)
	g.mu.Unlock()

	g.metrics.RecordRestore(metrics.RestorePresent)
	g.metrics.SetSessionPresent(true)
	g.audit.LogContext(ctx, audit.Event{
		Action:   audit.ActionRestore,
		Result:   audit.ResultSuccess,
		UserID:   id.ID,
		Username: id.Username,
		Role:     string(id.Role),
	})
	g.logger.Debug("session: restored", "user", id.Username, "role", id.Role)
}

// resolveAbsent settles an unresolved guard as absent, removing the persisted
// token when discard is set.
func (g *Guard) resolveAbsent(ctx context.Context, discard bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status != changedesk.StatusUnresolved {
		return
	}
	if discard {
		if err := g.store.Remove(ctx); err != nil {
			g.logger.Warn("session: removing persisted token failed", "error", err)
		}
	}
	g.status = changedesk.StatusAbsent
	g.metrics.SetSessionPresent(false)
}

// Status reports the resolution state of the session.
func (g *Guard) Status() changedesk.Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Identity returns a copy of the current identity, or nil.
func (g *Guard) Identity() *changedesk.Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.identity == nil {
		return nil
	}
	cp := *g.identity
	return &cp
}

// Submitting reports whether a login is outstanding.
func (g *Guard) Submitting() bool {
	return g.submitting.Load() > 0
}

// Login authenticates against the API. On success the token is persisted and
// installed, the identity is taken from the returned user record, and a
// success notification is shown. On failure an error notification carries
// the server's message and the current session is left untouched.
// Concurrent calls with the same credentials share one request. The shared
// request is not bound to any caller's cancellation; a caller whose ctx ends
// first gets false while the request runs on for the others.
func (g *Guard) Login(ctx context.Context, username, password string) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	shared := context.WithoutCancel(ctx)
	ch := g.logins.DoChan(username+"\x00"+password, func() (any, error) {
		g.submitting.Add(1)
		defer g.submitting.Add(-1)
		return g.login(shared, username, password), nil
	})

	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		g.logger.Debug("session: login abandoned by caller", "user", username, "error", ctx.Err())
		return false
	}
}

func (g *Guard) login(ctx context.Context, username, password string) bool {
	start := g.now()
	ctx = audit.WithRequestID(ctx, audit.NewRequestID())

	res, err := g.api.Auth.Login(ctx, username, password)
	if err != nil {
		result := metrics.LoginRejected
		if api.StatusOf(err) == 0 {
			result = metrics.LoginError
			g.logger.Error("session: login request failed", "user", username, "error", err)
		}
		g.metrics.RecordLogin(result, g.now().Sub(start))
		g.audit.LogContext(ctx, audit.Event{Action: audit.ActionLogin, Result: audit.ResultFailure, Username: username, Error: err.Error()})
		g.notify(changedesk.LevelError, api.MessageOf(err, g.failureMsg))
		return false
	}

	id := res.User.Identity()
	if claims, err := g.decoder.Decode(ctx, res.Token); err == nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}

	g.mu.Lock()
	if err := g.store.Set(ctx, res.Token); err != nil {
		g.mu.Unlock()
		g.logger.Error("session: persisting token failed", "error", err)
		g.metrics.RecordLogin(metrics.LoginError, g.now().Sub(start))
		g.audit.LogContext(ctx, audit.Event{Action: audit.ActionLogin, Result: audit.ResultFailure, Username: username, Error: err.Error()})
		g.notify(changedesk.LevelError, g.failureMsg)
		return false
	}
	g.token = res.Token
	g.identity = &id
	g.status = changedesk.StatusPresent
	g.api.SetToken(res.Token)
	g.mu.Unlock()

	g.metrics.RecordLogin(metrics.LoginSuccess, g.now().Sub(start))
	g.metrics.SetSessionPresent(true)
	g.audit.LogContext(ctx, audit.Event{
		Action:   audit.ActionLogin,
		Result:   audit.ResultSuccess,
		UserID:   id.ID,
		Username: id.Username,
		Role:     string(id.Role),
	})
	g.logger.Info("session: logged in", "user", id.Username, "role", id.Role)
	g.notify(changedesk.LevelSuccess, g.successMsg)
	return true
}

// Logout removes the persisted token, clears the credential and the identity.
// Calling it without a session is a no-op apart from the status becoming absent.
func (g *Guard) Logout() {
	g.clear(metrics.LogoutUser, "")
}

// Revalidate drops a present session whose expiry has passed and returns the
// resulting status.
func (g *Guard) Revalidate(ctx context.Context) changedesk.Status {
	g.mu.RLock()
	expired := g.status == changedesk.StatusPresent &&
		g.identity != nil && g.decoder.Expired(g.identity.ExpiresAt)
	g.mu.RUnlock()

	if expired {
		g.logger.Info("session: token expired")
		g.clear(metrics.LogoutExpired, "")
	}
	return g.Status()
}

func (g *Guard) clear(reason, path string) {
	g.mu.Lock()
	prev := g.identity
	if err := g.store.Remove(context.Background()); err != nil {
		g.logger.Warn("session: removing persisted token failed", "error", err)
	}
	g.token = ""
	g.identity = nil
	g.status = changedesk.StatusAbsent
	g.api.ClearToken()
	g.mu.Unlock()

	g.metrics.SetSessionPresent(false)
	if prev == nil {
		return
	}
	g.metrics.RecordLogout(reason)
	action := audit.ActionLogout
	if reason == metrics.LogoutUnauthorized {
		action = audit.ActionUnauthorized
	}
	g.audit.Log(audit.Event{
		Action:   action,
		Result:   audit.ResultSuccess,
		UserID:   prev.ID,
		Username: prev.Username,
		Path:     path,
		Details:  reason,
	})
}

// handleAuthFailure reacts to any 401 seen by the API client.
func (g *Guard) handleAuthFailure(f api.AuthFailure) {
	if g.navigator != nil && samePath(g.navigator.Current(), g.loginPath) {
		g.metrics.RecordAuthFailure(false)
		g.audit.Log(audit.Event{Action: audit.ActionUnauthorized, Result: audit.ResultIgnored, Path: f.Path})
		return
	}

	g.logger.Warn("session: rejected by server, signing out", "method", f.Method, "path", f.Path)
	g.clear(metrics.LogoutUnauthorized, f.Path)
	g.metrics.RecordAuthFailure(true)
	if g.navigator != nil {
		g.navigator.Redirect(g.loginPath)
	}
}

// samePath compares two locations ignoring query, fragment and trailing slashes.
func samePath(a, b string) bool {
	return locationPath(a) == locationPath(b)
}

func locationPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return path.Clean("/" + p)
}

// HasRole reports whether the current identity has role.
func (g *Guard) HasRole(role changedesk.Role) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identity != nil && g.identity.Role == role
}

// IsAdmin reports whether the current identity is an admin.
func (g *Guard) IsAdmin() bool { return g.HasRole(changedesk.RoleAdmin) }

// IsSupervisor reports whether the current identity is a supervisor.
func (g *Guard) IsSupervisor() bool { return g.HasRole(changedesk.RoleSupervisor) }

// IsAdminOrSupervisor reports whether the current identity is an admin or a supervisor.
func (g *Guard) IsAdminOrSupervisor() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.identity == nil {
		return false
	}
	return g.identity.Role == changedesk.RoleAdmin || g.identity.Role == changedesk.RoleSupervisor
}

func (g *Guard) notify(level changedesk.Level, msg string) {
	if g.notifier == nil {
		return
	}
	g.notifier.Notify(changedesk.Notification{Level: level, Message: msg, Time: g.now()})
}

// String describes the session for logs.
func (g *Guard) String() string {
	id := g.Identity()
	if id == nil {
		return fmt.Sprintf("session(%s)", g.Status())
	}
	return fmt.Sprintf("session(%s %s/%s)", g.Status(), id.Username, id.Role)
}
