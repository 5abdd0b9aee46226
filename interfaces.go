package changedesk

import "context"

// TokenStore is the durable slot holding the raw session token under TokenKey.
// Implementations: store/ (memory, file, redis, sqlite).
type TokenStore interface {
	// Get returns the persisted token. ok is false when no token is stored.
	Get(ctx context.Context) (token string, ok bool, err error)

	// Set persists the token, replacing any previous value.
	Set(ctx context.Context, token string) error

	// Remove deletes the persisted token. Removing an absent token is not an error.
	Remove(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Notifier surfaces transient notifications to the user.
// Implementations: notify/ (slog, event bus, recorder).
type Notifier interface {
	Notify(n Notification)
}

// Navigator exposes the current location of the application and forces
// navigation elsewhere. Implementations: routes.History.
type Navigator interface {
	// Current returns the path currently shown.
	Current() string

	// Redirect replaces the current location with path.
	Redirect(path string)
}

// SessionState is the read side of the session consumed by route gates and
// pages. It never exposes the token itself.
type SessionState interface {
	// Status reports whether restoration is still running, or whether a session exists.
	Status() Status

	// Identity returns the current identity, or nil when there is no session.
	Identity() *Identity

	// HasRole reports whether the current identity has the given role.
	HasRole(role Role) bool

	// IsAdmin reports whether the current identity is an admin.
	IsAdmin() bool

	// IsAdminOrSupervisor reports whether the current identity is an admin or a supervisor.
	IsAdminOrSupervisor() bool
}
