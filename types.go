package changedesk

import (
	"encoding/json"
	"time"
)

// TokenKey is the single well-known key under which the session token is persisted.
const TokenKey = "token"

// Role is a user role. The set is closed: admin, supervisor, cashier.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleCashier    Role = "cashier"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleCashier:
		return true
	}
	return false
}

// Status is the session resolution state.
type Status int

const (
	// StatusUnresolved means the persisted token has not been checked yet.
	StatusUnresolved Status = iota
	// StatusAbsent means there is no valid session.
	StatusAbsent
	// StatusPresent means an Identity is populated.
	StatusPresent
)

func (s Status) String() string {
	switch s {
	case StatusUnresolved:
		return "unresolved"
	case StatusAbsent:
		return "absent"
	case StatusPresent:
		return "present"
	}
	return "unknown"
}

// Resolved reports whether session restoration has finished.
func (s Status) Resolved() bool { return s != StatusUnresolved }

// Identity is the read-only view of the current session, derived from the token
// claims or from the user record returned by a login.
type Identity struct {
	ID          int64
	Username    string
	Role        Role
	DisplayName string
	// ExpiresAt is zero when the expiry is not known (identity from a login response).
	ExpiresAt time.Time
}

// User is a user record as returned by the API.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	FullName  string `json:"fullName,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// UnmarshalJSON accepts both the login payload spelling (fullName) and the
// user listing spelling (full_name).
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		FullNameSnake string `json:"full_name"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.FullName == "" {
		u.FullName = aux.FullNameSnake
	}
	return nil
}

// Identity projects the user record into an Identity, falling back to the
// username when no full name is set.
func (u User) Identity() Identity {
	name := u.FullName
	if name == "" {
		name = u.Username
	}
	return Identity{
		ID:          u.ID,
		Username:    u.Username,
		Role:        u.Role,
		DisplayName: name,
	}
}

// Level is the severity of a user notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a transient message surfaced to the user.
type Notification struct {
	Level   Level
	Message string
	Time    time.Time
}
