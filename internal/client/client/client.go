package client

import (
	"context"
	"time"
)

// Client is the API surface the CLI uses.
type Client interface {
	Close() error
	LoggedIn() bool

	Login(ctx context.Context, username, password string) (Session, error)
	Logout(ctx context.Context) error
	Session(ctx context.Context) (Session, error)
	Renew(ctx context.Context) (Session, error)

	Users(ctx context.Context, filter Filter) ([]User, error)
	AddUser(ctx context.Context, username, level, password string) (User, error)
	SetUsers(ctx context.Context, filter Filter, update Update) (int64, error)
	DeleteUsers(ctx context.Context, filter Filter) (int64, error)
	ChangePassword(ctx context.Context, current, next string) error
}

// Session mirrors the server's session view.
type Session struct {
	Authenticated  bool       `json:"authenticated"`
	Username       string     `json:"username"`
	PrivilegeLevel int        `json:"privilege_level"`
	Privilege      string     `json:"privilege"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

type User struct {
	Username       string `json:"username"`
	PrivilegeLevel int    `json:"privilege_level"`
	Privilege      string `json:"privilege"`
}

// Filter selects users. Empty fields match everything.
type Filter struct {
	Username       string
	PrivilegeLevel string
}

func (f Filter) params() map[string]any {
	p := map[string]any{}
	if f.Username != "" {
		p["username"] = f.Username
	}
	if f.PrivilegeLevel != "" {
		p["privilege_level"] = f.PrivilegeLevel
	}
	return p
}

// Update lists the fields to change. Empty fields stay as they are.
type Update struct {
	PrivilegeLevel string
	Password       string
}

func (u Update) addTo(p map[string]any) {
	if u.PrivilegeLevel != "" {
		p["new_privilege_level"] = u.PrivilegeLevel
	}
	if u.Password != "" {
		p["new_password"] = u.Password
	}
}

type count struct {
	Affected int64 `json:"affected"`
}
