package dispatch

import (
	"time"

	"github.com/jeremy-quicklearner/clautod/internal/server/auth"
	"github.com/jeremy-quicklearner/clautod/internal/server/models"
)

// UserView is the caller-visible part of a user. Salt and hash never leave
// the server.
type UserView struct {
	Username       string       `json:"username"`
	PrivilegeLevel models.Level `json:"privilege_level"`
	Privilege      string       `json:"privilege"`
}

func viewOf(u models.User) UserView {
	return UserView{Username: u.Username(), PrivilegeLevel: u.PrivilegeLevel(), Privilege: u.PrivilegeLevel().String()}
}

func viewsOf(users []models.User) []UserView {
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		out = append(out, viewOf(u))
	}
	return out
}

type SessionView struct {
	Authenticated  bool         `json:"authenticated"`
	Username       string       `json:"username,omitempty"`
	PrivilegeLevel models.Level `json:"privilege_level"`
	Privilege      string       `json:"privilege,omitempty"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	Token          string       `json:"token,omitempty"`
}

func sessionOf(c auth.Claims, token string) SessionView {
	v := SessionView{
		Authenticated:  true,
		Username:       c.Username,
		PrivilegeLevel: c.PrivilegeLevel,
		Privilege:      c.PrivilegeLevel.String(),
		Token:          token,
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time.UTC()
		v.ExpiresAt = &exp
	}
	return v
}

type CountView struct {
	Affected int64 `json:"affected"`
}
