package models

import (
	"fmt"
	"log/slog"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/wildcard"
)

// UserFilter is a User-shaped record whose fields may be wildcards. As a
// filter a wildcard means "any value", as an update it means "leave as is".
type UserFilter struct {
	Username       wildcard.Value[string]
	Password       wildcard.Value[string]
	PrivilegeLevel wildcard.Value[Level]
	Salt           wildcard.Value[int64]
	Hash           wildcard.Value[string]
}

// ByUsername is a filter constrained only by username.
func ByUsername(username string) UserFilter {
	return UserFilter{Username: wildcard.Of(username)}
}

// FilterFor returns the filter that selects exactly u.
func FilterFor(u User) UserFilter {
	return UserFilter{
		Username:       wildcard.Of(u.username),
		PrivilegeLevel: wildcard.Of(u.level),
		Salt:           wildcard.Of(u.salt),
		Hash:           wildcard.Of(u.hash),
	}
}

// Validate rejects malformed constrained fields and a plaintext password
// combined with its derived salt or hash.
func (f UserFilter) Validate() error {
	if !f.Password.IsAny() && (!f.Salt.IsAny() || !f.Hash.IsAny()) {
		return fmt.Errorf("%w: password cannot be combined with salt or hash", common.ErrValidation)
	}
	if name, ok := f.Username.Get(); ok {
		if err := ValidateUsername(name); err != nil {
			return err
		}
	}
	if level, ok := f.PrivilegeLevel.Get(); ok {
		if err := ValidateLevel(level); err != nil {
			return err
		}
	}
	if password, ok := f.Password.Get(); ok {
		if err := ValidatePassword(password); err != nil {
			return err
		}
	}
	return nil
}

// IsAny reports whether no field is constrained.
func (f UserFilter) IsAny() bool {
	return f.Username.IsAny() && f.Password.IsAny() && f.PrivilegeLevel.IsAny() &&
		f.Salt.IsAny() && f.Hash.IsAny()
}

// Matches reports whether two filters can select a common record.
func (f UserFilter) Matches(other UserFilter) bool {
	return f.Username.Matches(other.Username) &&
		f.Password.Matches(other.Password) &&
		f.PrivilegeLevel.Matches(other.PrivilegeLevel) &&
		f.Salt.Matches(other.Salt) &&
		f.Hash.Matches(other.Hash)
}

// MatchesUser reports whether u could be selected by f. The password field is
// not compared since a User never holds plaintext.
func (f UserFilter) MatchesUser(u User) bool {
	return f.Username.MatchesValue(u.username) &&
		f.PrivilegeLevel.MatchesValue(u.level) &&
		f.Salt.MatchesValue(u.salt) &&
		f.Hash.MatchesValue(u.hash)
}

// CoversAdmin reports whether f could select the admin account.
func (f UserFilter) CoversAdmin() bool {
	return f.Username.MatchesValue(common.AdminUsername) && f.PrivilegeLevel.MatchesValue(LevelAdmin)
}

func (f UserFilter) LogValue() slog.Value {
	level := "*"
	if l, ok := f.PrivilegeLevel.Get(); ok {
		level = l.String()
	}
	return slog.GroupValue(
		slog.String("username", f.Username.String()),
		slog.String("privilege_level", level),
	)
}
