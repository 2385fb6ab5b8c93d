// Package models holds the server-side domain types: the User entity, the
// privilege scale and the wildcard-capable UserFilter.
package models

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/cryptox"
	"github.com/jeremy-quicklearner/clautod/internal/wildcard"
)

const MaxPasswordLength = 1024

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)
	hashRe     = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// CredentialCodec derives password hashes and fresh salts.
type CredentialCodec interface {
	DeriveHash(password string, salt int64) string
	NewSalt() int64
}

// User is an immutable identity record. It never retains a plaintext password.
type User struct {
	username string
	level    Level
	salt     int64
	hash     string
}

func (u User) Username() string      { return u.username }
func (u User) PrivilegeLevel() Level { return u.level }
func (u User) Salt() int64           { return u.salt }
func (u User) Hash() string          { return u.hash }

// IsAdmin reports whether u is the reserved admin account.
func (u User) IsAdmin() bool { return u.username == common.AdminUsername }

func (u User) String() string {
	return fmt.Sprintf("User<%s %s>", u.username, u.level)
}

// LogValue keeps credential material out of logs.
func (u User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", u.username),
		slog.String("privilege_level", u.level.String()),
	)
}

// UserSpec is the raw input to Build. Which credential fields are set decides
// the construction path.
type UserSpec struct {
	Username       string
	PrivilegeLevel Level
	Password       wildcard.Value[string]
	Salt           wildcard.Value[int64]
	Hash           wildcard.Value[string]
}

// Build picks a construction path from the credential fields present:
// stored salt and hash, a new password, or a password with a known salt.
func Build(codec CredentialCodec, spec UserSpec) (User, error) {
	password, hasPassword := spec.Password.Get()
	salt, hasSalt := spec.Salt.Get()
	hash, hasHash := spec.Hash.Get()

	switch {
	case hasPassword && hasHash:
		return User{}, fmt.Errorf("%w: password and password hash are mutually exclusive", common.ErrValidation)
	case hasSalt && hasHash:
		return Restore(spec.Username, spec.PrivilegeLevel, salt, hash)
	case hasPassword && !hasSalt:
		return NewUser(codec, spec.Username, spec.PrivilegeLevel, password)
	case hasPassword:
		return WithKnownSalt(codec, spec.Username, spec.PrivilegeLevel, password, salt)
	default:
		return User{}, fmt.Errorf("%w: user %q has no usable credential", common.ErrValidation, spec.Username)
	}
}

// Restore rebuilds a user from stored salt and hash. The hash is trusted as is.
func Restore(username string, level Level, salt int64, hash string) (User, error) {
	if err := validateIdentity(username, level); err != nil {
		return User{}, err
	}
	if !hashRe.MatchString(hash) {
		return User{}, fmt.Errorf("%w: malformed password hash for %q", common.ErrValidation, username)
	}
	return User{username: username, level: level, salt: salt, hash: hash}, nil
}

// NewUser creates a fresh credential: a new salt and the matching hash.
func NewUser(codec CredentialCodec, username string, level Level, password string) (User, error) {
	return WithKnownSalt(codec, username, level, password, codec.NewSalt())
}

// WithKnownSalt derives the hash of password under an existing salt, which is
// how a login attempt is compared to the stored record.
func WithKnownSalt(codec CredentialCodec, username string, level Level, password string, salt int64) (User, error) {
	if err := validateIdentity(username, level); err != nil {
		return User{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return User{}, err
	}
	return User{username: username, level: level, salt: salt, hash: codec.DeriveHash(password, salt)}, nil
}

func validateIdentity(username string, level Level) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	return ValidateLevel(level)
}

func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return fmt.Errorf("%w: invalid username %q", common.ErrValidation, username)
	}
	return nil
}

func ValidateLevel(level Level) error {
	if !level.Valid() {
		return fmt.Errorf("%w: privilege level %d out of range", common.ErrValidation, int(level))
	}
	return nil
}

func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: empty password", common.ErrValidation)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("%w: password longer than %d bytes", common.ErrValidation, MaxPasswordLength)
	}
	return nil
}

// PrivilegeViolation describes a user whose level breaks the admin binding:
// admin must hold LevelAdmin and nobody else may.
type PrivilegeViolation struct {
	Username string
	Have     Level
	Want     Level
}

func (v *PrivilegeViolation) Error() string {
	return fmt.Sprintf("%s: user %q has privilege %s, must be %s",
		common.ErrConstraintViolation, v.Username, v.Have, v.wantText())
}

func (v *PrivilegeViolation) Unwrap() error { return common.ErrConstraintViolation }

func (v *PrivilegeViolation) wantText() string {
	if v.Want == LevelAdmin {
		return LevelAdmin.String()
	}
	return "below " + LevelAdmin.String()
}

// Constrain returns u with its level coerced to the value v asks for.
func (v *PrivilegeViolation) Constrain(u User) User {
	u.level = v.Want
	return u
}

// VerifyPrivilege checks the admin binding. A nil result means u is valid.
func (u User) VerifyPrivilege() *PrivilegeViolation {
	switch {
	case u.IsAdmin() && u.level != LevelAdmin:
		return &PrivilegeViolation{Username: u.username, Have: u.level, Want: LevelAdmin}
	case !u.IsAdmin() && u.level == LevelAdmin:
		return &PrivilegeViolation{Username: u.username, Have: u.level, Want: LevelWrite}
	}
	return nil
}

// Constrained verifies the admin binding and corrects the level if needed.
func (u User) Constrained() User {
	if v := u.VerifyPrivilege(); v != nil {
		return v.Constrain(u)
	}
	return u
}

// ensure the codec in cryptox satisfies the interface used here
var _ CredentialCodec = (*cryptox.Codec)(nil)
