// Package services contains server-side business logic. This file implements
// AccessService: authentication against stored hashes and the user mutations
// guarded by the admin-account rules.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/dbx"
	"github.com/jeremy-quicklearner/clautod/internal/logging"
	"github.com/jeremy-quicklearner/clautod/internal/server/models"
	"github.com/jeremy-quicklearner/clautod/internal/server/repositories/repomanager"
	"github.com/jeremy-quicklearner/clautod/internal/wildcard"
)

// AccessService provides the user operations exposed to callers:
// - Authenticate: check a password against the stored hash
// - Get, Add, Set, Delete: directory access under the admin rules
// Every check-then-write sequence runs in one transaction.
type AccessService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       models.CredentialCodec
	logger      logging.Logger
}

// NewAccessService constructs an AccessService over db.
func NewAccessService(db *sql.DB, m repomanager.RepositoryManager, codec models.CredentialCodec, logger logging.Logger) *AccessService {
	return &AccessService{
		db:          db,
		repomanager: m,
		codec:       codec,
		logger:      logger.With("module", "access"),
	}
}

func illegal(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{common.ErrIllegalOperation}, args...)...)
}

// Authenticate returns the stored user when password matches. An unknown
// username and a wrong password both yield common.ErrInvalidCredentials.
func (s *AccessService) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	stored, err := s.repomanager.Users(s.db).SelectByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrMissingSubject) {
			// keep the timing close to the known-user path
			_ = s.codec.DeriveHash(password, 0)
			return models.User{}, fmt.Errorf("%w: %w", common.ErrInvalidCredentials, err)
		}
		return models.User{}, err
	}

	candidate, err := models.WithKnownSalt(s.codec, stored.Username(), stored.PrivilegeLevel(), password, stored.Salt())
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", common.ErrInvalidCredentials, err)
	}
	if !s.checkHash(stored.Hash(), candidate.Hash()) {
		s.logger.Info(ctx, "authentication failed", "user", stored)
		return models.User{}, common.ErrInvalidCredentials
	}
	return stored, nil
}

func (s *AccessService) checkHash(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

// Get returns the users selected by filter.
func (s *AccessService) Get(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	return s.repomanager.Users(s.db).Select(ctx, filter)
}

// Add creates a user from a plaintext password. Any supplied salt or hash is
// discarded and derived again.
func (s *AccessService) Add(ctx context.Context, spec models.UserSpec) (models.User, error) {
	password, ok := spec.Password.Get()
	if !ok {
		return models.User{}, fmt.Errorf("%w: a new user needs a password", common.ErrValidation)
	}
	user, err := models.NewUser(s.codec, spec.Username, spec.PrivilegeLevel, password)
	if err != nil {
		return models.User{}, err
	}
	if v := user.VerifyPrivilege(); v != nil {
		return models.User{}, v
	}

	err = dbx.WithTx(ctx, s.db, s.repomanager.TxOptions(), func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		_, err := repo.SelectByUsername(ctx, user.Username())
		switch {
		case err == nil:
			return illegal("username <%s> already exists", user.Username())
		case !errors.Is(err, common.ErrMissingSubject):
			return err
		}
		return repo.Insert(ctx, user)
	})
	if err != nil {
		return models.User{}, err
	}

	s.logger.Info(ctx, "user added", "user", user)
	return user, nil
}

// Set applies updates to the users selected by filter.
//   - the admin account's privilege level never changes
//   - only the admin account may hold the admin level
//   - a password change must select at most one user, and gets a fresh salt
func (s *AccessService) Set(ctx context.Context, filter, updates models.UserFilter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	if !filter.Password.IsAny() {
		return 0, illegal("cannot select users by password")
	}
	if !updates.Salt.IsAny() || !updates.Hash.IsAny() {
		return 0, illegal("password salt and hash are derived, set the password instead")
	}
	if err := updates.Validate(); err != nil {
		return 0, err
	}
	updates.Username = filter.Username

	var affected int64
	err := dbx.WithTx(ctx, s.db, s.repomanager.TxOptions(), func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		selected, err := repo.Select(ctx, filter)
		if err != nil {
			return err
		}

		if level, ok := updates.PrivilegeLevel.Get(); ok {
			if containsAdmin(selected) {
				return illegal("the privilege level of <%s> cannot change", common.AdminUsername)
			}
			if level == models.LevelAdmin && len(selected) > 0 {
				return illegal("only <%s> may hold the %s privilege level", common.AdminUsername, models.LevelAdmin)
			}
		}

		if password, ok := updates.Password.Get(); ok {
			if len(selected) > 1 {
				return illegal("cannot change the password of %d users at once", len(selected))
			}
			updates.Password = wildcard.Any[string]()
			if len(selected) == 1 {
				fresh, err := models.NewUser(s.codec, selected[0].Username(), selected[0].PrivilegeLevel(), password)
				if err != nil {
					return err
				}
				updates.Salt = wildcard.Of(fresh.Salt())
				updates.Hash = wildcard.Of(fresh.Hash())
			}
		}

		affected, err = repo.Update(ctx, filter, updates)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info(ctx, "users updated", "filter", filter, "affected", affected)
	return affected, nil
}

// Delete removes the users selected by filter. The admin account is never
// deleted and an unconstrained filter is refused.
func (s *AccessService) Delete(ctx context.Context, filter models.UserFilter) (int64, error) {
	if filter.IsAny() {
		return 0, illegal("refusing to delete without a constraint")
	}

	var deleted int64
	err := dbx.WithTx(ctx, s.db, s.repomanager.TxOptions(), func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		selected, err := repo.Select(ctx, filter)
		if err != nil {
			return err
		}
		if containsAdmin(selected) {
			return illegal("<%s> cannot be deleted", common.AdminUsername)
		}
		deleted, err = repo.Delete(ctx, filter)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info(ctx, "users deleted", "filter", filter, "deleted", deleted)
	return deleted, nil
}

// ChangeOwnPassword lets an authenticated user replace their password after
// proving the current one.
func (s *AccessService) ChangeOwnPassword(ctx context.Context, username, current, next string) error {
	if _, err := s.Authenticate(ctx, username, current); err != nil {
		return err
	}
	_, err := s.Set(ctx, models.ByUsername(username), models.UserFilter{Password: wildcard.Of(next)})
	return err
}

// EnsureAdmin creates the admin account with password when it does not exist.
// It reports whether the account was created.
func (s *AccessService) EnsureAdmin(ctx context.Context, password string) (bool, error) {
	admin, err := models.NewUser(s.codec, common.AdminUsername, models.LevelAdmin, password)
	if err != nil {
		return false, err
	}

	created := false
	err = dbx.WithTx(ctx, s.db, s.repomanager.TxOptions(), func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		_, err := repo.SelectByUsername(ctx, common.AdminUsername)
		if err == nil {
			return nil
		}
		if !errors.Is(err, common.ErrMissingSubject) {
			return err
		}
		created = true
		return repo.Insert(ctx, admin)
	})
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Warn(ctx, "admin account created", "user", admin)
	}
	return created, nil
}

func containsAdmin(users []models.User) bool {
	for _, u := range users {
		if u.IsAdmin() {
			return true
		}
	}
	return false
}
