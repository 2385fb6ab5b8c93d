package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/cryptox"
	"github.com/jeremy-quicklearner/clautod/internal/dbx"
	"github.com/jeremy-quicklearner/clautod/internal/logging"
	"github.com/jeremy-quicklearner/clautod/internal/server/models"
	"github.com/jeremy-quicklearner/clautod/internal/server/repositories/repomanager"
	"github.com/jeremy-quicklearner/clautod/internal/wildcard"
)

// newTestService returns a service over a migrated in-memory SQLite database
// that already holds the admin account.
func newTestService(t *testing.T) (*AccessService, *sql.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite", dbx.SQLite.PrepareDSN("file:"+name+"?mode=memory&cache=shared"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	m := repomanager.NewSQLRepositoryManager(dbx.SQLite, time.Second)
	require.NoError(t, m.RunMigrations(ctx, db))

	s := NewAccessService(db, m, cryptox.NewCodec(nil, nil), logging.NewNop())
	created, err := s.EnsureAdmin(ctx, "adminpw")
	require.NoError(t, err)
	require.True(t, created)
	return s, db
}

func addUser(t *testing.T, s *AccessService, name string, level models.Level, password string) models.User {
	t.Helper()
	u, err := s.Add(context.Background(), models.UserSpec{Username: name, PrivilegeLevel: level, Password: wildcard.Of(password)})
	require.NoError(t, err)
	return u
}

func TestAuthenticate_EndToEnd(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	addUser(t, s, "bob", models.LevelRead, "pw1")

	u, err := s.Authenticate(ctx, "bob", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username())
	assert.Equal(t, models.LevelRead, u.PrivilegeLevel())

	_, err = s.Authenticate(ctx, "bob", "wrongpw")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = s.repomanager.Users(s.db).SelectByUsername(ctx, "nobody")
	require.ErrorIs(t, err, common.ErrMissingSubject)

	_, err = s.Authenticate(ctx, "nobody", "pw1")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)
	require.ErrorIs(t, err, common.ErrMissingSubject)
	assert.Equal(t, "invalid credentials", common.PublicMessage(err))
}

func TestAdd_DuplicateUsername(t *testing.T) {
	s, _ := newTestService(t)

	addUser(t, s, "bob", models.LevelRead, "pw1")
	_, err := s.Add(context.Background(), models.UserSpec{Username: "bob", PrivilegeLevel: models.LevelWrite, Password: wildcard.Of("pw2")})
	require.ErrorIs(t, err, common.ErrIllegalOperation)
	assert.Contains(t, err.Error(), "username <bob> already exists")

	u, err := s.Authenticate(context.Background(), "bob", "pw1")
	require.NoError(t, err)
	assert.Equal(t, models.LevelRead, u.PrivilegeLevel(), "first record must be untouched")
}

func TestAdd_Rules(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.Add(ctx, models.UserSpec{Username: "carol", PrivilegeLevel: models.LevelAdmin, Password: wildcard.Of("pw")})
	require.ErrorIs(t, err, common.ErrConstraintViolation)

	_, err = s.Add(ctx, models.UserSpec{Username: "admin", PrivilegeLevel: models.LevelAdmin, Password: wildcard.Of("pw")})
	require.ErrorIs(t, err, common.ErrIllegalOperation)

	_, err = s.Add(ctx, models.UserSpec{Username: "dave", PrivilegeLevel: models.LevelRead})
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = s.Add(ctx, models.UserSpec{Username: "bad name", PrivilegeLevel: models.LevelRead, Password: wildcard.Of("pw")})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestAdd_SuppliedHashIsRecomputed(t *testing.T) {
	s, _ := newTestService(t)

	u, err := s.Add(context.Background(), models.UserSpec{
		Username: "erin", PrivilegeLevel: models.LevelRead,
		Password: wildcard.Of("pw"), Salt: wildcard.Of(int64(5)), Hash: wildcard.Of(strings.Repeat("0", 64)),
	})
	require.NoError(t, err)
	assert.NotEqual(t, int64(5), u.Salt())
	assert.Equal(t, cryptox.SHA256Hasher{}.DeriveHash("pw", u.Salt()), u.Hash())
}

func TestSet_AdminPrivilegeIsImmutable(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	addUser(t, s, "bob", models.LevelRead, "pw1")

	filters := []models.UserFilter{
		models.ByUsername("admin"),
		{},
		{PrivilegeLevel: wildcard.Of(models.LevelAdmin)},
	}
	for _, f := range filters {
		for _, level := range []models.Level{models.LevelRead, models.LevelAdmin} {
			_, err := s.Set(ctx, f, models.UserFilter{PrivilegeLevel: wildcard.Of(level)})
			require.ErrorIs(t, err, common.ErrIllegalOperation)
		}
	}

	admin, err := s.repomanager.Users(s.db).SelectByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.LevelAdmin, admin.PrivilegeLevel())
}

func TestSet_NobodyElseBecomesAdmin(t *testing.T) {
	s, _ := newTestService(t)
	addUser(t, s, "bob", models.LevelRead, "pw1")

	_, err := s.Set(context.Background(), models.ByUsername("bob"), models.UserFilter{PrivilegeLevel: wildcard.Of(models.LevelAdmin)})
	require.ErrorIs(t, err, common.ErrIllegalOperation)

	n, err := s.Set(context.Background(), models.ByUsername("ghost"), models.UserFilter{PrivilegeLevel: wildcard.Of(models.LevelAdmin)})
	require.NoError(t, err, "an empty selection changes nothing")
	assert.Zero(t, n)
}

func TestSet_Level(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	addUser(t, s, "bob", models.LevelRead, "pw1")

	n, err := s.Set(ctx, models.ByUsername("bob"), models.UserFilter{
		Username:       wildcard.Of("robert"),
		PrivilegeLevel: wildcard.Of(models.LevelWrite),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	u, err := s.Authenticate(ctx, "bob", "pw1")
	require.NoError(t, err, "username must not change")
	assert.Equal(t, models.LevelWrite, u.PrivilegeLevel())
}

func TestSet_BulkPasswordChangeIsIllegal(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	addUser(t, s, "bob", models.LevelRead, "pw1")
	addUser(t, s, "carol", models.LevelRead, "pw2")

	_, err := s.Set(ctx, models.UserFilter{PrivilegeLevel: wildcard.Of(models.LevelRead)}, models.UserFilter{Password: wildcard.Of("same")})
	require.ErrorIs(t, err, common.ErrIllegalOperation)

	_, err = s.Authenticate(ctx, "carol", "pw2")
	require.NoError(t, err)
}

func TestSet_PasswordChange(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	before := addUser(t, s, "bob", models.LevelRead, "pw1")

	n, err := s.Set(ctx, models.ByUsername("bob"), models.UserFilter{Password: wildcard.Of("pw2")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	after, err := s.Authenticate(ctx, "bob", "pw2")
	require.NoError(t, err)
	assert.NotEqual(t, before.Salt(), after.Salt())

	_, err = s.Authenticate(ctx, "bob", "pw1")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestSet_RefusesDerivedFieldsAndPasswordFilter(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.Set(ctx, models.ByUsername("bob"), models.UserFilter{Hash: wildcard.Of(strings.Repeat("a", 64))})
	require.ErrorIs(t, err, common.ErrIllegalOperation)

	_, err = s.Set(ctx, models.UserFilter{Password: wildcard.Of("pw1")}, models.UserFilter{PrivilegeLevel: wildcard.Of(models.LevelRead)})
	require.ErrorIs(t, err, common.ErrIllegalOperation)
}

func TestDelete_AdminIsProtected(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	addUser(t, s, "bob", models.LevelRead, "pw1")

	for _, f := range []models.UserFilter{
		models.ByUsername("admin"),
		{PrivilegeLevel: wildcard.Of(models.LevelAdmin)},
		{},
	} {
		_, err := s.Delete(ctx, f)
		require.ErrorIs(t, err, common.ErrIllegalOperation)
	}

	all, err := s.repomanager.Users(s.db).SelectAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	n, err := s.Delete(ctx, models.ByUsername("bob"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Authenticate(ctx, "admin", "adminpw")
	require.NoError(t, err)
}

func TestGet(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	addUser(t, s, "bob", models.LevelRead, "pw1")
	addUser(t, s, "carol", models.LevelWrite, "pw2")

	got, err := s.Get(ctx, models.UserFilter{PrivilegeLevel: wildcard.Of(models.LevelWrite)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "carol", got[0].Username())

	got, err = s.Get(ctx, models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = s.Get(ctx, models.UserFilter{Password: wildcard.Of("pw1")})
	require.ErrorIs(t, err, common.ErrIllegalOperation)
}

func TestChangeOwnPassword(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	addUser(t, s, "bob", models.LevelRead, "pw1")

	err := s.ChangeOwnPassword(ctx, "bob", "nope", "pw2")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	require.NoError(t, s.ChangeOwnPassword(ctx, "bob", "pw1", "pw2"))
	_, err = s.Authenticate(ctx, "bob", "pw2")
	require.NoError(t, err)
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	s, _ := newTestService(t)

	created, err := s.EnsureAdmin(context.Background(), "other")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.Authenticate(context.Background(), "admin", "adminpw")
	require.NoError(t, err, "existing admin password must be kept")

	_, err = s.EnsureAdmin(context.Background(), "")
	require.True(t, errors.Is(err, common.ErrValidation))
}
