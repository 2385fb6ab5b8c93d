package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/cryptox"
	"github.com/jeremy-quicklearner/clautod/internal/dbx"
	"github.com/jeremy-quicklearner/clautod/internal/logging"
	"github.com/jeremy-quicklearner/clautod/internal/server/models"
	"github.com/jeremy-quicklearner/clautod/internal/server/repositories/revocations"
	usersrepo "github.com/jeremy-quicklearner/clautod/internal/server/repositories/users"
	"github.com/jeremy-quicklearner/clautod/internal/wildcard"
)

// --- fakes ---

type fakeUsersRepo struct {
	selectOut []models.User
	selectErr error

	updated int
	deleted int
}

func (f *fakeUsersRepo) Select(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	return f.selectOut, f.selectErr
}

func (f *fakeUsersRepo) SelectByUsername(ctx context.Context, username string) (models.User, error) {
	for _, u := range f.selectOut {
		if u.Username() == username {
			return u, nil
		}
	}
	return models.User{}, common.ErrMissingSubject
}

func (f *fakeUsersRepo) SelectAll(ctx context.Context) ([]models.User, error) {
	return f.selectOut, nil
}

func (f *fakeUsersRepo) Insert(ctx context.Context, user models.User) error { return nil }

func (f *fakeUsersRepo) Update(ctx context.Context, filter, updates models.UserFilter) (int64, error) {
	f.updated++
	return int64(len(f.selectOut)), nil
}

func (f *fakeUsersRepo) Delete(ctx context.Context, filter models.UserFilter) (int64, error) {
	f.deleted++
	return int64(len(f.selectOut)), nil
}

type fakeRepoManager struct {
	u usersrepo.Repository
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) CheckSchemaVersion(context.Context, *sql.DB) (int64, error) {
	return 0, nil
}
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository { return m.u }
func (m *fakeRepoManager) Revocations(db dbx.DBTX) revocations.Repository {
	return nil
}
func (m *fakeRepoManager) TxOptions() *sql.TxOptions { return nil }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func restored(t *testing.T, name string, level models.Level) models.User {
	t.Helper()
	u, err := models.Restore(name, level, time.Now().UnixMicro(), cryptox.SHA256Hasher{}.DeriveHash("pw", 1))
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestSet_GuardRollsBack(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	repo := &fakeUsersRepo{selectOut: []models.User{restored(t, "admin", models.LevelAdmin)}}
	s := NewAccessService(db, &fakeRepoManager{u: repo}, cryptox.NewCodec(nil, nil), logging.NewNop())

	_, err := s.Set(context.Background(), models.UserFilter{}, models.UserFilter{PrivilegeLevel: wildcard.Of(models.LevelRead)})
	if !errors.Is(err, common.ErrIllegalOperation) {
		t.Fatalf("want ErrIllegalOperation, got %v", err)
	}
	if repo.updated != 0 {
		t.Fatalf("update must not run")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestDelete_CommitsWhenAllowed(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := &fakeUsersRepo{selectOut: []models.User{restored(t, "bob", models.LevelRead)}}
	s := NewAccessService(db, &fakeRepoManager{u: repo}, cryptox.NewCodec(nil, nil), logging.NewNop())

	n, err := s.Delete(context.Background(), models.ByUsername("bob"))
	if err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v", n, err)
	}
	if repo.deleted != 1 {
		t.Fatalf("expected one delete call, got %d", repo.deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestDelete_SelectErrorRollsBack(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	repo := &fakeUsersRepo{selectErr: boom}
	s := NewAccessService(db, &fakeRepoManager{u: repo}, cryptox.NewCodec(nil, nil), logging.NewNop())

	_, err := s.Delete(context.Background(), models.ByUsername("bob"))
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestAuthenticate_StoreErrorIsNotCredentials(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	repo := &fakeUsersRepo{}
	s := NewAccessService(db, &fakeRepoManager{u: &failingLookup{fakeUsersRepo: repo}}, cryptox.NewCodec(nil, nil), logging.NewNop())

	_, err := s.Authenticate(context.Background(), "bob", "pw")
	if !errors.Is(err, common.ErrStorageUnavailable) || errors.Is(err, common.ErrInvalidCredentials) {
		t.Fatalf("want storage unavailable, got %v", err)
	}
}

type failingLookup struct {
	*fakeUsersRepo
}

func (f *failingLookup) SelectByUsername(ctx context.Context, username string) (models.User, error) {
	return models.User{}, common.ErrStorageUnavailable
}
