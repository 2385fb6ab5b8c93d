// Package users implements the user directory on top of the constraint query
// engine. Every call is bounded by the configured store timeout.
package users

import (
	"context"
	"fmt"
	"time"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/dbx"
	"github.com/jeremy-quicklearner/clautod/internal/server/models"
	"github.com/jeremy-quicklearner/clautod/internal/server/query"
	"github.com/jeremy-quicklearner/clautod/internal/wildcard"
)

const table = "users"

var columns = []string{"username", "privilege_level", "password_salt", "password_hash"}

// SQLRepository implements Repository over dbx.DBTX (satisfied by *sql.DB or
// *sql.Tx).
type SQLRepository struct {
	db      dbx.DBTX
	engine  *query.Engine
	timeout time.Duration
}

func NewSQLRepository(db dbx.DBTX, engine *query.Engine, timeout time.Duration) *SQLRepository {
	return &SQLRepository{db: db, engine: engine, timeout: timeout}
}

// levelArg stores privilege levels as plain integers.
type levelArg struct {
	v wildcard.Value[models.Level]
}

func (a levelArg) Interface() (any, bool) {
	l, ok := a.v.Get()
	return int64(l), ok
}

func constraints(f models.UserFilter) query.Constraints {
	return query.Constraints{
		query.Eq("username", f.Username),
		query.Eq("privilege_level", levelArg{f.PrivilegeLevel}),
		query.Eq("password_salt", f.Salt),
		query.Eq("password_hash", f.Hash),
	}
}

func (r *SQLRepository) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func refusePassword(f models.UserFilter, op string) error {
	if !f.Password.IsAny() {
		return fmt.Errorf("%w: cannot %s users by password", common.ErrIllegalOperation, op)
	}
	return nil
}

func (r *SQLRepository) Select(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	if err := refusePassword(filter, "select"); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return r.selectUsers(ctx, filter, query.Bounds{Fields: len(columns)})
}

func (r *SQLRepository) selectUsers(ctx context.Context, filter models.UserFilter, b query.Bounds) ([]models.User, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	rows, err := r.engine.Select(ctx, r.db, table, columns, constraints(filter), query.Intersection, b)
	if err != nil {
		return nil, err
	}

	out := make([]models.User, 0, len(rows))
	for _, row := range rows {
		u, err := toUser(row)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *SQLRepository) SelectByUsername(ctx context.Context, username string) (models.User, error) {
	found, err := r.selectUsers(ctx, models.ByUsername(username), query.Bounds{MaxRecords: 1, Fields: len(columns)})
	if err != nil {
		return models.User{}, err
	}
	if len(found) == 0 {
		return models.User{}, fmt.Errorf("%w: user <%s>", common.ErrMissingSubject, username)
	}
	return found[0], nil
}

func (r *SQLRepository) SelectAll(ctx context.Context) ([]models.User, error) {
	return r.selectUsers(ctx, models.UserFilter{}, query.Bounds{Fields: len(columns)})
}

func (r *SQLRepository) Insert(ctx context.Context, user models.User) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	err := r.engine.Insert(ctx, r.db, table, constraints(models.FilterFor(user)))
	if err != nil && dbx.IsUniqueViolation(err) {
		return fmt.Errorf("%w: username <%s> already exists", common.ErrIllegalOperation, user.Username())
	}
	return err
}

func (r *SQLRepository) Update(ctx context.Context, filter, updates models.UserFilter) (int64, error) {
	if err := refusePassword(filter, "update"); err != nil {
		return 0, err
	}
	if !updates.Password.IsAny() {
		return 0, fmt.Errorf("%w: plaintext passwords are never stored", common.ErrIllegalOperation)
	}
	updates.Username = wildcard.Any[string]()
	if err := updates.Validate(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	ctx, cancel := r.bounded(ctx)
	defer cancel()
	return r.engine.Update(ctx, r.db, table, constraints(filter), query.Intersection, constraints(updates))
}

func (r *SQLRepository) Delete(ctx context.Context, filter models.UserFilter) (int64, error) {
	if err := refusePassword(filter, "delete"); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	ctx, cancel := r.bounded(ctx)
	defer cancel()
	return r.engine.Delete(ctx, r.db, table, constraints(filter), query.Intersection)
}

func toUser(row []any) (models.User, error) {
	username, ok1 := asString(row[0])
	level, ok2 := asInt64(row[1])
	salt, ok3 := asInt64(row[2])
	hash, ok4 := asString(row[3])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return models.User{}, fmt.Errorf("%w: malformed users row", common.ErrStorageState)
	}

	u, err := models.Restore(username, models.Level(level), salt, hash)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: users row <%s>: %v", common.ErrStorageState, username, err)
	}
	if v := u.VerifyPrivilege(); v != nil {
		return models.User{}, fmt.Errorf("%w: %v", common.ErrStorageState, v)
	}
	return u, nil
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	}
	return 0, false
}
