package revocations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/dbx"
)

// SQLRepository stores revoked token ids in the revoked_tokens table.
// Expiry is kept as unix seconds so both dialects share one schema.
type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
	timeout time.Duration
}

func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect, timeout time.Duration) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect, timeout: timeout}
}

func (r *SQLRepository) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *SQLRepository) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	query := `INSERT INTO revoked_tokens (jti, expires_at) VALUES (` +
		r.dialect.Placeholder(1) + `, ` + r.dialect.Placeholder(2) + `)`
	if _, err := r.db.ExecContext(ctx, query, jti, expiresAt.Unix()); err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil
		}
		return storeError(ctx, err)
	}
	return nil
}

func (r *SQLRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	query := `SELECT 1 FROM revoked_tokens WHERE jti = ` + r.dialect.Placeholder(1)
	var one int
	if err := r.db.QueryRowContext(ctx, query, jti).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, storeError(ctx, err)
	}
	return true, nil
}

func (r *SQLRepository) Purge(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	query := `DELETE FROM revoked_tokens WHERE expires_at < ` + r.dialect.Placeholder(1)
	res, err := r.db.ExecContext(ctx, query, now.Unix())
	if err != nil {
		return 0, storeError(ctx, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError(ctx, err)
	}
	return n, nil
}

func storeError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || dbx.IsRetryable(err) {
		return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("db error: %w", err)
}
